package services

import (
	"github.com/shopspring/decimal"

	"model-marketplace/internal/metadata"
)

// Nft is the composite of on-chain metadata, the off-chain JSON document
// and listing state for one mint.
type Nft struct {
	Mint                 string                    `json:"mint"`
	Name                 string                    `json:"name"`
	Symbol               string                    `json:"symbol,omitempty"`
	URI                  string                    `json:"uri,omitempty"`
	Image                string                    `json:"image"`
	Description          string                    `json:"description,omitempty"`
	AnimationURL         string                    `json:"animation_url,omitempty"`
	ExternalURL          string                    `json:"external_url,omitempty"`
	Attributes           []metadata.Attribute      `json:"attributes,omitempty"`
	Model                *metadata.ModelAttributes `json:"model,omitempty"`
	SellerFeeBasisPoints uint16                    `json:"seller_fee_basis_points"`
	CollectionMint       string                    `json:"collection_mint,omitempty"`
	CollectionVerified   bool                      `json:"collection_verified"`
	Owner                string                    `json:"owner,omitempty"`
	IsListed             bool                      `json:"is_listed"`
	ListingAddress       string                    `json:"listing_address,omitempty"`
	Maker                string                    `json:"maker,omitempty"`
	Price                *decimal.Decimal          `json:"price,omitempty"`
	PriceLamports        uint64                    `json:"price_lamports,omitempty"`
	Demo                 bool                      `json:"demo,omitempty"`
}

// MarketplaceInfo is the decoded marketplace account with its derived addresses
type MarketplaceInfo struct {
	Address     string `json:"address"`
	ProgramID   string `json:"program_id"`
	Name        string `json:"name"`
	Admin       string `json:"admin"`
	FeeBps      uint16 `json:"fee_bps"`
	Treasury    string `json:"treasury"`
	RewardsMint string `json:"rewards_mint"`
}

const demoCollection = "9MynHsZQYpFFpQSLpQUEzpJoVt4UqJdvQosQpgXRTPzS"

// DemoListings is the fixed dataset served when a marketplace has no
// listings and demo fallback is enabled.
func DemoListings() []*Nft {
	item := func(listing, mint, name, description, price string) *Nft {
		p := decimal.RequireFromString(price)
		lamports, _ := ToLamports(p)
		return &Nft{
			Mint:           mint,
			Name:           name,
			Symbol:         "MOCK",
			URI:            "https://example.com/" + listing,
			Image:          metadata.PlaceholderImage(mint),
			Description:    description,
			CollectionMint: demoCollection,
			Owner:          "8ZChRhxf1SAH7DVJgsz6LD1KAWcV2iXJzHCZJHTnb1o4",
			IsListed:       true,
			ListingAddress: "listing-" + listing,
			Maker:          "8ZChRhxf1SAH7DVJgsz6LD1KAWcV2iXJzHCZJHTnb1o4",
			Price:          &p,
			PriceLamports:  lamports,
			Demo:           true,
		}
	}
	return []*Nft{
		item("1", "CQoq1xYCyvybMid43UgXmLVbYLhsgHMmPQE5RpYMpxjN", "Mock NFT #1",
			"This is a mock NFT created for demo purposes", "0.5"),
		item("2", "G5ZteLfMtLv5KofbJT8HPPdJmPJEKgFAXEKWxGXLsVhM", "Mock NFT #2",
			"Another mock NFT created for demonstration", "1.2"),
	}
}
