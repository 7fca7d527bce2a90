package blockchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// InstructionDiscriminator returns sha256("global:<name>")[:8]
func InstructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

var (
	initializeDiscriminator = InstructionDiscriminator("initialize")
	listingDiscriminator    = InstructionDiscriminator("listing")
	delistDiscriminator     = InstructionDiscriminator("delist")
	purchaseDiscriminator   = InstructionDiscriminator("purchase")
)

// ListingAccounts are the addresses the listing(price) instruction needs
type ListingAccounts struct {
	Maker          solana.PublicKey
	Marketplace    solana.PublicKey
	MakerMint      solana.PublicKey
	CollectionMint solana.PublicKey
	MakerAta       solana.PublicKey
	Vault          solana.PublicKey
	Listing        solana.PublicKey
	Metadata       solana.PublicKey
	MasterEdition  solana.PublicKey
}

// DelistAccounts are the addresses the delist() instruction needs
type DelistAccounts struct {
	Maker       solana.PublicKey
	Marketplace solana.PublicKey
	MakerMint   solana.PublicKey
	MakerAta    solana.PublicKey
	Listing     solana.PublicKey
	Vault       solana.PublicKey
}

// PurchaseAccounts are the addresses the purchase() instruction needs
type PurchaseAccounts struct {
	Taker          solana.PublicKey
	Maker          solana.PublicKey
	MakerMint      solana.PublicKey
	Marketplace    solana.PublicKey
	TakerAta       solana.PublicKey
	TakerAtaReward solana.PublicKey
	Vault          solana.PublicKey
	RewardsMint    solana.PublicKey
	Listing        solana.PublicKey
	Treasury       solana.PublicKey
}

// InitializeAccounts are the addresses the initialize(name, fee) instruction needs
type InitializeAccounts struct {
	Admin       solana.PublicKey
	Marketplace solana.PublicKey
	RewardsMint solana.PublicKey
	Treasury    solana.PublicKey
}

// ListingAccountsFor derives every listing account for maker and mint
func (l *Locator) ListingAccountsFor(maker, mint, collectionMint solana.PublicKey) (ListingAccounts, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return ListingAccounts{}, err
	}
	listing, _, err := l.ListingFor(marketplace, mint)
	if err != nil {
		return ListingAccounts{}, err
	}
	makerAta, err := AssociatedTokenAccount(maker, mint)
	if err != nil {
		return ListingAccounts{}, err
	}
	vault, err := AssociatedTokenAccount(listing, mint)
	if err != nil {
		return ListingAccounts{}, err
	}
	metadata, err := MetadataAddress(mint)
	if err != nil {
		return ListingAccounts{}, err
	}
	edition, err := MasterEditionAddress(mint)
	if err != nil {
		return ListingAccounts{}, err
	}
	return ListingAccounts{
		Maker:          maker,
		Marketplace:    marketplace,
		MakerMint:      mint,
		CollectionMint: collectionMint,
		MakerAta:       makerAta,
		Vault:          vault,
		Listing:        listing,
		Metadata:       metadata,
		MasterEdition:  edition,
	}, nil
}

// DelistAccountsFor derives every delist account for maker and mint
func (l *Locator) DelistAccountsFor(maker, mint solana.PublicKey) (DelistAccounts, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return DelistAccounts{}, err
	}
	listing, _, err := l.ListingFor(marketplace, mint)
	if err != nil {
		return DelistAccounts{}, err
	}
	makerAta, err := AssociatedTokenAccount(maker, mint)
	if err != nil {
		return DelistAccounts{}, err
	}
	vault, err := AssociatedTokenAccount(listing, mint)
	if err != nil {
		return DelistAccounts{}, err
	}
	return DelistAccounts{
		Maker:       maker,
		Marketplace: marketplace,
		MakerMint:   mint,
		MakerAta:    makerAta,
		Listing:     listing,
		Vault:       vault,
	}, nil
}

// PurchaseAccountsFor derives every purchase account for taker buying mint from maker
func (l *Locator) PurchaseAccountsFor(taker, maker, mint solana.PublicKey) (PurchaseAccounts, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return PurchaseAccounts{}, err
	}
	listing, _, err := l.ListingFor(marketplace, mint)
	if err != nil {
		return PurchaseAccounts{}, err
	}
	rewards, _, err := l.Rewards()
	if err != nil {
		return PurchaseAccounts{}, err
	}
	treasury, _, err := l.Treasury()
	if err != nil {
		return PurchaseAccounts{}, err
	}
	takerAta, err := AssociatedTokenAccount(taker, mint)
	if err != nil {
		return PurchaseAccounts{}, err
	}
	takerReward, err := AssociatedTokenAccount(taker, rewards)
	if err != nil {
		return PurchaseAccounts{}, err
	}
	vault, err := AssociatedTokenAccount(listing, mint)
	if err != nil {
		return PurchaseAccounts{}, err
	}
	return PurchaseAccounts{
		Taker:          taker,
		Maker:          maker,
		MakerMint:      mint,
		Marketplace:    marketplace,
		TakerAta:       takerAta,
		TakerAtaReward: takerReward,
		Vault:          vault,
		RewardsMint:    rewards,
		Listing:        listing,
		Treasury:       treasury,
	}, nil
}

// InitializeAccountsFor derives the accounts created by initialize
func (l *Locator) InitializeAccountsFor(admin solana.PublicKey) (InitializeAccounts, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return InitializeAccounts{}, err
	}
	rewards, _, err := l.Rewards()
	if err != nil {
		return InitializeAccounts{}, err
	}
	treasury, _, err := l.Treasury()
	if err != nil {
		return InitializeAccounts{}, err
	}
	return InitializeAccounts{
		Admin:       admin,
		Marketplace: marketplace,
		RewardsMint: rewards,
		Treasury:    treasury,
	}, nil
}

// NewListingInstruction builds listing(price)
func NewListingInstruction(programID solana.PublicKey, a ListingAccounts, price uint64) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(listingDiscriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to encode discriminator: %w", err)
	}
	// price: u64 (little-endian)
	if err := enc.WriteUint64(price, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to encode price: %w", err)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: a.Maker, IsWritable: true, IsSigner: true},                                     // maker
		{PublicKey: a.Marketplace, IsWritable: false, IsSigner: false},                             // marketplace
		{PublicKey: a.MakerMint, IsWritable: false, IsSigner: false},                               // maker_mint
		{PublicKey: a.CollectionMint, IsWritable: false, IsSigner: false},                          // collection_mint
		{PublicKey: a.MakerAta, IsWritable: true, IsSigner: false},                                 // maker_ata
		{PublicKey: a.Vault, IsWritable: true, IsSigner: false},                                    // vault
		{PublicKey: a.Listing, IsWritable: true, IsSigner: false},                                  // listing
		{PublicKey: a.Metadata, IsWritable: false, IsSigner: false},                                // metadata
		{PublicKey: a.MasterEdition, IsWritable: false, IsSigner: false},                           // master_edition
		{PublicKey: solana.TokenMetadataProgramID, IsWritable: false, IsSigner: false},             // metadata_program
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsWritable: false, IsSigner: false}, // associated_token_program
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},                    // system_program
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},                     // token_program
	}

	return solana.NewInstruction(programID, accounts, buf.Bytes()), nil
}

// NewDelistInstruction builds delist()
func NewDelistInstruction(programID solana.PublicKey, a DelistAccounts) solana.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: a.Maker, IsWritable: true, IsSigner: true},                                     // maker
		{PublicKey: a.Marketplace, IsWritable: false, IsSigner: false},                             // marketplace
		{PublicKey: a.MakerMint, IsWritable: false, IsSigner: false},                               // maker_mint
		{PublicKey: a.MakerAta, IsWritable: true, IsSigner: false},                                 // maker_ata
		{PublicKey: a.Listing, IsWritable: true, IsSigner: false},                                  // listing
		{PublicKey: a.Vault, IsWritable: true, IsSigner: false},                                    // vault
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},                    // system_program
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},                     // token_program
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsWritable: false, IsSigner: false}, // associated_token_program
	}

	data := make([]byte, 8)
	copy(data, delistDiscriminator[:])
	return solana.NewInstruction(programID, accounts, data)
}

// NewPurchaseInstruction builds purchase()
func NewPurchaseInstruction(programID solana.PublicKey, a PurchaseAccounts) solana.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: a.Taker, IsWritable: true, IsSigner: true},                                     // taker
		{PublicKey: a.Maker, IsWritable: true, IsSigner: false},                                    // maker
		{PublicKey: a.MakerMint, IsWritable: false, IsSigner: false},                               // maker_mint
		{PublicKey: a.Marketplace, IsWritable: false, IsSigner: false},                             // marketplace
		{PublicKey: a.TakerAta, IsWritable: true, IsSigner: false},                                 // taker_ata
		{PublicKey: a.TakerAtaReward, IsWritable: true, IsSigner: false},                           // taker_ata_reward
		{PublicKey: a.Vault, IsWritable: true, IsSigner: false},                                    // vault
		{PublicKey: a.RewardsMint, IsWritable: true, IsSigner: false},                              // rewards_mint
		{PublicKey: a.Listing, IsWritable: true, IsSigner: false},                                  // listing
		{PublicKey: a.Treasury, IsWritable: true, IsSigner: false},                                 // treasury
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsWritable: false, IsSigner: false}, // associated_token_program
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},                    // system_program
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},                     // token_program
	}

	data := make([]byte, 8)
	copy(data, purchaseDiscriminator[:])
	return solana.NewInstruction(programID, accounts, data)
}

// NewInitializeInstruction builds initialize(name, fee)
func NewInitializeInstruction(programID solana.PublicKey, a InitializeAccounts, name string, fee uint16) (solana.Instruction, error) {
	if name == "" || len(name) > MaxMarketplaceNameLen {
		return nil, fmt.Errorf("marketplace name must be 1-%d bytes", MaxMarketplaceNameLen)
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(initializeDiscriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to encode discriminator: %w", err)
	}
	// name: String (u32 length + bytes)
	if err := enc.WriteUint32(uint32(len(name)), binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to encode name length: %w", err)
	}
	if err := enc.WriteBytes([]byte(name), false); err != nil {
		return nil, fmt.Errorf("failed to encode name: %w", err)
	}
	// fee: u16 (little-endian)
	if err := enc.WriteUint16(fee, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to encode fee: %w", err)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: a.Admin, IsWritable: true, IsSigner: true},                  // admin
		{PublicKey: a.Marketplace, IsWritable: true, IsSigner: false},           // marketplace
		{PublicKey: a.RewardsMint, IsWritable: true, IsSigner: false},           // rewards_mint
		{PublicKey: a.Treasury, IsWritable: false, IsSigner: false},             // treasury
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false}, // system_program
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},  // token_program
	}

	return solana.NewInstruction(programID, accounts, buf.Bytes()), nil
}
