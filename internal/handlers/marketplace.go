package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"model-marketplace/internal/auth"
	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/repository"
	"model-marketplace/internal/services"
)

// MarketplaceHandler serves listing reads and the operator's marketplace writes
type MarketplaceHandler struct {
	nfts         *services.NftService
	market       *services.MarketplaceService
	repo         *repository.Repository
	ref          blockchain.MarketplaceRef
	signer       blockchain.Signer
	demoFallback bool
}

// NewMarketplaceHandler creates a MarketplaceHandler. signer may be nil, in
// which case every write answers 503.
func NewMarketplaceHandler(
	nfts *services.NftService,
	market *services.MarketplaceService,
	repo *repository.Repository,
	ref blockchain.MarketplaceRef,
	signer blockchain.Signer,
	demoFallback bool,
) *MarketplaceHandler {
	return &MarketplaceHandler{
		nfts:         nfts,
		market:       market,
		repo:         repo,
		ref:          ref,
		signer:       signer,
		demoFallback: demoFallback,
	}
}

// GetMarketplace returns the marketplace account
// GET /api/marketplace
func (h *MarketplaceHandler) GetMarketplace(c *gin.Context) {
	info, err := h.nfts.GetMarketplace(c.Request.Context(), h.ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetListings returns every authentic listing of the marketplace
// GET /api/listings?refresh=true
func (h *MarketplaceHandler) GetListings(c *gin.Context) {
	var (
		listings []*services.Nft
		err      error
	)
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		listings, err = h.nfts.RefreshListings(c.Request.Context(), h.ref)
	} else {
		listings, err = h.nfts.ListMarketplaceListings(c.Request.Context(), h.ref)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	demo := false
	if len(listings) == 0 && h.demoFallback {
		listings = services.DemoListings()
		demo = true
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
		"demo":     demo,
	})
}

// GetListing returns one NFT with its listing state
// GET /api/listings/:mint
func (h *MarketplaceHandler) GetListing(c *gin.Context) {
	mint, ok := parsePublicKey(c, "mint", c.Param("mint"))
	if !ok {
		return
	}
	nft, err := h.nfts.GetNft(c.Request.Context(), h.ref, mint)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nft)
}

// GetWalletNfts returns the NFTs held by a wallet
// GET /api/wallets/:wallet/nfts
func (h *MarketplaceHandler) GetWalletNfts(c *gin.Context) {
	owner, ok := parsePublicKey(c, "wallet", c.Param("wallet"))
	if !ok {
		return
	}
	nfts, err := h.nfts.ListUserNfts(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nfts": nfts, "count": len(nfts)})
}

// GetOwnedNfts returns held NFTs plus the wallet's active listings
// GET /api/wallets/:wallet/owned
func (h *MarketplaceHandler) GetOwnedNfts(c *gin.Context) {
	wallet, ok := parsePublicKey(c, "wallet", c.Param("wallet"))
	if !ok {
		return
	}
	nfts, err := h.nfts.ListOwnedNfts(c.Request.Context(), h.ref, wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nfts": nfts, "count": len(nfts)})
}

// CreateListing lists an NFT held by the operator wallet
// POST /api/listings
func (h *MarketplaceHandler) CreateListing(c *gin.Context) {
	var req struct {
		Mint           string `json:"mint" binding:"required"`
		CollectionMint string `json:"collection_mint" binding:"required"`
		Price          string `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mint, ok := parsePublicKey(c, "mint", req.Mint)
	if !ok {
		return
	}
	collection, ok := parsePublicKey(c, "collection_mint", req.CollectionMint)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	sig, err := h.market.List(c.Request.Context(), h.signer, h.ref, price, mint, collection)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"signature": sig.String(), "mint": mint.String()})
}

// Delist closes the operator's listing of an NFT
// DELETE /api/listings/:mint
func (h *MarketplaceHandler) Delist(c *gin.Context) {
	mint, ok := parsePublicKey(c, "mint", c.Param("mint"))
	if !ok {
		return
	}
	sig, err := h.market.Delist(c.Request.Context(), h.signer, h.ref, mint)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig.String(), "mint": mint.String()})
}

// Purchase buys a listing with the operator wallet
// POST /api/purchases
func (h *MarketplaceHandler) Purchase(c *gin.Context) {
	var req struct {
		Mint  string `json:"mint" binding:"required"`
		Maker string `json:"maker" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mint, ok := parsePublicKey(c, "mint", req.Mint)
	if !ok {
		return
	}
	maker, ok := parsePublicKey(c, "maker", req.Maker)
	if !ok {
		return
	}

	sig, err := h.market.Purchase(c.Request.Context(), h.signer, h.ref, mint, maker)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": sig.String(), "mint": mint.String()})
}

// Initialize creates the marketplace with the operator as admin
// POST /api/marketplace/initialize
func (h *MarketplaceHandler) Initialize(c *gin.Context) {
	var req struct {
		FeeBps uint16 `json:"fee_bps"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FeeBps > services.MaxMarketplaceFeeBps {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fee_bps must be at most 10000"})
		return
	}

	sig, err := h.market.InitializeMarketplace(c.Request.Context(), h.signer, h.ref, req.FeeBps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"signature": sig.String(), "marketplace": h.ref.Name})
}

// GetTransactions returns the transaction log, newest first. The wallet
// query defaults to the caller's wallet.
// GET /api/transactions?wallet=&limit=
func (h *MarketplaceHandler) GetTransactions(c *gin.Context) {
	if h.repo == nil {
		respondError(c, services.ErrCollectionStoreUnavailable)
		return
	}

	wallet := c.Query("wallet")
	if wallet == "" {
		wallet, _ = auth.GetWalletAddress(c)
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	txs, err := h.repo.ListTransactions(c.Request.Context(), wallet, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}
