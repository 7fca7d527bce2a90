package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/ipfs"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/services"
)

const maxModelUploadSize = 512 << 20

// ModelUploader pins model artifacts
type ModelUploader interface {
	UploadModel(ctx context.Context, name string, r io.Reader) (string, error)
	GatewayURL(cid string, i int) string
}

// MintHandler serves minting, collections and model uploads
type MintHandler struct {
	mint     *services.MintService
	uploader ModelUploader
	signer   blockchain.Signer
}

// NewMintHandler creates a MintHandler. uploader and signer may be nil.
func NewMintHandler(mint *services.MintService, uploader ModelUploader, signer blockchain.Signer) *MintHandler {
	return &MintHandler{
		mint:     mint,
		uploader: uploader,
		signer:   signer,
	}
}

type mintRequest struct {
	Name                 string                    `json:"name" binding:"required"`
	Symbol               string                    `json:"symbol"`
	Description          string                    `json:"description"`
	Image                string                    `json:"image"`
	SellerFeeBasisPoints uint16                    `json:"seller_fee_basis_points"`
	CollectionMint       string                    `json:"collection_mint"`
	MetadataURI          string                    `json:"metadata_uri"`
	Model                *metadata.ModelAttributes `json:"model"`
}

// MintNft mints a model NFT to the operator wallet
// POST /api/nfts
func (h *MintHandler) MintNft(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mintReq := services.MintRequest{
		Name:                 req.Name,
		Symbol:               req.Symbol,
		Description:          req.Description,
		Image:                req.Image,
		Model:                req.Model,
		SellerFeeBasisPoints: req.SellerFeeBasisPoints,
		MetadataURI:          req.MetadataURI,
	}
	if req.CollectionMint != "" {
		collection, ok := parsePublicKey(c, "collection_mint", req.CollectionMint)
		if !ok {
			return
		}
		mintReq.CollectionMint = &collection
	}

	result, err := h.mint.MintNft(c.Request.Context(), h.signer, mintReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateCollection returns the operator's collection, creating it on first use
// POST /api/collections
func (h *MintHandler) CreateCollection(c *gin.Context) {
	var req struct {
		Name                 string `json:"name" binding:"required"`
		Symbol               string `json:"symbol"`
		Description          string `json:"description"`
		Image                string `json:"image"`
		SellerFeeBasisPoints uint16 `json:"seller_fee_basis_points"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.mint.GetOrCreateCollection(c.Request.Context(), h.signer, services.CollectionRequest{
		Name:                 req.Name,
		Symbol:               req.Symbol,
		Description:          req.Description,
		Image:                req.Image,
		SellerFeeBasisPoints: req.SellerFeeBasisPoints,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// GetCollection returns a wallet's stored collection
// GET /api/wallets/:wallet/collection
func (h *MintHandler) GetCollection(c *gin.Context) {
	wallet, ok := parsePublicKey(c, "wallet", c.Param("wallet"))
	if !ok {
		return
	}
	collection, err := h.mint.GetCollection(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	if collection == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	c.JSON(http.StatusOK, collection)
}

// UploadModel pins a model artifact from the multipart "file" field
// POST /api/uploads/model
func (h *MintHandler) UploadModel(c *gin.Context) {
	if h.uploader == nil {
		respondError(c, ipfs.ErrNotConfigured)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxModelUploadSize)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if err := ipfs.ValidateModelFile(header.Filename); err != nil {
		respondError(c, err)
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	cid, err := h.uploader.UploadModel(c.Request.Context(), header.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"cid":         cid,
		"uri":         ipfs.URI(cid),
		"gateway_url": h.uploader.GatewayURL(cid, 0),
		"name":        header.Filename,
		"size":        header.Size,
	})
}
