package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"model-marketplace/internal/blockchain"
)

// SystemHandler serves health and diagnostics
type SystemHandler struct {
	rpc    blockchain.RPC
	rpcURL string
	ref    blockchain.MarketplaceRef
	signer blockchain.Signer
}

// NewSystemHandler creates a SystemHandler
func NewSystemHandler(client blockchain.RPC, rpcURL string, ref blockchain.MarketplaceRef, signer blockchain.Signer) *SystemHandler {
	return &SystemHandler{
		rpc:    client,
		rpcURL: rpcURL,
		ref:    ref,
		signer: signer,
	}
}

// Health reports liveness
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"marketplace": h.ref.Name,
		"program_id":  h.ref.ProgramID.String(),
		"operator":    signerAddress(h.signer),
	})
}

// Diagnostics checks the RPC endpoint, program and marketplace accounts
// GET /api/diagnostics
func (h *SystemHandler) Diagnostics(c *gin.Context) {
	result := blockchain.RunDiagnostics(c.Request.Context(), h.rpc, h.rpcURL, h.ref, h.signer)
	status := http.StatusOK
	if !result.RPCConnected {
		status = http.StatusServiceUnavailable
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, result)
}

// signerAddress renders the operator wallet for status endpoints
func signerAddress(s blockchain.Signer) string {
	if blockchain.RequireSigner(s) != nil {
		return ""
	}
	return s.PublicKey().String()
}
