package handlers

import (
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/ipfs"
	"model-marketplace/internal/services"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var rejected *blockchain.TransactionRejectedError
	switch {
	case errors.Is(err, blockchain.ErrWalletNotConnected),
		errors.Is(err, services.ErrCollectionStoreUnavailable),
		errors.Is(err, ipfs.ErrNotConfigured),
		errors.Is(err, services.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, blockchain.ErrCollectionMismatch),
		errors.Is(err, blockchain.ErrInvalidPrice),
		errors.Is(err, blockchain.ErrMissingField),
		errors.Is(err, blockchain.ErrInvalidMetadata),
		errors.Is(err, blockchain.ErrInvalidFee),
		errors.Is(err, blockchain.ErrInvalidName),
		errors.Is(err, ipfs.ErrUnsupportedModelFile):
		return http.StatusBadRequest
	case errors.Is(err, blockchain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, blockchain.ErrBlockhashExpired),
		errors.Is(err, blockchain.ErrConfirmTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &rejected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	body := gin.H{"error": err.Error()}
	var rejected *blockchain.TransactionRejectedError
	if errors.As(err, &rejected) && !rejected.Signature.IsZero() {
		body["signature"] = rejected.Signature.String()
	}
	c.JSON(status, body)
}

func parsePublicKey(c *gin.Context, field, value string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + field})
		return solana.PublicKey{}, false
	}
	return key, true
}
