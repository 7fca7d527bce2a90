package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"model-marketplace/internal/auth"
	"model-marketplace/internal/blockchain"
)

// RequestLogger logs one line per request through zap
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// OperatorOnly admits only the wallet whose keypair signs server writes.
// It runs after auth.AuthMiddleware.
func OperatorOnly(signer blockchain.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := blockchain.RequireSigner(signer); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		wallet, ok := auth.GetWalletAddress(c)
		if !ok || wallet != signer.PublicKey().String() {
			c.JSON(http.StatusForbidden, gin.H{"error": "operator wallet required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
