package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"model-marketplace/internal/services"
)

type PriceHandler struct {
	prices *services.PriceService
}

func NewPriceHandler(prices *services.PriceService) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// GetSolPrice returns the current SOL/USD rate
// GET /api/price/sol
func (h *PriceHandler) GetSolPrice(c *gin.Context) {
	quote, err := h.prices.SolUSD(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetQuote converts a SOL amount to USD
// GET /api/quote?price=1.5
func (h *PriceHandler) GetQuote(c *gin.Context) {
	price, err := decimal.NewFromString(c.Query("price"))
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	quote, err := h.prices.Quote(c.Request.Context(), price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}
