package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"model-marketplace/internal/auth"
	"model-marketplace/internal/blockchain"
)

// Handlers groups every route handler the server mounts
type Handlers struct {
	Auth        *AuthHandler
	Marketplace *MarketplaceHandler
	Mint        *MintHandler
	System      *SystemHandler
	Price       *PriceHandler

	// Operator signs every write. Only its wallet may call write routes.
	Operator blockchain.Signer
}

// RegisterRoutes mounts the public, authenticated and metrics routes.
// gatherer may be nil to skip /metrics.
func RegisterRoutes(router *gin.Engine, h Handlers, gatherer prometheus.Gatherer) {
	router.GET("/health", h.System.Health)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/wallet", h.Auth.WalletLogin)
		authRoutes.POST("/logout", h.Auth.Logout)
	}

	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", h.Auth.GetMe)
	}

	// Public read routes
	public := router.Group("/api")
	{
		public.GET("/diagnostics", h.System.Diagnostics)
		public.GET("/marketplace", h.Marketplace.GetMarketplace)
		public.GET("/listings", h.Marketplace.GetListings)
		public.GET("/listings/:mint", h.Marketplace.GetListing)
		public.GET("/wallets/:wallet/nfts", h.Marketplace.GetWalletNfts)
		public.GET("/wallets/:wallet/owned", h.Marketplace.GetOwnedNfts)
		public.GET("/wallets/:wallet/collection", h.Mint.GetCollection)
		public.GET("/price/sol", h.Price.GetSolPrice)
		public.GET("/quote", h.Price.GetQuote)
	}

	// Any logged-in wallet
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.GET("/transactions", h.Marketplace.GetTransactions)
	}

	// Operator writes
	operator := router.Group("/api")
	operator.Use(auth.AuthMiddleware(), OperatorOnly(h.Operator))
	{
		operator.POST("/listings", h.Marketplace.CreateListing)
		operator.DELETE("/listings/:mint", h.Marketplace.Delist)
		operator.POST("/purchases", h.Marketplace.Purchase)
		operator.POST("/marketplace/initialize", h.Marketplace.Initialize)

		operator.POST("/nfts", h.Mint.MintNft)
		operator.POST("/collections", h.Mint.CreateCollection)
		operator.POST("/uploads/model", h.Mint.UploadModel)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
