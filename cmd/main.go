package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"model-marketplace/internal/auth"
	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/config"
	"model-marketplace/internal/database"
	"model-marketplace/internal/handlers"
	"model-marketplace/internal/ipfs"
	"model-marketplace/internal/jobs"
	"model-marketplace/internal/logger"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/metrics"
	"model-marketplace/internal/repository"
	"model-marketplace/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.Init(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	if cfg.JWT.Secret == "" {
		zlog.Fatal("JWT_SECRET is required")
	}
	auth.InitJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(database.GetDB()); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}
	repo := repository.NewRepository(database.GetDB())

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		zlog.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Solana
	ref, err := blockchain.NewMarketplaceRef(cfg.Solana.ProgramID, cfg.Marketplace.Name)
	if err != nil {
		zlog.Fatal("Invalid marketplace", zap.Error(err))
	}
	solanaClient := blockchain.NewSolanaClient(cfg.Solana.RPCURL)
	submitter := blockchain.NewSubmitter(solanaClient, cfg.Solana.PollInterval, cfg.Solana.ConfirmTimeout)
	submitter.SetResendInterval(cfg.Solana.ResendInterval)

	var signer blockchain.Signer
	if cfg.Solana.WalletKeypair != "" {
		ks, err := blockchain.LoadKeypairSigner(cfg.Solana.WalletKeypair)
		if err != nil {
			zlog.Fatal("Failed to load operator keypair", zap.Error(err))
		}
		signer = ks
		zlog.Info("Operator wallet loaded", zap.String("pubkey", ks.PublicKey().String()))
	} else {
		zlog.Warn("SOLANA_WALLET_KEYPAIR not set, write endpoints will answer 503")
	}

	// IPFS
	httpClient := ipfs.NewHTTPClient(cfg.IPFS.Timeout)
	ipfsClient := ipfs.NewClient(ipfs.Config{
		Endpoint:      cfg.IPFS.PinataEndpoint,
		APIKey:        cfg.IPFS.PinataAPIKey,
		SecretKey:     cfg.IPFS.PinataSecretKey,
		Gateways:      cfg.IPFS.Gateways,
		UploadTimeout: cfg.IPFS.UploadTimeout,
	}, httpClient)
	resolver := metadata.NewResolver(httpClient, ipfsClient, cfg.IPFS.Timeout)

	// Initialize services
	authService := services.NewAuthService(repo)
	nftService := services.NewNftService(solanaClient, resolver, m, cfg.Cache.TTL)
	marketplaceService := services.NewMarketplaceService(solanaClient, submitter, nftService, repo, m)
	priceService := services.NewPriceService(httpClient, services.PriceSources{
		CoinGecko:     cfg.Price.CoinGeckoURL,
		CryptoCompare: cfg.Price.CryptoCompareURL,
	}, cfg.Price.TTL)
	mintService := services.NewMintService(solanaClient, submitter, ipfsClient, repo, nftService, m, cfg.Marketplace.DefaultRoyaltyBps)

	// Keep the listing cache warm
	var warmer *jobs.ListingWarmer
	if cfg.Cache.TTL > 0 && cfg.Cache.WarmInterval > 0 {
		warmer = jobs.NewListingWarmer(nftService, ref, cfg.Cache.WarmInterval, cfg.Solana.ConfirmTimeout)
		go warmer.Start()
	}

	// Set up Gin router
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(zlog.Named("http")))

	allowedOrigins := cfg.Server.AllowedOrigins
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Auth:        handlers.NewAuthHandler(authService),
		Marketplace: handlers.NewMarketplaceHandler(nftService, marketplaceService, repo, ref, signer, cfg.Marketplace.DemoFallback),
		Mint:        handlers.NewMintHandler(mintService, ipfsClient, signer),
		System:      handlers.NewSystemHandler(solanaClient, cfg.Solana.RPCURL, ref, signer),
		Price:       handlers.NewPriceHandler(priceService),
		Operator:    signer,
	}, registry)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("Server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("marketplace", ref.String()),
			zap.String("rpc_url", cfg.Solana.RPCURL))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")
	if warmer != nil {
		warmer.Stop()
	}

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zlog.Info("Server exited")
}
