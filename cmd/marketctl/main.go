package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/config"
	"model-marketplace/internal/database"
	"model-marketplace/internal/ipfs"
	"model-marketplace/internal/logger"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/repository"
	"model-marketplace/internal/services"
)

// env is the wiring shared by every subcommand
type env struct {
	cfg       *config.Config
	ref       blockchain.MarketplaceRef
	client    *blockchain.SolanaClient
	submitter *blockchain.Submitter
	signer    blockchain.Signer
	ipfs      *ipfs.Client
	nfts      *services.NftService
	repo      *repository.Repository
}

var app *env

// stdout receives command output
var stdout io.Writer = os.Stdout

func main() {
	cliApp := &cli.App{
		Name:  "marketctl",
		Usage: "inspect and operate the model NFT marketplace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc", Usage: "RPC endpoint (default SOLANA_RPC_URL or the SOLANA_NETWORK cluster)"},
			&cli.StringFlag{Name: "program", Usage: "marketplace program id (default MARKETPLACE_PROGRAM_ID)"},
			&cli.StringFlag{Name: "marketplace", Usage: "marketplace name (default MARKETPLACE_NAME)"},
			&cli.StringFlag{Name: "keypair", Usage: "keygen file or base58 secret key (default SOLANA_WALLET_KEYPAIR)"},
			&cli.BoolFlag{Name: "verbose", Usage: "debug logging"},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "listings",
				Usage:  "list every authentic listing of the marketplace",
				Action: listListings,
			},
			{
				Name:      "nfts",
				Usage:     "list the NFTs held by a wallet",
				ArgsUsage: "<owner>",
				Action:    listNfts,
			},
			{
				Name:      "nft",
				Usage:     "show one NFT with its listing state and holder",
				ArgsUsage: "<mint>",
				Action:    getNft,
			},
			{
				Name:   "list",
				Usage:  "list an NFT for sale",
				Action: listNft,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "collection", Required: true, Usage: "collection mint the NFT declares"},
					&cli.StringFlag{Name: "price", Required: true, Usage: "price in SOL"},
				},
			},
			{
				Name:   "delist",
				Usage:  "close a listing and return the NFT",
				Action: delistNft,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mint", Required: true},
				},
			},
			{
				Name:   "purchase",
				Usage:  "buy a listed NFT",
				Action: purchaseNft,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "maker", Required: true, Usage: "wallet that created the listing"},
				},
			},
			{
				Name:   "mint",
				Usage:  "mint a model NFT",
				Action: mintNft,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "symbol"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "image"},
					&cli.StringFlag{Name: "uri", Usage: "existing metadata uri; skips pinning"},
					&cli.UintFlag{Name: "royalty", Usage: "seller fee in basis points (0 uses the default)"},
					&cli.StringFlag{Name: "collection", Usage: "collection mint to join and verify"},
					&cli.StringFlag{Name: "framework"},
					&cli.StringFlag{Name: "model-version"},
					&cli.StringFlag{Name: "license"},
					&cli.StringFlag{Name: "model-uri", Usage: "uri of the model artifact"},
					&cli.StringSliceFlag{Name: "metric", Usage: "name=value, repeatable"},
				},
			},
			{
				Name:   "collection",
				Usage:  "get or create the wallet's collection",
				Action: getOrCreateCollection,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "symbol"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "image"},
					&cli.BoolFlag{Name: "reset", Usage: "forget the stored collection and create a new one"},
				},
			},
			{
				Name:      "upload",
				Usage:     "pin a model artifact to IPFS",
				ArgsUsage: "<file>",
				Action:    uploadModel,
			},
			{
				Name:   "init",
				Usage:  "initialize the marketplace with the signer as admin",
				Action: initMarketplace,
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "fee", Usage: "marketplace fee in basis points"},
				},
			},
			{
				Name:   "diagnose",
				Usage:  "check RPC, program and marketplace accounts",
				Action: diagnose,
			},
			{
				Name:      "quote",
				Usage:     "price an amount of SOL in USD",
				ArgsUsage: "<sol>",
				Action:    quote,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		zap.L().Fatal("marketctl failed", zap.Error(err))
	}
}

func setup(c *cli.Context) error {
	if c.String("rpc") != "" {
		os.Setenv("SOLANA_RPC_URL", c.String("rpc"))
	}
	if c.String("program") != "" {
		os.Setenv("MARKETPLACE_PROGRAM_ID", c.String("program"))
	}
	if c.String("marketplace") != "" {
		os.Setenv("MARKETPLACE_NAME", c.String("marketplace"))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	if _, err := logger.Init(level, true); err != nil {
		return err
	}

	ref, err := blockchain.NewMarketplaceRef(cfg.Solana.ProgramID, cfg.Marketplace.Name)
	if err != nil {
		return err
	}

	client := blockchain.NewSolanaClient(cfg.Solana.RPCURL)
	httpClient := ipfs.NewHTTPClient(cfg.IPFS.Timeout)
	ipfsClient := ipfs.NewClient(ipfs.Config{
		Endpoint:      cfg.IPFS.PinataEndpoint,
		APIKey:        cfg.IPFS.PinataAPIKey,
		SecretKey:     cfg.IPFS.PinataSecretKey,
		Gateways:      cfg.IPFS.Gateways,
		UploadTimeout: cfg.IPFS.UploadTimeout,
	}, httpClient)
	resolver := metadata.NewResolver(httpClient, ipfsClient, cfg.IPFS.Timeout)

	submitter := blockchain.NewSubmitter(client, cfg.Solana.PollInterval, cfg.Solana.ConfirmTimeout)
	submitter.SetResendInterval(cfg.Solana.ResendInterval)

	app = &env{
		cfg:       cfg,
		ref:       ref,
		client:    client,
		submitter: submitter,
		ipfs:      ipfsClient,
		nfts:      services.NewNftService(client, resolver, nil, 0),
	}

	keypair := c.String("keypair")
	if keypair == "" {
		keypair = cfg.Solana.WalletKeypair
	}
	if keypair != "" {
		signer, err := blockchain.LoadKeypairSigner(keypair)
		if err != nil {
			return err
		}
		app.signer = signer
	}
	return nil
}

// repository opens the configured database on first use
func (e *env) repository() (*repository.Repository, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	if err := database.Connect(e.cfg); err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(database.GetDB()); err != nil {
		return nil, err
	}
	e.repo = repository.NewRepository(database.GetDB())
	return e.repo, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSignature(action string, sig fmt.Stringer, started time.Time) error {
	return printJSON(map[string]string{
		"action":    action,
		"signature": sig.String(),
		"took":      time.Since(started).Round(time.Millisecond).String(),
	})
}
