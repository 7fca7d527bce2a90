package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/ipfs"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/services"
)

func listListings(c *cli.Context) error {
	listings, err := app.nfts.ListMarketplaceListings(c.Context, app.ref)
	if err != nil {
		return err
	}
	return printJSON(listings)
}

func listNfts(c *cli.Context) error {
	owner, err := solana.PublicKeyFromBase58(c.Args().First())
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	nfts, err := app.nfts.ListUserNfts(c.Context, owner)
	if err != nil {
		return err
	}
	return printJSON(nfts)
}

func getNft(c *cli.Context) error {
	mint, err := solana.PublicKeyFromBase58(c.Args().First())
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	nft, err := app.nfts.GetNft(c.Context, app.ref, mint)
	if err != nil {
		return err
	}
	return printJSON(nft)
}

func marketplaceService() *services.MarketplaceService {
	return services.NewMarketplaceService(app.client, app.submitter, app.nfts, nil, nil)
}

func listNft(c *cli.Context) error {
	mint, err := solana.PublicKeyFromBase58(c.String("mint"))
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	collection, err := solana.PublicKeyFromBase58(c.String("collection"))
	if err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	price, err := decimal.NewFromString(c.String("price"))
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	started := time.Now()
	sig, err := marketplaceService().List(c.Context, app.signer, app.ref, price, mint, collection)
	if err != nil {
		return err
	}
	return printSignature("list", sig, started)
}

func delistNft(c *cli.Context) error {
	mint, err := solana.PublicKeyFromBase58(c.String("mint"))
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	started := time.Now()
	sig, err := marketplaceService().Delist(c.Context, app.signer, app.ref, mint)
	if err != nil {
		return err
	}
	return printSignature("delist", sig, started)
}

func purchaseNft(c *cli.Context) error {
	mint, err := solana.PublicKeyFromBase58(c.String("mint"))
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	maker, err := solana.PublicKeyFromBase58(c.String("maker"))
	if err != nil {
		return fmt.Errorf("maker: %w", err)
	}
	started := time.Now()
	sig, err := marketplaceService().Purchase(c.Context, app.signer, app.ref, mint, maker)
	if err != nil {
		return err
	}
	return printSignature("purchase", sig, started)
}

func initMarketplace(c *cli.Context) error {
	fee := c.Uint("fee")
	if fee > services.MaxMarketplaceFeeBps {
		return fmt.Errorf("%w: fee %d", blockchain.ErrInvalidFee, fee)
	}
	started := time.Now()
	sig, err := marketplaceService().InitializeMarketplace(c.Context, app.signer, app.ref, uint16(fee))
	if err != nil {
		return err
	}
	return printSignature("init", sig, started)
}

func mintService(withRepo bool) (*services.MintService, error) {
	if !withRepo {
		return services.NewMintService(app.client, app.submitter, app.ipfs, nil, app.nfts, nil, app.cfg.Marketplace.DefaultRoyaltyBps), nil
	}
	repo, err := app.repository()
	if err != nil {
		return nil, err
	}
	return services.NewMintService(app.client, app.submitter, app.ipfs, repo, app.nfts, nil, app.cfg.Marketplace.DefaultRoyaltyBps), nil
}

func mintNft(c *cli.Context) error {
	royalty := c.Uint("royalty")
	if royalty > uint(blockchain.MaxRoyaltyBasisPoints) {
		return fmt.Errorf("%w: royalty %d", blockchain.ErrInvalidFee, royalty)
	}

	req := services.MintRequest{
		Name:                 c.String("name"),
		Symbol:               c.String("symbol"),
		Description:          c.String("description"),
		Image:                c.String("image"),
		MetadataURI:          c.String("uri"),
		SellerFeeBasisPoints: uint16(royalty),
	}
	if raw := c.String("collection"); raw != "" {
		collection, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("collection: %w", err)
		}
		req.CollectionMint = &collection
	}

	model, err := modelFromFlags(c)
	if err != nil {
		return err
	}
	req.Model = model

	svc, err := mintService(false)
	if err != nil {
		return err
	}
	result, err := svc.MintNft(c.Context, app.signer, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func modelFromFlags(c *cli.Context) (*metadata.ModelAttributes, error) {
	model := &metadata.ModelAttributes{
		Framework: c.String("framework"),
		Version:   c.String("model-version"),
		License:   c.String("license"),
		ModelURI:  c.String("model-uri"),
	}
	for _, m := range c.StringSlice("metric") {
		name, value, ok := strings.Cut(m, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("metric %q must be name=value", m)
		}
		if model.Metrics == nil {
			model.Metrics = make(map[string]string)
		}
		model.Metrics[name] = value
	}
	if len(model.Attributes()) == 0 {
		return nil, nil
	}
	return model, nil
}

func getOrCreateCollection(c *cli.Context) error {
	svc, err := mintService(true)
	if err != nil {
		return err
	}
	if c.Bool("reset") {
		if err := blockchain.RequireSigner(app.signer); err != nil {
			return err
		}
		if err := svc.ForgetCollection(c.Context, app.signer.PublicKey()); err != nil {
			return err
		}
	}
	result, err := svc.GetOrCreateCollection(c.Context, app.signer, services.CollectionRequest{
		Name:        c.String("name"),
		Symbol:      c.String("symbol"),
		Description: c.String("description"),
		Image:       c.String("image"),
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func uploadModel(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("%w: file", blockchain.ErrMissingField)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	cid, err := app.ipfs.UploadModel(c.Context, name, f)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"name":        name,
		"cid":         cid,
		"uri":         ipfs.URI(cid),
		"gateway_url": app.ipfs.GatewayURL(cid, 0),
	})
}

func diagnose(c *cli.Context) error {
	result := blockchain.RunDiagnostics(c.Context, app.client, app.cfg.Solana.RPCURL, app.ref, app.signer)
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.RPCConnected {
		return fmt.Errorf("rpc %s unreachable: %s", result.RPCURL, result.RPCError)
	}
	return nil
}

func quote(c *cli.Context) error {
	amount := decimal.NewFromInt(1)
	if c.Args().Present() {
		var err error
		if amount, err = decimal.NewFromString(c.Args().First()); err != nil {
			return fmt.Errorf("invalid amount %q: %w", c.Args().First(), err)
		}
	}
	prices := services.NewPriceService(ipfs.NewHTTPClient(app.cfg.IPFS.Timeout), services.PriceSources{
		CoinGecko:     app.cfg.Price.CoinGeckoURL,
		CryptoCompare: app.cfg.Price.CryptoCompareURL,
	}, app.cfg.Price.TTL)
	result, err := prices.Quote(c.Context, amount)
	if err != nil {
		return err
	}
	return printJSON(result)
}
