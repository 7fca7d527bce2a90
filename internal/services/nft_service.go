package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/metrics"
)

const (
	defaultFetchLimit   = 8
	defaultFetchTimeout = 10 * time.Second
	defaultLoadTimeout  = 45 * time.Second

	cacheListings = "listings"
	cacheNfts     = "nfts"
)

// MetadataResolver loads the JSON document a metadata uri points to
type MetadataResolver interface {
	Resolve(ctx context.Context, uri string) (*metadata.Document, error)
}

// NftService rebuilds the marketplace read model from raw account data.
// Results are cached for a short TTL and concurrent loads of the same key
// share one RPC round.
type NftService struct {
	rpc        blockchain.RPC
	resolver   MetadataResolver
	metrics    *metrics.Metrics
	cache      *cache.Cache
	ttl        time.Duration
	group      singleflight.Group
	fetchLimit int
	// fetchTimeout bounds one metadata document, loadTimeout a whole scan
	fetchTimeout time.Duration
	loadTimeout  time.Duration
	log          *zap.Logger
}

// NewNftService creates an NftService. A non-positive ttl disables caching.
func NewNftService(client blockchain.RPC, resolver MetadataResolver, m *metrics.Metrics, ttl time.Duration) *NftService {
	cleanup := 2 * ttl
	if ttl <= 0 {
		cleanup = time.Minute
	}
	return &NftService{
		rpc:          client,
		resolver:     resolver,
		metrics:      m,
		cache:        cache.New(ttl, cleanup),
		ttl:          ttl,
		fetchLimit:   defaultFetchLimit,
		fetchTimeout: defaultFetchTimeout,
		loadTimeout:  defaultLoadTimeout,
		log:          zap.L().Named("nfts"),
	}
}

// ListingsCacheKey is the cache key for a marketplace's listings
func ListingsCacheKey(ref blockchain.MarketplaceRef) string {
	return fmt.Sprintf("%s:%s:%s", cacheListings, ref.ProgramID, ref.Name)
}

// NftsCacheKey is the cache key for a wallet's NFTs
func NftsCacheKey(owner solana.PublicKey) string {
	return cacheNfts + ":" + owner.String()
}

// Invalidate drops cached results so the next read rescans
func (s *NftService) Invalidate(keys ...string) {
	for _, key := range keys {
		s.cache.Delete(key)
	}
}

// ListUserNfts returns every NFT held by owner: token accounts with a
// balance of exactly one whose mint has zero decimals.
func (s *NftService) ListUserNfts(ctx context.Context, owner solana.PublicKey) ([]*Nft, error) {
	return s.cached(ctx, NftsCacheKey(owner), cacheNfts, false, func(ctx context.Context) ([]*Nft, error) {
		return s.loadUserNfts(ctx, owner)
	})
}

// ListMarketplaceListings returns the genuine listings of ref. Order is
// not stable between calls.
func (s *NftService) ListMarketplaceListings(ctx context.Context, ref blockchain.MarketplaceRef) ([]*Nft, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.cached(ctx, ListingsCacheKey(ref), cacheListings, false, func(ctx context.Context) ([]*Nft, error) {
		return s.loadListings(ctx, ref)
	})
}

// RefreshListings rescans ref and replaces the cached result
func (s *NftService) RefreshListings(ctx context.Context, ref blockchain.MarketplaceRef) ([]*Nft, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.cached(ctx, ListingsCacheKey(ref), cacheListings, true, func(ctx context.Context) ([]*Nft, error) {
		return s.loadListings(ctx, ref)
	})
}

// ListOwnedNfts merges the NFTs wallet holds with the ones it has listed
// on ref. Listed entries report the maker as owner.
func (s *NftService) ListOwnedNfts(ctx context.Context, ref blockchain.MarketplaceRef, wallet solana.PublicKey) ([]*Nft, error) {
	held, err := s.ListUserNfts(ctx, wallet)
	if err != nil {
		return nil, err
	}
	listings, err := s.ListMarketplaceListings(ctx, ref)
	if err != nil {
		return nil, err
	}

	out := make([]*Nft, 0, len(held))
	seen := make(map[string]bool)
	for _, nft := range listings {
		if nft.Maker == wallet.String() && !seen[nft.Mint] {
			seen[nft.Mint] = true
			out = append(out, nft)
		}
	}
	for _, nft := range held {
		if !seen[nft.Mint] {
			seen[nft.Mint] = true
			out = append(out, nft)
		}
	}
	return out, nil
}

// GetNft resolves a single mint and its listing state on ref
func (s *NftService) GetNft(ctx context.Context, ref blockchain.MarketplaceRef, mint solana.PublicKey) (*Nft, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.rpc.GetAccount(ctx, mint); err != nil {
		return nil, err
	}

	locator := blockchain.NewLocator(ref)
	listingAddr, _, err := locator.Listing(mint)
	if err != nil {
		return nil, err
	}

	var record *blockchain.ListingRecord
	acc, err := s.rpc.GetAccount(ctx, listingAddr)
	switch {
	case errors.Is(err, blockchain.ErrAccountNotFound):
	case err != nil:
		return nil, err
	default:
		record, err = blockchain.DecodeListing(listingAddr, acc.Data)
		if err != nil {
			s.log.Warn("listing account does not decode", zap.String("listing", listingAddr.String()), zap.Error(err))
			record = nil
		}
	}

	nft := s.resolveNfts(ctx, []solana.PublicKey{mint})[0]
	if record != nil {
		applyListing(nft, record)
	} else {
		nft.Owner = s.holderOf(ctx, mint)
	}
	return nft, nil
}

// holderOf returns the wallet holding the single token of mint. An
// unknown holder is reported as "".
func (s *NftService) holderOf(ctx context.Context, mint solana.PublicKey) string {
	balances, err := s.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		s.log.Warn("failed to look up holder", zap.String("mint", mint.String()), zap.Error(err))
		return ""
	}
	if len(balances) == 0 || balances[0].Amount != 1 {
		return ""
	}

	acc, err := s.rpc.GetAccount(ctx, balances[0].Address)
	if err != nil {
		s.log.Warn("failed to load holder account", zap.String("mint", mint.String()), zap.Error(err))
		return ""
	}
	holding, err := blockchain.DecodeTokenAccount(balances[0].Address, acc.Data)
	if err != nil {
		return ""
	}
	return holding.Owner.String()
}

// GetMarketplace decodes the marketplace account of ref
func (s *NftService) GetMarketplace(ctx context.Context, ref blockchain.MarketplaceRef) (*MarketplaceInfo, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	locator := blockchain.NewLocator(ref)
	address, _, err := locator.Marketplace()
	if err != nil {
		return nil, err
	}
	treasury, _, err := locator.Treasury()
	if err != nil {
		return nil, err
	}
	rewards, _, err := locator.Rewards()
	if err != nil {
		return nil, err
	}

	acc, err := s.rpc.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	decoded, err := blockchain.DecodeMarketplace(acc.Data)
	if err != nil {
		return nil, err
	}

	return &MarketplaceInfo{
		Address:     address.String(),
		ProgramID:   ref.ProgramID.String(),
		Name:        decoded.Name,
		Admin:       decoded.Admin.String(),
		FeeBps:      decoded.Fee,
		Treasury:    treasury.String(),
		RewardsMint: rewards.String(),
	}, nil
}

func (s *NftService) cached(ctx context.Context, key, name string, force bool, load func(context.Context) ([]*Nft, error)) ([]*Nft, error) {
	if !force && s.ttl > 0 {
		if v, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit(name)
			return v.([]*Nft), nil
		}
	}

	// The load is shared by every waiter on key, so it runs detached from
	// the caller that started it.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		nfts, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		// a load cut short is served once with placeholders but never cached
		if s.ttl > 0 && loadCtx.Err() == nil {
			s.cache.Set(key, nfts, cache.DefaultExpiration)
		}
		return nfts, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*Nft), nil
	}
}

func (s *NftService) loadUserNfts(ctx context.Context, owner solana.PublicKey) ([]*Nft, error) {
	accounts, err := s.rpc.GetTokenAccountsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts of %s: %w", owner, err)
	}

	seen := make(map[solana.PublicKey]bool)
	var candidates []solana.PublicKey
	for _, acc := range accounts {
		holding, err := blockchain.DecodeTokenAccount(acc.Address, acc.Data)
		if err != nil {
			s.log.Debug("skipping token account", zap.String("account", acc.Address.String()), zap.Error(err))
			continue
		}
		if holding.Amount != 1 || seen[holding.Mint] {
			continue
		}
		seen[holding.Mint] = true
		candidates = append(candidates, holding.Mint)
	}
	if len(candidates) == 0 {
		return []*Nft{}, nil
	}

	mintAccounts, err := s.rpc.GetMultipleAccounts(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load mints: %w", err)
	}

	var mints []solana.PublicKey
	for i, acc := range mintAccounts {
		if acc == nil {
			continue
		}
		decimals, err := blockchain.DecodeMintDecimals(acc.Data)
		if err != nil || decimals != 0 {
			continue
		}
		mints = append(mints, candidates[i])
	}

	nfts := s.resolveNfts(ctx, mints)
	for _, nft := range nfts {
		nft.Owner = owner.String()
	}
	return nfts, nil
}

func (s *NftService) loadListings(ctx context.Context, ref blockchain.MarketplaceRef) ([]*Nft, error) {
	locator := blockchain.NewLocator(ref)
	marketplace, _, err := locator.Marketplace()
	if err != nil {
		return nil, err
	}

	s.metrics.ProgramScan()
	accounts, err := s.rpc.GetProgramAccounts(ctx, ref.ProgramID, blockchain.ListingAccountSize)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listings of %s: %w", ref, err)
	}

	records := s.filterListings(locator, marketplace, accounts)
	mints := make([]solana.PublicKey, len(records))
	for i, record := range records {
		mints[i] = record.MakerMint
	}

	nfts := s.resolveNfts(ctx, mints)
	for i, nft := range nfts {
		applyListing(nft, records[i])
	}

	s.log.Debug("listings scanned",
		zap.String("marketplace", ref.String()),
		zap.Int("accounts", len(accounts)),
		zap.Int("listings", len(nfts)))
	return nfts, nil
}

// filterListings keeps the accounts that are listings of this marketplace.
// Size is only a hint; an account counts when its address equals the
// listing PDA derived from its own maker mint.
func (s *NftService) filterListings(locator *blockchain.Locator, marketplace solana.PublicKey, accounts []*blockchain.AccountInfo) []*blockchain.ListingRecord {
	var records []*blockchain.ListingRecord
	for _, acc := range accounts {
		if len(acc.Data) != blockchain.ListingAccountSize {
			s.metrics.ListingDiscarded("size")
			continue
		}
		record, err := blockchain.DecodeListing(acc.Address, acc.Data)
		if err != nil {
			s.metrics.ListingDiscarded("decode")
			continue
		}
		expected, _, err := locator.ListingFor(marketplace, record.MakerMint)
		if err != nil || !expected.Equals(acc.Address) {
			s.metrics.ListingDiscarded("address")
			continue
		}
		records = append(records, record)
	}
	return records
}

// resolveNfts returns one entry per mint in the same order. Metadata is
// fetched per item and a failure leaves that entry with placeholder fields.
func (s *NftService) resolveNfts(ctx context.Context, mints []solana.PublicKey) []*Nft {
	nfts := make([]*Nft, len(mints))
	for i, mint := range mints {
		nfts[i] = placeholderNft(mint)
	}
	if len(mints) == 0 {
		return nfts
	}

	addresses := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		addr, err := blockchain.MetadataAddress(mint)
		if err != nil {
			s.log.Warn("cannot derive metadata address", zap.String("mint", mint.String()), zap.Error(err))
		}
		addresses[i] = addr
	}

	accounts, err := s.rpc.GetMultipleAccounts(ctx, addresses)
	if err != nil || len(accounts) != len(mints) {
		s.log.Warn("metadata accounts unavailable, using placeholders", zap.Int("mints", len(mints)), zap.Error(err))
		for range mints {
			s.metrics.MetadataFailure()
		}
		return nfts
	}

	g := new(errgroup.Group)
	g.SetLimit(s.fetchLimit)
	for i := range mints {
		nft, acc := nfts[i], accounts[i]
		g.Go(func() error {
			s.fillMetadata(ctx, nft, acc)
			return nil
		})
	}
	_ = g.Wait()
	return nfts
}

func (s *NftService) fillMetadata(ctx context.Context, nft *Nft, acc *blockchain.AccountInfo) {
	if acc == nil {
		s.metrics.MetadataFailure()
		s.log.Debug("mint has no metadata account", zap.String("mint", nft.Mint))
		return
	}

	md, err := blockchain.DecodeMetadata(acc.Data)
	if err != nil {
		s.metrics.MetadataFailure()
		s.log.Warn("failed to decode metadata", zap.String("mint", nft.Mint), zap.Error(err))
		return
	}

	if md.Data.Name != "" {
		nft.Name = md.Data.Name
	}
	nft.Symbol = md.Data.Symbol
	nft.URI = md.Data.Uri
	nft.SellerFeeBasisPoints = md.Data.SellerFeeBasisPoints
	if md.Collection != nil {
		nft.CollectionMint = md.Collection.Key.String()
		nft.CollectionVerified = md.Collection.Verified
	}

	if nft.URI == "" || s.resolver == nil {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	doc, err := s.resolver.Resolve(fetchCtx, nft.URI)
	if err != nil {
		s.metrics.MetadataFailure()
		s.log.Warn("failed to resolve metadata document", zap.String("mint", nft.Mint), zap.String("uri", nft.URI), zap.Error(err))
		return
	}

	if doc.Image != "" {
		nft.Image = doc.Image
	}
	if md.Data.Name == "" && doc.Name != "" {
		nft.Name = doc.Name
	}
	nft.Description = doc.Description
	nft.AnimationURL = doc.AnimationURL
	nft.ExternalURL = doc.ExternalURL
	nft.Attributes = doc.Attributes
	if model, ok := metadata.ModelFromAttributes(doc.Attributes); ok {
		nft.Model = model
	}
}

func placeholderNft(mint solana.PublicKey) *Nft {
	m := mint.String()
	return &Nft{
		Mint:  m,
		Name:  metadata.PlaceholderName(m),
		Image: metadata.PlaceholderImage(m),
	}
}

func applyListing(nft *Nft, record *blockchain.ListingRecord) {
	price := FromLamports(record.Price)
	nft.IsListed = true
	nft.ListingAddress = record.Address.String()
	nft.Maker = record.Maker.String()
	nft.Owner = record.Maker.String()
	nft.Price = &price
	nft.PriceLamports = record.Price
}
