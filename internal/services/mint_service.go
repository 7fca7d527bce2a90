package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/metrics"
	"model-marketplace/internal/models"
	"model-marketplace/internal/repository"
)

const (
	collectionSuffix        = " Collection"
	defaultCollectionSymbol = "COLL"
)

// ErrCollectionStoreUnavailable is returned by collection operations when
// no repository is configured.
var ErrCollectionStoreUnavailable = errors.New("collection store not configured")

// MetadataUploader pins metadata documents and returns their content id
type MetadataUploader interface {
	UploadJSON(ctx context.Context, name string, v interface{}) (string, error)
	GatewayURL(cid string, i int) string
}

// MintRequest describes a new model NFT
type MintRequest struct {
	Name                 string
	Symbol               string
	Description          string
	Image                string
	Model                *metadata.ModelAttributes
	SellerFeeBasisPoints uint16
	CollectionMint       *solana.PublicKey
	// MetadataURI skips pinning a generated document when set
	MetadataURI string
}

// VerificationAttempt is the tagged outcome of one verification strategy
type VerificationAttempt struct {
	Variant   string `json:"variant"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// VerificationResult reports whether collection membership was verified.
// An unverified result does not undo the mint.
type VerificationResult struct {
	Attempted bool                  `json:"attempted"`
	Verified  bool                  `json:"verified"`
	Variant   string                `json:"variant,omitempty"`
	Attempts  []VerificationAttempt `json:"attempts,omitempty"`
}

// MintResult is returned by MintNft
type MintResult struct {
	Mint         string             `json:"mint"`
	Signature    string             `json:"signature"`
	MetadataURI  string             `json:"metadata_uri"`
	Verification VerificationResult `json:"verification"`
}

// CollectionRequest describes the collection created on first use
type CollectionRequest struct {
	Name                 string
	Symbol               string
	Description          string
	Image                string
	SellerFeeBasisPoints uint16
}

// CollectionResult is returned by GetOrCreateCollection
type CollectionResult struct {
	Collection *models.UserCollection `json:"collection"`
	IsNew      bool                   `json:"is_new"`
}

// MintService creates NFTs and per-wallet collections
type MintService struct {
	rpc            blockchain.RPC
	submitter      *blockchain.Submitter
	uploader       MetadataUploader
	repo           *repository.Repository
	nfts           *NftService
	recorder       txRecorder
	defaultRoyalty uint16
	strategies     []blockchain.VerifyCollectionVariant
	newMintKey     func() (solana.PrivateKey, error)
	// collections serializes collection creation per wallet
	collections singleflight.Group
	log         *zap.Logger
}

// NewMintService creates a MintService. uploader, repo, nfts and m may be nil.
func NewMintService(
	client blockchain.RPC,
	submitter *blockchain.Submitter,
	uploader MetadataUploader,
	repo *repository.Repository,
	nfts *NftService,
	m *metrics.Metrics,
	defaultRoyalty uint16,
) *MintService {
	log := zap.L().Named("mint")
	return &MintService{
		rpc:            client,
		submitter:      submitter,
		uploader:       uploader,
		repo:           repo,
		nfts:           nfts,
		recorder:       txRecorder{repo: repo, metrics: m, log: log},
		defaultRoyalty: defaultRoyalty,
		strategies:     []blockchain.VerifyCollectionVariant{blockchain.VerifySized, blockchain.VerifyLegacy},
		newMintKey:     solana.NewRandomPrivateKey,
		log:            log,
	}
}

// RoyaltyBasisPoints returns the seller fee to write on-chain. The caller's
// value wins; zero falls back to the configured default.
func (s *MintService) RoyaltyBasisPoints(requested uint16) (uint16, error) {
	if requested > blockchain.MaxRoyaltyBasisPoints {
		return 0, fmt.Errorf("%w: seller fee %d bps exceeds %d", blockchain.ErrInvalidFee, requested, blockchain.MaxRoyaltyBasisPoints)
	}
	if requested == 0 {
		return s.defaultRoyalty, nil
	}
	return requested, nil
}

// MintNft creates a one-of-one NFT owned by the signer. When the request
// names a collection the verification strategies run afterwards; their
// failure is reported in the result, not as an error.
func (s *MintService) MintNft(ctx context.Context, signer blockchain.Signer, req MintRequest) (*MintResult, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return nil, err
	}
	royalty, err := s.RoyaltyBasisPoints(req.SellerFeeBasisPoints)
	if err != nil {
		return nil, err
	}

	mintKey, err := s.newMintKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mint keypair: %w", err)
	}
	mint := mintKey.PublicKey()
	payer := signer.PublicKey()

	data := blockchain.DataV2{
		Name:                 req.Name,
		Symbol:               req.Symbol,
		Uri:                  req.MetadataURI,
		SellerFeeBasisPoints: royalty,
		Creators:             &[]blockchain.Creator{{Address: payer, Verified: true, Share: 100}},
	}
	if req.CollectionMint != nil {
		data.Collection = &blockchain.Collection{Verified: false, Key: *req.CollectionMint}
	}
	if data.Uri == "" {
		if err := data.ValidateDescriptive(); err != nil {
			return nil, err
		}
		image := req.Image
		if image == "" {
			image = metadata.PlaceholderImage(mint.String())
		}
		doc := metadata.NewModelDocument(req.Name, req.Symbol, req.Description, image, req.Model)
		if data.Uri, err = s.pin(ctx, mint, doc); err != nil {
			return nil, err
		}
	}

	instructions, err := s.mintInstructions(ctx, payer, mint, data, false)
	if err != nil {
		return nil, err
	}

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindMint,
		WalletAddress: payer.String(),
		Mint:          mint.String(),
	}
	started := time.Now()
	sig, err := s.submitter.Submit(ctx, signer, instructions, mintKey)
	s.recorder.record(ctx, entry, sig, started, err)
	if s.nfts != nil {
		s.nfts.Invalidate(NftsCacheKey(payer))
	}
	if err != nil {
		return nil, err
	}

	result := &MintResult{
		Mint:        mint.String(),
		Signature:   sig.String(),
		MetadataURI: data.Uri,
	}
	if req.CollectionMint != nil {
		result.Verification = s.verifyCollection(ctx, signer, mint, *req.CollectionMint)
	}
	return result, nil
}

// GetOrCreateCollection returns the signer's collection, creating a sized
// collection NFT the first time or when the stored one no longer resolves.
// Concurrent calls for one wallet share a single lookup and creation.
func (s *MintService) GetOrCreateCollection(ctx context.Context, signer blockchain.Signer, req CollectionRequest) (*CollectionResult, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, ErrCollectionStoreUnavailable
	}
	wallet := signer.PublicKey()

	v, err, _ := s.collections.Do(wallet.String(), func() (interface{}, error) {
		return s.getOrCreateCollection(ctx, signer, wallet, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CollectionResult), nil
}

func (s *MintService) getOrCreateCollection(ctx context.Context, signer blockchain.Signer, wallet solana.PublicKey, req CollectionRequest) (*CollectionResult, error) {
	existing, err := s.GetCollection(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &CollectionResult{Collection: existing, IsNew: false}, nil
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: collection name", blockchain.ErrMissingField)
	}
	name := req.Name
	if !strings.HasSuffix(name, collectionSuffix) {
		name += collectionSuffix
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = defaultCollectionSymbol
	}
	description := req.Description
	if description == "" {
		description = "Collection of NFTs for " + req.Name
	}
	royalty, err := s.RoyaltyBasisPoints(req.SellerFeeBasisPoints)
	if err != nil {
		return nil, err
	}

	mintKey, err := s.newMintKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mint keypair: %w", err)
	}
	mint := mintKey.PublicKey()

	data := blockchain.DataV2{
		Name:                 name,
		Symbol:               symbol,
		SellerFeeBasisPoints: royalty,
		Creators:             &[]blockchain.Creator{{Address: wallet, Verified: true, Share: 100}},
	}
	if err := data.ValidateDescriptive(); err != nil {
		return nil, err
	}
	image := req.Image
	if image == "" {
		image = metadata.PlaceholderImage(name)
	}
	doc := metadata.NewModelDocument(name, symbol, description, image, nil)
	if data.Uri, err = s.pin(ctx, mint, doc); err != nil {
		return nil, err
	}

	instructions, err := s.mintInstructions(ctx, wallet, mint, data, true)
	if err != nil {
		return nil, err
	}

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindCreateCollection,
		WalletAddress: wallet.String(),
		Mint:          mint.String(),
	}
	started := time.Now()
	sig, err := s.submitter.Submit(ctx, signer, instructions, mintKey)
	s.recorder.record(ctx, entry, sig, started, err)
	if s.nfts != nil {
		s.nfts.Invalidate(NftsCacheKey(wallet))
	}
	if err != nil {
		return nil, err
	}

	collection := &models.UserCollection{
		StorageKey:     models.CollectionStorageKey(wallet.String()),
		WalletAddress:  wallet.String(),
		CollectionMint: mint.String(),
		Name:           name,
		Symbol:         symbol,
		MetadataURI:    data.Uri,
		Signature:      sig.String(),
	}
	if err := s.repo.UpsertCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("collection %s created but not stored: %w", mint, err)
	}

	s.log.Info("collection created", zap.String("wallet", wallet.String()), zap.String("mint", mint.String()))
	return &CollectionResult{Collection: collection, IsNew: true}, nil
}

// GetCollection returns the wallet's stored collection after checking that
// its metadata account still resolves. A missing or stale memo yields (nil, nil).
func (s *MintService) GetCollection(ctx context.Context, wallet solana.PublicKey) (*models.UserCollection, error) {
	if s.repo == nil {
		return nil, ErrCollectionStoreUnavailable
	}
	memo, err := s.repo.GetCollectionByKey(ctx, models.CollectionStorageKey(wallet.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to read collection memo: %w", err)
	}
	if memo == nil {
		return nil, nil
	}

	mint, err := solana.PublicKeyFromBase58(memo.CollectionMint)
	if err != nil {
		s.log.Warn("stored collection mint is malformed", zap.String("wallet", wallet.String()), zap.Error(err))
		return nil, nil
	}
	metadataAddr, err := blockchain.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	acc, err := s.rpc.GetAccount(ctx, metadataAddr)
	if errors.Is(err, blockchain.ErrAccountNotFound) {
		s.log.Warn("stored collection no longer resolves", zap.String("wallet", wallet.String()), zap.String("mint", memo.CollectionMint))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	md, err := blockchain.DecodeMetadata(acc.Data)
	if err != nil {
		s.log.Warn("stored collection metadata does not decode", zap.String("mint", memo.CollectionMint), zap.Error(err))
		return nil, nil
	}

	memo.Name = md.Data.Name
	memo.Symbol = md.Data.Symbol
	memo.MetadataURI = md.Data.Uri
	return memo, nil
}

// ForgetCollection drops the wallet's stored collection so the next
// GetOrCreateCollection mints a new one
func (s *MintService) ForgetCollection(ctx context.Context, wallet solana.PublicKey) error {
	if s.repo == nil {
		return ErrCollectionStoreUnavailable
	}
	return s.repo.DeleteCollection(ctx, models.CollectionStorageKey(wallet.String()))
}

// verifyCollection runs the verification strategies in order and stops at
// the first one that confirms.
func (s *MintService) verifyCollection(ctx context.Context, signer blockchain.Signer, nftMint, collectionMint solana.PublicKey) VerificationResult {
	result := VerificationResult{Attempted: true}
	payer := signer.PublicKey()

	for _, variant := range s.strategies {
		attempt := VerificationAttempt{Variant: variant.String()}

		ix, err := blockchain.NewVerifyCollectionInstruction(variant, nftMint, collectionMint, payer, payer)
		if err == nil {
			entry := models.MarketplaceTransaction{
				Kind:          models.TransactionKindVerifyCollection,
				WalletAddress: payer.String(),
				Mint:          nftMint.String(),
				Counterparty:  collectionMint.String(),
			}
			started := time.Now()
			var sig solana.Signature
			sig, err = s.submitter.Submit(ctx, signer, []solana.Instruction{ix})
			s.recorder.record(ctx, entry, sig, started, err)
			if !sig.IsZero() {
				attempt.Signature = sig.String()
			}
		}

		if err == nil {
			result.Attempts = append(result.Attempts, attempt)
			result.Verified = true
			result.Variant = attempt.Variant
			return result
		}

		attempt.Error = err.Error()
		result.Attempts = append(result.Attempts, attempt)
		s.log.Warn("collection verification failed",
			zap.String("variant", attempt.Variant),
			zap.String("mint", nftMint.String()),
			zap.String("collection", collectionMint.String()),
			zap.Error(err))
	}
	return result
}

func (s *MintService) pin(ctx context.Context, mint solana.PublicKey, doc *metadata.Document) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("%w: metadata uri", blockchain.ErrMissingField)
	}
	cid, err := s.uploader.UploadJSON(ctx, mint.String()+".json", doc)
	if err != nil {
		return "", fmt.Errorf("failed to pin metadata: %w", err)
	}
	return s.uploader.GatewayURL(cid, 0), nil
}

// mintInstructions creates the mint account, mints one token to the payer's
// associated account and writes metadata plus a zero-supply master edition.
func (s *MintService) mintInstructions(ctx context.Context, payer, mint solana.PublicKey, data blockchain.DataV2, sizedCollection bool) ([]solana.Instruction, error) {
	rent, err := s.rpc.GetMinimumBalanceForRentExemption(ctx, blockchain.MintAccountSize)
	if err != nil {
		return nil, err
	}
	ata, err := blockchain.AssociatedTokenAccount(payer, mint)
	if err != nil {
		return nil, err
	}

	createMetadata, err := blockchain.NewCreateMetadataAccountV3Instruction(blockchain.CreateMetadataAccountV3Params{
		Mint:            mint,
		MintAuthority:   payer,
		Payer:           payer,
		UpdateAuthority: payer,
		Data:            data,
		IsMutable:       true,
		SizedCollection: sizedCollection,
	})
	if err != nil {
		return nil, err
	}
	createEdition, err := blockchain.NewCreateMasterEditionV3Instruction(mint, payer, payer, 0)
	if err != nil {
		return nil, err
	}

	return []solana.Instruction{
		system.NewCreateAccountInstruction(rent, blockchain.MintAccountSize, solana.TokenProgramID, payer, mint).Build(),
		token.NewInitializeMintInstruction(0, payer, payer, mint, solana.SysVarRentPubkey).Build(),
		associatedtokenaccount.NewCreateInstruction(payer, payer, mint).Build(),
		token.NewMintToInstruction(1, mint, ata, payer, nil).Build(),
		createMetadata,
		createEdition,
	}, nil
}
