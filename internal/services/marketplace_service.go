package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/metrics"
	"model-marketplace/internal/models"
	"model-marketplace/internal/repository"
)

// MaxMarketplaceFeeBps bounds the marketplace fee accepted by InitializeMarketplace
const MaxMarketplaceFeeBps = 10000

// MarketplaceService builds and submits the marketplace program instructions
type MarketplaceService struct {
	rpc       blockchain.RPC
	submitter *blockchain.Submitter
	nfts      *NftService
	recorder  txRecorder
	log       *zap.Logger
}

// NewMarketplaceService creates a MarketplaceService. repo, nfts and m may be nil.
func NewMarketplaceService(client blockchain.RPC, submitter *blockchain.Submitter, nfts *NftService, repo *repository.Repository, m *metrics.Metrics) *MarketplaceService {
	log := zap.L().Named("marketplace")
	return &MarketplaceService{
		rpc:       client,
		submitter: submitter,
		nfts:      nfts,
		recorder:  txRecorder{repo: repo, metrics: m, log: log},
		log:       log,
	}
}

// List puts nftMint up for sale at price (SOL). The NFT's metadata must
// declare collectionMint; this is checked before any transaction is built.
func (s *MarketplaceService) List(ctx context.Context, signer blockchain.Signer, ref blockchain.MarketplaceRef, price decimal.Decimal, nftMint, collectionMint solana.PublicKey) (solana.Signature, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return solana.Signature{}, err
	}
	if err := ref.Validate(); err != nil {
		return solana.Signature{}, err
	}
	if nftMint.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: nft mint", blockchain.ErrMissingField)
	}
	if collectionMint.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: collection mint", blockchain.ErrMissingField)
	}
	lamports, err := ListingLamports(price)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := s.checkCollection(ctx, nftMint, collectionMint); err != nil {
		return solana.Signature{}, err
	}

	maker := signer.PublicKey()
	accounts, err := blockchain.NewLocator(ref).ListingAccountsFor(maker, nftMint, collectionMint)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := blockchain.NewListingInstruction(ref.ProgramID, accounts, lamports)
	if err != nil {
		return solana.Signature{}, err
	}

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindList,
		Marketplace:   ref.Name,
		WalletAddress: maker.String(),
		Mint:          nftMint.String(),
		Price:         decimal.NewNullDecimal(FromLamports(lamports)),
	}
	return s.submit(ctx, signer, entry, []solana.Instruction{ix}, ref, maker)
}

// Delist returns a listed NFT to its maker and closes the listing
func (s *MarketplaceService) Delist(ctx context.Context, signer blockchain.Signer, ref blockchain.MarketplaceRef, nftMint solana.PublicKey) (solana.Signature, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return solana.Signature{}, err
	}
	if err := ref.Validate(); err != nil {
		return solana.Signature{}, err
	}
	if nftMint.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: nft mint", blockchain.ErrMissingField)
	}

	maker := signer.PublicKey()
	accounts, err := blockchain.NewLocator(ref).DelistAccountsFor(maker, nftMint)
	if err != nil {
		return solana.Signature{}, err
	}
	ix := blockchain.NewDelistInstruction(ref.ProgramID, accounts)

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindDelist,
		Marketplace:   ref.Name,
		WalletAddress: maker.String(),
		Mint:          nftMint.String(),
	}
	return s.submit(ctx, signer, entry, []solana.Instruction{ix}, ref, maker)
}

// Purchase buys the listing of nftMint created by maker. The taker's
// reward token account is created in the same transaction when absent.
func (s *MarketplaceService) Purchase(ctx context.Context, signer blockchain.Signer, ref blockchain.MarketplaceRef, nftMint, maker solana.PublicKey) (solana.Signature, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return solana.Signature{}, err
	}
	if err := ref.Validate(); err != nil {
		return solana.Signature{}, err
	}
	if nftMint.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: nft mint", blockchain.ErrMissingField)
	}
	if maker.IsZero() {
		return solana.Signature{}, fmt.Errorf("%w: maker", blockchain.ErrMissingField)
	}

	taker := signer.PublicKey()
	accounts, err := blockchain.NewLocator(ref).PurchaseAccountsFor(taker, maker, nftMint)
	if err != nil {
		return solana.Signature{}, err
	}

	var instructions []solana.Instruction
	_, err = s.rpc.GetAccount(ctx, accounts.TakerAtaReward)
	switch {
	case errors.Is(err, blockchain.ErrAccountNotFound):
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(taker, taker, accounts.RewardsMint).Build())
	case err != nil:
		return solana.Signature{}, err
	}
	instructions = append(instructions, blockchain.NewPurchaseInstruction(ref.ProgramID, accounts))

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindPurchase,
		Marketplace:   ref.Name,
		WalletAddress: taker.String(),
		Mint:          nftMint.String(),
		Counterparty:  maker.String(),
	}
	return s.submit(ctx, signer, entry, instructions, ref, taker, maker)
}

// InitializeMarketplace creates the marketplace account, its rewards mint
// and treasury. The signer becomes the marketplace admin.
func (s *MarketplaceService) InitializeMarketplace(ctx context.Context, signer blockchain.Signer, ref blockchain.MarketplaceRef, feeBps uint16) (solana.Signature, error) {
	if err := blockchain.RequireSigner(signer); err != nil {
		return solana.Signature{}, err
	}
	if err := ref.Validate(); err != nil {
		return solana.Signature{}, err
	}
	if feeBps > MaxMarketplaceFeeBps {
		return solana.Signature{}, fmt.Errorf("%w: %d exceeds %d basis points", blockchain.ErrInvalidFee, feeBps, MaxMarketplaceFeeBps)
	}

	admin := signer.PublicKey()
	accounts, err := blockchain.NewLocator(ref).InitializeAccountsFor(admin)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := blockchain.NewInitializeInstruction(ref.ProgramID, accounts, ref.Name, feeBps)
	if err != nil {
		return solana.Signature{}, err
	}

	entry := models.MarketplaceTransaction{
		Kind:          models.TransactionKindInitialize,
		Marketplace:   ref.Name,
		WalletAddress: admin.String(),
	}
	return s.submit(ctx, signer, entry, []solana.Instruction{ix}, ref)
}

// checkCollection fails with ErrCollectionMismatch unless the NFT's
// metadata declares collectionMint.
func (s *MarketplaceService) checkCollection(ctx context.Context, nftMint, collectionMint solana.PublicKey) error {
	metadataAddr, err := blockchain.MetadataAddress(nftMint)
	if err != nil {
		return err
	}
	acc, err := s.rpc.GetAccount(ctx, metadataAddr)
	if err != nil {
		return fmt.Errorf("failed to load metadata of %s: %w", nftMint, err)
	}
	md, err := blockchain.DecodeMetadata(acc.Data)
	if err != nil {
		return err
	}

	declared, ok := md.CollectionKey()
	if !ok {
		return fmt.Errorf("%w: %s declares no collection", blockchain.ErrCollectionMismatch, nftMint)
	}
	if !declared.Equals(collectionMint) {
		return fmt.Errorf("%w: %s belongs to %s, not %s", blockchain.ErrCollectionMismatch, nftMint, declared, collectionMint)
	}
	return nil
}

func (s *MarketplaceService) submit(ctx context.Context, signer blockchain.Signer, entry models.MarketplaceTransaction, instructions []solana.Instruction, ref blockchain.MarketplaceRef, wallets ...solana.PublicKey) (solana.Signature, error) {
	started := time.Now()
	sig, err := s.submitter.Submit(ctx, signer, instructions)
	s.recorder.record(ctx, entry, sig, started, err)

	// invalidate on failure too; a rejected write usually means a stale read
	if s.nfts != nil {
		keys := []string{ListingsCacheKey(ref)}
		for _, w := range wallets {
			keys = append(keys, NftsCacheKey(w))
		}
		s.nfts.Invalidate(keys...)
	}
	return sig, err
}
