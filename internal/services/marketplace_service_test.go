package services

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/blockchain/blockchaintest"
	"model-marketplace/internal/models"
)

func TestListCollectionMismatch(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	signer := testSigner(t)

	nftMint := blockchaintest.NewKey()
	declared := blockchaintest.NewKey()
	requested := blockchaintest.NewKey()
	fake.PutNft(nftMint, blockchaintest.NewMetadata(nftMint, "Model", "", &declared, true))

	_, err := svc.List(context.Background(), signer, testRef(t, "hack-123-x-5-3"), decimal.RequireFromString("0.5"), nftMint, requested)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blockchain.ErrCollectionMismatch))
	assert.Zero(t, fake.Calls("GetLatestBlockhash"))
	assert.Zero(t, fake.Calls("SendRawTransaction"))
}

func TestListWithoutDeclaredCollection(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)

	nftMint := blockchaintest.NewKey()
	fake.PutNft(nftMint, blockchaintest.NewMetadata(nftMint, "Model", "", nil, false))

	_, err := svc.List(context.Background(), testSigner(t), testRef(t, "hack-123-x-5-3"), decimal.NewFromInt(1), nftMint, blockchaintest.NewKey())
	assert.True(t, errors.Is(err, blockchain.ErrCollectionMismatch))
	assert.Zero(t, fake.Calls("SendRawTransaction"))
}

func TestListPreconditions(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	ref := testRef(t, "hack-123-x-5-3")
	mint := blockchaintest.NewKey()

	_, err := svc.List(context.Background(), nil, ref, decimal.NewFromInt(1), mint, mint)
	assert.True(t, errors.Is(err, blockchain.ErrWalletNotConnected))

	_, err = svc.List(context.Background(), testSigner(t), ref, decimal.Zero, mint, mint)
	assert.True(t, errors.Is(err, blockchain.ErrInvalidPrice))

	_, err = svc.List(context.Background(), testSigner(t), ref, decimal.RequireFromString("0.0000000001"), mint, mint)
	assert.True(t, errors.Is(err, blockchain.ErrInvalidPrice))

	_, err = svc.List(context.Background(), testSigner(t), ref, decimal.NewFromInt(1), mint, solana.PublicKey{})
	assert.True(t, errors.Is(err, blockchain.ErrMissingField))

	assert.Zero(t, fake.Calls("GetAccount"))
}

func TestListSubmits(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	repo := newTestRepo(t)
	nfts := NewNftService(fake, nil, nil, 0)
	svc := NewMarketplaceService(fake, testSubmitter(fake), nfts, repo, nil)
	signer := testSigner(t)
	ref := testRef(t, "hack-123-x-5-3")

	nftMint := blockchaintest.NewKey()
	collection := blockchaintest.NewKey()
	fake.PutNft(nftMint, blockchaintest.NewMetadata(nftMint, "Model", "", &collection, true))

	sig, err := svc.List(context.Background(), signer, ref, decimal.RequireFromString("0.5"), nftMint, collection)
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Message.Instructions, 1)
	data := sent[0].Message.Instructions[0].Data
	disc := blockchain.InstructionDiscriminator("listing")
	assert.Equal(t, disc[:], []byte(data[:8]))
	assert.Equal(t, uint64(500_000_000), binary.LittleEndian.Uint64(data[8:16]))

	txs, err := repo.ListTransactions(context.Background(), signer.PublicKey().String(), 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TransactionKindList, txs[0].Kind)
	assert.Equal(t, models.TransactionStatusConfirmed, txs[0].Status)
	assert.Equal(t, sig.String(), txs[0].Signature)
	assert.Equal(t, nftMint.String(), txs[0].Mint)
}

func TestDelist(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	signer := testSigner(t)

	_, err := svc.Delist(context.Background(), signer, testRef(t, "hack-123-x-5-3"), blockchaintest.NewKey())
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	disc := blockchain.InstructionDiscriminator("delist")
	assert.Equal(t, disc[:], []byte(sent[0].Message.Instructions[0].Data))
}

func TestPurchaseCreatesRewardAccount(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	signer := testSigner(t)
	ref := testRef(t, "hack-123-x-5-3")

	_, err := svc.Purchase(context.Background(), signer, ref, blockchaintest.NewKey(), blockchaintest.NewKey())
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].Message
	require.Len(t, msg.Instructions, 2)

	first, err := msg.ResolveProgramIDIndex(msg.Instructions[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, first)

	second, err := msg.ResolveProgramIDIndex(msg.Instructions[1].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, ref.ProgramID, second)
}

func TestPurchaseReusesRewardAccount(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	signer := testSigner(t)
	ref := testRef(t, "hack-123-x-5-3")
	mint := blockchaintest.NewKey()
	maker := blockchaintest.NewKey()

	accounts, err := blockchain.NewLocator(ref).PurchaseAccountsFor(signer.PublicKey(), maker, mint)
	require.NoError(t, err)
	fake.SetAccount(accounts.TakerAtaReward, solana.TokenProgramID, blockchaintest.TokenAccountData(accounts.RewardsMint, signer.PublicKey(), 0))

	_, err = svc.Purchase(context.Background(), signer, ref, mint, maker)
	require.NoError(t, err)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Message.Instructions, 1)
}

func TestPurchaseExpiredIsDistinctFromRejected(t *testing.T) {
	ref := testRef(t, "hack-123-x-5-3")

	t.Run("expired", func(t *testing.T) {
		fake := blockchaintest.NewFakeRPC()
		fake.BlockHeight = fake.Blockhash.LastValidBlockHeight + 10
		fake.Status = func(solana.Signature) *blockchain.SignatureStatus { return nil }
		repo := newTestRepo(t)
		svc := NewMarketplaceService(fake, testSubmitter(fake), nil, repo, nil)
		signer := testSigner(t)

		_, err := svc.Purchase(context.Background(), signer, ref, blockchaintest.NewKey(), blockchaintest.NewKey())
		require.Error(t, err)
		assert.True(t, errors.Is(err, blockchain.ErrBlockhashExpired))
		var rejected *blockchain.TransactionRejectedError
		assert.False(t, errors.As(err, &rejected))

		txs, err := repo.ListTransactions(context.Background(), signer.PublicKey().String(), 0)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TransactionStatusExpired, txs[0].Status)
	})

	t.Run("rejected", func(t *testing.T) {
		fake := blockchaintest.NewFakeRPC()
		fake.Status = func(solana.Signature) *blockchain.SignatureStatus {
			return &blockchain.SignatureStatus{Err: "InsufficientFundsForRent"}
		}
		svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)

		_, err := svc.Purchase(context.Background(), testSigner(t), ref, blockchaintest.NewKey(), blockchaintest.NewKey())
		require.Error(t, err)
		assert.False(t, errors.Is(err, blockchain.ErrBlockhashExpired))
		var rejected *blockchain.TransactionRejectedError
		assert.True(t, errors.As(err, &rejected))
		assert.Equal(t, models.TransactionStatusRejected, TransactionStatusFor(err))
	})
}

func TestInitializeMarketplace(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc := NewMarketplaceService(fake, testSubmitter(fake), nil, nil, nil)
	ref := testRef(t, "hack-123-x-5-3")

	_, err := svc.InitializeMarketplace(context.Background(), testSigner(t), ref, MaxMarketplaceFeeBps+1)
	assert.Error(t, err)
	assert.Zero(t, fake.Calls("GetLatestBlockhash"))

	_, err = svc.InitializeMarketplace(context.Background(), testSigner(t), ref, 250)
	require.NoError(t, err)
	require.Len(t, fake.Sent(), 1)
}

func TestWriteInvalidatesCache(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	nfts := NewNftService(fake, nil, nil, time.Minute)
	svc := NewMarketplaceService(fake, testSubmitter(fake), nfts, nil, nil)
	ref := testRef(t, "hack-123-x-5-3")

	ctx := context.Background()
	_, err := nfts.ListMarketplaceListings(ctx, ref)
	require.NoError(t, err)

	_, err = svc.Delist(ctx, testSigner(t), ref, blockchaintest.NewKey())
	require.NoError(t, err)

	_, err = nfts.ListMarketplaceListings(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls("GetProgramAccounts"))
}

func TestRejectedWriteInvalidatesCache(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	nfts := NewNftService(fake, nil, nil, time.Minute)
	svc := NewMarketplaceService(fake, testSubmitter(fake), nfts, nil, nil)
	ref := testRef(t, "hack-123-x-5-3")
	maker := blockchaintest.NewKey()
	mint := blockchaintest.NewKey()
	listing := putListing(t, fake, ref, maker, mint, 100)

	ctx := context.Background()
	listed, err := nfts.ListMarketplaceListings(ctx, ref)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// bought by someone else after the read was cached
	fake.DeleteAccount(listing)
	fake.Status = func(solana.Signature) *blockchain.SignatureStatus {
		return &blockchain.SignatureStatus{Err: "AccountNotInitialized"}
	}

	_, err = svc.Purchase(ctx, testSigner(t), ref, mint, maker)
	var rejected *blockchain.TransactionRejectedError
	require.True(t, errors.As(err, &rejected))

	listed, err = nfts.ListMarketplaceListings(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Equal(t, 2, fake.Calls("GetProgramAccounts"))
}
