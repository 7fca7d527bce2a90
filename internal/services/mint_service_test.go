package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/blockchain/blockchaintest"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/models"
)

const testDefaultRoyalty = 550

func newTestMintService(t *testing.T, fake *blockchaintest.FakeRPC, withRepo bool) (*MintService, *fakeUploader) {
	t.Helper()
	uploader := &fakeUploader{}
	svc := NewMintService(fake, testSubmitter(fake), uploader, nil, nil, nil, testDefaultRoyalty)
	if withRepo {
		repo := newTestRepo(t)
		svc = NewMintService(fake, testSubmitter(fake), uploader, repo, nil, nil, testDefaultRoyalty)
	}
	return svc, uploader
}

// sellerFee reads seller_fee_basis_points from CreateMetadataAccountV3 data
func sellerFee(t *testing.T, data []byte) uint16 {
	t.Helper()
	require.Equal(t, byte(33), data[0])
	offset := 1
	for i := 0; i < 3; i++ {
		n := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4 + n
	}
	return binary.LittleEndian.Uint16(data[offset:])
}

func TestMintNft(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, uploader := newTestMintService(t, fake, false)
	signer := testSigner(t)

	result, err := svc.MintNft(context.Background(), signer, MintRequest{
		Name:   "Sentiment v2",
		Symbol: "SENT",
		Model: &metadata.ModelAttributes{
			Framework: "pytorch",
			Metrics:   map[string]string{"accuracy": "0.91"},
			ModelURI:  "ipfs://QmWeights",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Verification.Attempted)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/QmTestCid1", result.MetadataURI)

	sent := fake.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].Message
	require.Len(t, msg.Instructions, 6)
	assert.Equal(t, uint16(testDefaultRoyalty), sellerFee(t, msg.Instructions[4].Data))

	// wallet plus generated mint keypair
	assert.Len(t, sent[0].Signatures, 2)
	assert.Equal(t, signer.PublicKey(), msg.AccountKeys[0])
	assert.Equal(t, solana.MustPublicKeyFromBase58(result.Mint), msg.AccountKeys[1])

	require.Len(t, uploader.docs, 1)
	doc := uploader.docs[0].(*metadata.Document)
	assert.Equal(t, metadata.PlaceholderImage(result.Mint), doc.Image)
	model, ok := metadata.ModelFromAttributes(doc.Attributes)
	require.True(t, ok)
	assert.Equal(t, "pytorch", model.Framework)
	assert.Equal(t, "0.91", model.Metrics["accuracy"])
}

func TestMintNftRoyalty(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, _ := newTestMintService(t, fake, false)

	_, err := svc.MintNft(context.Background(), testSigner(t), MintRequest{
		Name:                 "Detector",
		MetadataURI:          "https://example.com/detector.json",
		SellerFeeBasisPoints: 700,
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(700), sellerFee(t, fake.Sent()[0].Message.Instructions[4].Data))

	_, err = svc.MintNft(context.Background(), testSigner(t), MintRequest{
		Name:                 "Detector",
		MetadataURI:          "https://example.com/detector.json",
		SellerFeeBasisPoints: 10001,
	})
	assert.True(t, errors.Is(err, blockchain.ErrInvalidFee))
	assert.Len(t, fake.Sent(), 1)
}

func TestMintNftPreconditions(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, uploader := newTestMintService(t, fake, false)

	_, err := svc.MintNft(context.Background(), nil, MintRequest{Name: "x"})
	assert.True(t, errors.Is(err, blockchain.ErrWalletNotConnected))

	_, err = svc.MintNft(context.Background(), testSigner(t), MintRequest{})
	assert.Error(t, err)

	uploader.err = errors.New("pinata down")
	_, err = svc.MintNft(context.Background(), testSigner(t), MintRequest{Name: "x"})
	assert.Error(t, err)

	assert.Zero(t, fake.Calls("SendRawTransaction"))
}

func TestMintNftVerificationFallsBackToLegacy(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	fake.Status = func(solana.Signature) *blockchain.SignatureStatus {
		// transaction 2 is the sized verification
		if len(fake.Sent()) == 2 {
			return &blockchain.SignatureStatus{Err: "IncorrectOwner"}
		}
		return &blockchain.SignatureStatus{ConfirmationStatus: "confirmed"}
	}
	svc, _ := newTestMintService(t, fake, false)
	collection := blockchaintest.NewKey()

	result, err := svc.MintNft(context.Background(), testSigner(t), MintRequest{
		Name:           "Ranker",
		MetadataURI:    "https://example.com/ranker.json",
		CollectionMint: &collection,
	})
	require.NoError(t, err)

	v := result.Verification
	assert.True(t, v.Attempted)
	assert.True(t, v.Verified)
	assert.Equal(t, "legacy", v.Variant)
	require.Len(t, v.Attempts, 2)
	assert.Equal(t, "sized", v.Attempts[0].Variant)
	assert.NotEmpty(t, v.Attempts[0].Error)
	assert.Empty(t, v.Attempts[1].Error)
	assert.Len(t, fake.Sent(), 3)
}

func TestMintNftVerificationFailureIsSoft(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	fake.Status = func(solana.Signature) *blockchain.SignatureStatus {
		if len(fake.Sent()) > 1 {
			return &blockchain.SignatureStatus{Err: "CollectionMustBeSized"}
		}
		return &blockchain.SignatureStatus{ConfirmationStatus: "confirmed"}
	}
	svc, _ := newTestMintService(t, fake, true)
	signer := testSigner(t)
	collection := blockchaintest.NewKey()

	result, err := svc.MintNft(context.Background(), signer, MintRequest{
		Name:           "Ranker",
		MetadataURI:    "https://example.com/ranker.json",
		CollectionMint: &collection,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Signature)
	assert.False(t, result.Verification.Verified)
	assert.Len(t, result.Verification.Attempts, 2)

	txs, err := svc.repo.ListTransactions(context.Background(), signer.PublicKey().String(), 0)
	require.NoError(t, err)
	kinds := map[models.TransactionKind]int{}
	for _, tx := range txs {
		kinds[tx.Kind]++
	}
	assert.Equal(t, 1, kinds[models.TransactionKindMint])
	assert.Equal(t, 2, kinds[models.TransactionKindVerifyCollection])
}

func TestGetOrCreateCollectionIsIdempotent(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, uploader := newTestMintService(t, fake, true)
	signer := testSigner(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Vision"})
	require.NoError(t, err)
	require.True(t, first.IsNew)
	assert.Equal(t, "Vision Collection", first.Collection.Name)
	assert.Equal(t, "COLL", first.Collection.Symbol)
	require.Len(t, uploader.docs, 1)
	assert.Equal(t, "Collection of NFTs for Vision", uploader.docs[0].(*metadata.Document).Description)

	mint := solana.MustPublicKeyFromBase58(first.Collection.CollectionMint)
	fake.PutNft(mint, blockchaintest.NewMetadata(mint, "Vision Collection", first.Collection.MetadataURI, nil, false))

	second, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Vision"})
	require.NoError(t, err)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Collection.CollectionMint, second.Collection.CollectionMint)
	assert.Len(t, fake.Sent(), 1)
}

func TestConcurrentGetOrCreateCollectionCreatesOnce(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, uploader := newTestMintService(t, fake, true)
	signer := testSigner(t)

	// hold the first creation unconfirmed until every caller has arrived
	landed := make(chan struct{})
	fake.Status = func(solana.Signature) *blockchain.SignatureStatus {
		select {
		case <-landed:
			return &blockchain.SignatureStatus{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		default:
			return nil
		}
	}

	const callers = 5
	results := make([]*CollectionResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetOrCreateCollection(context.Background(), signer, CollectionRequest{Name: "Vision"})
		}(i)
	}

	require.Eventually(t, func() bool { return fake.Calls("GetSignatureStatus") > 0 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(landed)
	wg.Wait()

	require.Len(t, fake.Sent(), 1)
	assert.Len(t, uploader.docs, 1)
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Collection.CollectionMint, results[i].Collection.CollectionMint)
	}
}

func TestGetOrCreateCollectionReplacesStaleMemo(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, _ := newTestMintService(t, fake, true)
	signer := testSigner(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Audio"})
	require.NoError(t, err)

	second, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Audio"})
	require.NoError(t, err)
	assert.True(t, second.IsNew)
	assert.NotEqual(t, first.Collection.CollectionMint, second.Collection.CollectionMint)
	assert.Len(t, fake.Sent(), 2)

	stored, err := svc.GetCollection(ctx, signer.PublicKey())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestForgetCollection(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, _ := newTestMintService(t, fake, true)
	signer := testSigner(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Speech"})
	require.NoError(t, err)
	mint := solana.MustPublicKeyFromBase58(first.Collection.CollectionMint)
	fake.PutNft(mint, blockchaintest.NewMetadata(mint, "Speech Collection", first.Collection.MetadataURI, nil, false))

	require.NoError(t, svc.ForgetCollection(ctx, signer.PublicKey()))
	second, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Speech"})
	require.NoError(t, err)
	assert.True(t, second.IsNew)
	assert.NotEqual(t, first.Collection.CollectionMint, second.Collection.CollectionMint)
}

func TestGetOrCreateCollectionPropagatesRPCErrors(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, _ := newTestMintService(t, fake, true)
	signer := testSigner(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Text"})
	require.NoError(t, err)

	fake.Errors["GetAccount"] = fmt.Errorf("connection reset")
	_, err = svc.GetOrCreateCollection(ctx, signer, CollectionRequest{Name: "Text"})
	assert.Error(t, err)
	assert.Len(t, fake.Sent(), 1)
}

func TestCollectionStoreUnavailable(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	svc, _ := newTestMintService(t, fake, false)

	_, err := svc.GetOrCreateCollection(context.Background(), testSigner(t), CollectionRequest{Name: "x"})
	assert.True(t, errors.Is(err, ErrCollectionStoreUnavailable))
	_, err = svc.GetCollection(context.Background(), blockchaintest.NewKey())
	assert.True(t, errors.Is(err, ErrCollectionStoreUnavailable))
}
