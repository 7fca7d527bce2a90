package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/blockchain/blockchaintest"
	"model-marketplace/internal/database"
	"model-marketplace/internal/metadata"
	"model-marketplace/internal/repository"
)

const testProgramID = "711gctwBN1aGqzRhQbDD3qiescrzg4m9Zjj1ZGndLDis"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func testRef(t *testing.T, name string) blockchain.MarketplaceRef {
	t.Helper()
	ref, err := blockchain.NewMarketplaceRef(testProgramID, name)
	require.NoError(t, err)
	return ref
}

func testSigner(t *testing.T) *blockchain.KeypairSigner {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return blockchain.NewKeypairSigner(key)
}

func testSubmitter(fake *blockchaintest.FakeRPC) *blockchain.Submitter {
	return blockchain.NewSubmitter(fake, time.Millisecond, time.Second)
}

// putListing stores a genuine listing of mint on ref and returns its address
func putListing(t *testing.T, fake *blockchaintest.FakeRPC, ref blockchain.MarketplaceRef, maker, mint solana.PublicKey, lamports uint64) solana.PublicKey {
	t.Helper()
	address, bump, err := blockchain.NewLocator(ref).Listing(mint)
	require.NoError(t, err)
	fake.AddProgramAccount(ref.ProgramID, address, blockchain.EncodeListing(blockchain.ListingRecord{
		Maker:     maker,
		MakerMint: mint,
		Price:     lamports,
		Bump:      bump,
	}))
	return address
}

type fakeResolver struct {
	mu    sync.Mutex
	docs  map[string]*metadata.Document
	held  map[string]chan struct{}
	calls int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		docs: make(map[string]*metadata.Document),
		held: make(map[string]chan struct{}),
	}
}

// hold makes uri wait for the returned release func or its context
func (r *fakeResolver) hold(uri string) func() {
	gate := make(chan struct{})
	r.mu.Lock()
	r.held[uri] = gate
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeResolver) Resolve(ctx context.Context, uri string) (*metadata.Document, error) {
	r.mu.Lock()
	r.calls++
	gate := r.held[uri]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	doc, ok := r.docs[uri]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", metadata.ErrFetchFailed, uri)
	}
	copied := *doc
	return &copied, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	docs []interface{}
	err  error
}

func (u *fakeUploader) UploadJSON(_ context.Context, _ string, v interface{}) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.docs = append(u.docs, v)
	return fmt.Sprintf("QmTestCid%d", len(u.docs)), nil
}

func (u *fakeUploader) GatewayURL(cid string, _ int) string {
	return "https://gateway.pinata.cloud/ipfs/" + cid
}

func newTestRepo(t *testing.T) *repository.Repository {
	return repository.NewRepository(setupTestDB(t))
}
