package blockchain

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:listing"))
	disc := InstructionDiscriminator("listing")
	assert.Equal(t, sum[:8], disc[:])
}

func TestNewListingInstruction(t *testing.T) {
	locator := NewLocator(testRef(t, "hack-123-x-5-3"))
	maker := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	accounts, err := locator.ListingAccountsFor(maker, mint, collection)
	require.NoError(t, err)

	ix, err := NewListingInstruction(testProgramID, accounts, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, testProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	disc := InstructionDiscriminator("listing")
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, uint64(500_000_000), binary.LittleEndian.Uint64(data[8:]))

	metas := ix.Accounts()
	require.Len(t, metas, 13)
	assert.Equal(t, maker, metas[0].PublicKey)
	assert.True(t, metas[0].IsSigner)
	assert.Equal(t, accounts.Marketplace, metas[1].PublicKey)
	assert.Equal(t, mint, metas[2].PublicKey)
	assert.Equal(t, collection, metas[3].PublicKey)
	assert.Equal(t, accounts.Vault, metas[5].PublicKey)
	assert.Equal(t, accounts.Listing, metas[6].PublicKey)
	assert.Equal(t, solana.TokenProgramID, metas[12].PublicKey)

	metadata, err := MetadataAddress(mint)
	require.NoError(t, err)
	assert.Equal(t, metadata, accounts.Metadata)
}

func TestNewPurchaseInstruction(t *testing.T) {
	locator := NewLocator(testRef(t, "hack-123-x-5-3"))
	taker := solana.NewWallet().PublicKey()
	maker := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	accounts, err := locator.PurchaseAccountsFor(taker, maker, mint)
	require.NoError(t, err)

	rewards, _, err := locator.Rewards()
	require.NoError(t, err)
	assert.Equal(t, rewards, accounts.RewardsMint)

	rewardAta, err := AssociatedTokenAccount(taker, rewards)
	require.NoError(t, err)
	assert.Equal(t, rewardAta, accounts.TakerAtaReward)

	ix := NewPurchaseInstruction(testProgramID, accounts)
	data, err := ix.Data()
	require.NoError(t, err)
	disc := InstructionDiscriminator("purchase")
	assert.Equal(t, disc[:], data)

	metas := ix.Accounts()
	require.Len(t, metas, 13)
	assert.Equal(t, taker, metas[0].PublicKey)
	assert.Equal(t, maker, metas[1].PublicKey)
	assert.Equal(t, accounts.Treasury, metas[9].PublicKey)
}

func TestNewDelistInstruction(t *testing.T) {
	locator := NewLocator(testRef(t, "hack-123-x-5-3"))
	maker := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	accounts, err := locator.DelistAccountsFor(maker, mint)
	require.NoError(t, err)

	ix := NewDelistInstruction(testProgramID, accounts)
	assert.Len(t, ix.Accounts(), 9)

	vault, err := locator.Vault(mint)
	require.NoError(t, err)
	assert.Equal(t, vault, accounts.Vault)
}

func TestNewInitializeInstruction(t *testing.T) {
	locator := NewLocator(testRef(t, "market"))
	admin := solana.NewWallet().PublicKey()

	accounts, err := locator.InitializeAccountsFor(admin)
	require.NoError(t, err)

	ix, err := NewInitializeInstruction(testProgramID, accounts, "market", 250)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+4+6+2)
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, "market", string(data[12:18]))
	assert.Equal(t, uint16(250), binary.LittleEndian.Uint16(data[18:20]))

	_, err = NewInitializeInstruction(testProgramID, accounts, "", 250)
	assert.Error(t, err)
}
