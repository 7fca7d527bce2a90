package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeypairSignerBase58(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	signer, err := LoadKeypairSigner(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), signer.PublicKey())
}

func TestLoadKeypairSignerFile(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	signer, err := LoadKeypairSigner(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), signer.PublicKey())
}

func TestLoadKeypairSignerInvalid(t *testing.T) {
	_, err := LoadKeypairSigner("")
	assert.True(t, errors.Is(err, ErrWalletNotConnected))

	_, err = LoadKeypairSigner("0OIl")
	assert.Error(t, err)

	_, err = LoadKeypairSigner(solana.NewWallet().PublicKey().String())
	assert.Error(t, err)
}

func TestRequireSigner(t *testing.T) {
	assert.True(t, errors.Is(RequireSigner(nil), ErrWalletNotConnected))

	var typedNil *KeypairSigner
	assert.True(t, errors.Is(RequireSigner(typedNil), ErrWalletNotConnected))

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	assert.NoError(t, RequireSigner(NewKeypairSigner(key)))
}

func TestSignAllTransactions(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	signer := NewKeypairSigner(key)

	ix := solana.NewInstruction(solana.SystemProgramID, []*solana.AccountMeta{
		{PublicKey: key.PublicKey(), IsWritable: true, IsSigner: true},
	}, []byte{0})
	var txs []*solana.Transaction
	for i := 0; i < 2; i++ {
		tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{byte(i + 1)}, solana.TransactionPayer(key.PublicKey()))
		require.NoError(t, err)
		txs = append(txs, tx)
	}

	signed, err := signer.SignAllTransactions(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, signed, 2)
	for _, tx := range signed {
		assert.NoError(t, tx.VerifySignatures())
	}
}
