package blockchain

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Signer is the wallet side of every write operation.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// KeypairSigner signs with a local ed25519 keypair
type KeypairSigner struct {
	key solana.PrivateKey
}

// NewKeypairSigner wraps an existing private key
func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// LoadKeypairSigner accepts either a solana-keygen JSON file path or a
// base58-encoded 64-byte secret key.
func LoadKeypairSigner(value string) (*KeypairSigner, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrWalletNotConnected
	}

	if _, err := os.Stat(value); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file: %w", err)
		}
		return NewKeypairSigner(key), nil
	}

	raw, err := base58.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 secret key: %w", err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("secret key must be 64 bytes, got %d", len(raw))
	}
	return NewKeypairSigner(solana.PrivateKey(raw)), nil
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// SignTransaction adds this key's signature, leaving other signer slots intact
func (s *KeypairSigner) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	pub := s.key.PublicKey()
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (s *KeypairSigner) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	out := make([]*solana.Transaction, 0, len(txs))
	for i, tx := range txs {
		signed, err := s.SignTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		out = append(out, signed)
	}
	return out, nil
}

// RequireSigner returns ErrWalletNotConnected for a nil signer
func RequireSigner(s Signer) error {
	if s == nil {
		return ErrWalletNotConnected
	}
	if ks, ok := s.(*KeypairSigner); ok && ks == nil {
		return ErrWalletNotConnected
	}
	return nil
}
