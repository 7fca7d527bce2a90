package blockchain

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// MintAccountSize is the size of an SPL token mint account
const MintAccountSize = 82

// TokenHolding is a decoded token account balance
type TokenHolding struct {
	Account solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}

// DecodeTokenAccount decodes an SPL token account
func DecodeTokenAccount(address solana.PublicKey, data []byte) (*TokenHolding, error) {
	var tokenAccount token.Account
	if err := tokenAccount.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, fmt.Errorf("failed to decode token account %s: %w", address, err)
	}
	return &TokenHolding{
		Account: address,
		Mint:    tokenAccount.Mint,
		Owner:   tokenAccount.Owner,
		Amount:  tokenAccount.Amount,
	}, nil
}

// DecodeMintDecimals returns the decimals of an SPL mint account
func DecodeMintDecimals(data []byte) (uint8, error) {
	var mint token.Mint
	if err := mint.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return 0, fmt.Errorf("failed to decode mint: %w", err)
	}
	return mint.Decimals, nil
}
