package services

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"model-marketplace/internal/blockchain"
)

// LamportsPerSol is the number of lamports in one SOL
const LamportsPerSol = 1_000_000_000

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ToLamports converts a display-unit price to lamports, flooring any
// fractional lamport.
func ToLamports(price decimal.Decimal) (uint64, error) {
	if price.IsNegative() {
		return 0, fmt.Errorf("%w: %s is negative", blockchain.ErrInvalidPrice, price)
	}
	lamports := price.Shift(9).Floor()
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: %s overflows u64 lamports", blockchain.ErrInvalidPrice, price)
	}
	return lamports.BigInt().Uint64(), nil
}

// FromLamports converts lamports to the display unit
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// ListingLamports is ToLamports for a listing price, which must be at least one lamport
func ListingLamports(price decimal.Decimal) (uint64, error) {
	lamports, err := ToLamports(price)
	if err != nil {
		return 0, err
	}
	if lamports == 0 {
		return 0, fmt.Errorf("%w: %s is below one lamport", blockchain.ErrInvalidPrice, price)
	}
	return lamports, nil
}
