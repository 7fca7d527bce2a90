package blockchain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrCollectionMismatch = errors.New("collection mismatch")
	ErrBlockhashExpired   = errors.New("blockhash expired before confirmation")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrMissingField       = errors.New("missing required field")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidListing     = errors.New("invalid listing account")
	ErrPDAExhausted       = errors.New("program address derivation exhausted")
	ErrConfirmTimeout     = errors.New("timed out waiting for confirmation")
	ErrInvalidMetadata    = errors.New("invalid metadata")
	ErrInvalidFee         = errors.New("invalid fee")
	ErrInvalidName        = errors.New("invalid marketplace name")
)

// TransactionRejectedError is returned when the cluster executed the
// transaction and the program (or runtime) rejected it.
type TransactionRejectedError struct {
	Signature solana.Signature
	Addresses []solana.PublicKey
	Err       interface{}
}

func (e *TransactionRejectedError) Error() string {
	addrs := make([]string, 0, len(e.Addresses))
	for _, a := range e.Addresses {
		addrs = append(addrs, a.String())
	}
	return fmt.Sprintf("transaction %s rejected: %v (accounts: %s)",
		e.Signature, e.Err, strings.Join(addrs, ", "))
}

// isBlockhashNotFound reports whether an RPC submission error means the
// blockhash was no longer valid when the node received the transaction.
func isBlockhashNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "block height exceeded")
}
