package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 90 * time.Second
)

// Submitter runs the sign, send, confirm sequence for one transaction at a time.
type Submitter struct {
	rpc            RPC
	pollInterval   time.Duration
	confirmTimeout time.Duration
	resendInterval time.Duration
	log            *zap.Logger
}

// NewSubmitter creates a Submitter. Zero durations fall back to defaults.
func NewSubmitter(client RPC, pollInterval, confirmTimeout time.Duration) *Submitter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Submitter{
		rpc:            client,
		pollInterval:   pollInterval,
		confirmTimeout: confirmTimeout,
		log:            zap.L().Named("submitter"),
	}
}

// SetResendInterval makes Submit rebroadcast the same signed bytes at this
// interval while it waits. Zero disables rebroadcast.
func (s *Submitter) SetResendInterval(d time.Duration) {
	s.resendInterval = d
}

// Submit fetches a fresh blockhash, builds the transaction with the signer
// as fee payer, collects signatures (extra keypairs first, then the
// wallet), submits the raw bytes and waits for confirmation against the
// same blockhash's expiry height.
func (s *Submitter) Submit(ctx context.Context, signer Signer, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (solana.Signature, error) {
	if err := RequireSigner(signer); err != nil {
		return solana.Signature{}, err
	}
	payer := signer.PublicKey()

	blockhash, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Hash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if len(extraSigners) > 0 {
		_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			for i := range extraSigners {
				if extraSigners[i].PublicKey().Equals(key) {
					return &extraSigners[i]
				}
			}
			return nil
		})
		if err != nil {
			return solana.Signature{}, fmt.Errorf("failed to sign with generated keypair: %w", err)
		}
	}

	tx, err = signer.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("wallet refused to sign: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	addresses := writableAccounts(tx)

	sig, err := s.rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		if isBlockhashNotFound(err) {
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrBlockhashExpired, err)
		}
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			var txSig solana.Signature
			if len(tx.Signatures) > 0 {
				txSig = tx.Signatures[0]
			}
			return txSig, &TransactionRejectedError{Signature: txSig, Addresses: addresses, Err: rpcErr.Message}
		}
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.log.Info("transaction submitted",
		zap.String("signature", sig.String()),
		zap.Uint64("last_valid_block_height", blockhash.LastValidBlockHeight))

	if err := s.confirm(ctx, sig, blockhash.LastValidBlockHeight, addresses, raw); err != nil {
		return sig, err
	}
	return sig, nil
}

// Confirm polls the signature until it is confirmed, rejected, or the
// blockhash it was built with can no longer land.
func (s *Submitter) Confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64, addresses []solana.PublicKey) error {
	return s.confirm(ctx, sig, lastValidBlockHeight, addresses, nil)
}

// confirm is Confirm plus rebroadcast of raw. Resending identical bytes
// cannot execute twice: the signature is the transaction id.
func (s *Submitter) confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64, addresses []solana.PublicKey, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastSent := time.Now()
	for {
		done, err := s.checkStatus(ctx, sig, addresses)
		if done || err != nil {
			return err
		}

		height, err := s.rpc.GetBlockHeight(ctx)
		if err != nil {
			s.log.Warn("failed to read block height", zap.Error(err))
		} else if height > lastValidBlockHeight {
			// The transaction may have landed between the two reads.
			if done, err := s.checkStatus(ctx, sig, addresses); done || err != nil {
				return err
			}
			return fmt.Errorf("%w: signature %s, block height %d > %d",
				ErrBlockhashExpired, sig, height, lastValidBlockHeight)
		}

		if raw != nil && s.resendInterval > 0 && time.Since(lastSent) >= s.resendInterval {
			if _, err := s.rpc.SendRawTransaction(ctx, raw); err != nil {
				s.log.Debug("rebroadcast failed", zap.String("signature", sig.String()), zap.Error(err))
			}
			lastSent = time.Now()
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
		case <-ticker.C:
		}
	}
}

func (s *Submitter) checkStatus(ctx context.Context, sig solana.Signature, addresses []solana.PublicKey) (bool, error) {
	status, err := s.rpc.GetSignatureStatus(ctx, sig)
	if err != nil {
		s.log.Warn("failed to read signature status", zap.String("signature", sig.String()), zap.Error(err))
		return false, nil
	}
	if status == nil {
		return false, nil
	}
	if status.Err != nil {
		return true, &TransactionRejectedError{Signature: sig, Addresses: addresses, Err: status.Err}
	}
	return status.Confirmed(), nil
}

func writableAccounts(tx *solana.Transaction) []solana.PublicKey {
	var out []solana.PublicKey
	for i, key := range tx.Message.AccountKeys {
		if writable, err := tx.Message.IsWritable(key); err == nil && writable {
			out = append(out, tx.Message.AccountKeys[i])
		}
	}
	return out
}
