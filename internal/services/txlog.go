package services

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/metrics"
	"model-marketplace/internal/models"
	"model-marketplace/internal/repository"
)

// TransactionStatusFor classifies the outcome of a submission
func TransactionStatusFor(err error) models.TransactionStatus {
	var rejected *blockchain.TransactionRejectedError
	switch {
	case err == nil:
		return models.TransactionStatusConfirmed
	case errors.Is(err, blockchain.ErrBlockhashExpired):
		return models.TransactionStatusExpired
	case errors.As(err, &rejected):
		return models.TransactionStatusRejected
	default:
		return models.TransactionStatusFailed
	}
}

// txRecorder writes the transaction log and outcome metrics. Both sinks are optional.
type txRecorder struct {
	repo    *repository.Repository
	metrics *metrics.Metrics
	log     *zap.Logger
}

func (r txRecorder) record(ctx context.Context, entry models.MarketplaceTransaction, sig solana.Signature, started time.Time, err error) {
	r.metrics.Transaction(string(entry.Kind), err, started)

	entry.Status = TransactionStatusFor(err)
	if !sig.IsZero() {
		entry.Signature = sig.String()
	}
	if err != nil {
		entry.Error = err.Error()
		r.log.Warn("transaction failed",
			zap.String("kind", string(entry.Kind)),
			zap.String("mint", entry.Mint),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	} else {
		r.log.Info("transaction confirmed",
			zap.String("kind", string(entry.Kind)),
			zap.String("mint", entry.Mint),
			zap.String("signature", entry.Signature))
	}

	if r.repo == nil {
		return
	}
	// The write already happened on-chain; a log failure must not mask it.
	if dbErr := r.repo.CreateTransaction(context.WithoutCancel(ctx), &entry); dbErr != nil {
		r.log.Error("failed to store transaction log", zap.Error(dbErr))
	}
}
