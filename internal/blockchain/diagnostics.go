package blockchain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DiagnosticResult holds the result of a marketplace connectivity diagnostic
type DiagnosticResult struct {
	RPCConnected      bool   `json:"rpc_connected"`
	RPCURL            string `json:"rpc_url"`
	RPCError          string `json:"rpc_error,omitempty"`
	LatestBlockhash   string `json:"latest_blockhash,omitempty"`
	ProgramID         string `json:"program_id"`
	ProgramExecutable bool   `json:"program_executable"`
	ProgramError      string `json:"program_error,omitempty"`
	MarketplaceName   string `json:"marketplace_name"`
	MarketplacePDA    string `json:"marketplace_pda,omitempty"`
	MarketplaceExists bool   `json:"marketplace_exists"`
	MarketplaceAdmin  string `json:"marketplace_admin,omitempty"`
	MarketplaceFeeBps uint16 `json:"marketplace_fee_bps,omitempty"`
	PDAError          string `json:"pda_error,omitempty"`
	SignerConfigured  bool   `json:"signer_configured"`
	SignerPubkey      string `json:"signer_pubkey,omitempty"`
	Timestamp         string `json:"timestamp"`
}

// RunDiagnostics checks RPC connectivity, the program account, marketplace
// PDA derivation and the configured signer. It never fails; every problem
// is recorded on the result.
func RunDiagnostics(ctx context.Context, client RPC, rpcURL string, ref MarketplaceRef, signer Signer) *DiagnosticResult {
	log := zap.L().Named("diagnostics")
	result := &DiagnosticResult{
		Timestamp:       time.Now().Format(time.RFC3339),
		RPCURL:          rpcURL,
		ProgramID:       ref.ProgramID.String(),
		MarketplaceName: ref.Name,
	}

	// 1. RPC connectivity
	blockhash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		result.RPCError = err.Error()
		log.Error("rpc unreachable", zap.String("rpc_url", rpcURL), zap.Error(err))
	} else {
		result.RPCConnected = true
		result.LatestBlockhash = blockhash.Hash.String()
		log.Info("rpc connected", zap.String("blockhash", result.LatestBlockhash))
	}

	// 2. Program account
	if result.RPCConnected {
		program, err := client.GetAccount(ctx, ref.ProgramID)
		if err != nil {
			result.ProgramError = err.Error()
			log.Error("program account missing", zap.Error(err))
		} else {
			result.ProgramExecutable = program.Executable
			if !program.Executable {
				result.ProgramError = "program account is not executable"
			}
		}
	}

	// 3. Marketplace PDA and state
	pda, _, err := NewLocator(ref).Marketplace()
	if err != nil {
		result.PDAError = err.Error()
		log.Error("marketplace PDA derivation failed", zap.Error(err))
	} else {
		result.MarketplacePDA = pda.String()
		if result.RPCConnected {
			acc, err := client.GetAccount(ctx, pda)
			switch {
			case errors.Is(err, ErrAccountNotFound):
				log.Warn("marketplace not initialized", zap.String("pda", pda.String()))
			case err != nil:
				result.PDAError = err.Error()
			default:
				result.MarketplaceExists = true
				if m, err := DecodeMarketplace(acc.Data); err == nil {
					result.MarketplaceAdmin = m.Admin.String()
					result.MarketplaceFeeBps = m.Fee
				} else {
					result.PDAError = err.Error()
				}
			}
		}
	}

	// 4. Signer
	if RequireSigner(signer) == nil {
		result.SignerConfigured = true
		result.SignerPubkey = signer.PublicKey().String()
	}

	return result
}
