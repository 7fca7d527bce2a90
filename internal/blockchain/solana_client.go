package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// AccountInfo is a fetched account with its raw data
type AccountInfo struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// TokenBalance is a token account and its raw amount
type TokenBalance struct {
	Address solana.PublicKey
	Amount  uint64
}

// Blockhash is a recent blockhash with the last block height it is valid for
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// SignatureStatus is the cluster's view of a submitted transaction
type SignatureStatus struct {
	ConfirmationStatus rpc.ConfirmationStatusType
	Err                interface{}
}

// Confirmed reports whether the status reached confirmed or finalized
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		s.ConfirmationStatus == rpc.ConfirmationStatusFinalized
}

// RPC is the cluster access the marketplace needs
type RPC interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*AccountInfo, error)
	GetProgramAccounts(ctx context.Context, programID solana.PublicKey, dataSize uint64) ([]*AccountInfo, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]*AccountInfo, error)
	GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) ([]*TokenBalance, error)
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)
	GetBlockHeight(ctx context.Context) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
}

const maxMultipleAccounts = 100

// SolanaClient implements RPC on top of the solana-go JSON-RPC client
type SolanaClient struct {
	rpcClient *rpc.Client
	rpcURL    string
}

// NewSolanaClient creates a new Solana client for the given endpoint
func NewSolanaClient(rpcURL string) *SolanaClient {
	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		rpcURL:    rpcURL,
	}
}

// Endpoint returns the RPC URL the client talks to
func (s *SolanaClient) Endpoint() string {
	return s.rpcURL
}

func (s *SolanaClient) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	out, err := s.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return toAccountInfo(address, out.Value), nil
}

// GetMultipleAccounts returns one entry per address; missing accounts are nil
func (s *SolanaClient) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*AccountInfo, error) {
	result := make([]*AccountInfo, 0, len(addresses))
	for start := 0; start < len(addresses); start += maxMultipleAccounts {
		end := start + maxMultipleAccounts
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[start:end]

		out, err := s.rpcClient.GetMultipleAccounts(ctx, chunk...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %d accounts: %w", len(chunk), err)
		}
		for i, acc := range out.Value {
			if acc == nil {
				result = append(result, nil)
				continue
			}
			result = append(result, toAccountInfo(chunk[i], acc))
		}
	}
	return result, nil
}

// GetProgramAccounts lists accounts owned by programID. A non-zero dataSize
// is forwarded as a server-side filter.
func (s *SolanaClient) GetProgramAccounts(ctx context.Context, programID solana.PublicKey, dataSize uint64) ([]*AccountInfo, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	}
	if dataSize > 0 {
		opts.Filters = []rpc.RPCFilter{{DataSize: dataSize}}
	}

	out, err := s.rpcClient.GetProgramAccountsWithOpts(ctx, programID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan program accounts: %w", err)
	}

	accounts := make([]*AccountInfo, 0, len(out))
	for _, keyed := range out {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		accounts = append(accounts, toAccountInfo(keyed.Pubkey, keyed.Account))
	}
	return accounts, nil
}

// GetTokenAccountsByOwner lists owner's token accounts under the token program
func (s *SolanaClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]*AccountInfo, error) {
	programID := solana.TokenProgramID
	resp, err := s.rpcClient.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{
			ProgramId: &programID,
		},
		&rpc.GetTokenAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	accounts := make([]*AccountInfo, 0, len(resp.Value))
	for _, ta := range resp.Value {
		if ta == nil {
			continue
		}
		acc := ta.Account
		accounts = append(accounts, toAccountInfo(ta.Pubkey, &acc))
	}
	return accounts, nil
}

// GetTokenLargestAccounts lists the biggest token accounts of mint, largest first
func (s *SolanaClient) GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey) ([]*TokenBalance, error) {
	resp, err := s.rpcClient.GetTokenLargestAccounts(ctx, mint, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get largest accounts of %s: %w", mint, err)
	}

	balances := make([]*TokenBalance, 0, len(resp.Value))
	for _, v := range resp.Value {
		if v == nil {
			continue
		}
		amount, err := strconv.ParseUint(v.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid token amount %q for %s: %w", v.Amount, v.Address, err)
		}
		balances = append(balances, &TokenBalance{Address: v.Address, Amount: amount})
	}
	return balances, nil
}

// GetLatestBlockhash gets the latest blockhash and its expiry height
func (s *SolanaClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	resp, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	return &Blockhash{
		Hash:                 resp.Value.Blockhash,
		LastValidBlockHeight: resp.Value.LastValidBlockHeight,
	}, nil
}

func (s *SolanaClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	height, err := s.rpcClient.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// SendRawTransaction submits signed wire bytes. The RPC node is told not
// to retry; Submitter rebroadcasts the same bytes until expiry instead.
func (s *SolanaClient) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	maxRetries := uint(0)
	sig, err := s.rpcClient.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatus returns nil when the cluster has not seen sig yet
func (s *SolanaClient) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := s.rpcClient.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	return &SignatureStatus{
		ConfirmationStatus: out.Value[0].ConfirmationStatus,
		Err:                out.Value[0].Err,
	}, nil
}

func (s *SolanaClient) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	lamports, err := s.rpcClient.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption for %d bytes: %w", size, err)
	}
	return lamports, nil
}

func toAccountInfo(address solana.PublicKey, acc *rpc.Account) *AccountInfo {
	info := &AccountInfo{
		Address:    address,
		Owner:      acc.Owner,
		Lamports:   acc.Lamports,
		Executable: acc.Executable,
	}
	if acc.Data != nil {
		info.Data = acc.Data.GetBinary()
	} else {
		zap.L().Debug("account has no binary data", zap.String("address", address.String()))
	}
	return info
}
