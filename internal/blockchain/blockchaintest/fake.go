// Package blockchaintest provides an in-memory RPC and account fixtures for
// tests of code built on the blockchain package.
package blockchaintest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/near/borsh-go"

	"model-marketplace/internal/blockchain"
)

const tokenAccountSize = 165

// FakeRPC implements blockchain.RPC from in-memory state
type FakeRPC struct {
	mu sync.Mutex

	accounts        map[solana.PublicKey]*blockchain.AccountInfo
	tokenAccounts   map[solana.PublicKey][]*blockchain.AccountInfo
	programAccounts map[solana.PublicKey][]*blockchain.AccountInfo
	calls           map[string]int
	sent            []*solana.Transaction

	Blockhash   blockchain.Blockhash
	BlockHeight uint64
	Rent        uint64
	// Errors fails the named method (e.g. "GetProgramAccounts") with the value
	Errors map[string]error
	// SendErr fails SendRawTransaction
	SendErr error
	// Status decides what GetSignatureStatus reports; nil means confirmed
	Status func(sig solana.Signature) *blockchain.SignatureStatus
}

// NewFakeRPC returns an empty chain with a valid blockhash
func NewFakeRPC() *FakeRPC {
	return &FakeRPC{
		accounts:        make(map[solana.PublicKey]*blockchain.AccountInfo),
		tokenAccounts:   make(map[solana.PublicKey][]*blockchain.AccountInfo),
		programAccounts: make(map[solana.PublicKey][]*blockchain.AccountInfo),
		calls:           make(map[string]int),
		Errors:          make(map[string]error),
		Blockhash: blockchain.Blockhash{
			Hash:                 solana.HashFromBytes(make([]byte, 32)),
			LastValidBlockHeight: 1000,
		},
		BlockHeight: 900,
		Rent:        1461600,
	}
}

// SetAccount stores an account under address
func (f *FakeRPC) SetAccount(address, owner solana.PublicKey, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &blockchain.AccountInfo{Address: address, Owner: owner, Lamports: 1, Data: data}
}

// SetExecutable stores an executable program account
func (f *FakeRPC) SetExecutable(address solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &blockchain.AccountInfo{Address: address, Owner: solana.BPFLoaderUpgradeableProgramID, Lamports: 1, Executable: true}
}

// DeleteAccount removes an account, including from program scans
func (f *FakeRPC) DeleteAccount(address solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, address)
	for program, infos := range f.programAccounts {
		kept := make([]*blockchain.AccountInfo, 0, len(infos))
		for _, info := range infos {
			if !info.Address.Equals(address) {
				kept = append(kept, info)
			}
		}
		f.programAccounts[program] = kept
	}
}

// AddTokenAccount registers a token account for owner and stores it
func (f *FakeRPC) AddTokenAccount(owner, address, mint solana.PublicKey, amount uint64) {
	info := &blockchain.AccountInfo{
		Address: address,
		Owner:   solana.TokenProgramID,
		Data:    TokenAccountData(mint, owner, amount),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenAccounts[owner] = append(f.tokenAccounts[owner], info)
	f.accounts[address] = info
}

// AddProgramAccount registers an account owned by programID
func (f *FakeRPC) AddProgramAccount(programID, address solana.PublicKey, data []byte) {
	info := &blockchain.AccountInfo{Address: address, Owner: programID, Data: data}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programAccounts[programID] = append(f.programAccounts[programID], info)
	f.accounts[address] = info
}

// Calls returns how often method was invoked
func (f *FakeRPC) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Sent returns the decoded transactions passed to SendRawTransaction
func (f *FakeRPC) Sent() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.sent...)
}

func (f *FakeRPC) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.Errors[method]
}

func (f *FakeRPC) GetAccount(_ context.Context, address solana.PublicKey) (*blockchain.AccountInfo, error) {
	if err := f.enter("GetAccount"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blockchain.ErrAccountNotFound, address)
	}
	return acc, nil
}

func (f *FakeRPC) GetMultipleAccounts(_ context.Context, addresses []solana.PublicKey) ([]*blockchain.AccountInfo, error) {
	if err := f.enter("GetMultipleAccounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*blockchain.AccountInfo, len(addresses))
	for i, a := range addresses {
		out[i] = f.accounts[a]
	}
	return out, nil
}

func (f *FakeRPC) GetProgramAccounts(_ context.Context, programID solana.PublicKey, dataSize uint64) ([]*blockchain.AccountInfo, error) {
	if err := f.enter("GetProgramAccounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*blockchain.AccountInfo
	for _, acc := range f.programAccounts[programID] {
		if dataSize == 0 || uint64(len(acc.Data)) == dataSize {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (f *FakeRPC) GetTokenAccountsByOwner(_ context.Context, owner solana.PublicKey) ([]*blockchain.AccountInfo, error) {
	if err := f.enter("GetTokenAccountsByOwner"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*blockchain.AccountInfo(nil), f.tokenAccounts[owner]...), nil
}

func (f *FakeRPC) GetTokenLargestAccounts(_ context.Context, mint solana.PublicKey) ([]*blockchain.TokenBalance, error) {
	if err := f.enter("GetTokenLargestAccounts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*blockchain.TokenBalance
	for _, infos := range f.tokenAccounts {
		for _, info := range infos {
			holding, err := blockchain.DecodeTokenAccount(info.Address, info.Data)
			if err != nil || !holding.Mint.Equals(mint) {
				continue
			}
			out = append(out, &blockchain.TokenBalance{Address: info.Address, Amount: holding.Amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out, nil
}

func (f *FakeRPC) GetLatestBlockhash(_ context.Context) (*blockchain.Blockhash, error) {
	if err := f.enter("GetLatestBlockhash"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bh := f.Blockhash
	return &bh, nil
}

func (f *FakeRPC) GetBlockHeight(_ context.Context) (uint64, error) {
	if err := f.enter("GetBlockHeight"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BlockHeight, nil
}

func (f *FakeRPC) SendRawTransaction(_ context.Context, raw []byte) (solana.Signature, error) {
	if err := f.enter("SendRawTransaction"); err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fake rpc: undecodable transaction: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	return tx.Signatures[0], nil
}

func (f *FakeRPC) GetSignatureStatus(_ context.Context, sig solana.Signature) (*blockchain.SignatureStatus, error) {
	if err := f.enter("GetSignatureStatus"); err != nil {
		return nil, err
	}
	if f.Status != nil {
		return f.Status(sig), nil
	}
	return &blockchain.SignatureStatus{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, nil
}

func (f *FakeRPC) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	if err := f.enter("GetMinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return f.Rent, nil
}

// TokenAccountData lays out an initialized SPL token account
func TokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, tokenAccountSize)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // state: initialized
	return data
}

// MintData lays out an initialized SPL mint with the given decimals
func MintData(decimals uint8, supply uint64) []byte {
	data := make([]byte, blockchain.MintAccountSize)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	return data
}

// MetadataData serializes a token-metadata account
func MetadataData(md blockchain.Metadata) []byte {
	md.Key = 4
	data, err := borsh.Serialize(md)
	if err != nil {
		panic(err)
	}
	return data
}

// NewMetadata is a metadata account for mint, optionally declaring a collection
func NewMetadata(mint solana.PublicKey, name, uri string, collection *solana.PublicKey, verified bool) blockchain.Metadata {
	md := blockchain.Metadata{
		Mint: mint,
		Data: blockchain.MetadataData{
			Name:                 name,
			Symbol:               "MDL",
			Uri:                  uri,
			SellerFeeBasisPoints: 550,
		},
		IsMutable: true,
	}
	if collection != nil {
		md.Collection = &blockchain.Collection{Verified: verified, Key: *collection}
	}
	return md
}

// PutNft stores a zero-decimal mint and its metadata account
func (f *FakeRPC) PutNft(mint solana.PublicKey, md blockchain.Metadata) {
	f.SetAccount(mint, solana.TokenProgramID, MintData(0, 1))
	addr, err := blockchain.MetadataAddress(mint)
	if err != nil {
		panic(err)
	}
	f.SetAccount(addr, solana.TokenMetadataProgramID, MetadataData(md))
}

// NewKey returns a random public key
func NewKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

var _ blockchain.RPC = (*FakeRPC)(nil)
