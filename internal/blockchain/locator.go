package blockchain

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxMarketplaceNameLen = 32
	maxSeedLength         = 32
)

// MarketplaceRef identifies one marketplace instance of the program.
type MarketplaceRef struct {
	ProgramID solana.PublicKey
	Name      string
}

// NewMarketplaceRef parses the program id and validates the name seed
func NewMarketplaceRef(programID string, name string) (MarketplaceRef, error) {
	pk, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return MarketplaceRef{}, fmt.Errorf("invalid program ID: %w", err)
	}
	ref := MarketplaceRef{ProgramID: pk, Name: name}
	if err := ref.Validate(); err != nil {
		return MarketplaceRef{}, err
	}
	return ref, nil
}

// Validate checks that the name can be used as a PDA seed and stored on-chain
func (r MarketplaceRef) Validate() error {
	if r.ProgramID.IsZero() {
		return fmt.Errorf("%w: program id", ErrMissingField)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: marketplace name", ErrMissingField)
	}
	if len(r.Name) > MaxMarketplaceNameLen {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidName, r.Name, MaxMarketplaceNameLen)
	}
	return nil
}

func (r MarketplaceRef) String() string {
	return fmt.Sprintf("%s/%s", r.ProgramID, r.Name)
}

// FindPDA derives a program address for the seeds. Running out of bump
// values is reported as ErrPDAExhausted; callers treat it as a
// configuration error.
func FindPDA(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return solana.PublicKey{}, 0, fmt.Errorf("seed %q exceeds %d bytes", s, maxSeedLength)
		}
	}
	pda, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, errors.Join(ErrPDAExhausted, err)
	}
	return pda, bump, nil
}

// Locator derives every address the marketplace program and the token
// programs expect for a given marketplace.
type Locator struct {
	ref MarketplaceRef
}

// NewLocator creates a Locator bound to ref
func NewLocator(ref MarketplaceRef) *Locator {
	return &Locator{ref: ref}
}

// Ref returns the marketplace the locator is bound to
func (l *Locator) Ref() MarketplaceRef {
	return l.ref
}

// Marketplace derives ["marketplace", name]
func (l *Locator) Marketplace() (solana.PublicKey, uint8, error) {
	pda, bump, err := FindPDA([][]byte{[]byte("marketplace"), []byte(l.ref.Name)}, l.ref.ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive marketplace PDA: %w", err)
	}
	return pda, bump, nil
}

// Listing derives [marketplace, mint]
func (l *Locator) Listing(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return l.ListingFor(marketplace, mint)
}

// ListingFor derives the listing PDA when the marketplace address is already known
func (l *Locator) ListingFor(marketplace, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	pda, bump, err := FindPDA([][]byte{marketplace.Bytes(), mint.Bytes()}, l.ref.ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive listing PDA: %w", err)
	}
	return pda, bump, nil
}

// Rewards derives ["rewards", marketplace]
func (l *Locator) Rewards() (solana.PublicKey, uint8, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	pda, bump, err := FindPDA([][]byte{[]byte("rewards"), marketplace.Bytes()}, l.ref.ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive rewards mint PDA: %w", err)
	}
	return pda, bump, nil
}

// Treasury derives ["treasury", marketplace]
func (l *Locator) Treasury() (solana.PublicKey, uint8, error) {
	marketplace, _, err := l.Marketplace()
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	pda, bump, err := FindPDA([][]byte{[]byte("treasury"), marketplace.Bytes()}, l.ref.ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive treasury PDA: %w", err)
	}
	return pda, bump, nil
}

// Vault is the escrow token account: the ATA of the listing PDA for mint.
func (l *Locator) Vault(mint solana.PublicKey) (solana.PublicKey, error) {
	listing, _, err := l.Listing(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return AssociatedTokenAccount(listing, mint)
}

// AssociatedTokenAccount derives the canonical token account for owner and
// mint. Off-curve owners (PDAs) are allowed.
func AssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindProgramAddress([][]byte{
		owner.Bytes(),
		solana.TokenProgramID.Bytes(),
		mint.Bytes(),
	}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token account: %w", err)
	}
	return ata, nil
}

// MetadataAddress derives ["metadata", token-metadata program, mint]
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := FindPDA([][]byte{
		[]byte("metadata"),
		solana.TokenMetadataProgramID.Bytes(),
		mint.Bytes(),
	}, solana.TokenMetadataProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata PDA: %w", err)
	}
	return pda, nil
}

// MasterEditionAddress derives ["metadata", token-metadata program, mint, "edition"]
func MasterEditionAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := FindPDA([][]byte{
		[]byte("metadata"),
		solana.TokenMetadataProgramID.Bytes(),
		mint.Bytes(),
		[]byte("edition"),
	}, solana.TokenMetadataProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive master edition PDA: %w", err)
	}
	return pda, nil
}
