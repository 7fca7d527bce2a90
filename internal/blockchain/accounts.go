package blockchain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ListingAccountSize is discriminator(8) + maker(32) + makerMint(32) + price(8) + bump(1)
const ListingAccountSize = 81

// ListingRecord is the decoded view of an on-chain listing account
type ListingRecord struct {
	Address   solana.PublicKey
	Maker     solana.PublicKey
	MakerMint solana.PublicKey
	Price     uint64
	Bump      uint8
}

// MarketplaceAccount is the decoded marketplace state account
type MarketplaceAccount struct {
	Admin        solana.PublicKey
	Fee          uint16
	Bump         uint8
	TreasuryBump uint8
	RewardsBump  uint8
	Name         string
}

// AccountDiscriminator returns the 8-byte prefix Anchor writes for account type name
func AccountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// DecodeListing decodes a listing account. The discriminator is not checked;
// authenticity is established by comparing the account address with the
// derived listing PDA.
func DecodeListing(address solana.PublicKey, data []byte) (*ListingRecord, error) {
	if len(data) != ListingAccountSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidListing, ListingAccountSize, len(data))
	}

	dec := bin.NewBorshDecoder(data)

	// discriminator: [u8; 8]
	if _, err := dec.ReadNBytes(8); err != nil {
		return nil, fmt.Errorf("%w: discriminator: %v", ErrInvalidListing, err)
	}

	record := &ListingRecord{Address: address}

	// maker: Pubkey (32 bytes)
	maker, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%w: maker: %v", ErrInvalidListing, err)
	}
	record.Maker = solana.PublicKeyFromBytes(maker)

	// maker_mint: Pubkey (32 bytes)
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%w: maker_mint: %v", ErrInvalidListing, err)
	}
	record.MakerMint = solana.PublicKeyFromBytes(mint)

	// price: u64 (8 bytes)
	if record.Price, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("%w: price: %v", ErrInvalidListing, err)
	}

	// bump: u8 (1 byte)
	if record.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("%w: bump: %v", ErrInvalidListing, err)
	}

	return record, nil
}

// EncodeListing is the inverse of DecodeListing, used by fixtures and the CLI
// when printing raw accounts.
func EncodeListing(record ListingRecord) []byte {
	data := make([]byte, ListingAccountSize)
	disc := AccountDiscriminator("Listing")
	copy(data[0:8], disc[:])
	copy(data[8:40], record.Maker.Bytes())
	copy(data[40:72], record.MakerMint.Bytes())
	binary.LittleEndian.PutUint64(data[72:80], record.Price)
	data[80] = record.Bump
	return data
}

// DecodeMarketplace decodes the marketplace state account
func DecodeMarketplace(data []byte) (*MarketplaceAccount, error) {
	if len(data) < 8+32+2+3+4 {
		return nil, fmt.Errorf("marketplace account too short: %d bytes", len(data))
	}

	dec := bin.NewBorshDecoder(data)
	if _, err := dec.ReadNBytes(8); err != nil {
		return nil, fmt.Errorf("failed to read discriminator: %w", err)
	}

	m := &MarketplaceAccount{}

	// admin: Pubkey (32 bytes)
	admin, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin: %w", err)
	}
	m.Admin = solana.PublicKeyFromBytes(admin)

	// fee: u16 (2 bytes)
	if m.Fee, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to read fee: %w", err)
	}

	// bump, treasury_bump, rewards_bump: u8 each
	if m.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("failed to read bump: %w", err)
	}
	if m.TreasuryBump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("failed to read treasury bump: %w", err)
	}
	if m.RewardsBump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("failed to read rewards bump: %w", err)
	}

	// name: String (4-byte length + bytes)
	nameLen, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("failed to read name length: %w", err)
	}
	if nameLen > MaxMarketplaceNameLen {
		return nil, fmt.Errorf("marketplace name length %d exceeds %d", nameLen, MaxMarketplaceNameLen)
	}
	name, err := dec.ReadNBytes(int(nameLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read name: %w", err)
	}
	m.Name = string(name)

	return m, nil
}

// EncodeMarketplace is the inverse of DecodeMarketplace
func EncodeMarketplace(m MarketplaceAccount) []byte {
	data := make([]byte, 0, 8+32+2+3+4+len(m.Name))
	disc := AccountDiscriminator("Marketplace")
	data = append(data, disc[:]...)
	data = append(data, m.Admin.Bytes()...)
	data = binary.LittleEndian.AppendUint16(data, m.Fee)
	data = append(data, m.Bump, m.TreasuryBump, m.RewardsBump)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(m.Name)))
	data = append(data, m.Name...)
	return data
}
