package blockchain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

// Token metadata instruction indices
const (
	ixCreateMasterEditionV3     uint8 = 17
	ixVerifyCollection          uint8 = 18
	ixVerifySizedCollectionItem uint8 = 30
	ixCreateMetadataAccountV3   uint8 = 33
)

const MaxRoyaltyBasisPoints uint16 = 10000

const (
	metadataNameMaxLen   = 32
	metadataSymbolMaxLen = 10
	metadataURIMaxLen    = 200
)

// Creator is a metadata creator entry
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// Collection is the collection reference a metadata account declares
type Collection struct {
	Verified bool
	Key      solana.PublicKey
}

// Uses is carried only so that account layouts decode in order
type Uses struct {
	UseMethod uint8
	Remaining uint64
	Total     uint64
}

type CollectionDetails struct {
	Enum borsh.Enum `borsh_enum:"true"`
	V1   CollectionDetailsV1
}

type CollectionDetailsV1 struct {
	Size uint64
}

type ProgrammableConfig struct {
	Enum borsh.Enum `borsh_enum:"true"`
	V1   ProgrammableConfigV1
}

type ProgrammableConfigV1 struct {
	RuleSet *solana.PublicKey
}

// MetadataData is the descriptive part of a metadata account
type MetadataData struct {
	Name                 string
	Symbol               string
	Uri                  string
	SellerFeeBasisPoints uint16
	Creators             *[]Creator
}

// Metadata is the token-metadata program's account for a mint
type Metadata struct {
	Key                 uint8
	UpdateAuthority     solana.PublicKey
	Mint                solana.PublicKey
	Data                MetadataData
	PrimarySaleHappened bool
	IsMutable           bool
	EditionNonce        *uint8
	TokenStandard       *uint8
	Collection          *Collection
	Uses                *Uses
	CollectionDetails   *CollectionDetails
	ProgrammableConfig  *ProgrammableConfig
}

// DecodeMetadata deserializes a metadata account and strips the NUL
// padding the program stores in fixed-width string fields.
func DecodeMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := borsh.Deserialize(&md, data); err != nil {
		return nil, fmt.Errorf("failed to decode metadata account: %w", err)
	}
	md.Data.Name = trimPadding(md.Data.Name)
	md.Data.Symbol = trimPadding(md.Data.Symbol)
	md.Data.Uri = trimPadding(md.Data.Uri)
	return &md, nil
}

func trimPadding(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// CollectionKey returns the declared collection mint, if any
func (m *Metadata) CollectionKey() (solana.PublicKey, bool) {
	if m.Collection == nil {
		return solana.PublicKey{}, false
	}
	return m.Collection.Key, true
}

// IsSizedCollection reports whether the account is a sized collection parent
func (m *Metadata) IsSizedCollection() bool {
	return m.CollectionDetails != nil
}

// DataV2 is the instruction-side metadata payload
type DataV2 struct {
	Name                 string
	Symbol               string
	Uri                  string
	SellerFeeBasisPoints uint16
	Creators             *[]Creator
	Collection           *Collection
	Uses                 *Uses
}

type createMetadataAccountArgsV3 struct {
	Data              DataV2
	IsMutable         bool
	CollectionDetails *CollectionDetails
}

type createMasterEditionArgs struct {
	MaxSupply *uint64
}

// Validate checks the field bounds the token-metadata program enforces
func (d DataV2) Validate() error {
	if err := d.ValidateDescriptive(); err != nil {
		return err
	}
	if d.Uri == "" {
		return fmt.Errorf("%w: uri", ErrMissingField)
	}
	if len(d.Uri) > metadataURIMaxLen {
		return fmt.Errorf("%w: uri exceeds %d bytes", ErrInvalidMetadata, metadataURIMaxLen)
	}
	return nil
}

// ValidateDescriptive is Validate without the uri checks, for payloads
// whose document has not been pinned yet.
func (d DataV2) ValidateDescriptive() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if len(d.Name) > metadataNameMaxLen {
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidMetadata, metadataNameMaxLen)
	}
	if len(d.Symbol) > metadataSymbolMaxLen {
		return fmt.Errorf("%w: symbol exceeds %d bytes", ErrInvalidMetadata, metadataSymbolMaxLen)
	}
	if d.SellerFeeBasisPoints > MaxRoyaltyBasisPoints {
		return fmt.Errorf("%w: seller fee %d bps exceeds %d", ErrInvalidFee, d.SellerFeeBasisPoints, MaxRoyaltyBasisPoints)
	}
	return nil
}

// CreateMetadataAccountV3Params collects the accounts and payload for the
// metadata-creation instruction.
type CreateMetadataAccountV3Params struct {
	Mint            solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	UpdateAuthority solana.PublicKey
	Data            DataV2
	IsMutable       bool
	// SizedCollection marks the new mint as a collection parent with size 0
	SizedCollection bool
}

// NewCreateMetadataAccountV3Instruction builds the metadata-creation instruction
func NewCreateMetadataAccountV3Instruction(p CreateMetadataAccountV3Params) (solana.Instruction, error) {
	if err := p.Data.Validate(); err != nil {
		return nil, err
	}
	metadata, err := MetadataAddress(p.Mint)
	if err != nil {
		return nil, err
	}

	args := createMetadataAccountArgsV3{Data: p.Data, IsMutable: p.IsMutable}
	if p.SizedCollection {
		args.CollectionDetails = &CollectionDetails{Enum: 0, V1: CollectionDetailsV1{Size: 0}}
	}
	payload, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata args: %w", err)
	}
	data := append([]byte{ixCreateMetadataAccountV3}, payload...)

	accounts := []*solana.AccountMeta{
		{PublicKey: metadata, IsWritable: true, IsSigner: false},          // metadata
		{PublicKey: p.Mint, IsWritable: false, IsSigner: false},           // mint
		{PublicKey: p.MintAuthority, IsWritable: false, IsSigner: true},   // mint_authority
		{PublicKey: p.Payer, IsWritable: true, IsSigner: true},            // payer
		{PublicKey: p.UpdateAuthority, IsWritable: false, IsSigner: true}, // update_authority
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
		{PublicKey: solana.SysVarRentPubkey, IsWritable: false, IsSigner: false},
	}

	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, data), nil
}

// NewCreateMasterEditionV3Instruction builds the master-edition instruction.
// maxSupply 0 makes the mint a one-of-one.
func NewCreateMasterEditionV3Instruction(mint, authority, payer solana.PublicKey, maxSupply uint64) (solana.Instruction, error) {
	metadata, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	edition, err := MasterEditionAddress(mint)
	if err != nil {
		return nil, err
	}

	payload, err := borsh.Serialize(createMasterEditionArgs{MaxSupply: &maxSupply})
	if err != nil {
		return nil, fmt.Errorf("failed to encode master edition args: %w", err)
	}
	data := append([]byte{ixCreateMasterEditionV3}, payload...)

	accounts := []*solana.AccountMeta{
		{PublicKey: edition, IsWritable: true, IsSigner: false},   // edition
		{PublicKey: mint, IsWritable: true, IsSigner: false},      // mint
		{PublicKey: authority, IsWritable: false, IsSigner: true}, // update_authority
		{PublicKey: authority, IsWritable: false, IsSigner: true}, // mint_authority
		{PublicKey: payer, IsWritable: true, IsSigner: true},      // payer
		{PublicKey: metadata, IsWritable: true, IsSigner: false},  // metadata
		{PublicKey: solana.TokenProgramID, IsWritable: false, IsSigner: false},
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
		{PublicKey: solana.SysVarRentPubkey, IsWritable: false, IsSigner: false},
	}

	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, data), nil
}

// VerifyCollectionVariant selects which verification instruction to emit
type VerifyCollectionVariant int

const (
	VerifySized VerifyCollectionVariant = iota
	VerifyLegacy
)

func (v VerifyCollectionVariant) String() string {
	switch v {
	case VerifySized:
		return "sized"
	case VerifyLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// NewVerifyCollectionInstruction marks nftMint as a verified member of
// collectionMint. Both variants share the same account list.
func NewVerifyCollectionInstruction(variant VerifyCollectionVariant, nftMint, collectionMint, authority, payer solana.PublicKey) (solana.Instruction, error) {
	var index uint8
	switch variant {
	case VerifySized:
		index = ixVerifySizedCollectionItem
	case VerifyLegacy:
		index = ixVerifyCollection
	default:
		return nil, fmt.Errorf("unknown verification variant %d", variant)
	}

	metadata, err := MetadataAddress(nftMint)
	if err != nil {
		return nil, err
	}
	collectionMetadata, err := MetadataAddress(collectionMint)
	if err != nil {
		return nil, err
	}
	collectionEdition, err := MasterEditionAddress(collectionMint)
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: metadata, IsWritable: true, IsSigner: false},           // metadata
		{PublicKey: authority, IsWritable: true, IsSigner: true},           // collection_authority
		{PublicKey: payer, IsWritable: true, IsSigner: true},               // payer
		{PublicKey: collectionMint, IsWritable: false, IsSigner: false},    // collection_mint
		{PublicKey: collectionMetadata, IsWritable: true, IsSigner: false}, // collection
		{PublicKey: collectionEdition, IsWritable: false, IsSigner: false}, // collection_master_edition_account
	}

	return solana.NewInstruction(solana.TokenMetadataProgramID, accounts, []byte{index}), nil
}
