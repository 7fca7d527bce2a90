package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is the marketplace operation a transaction performed
type TransactionKind string

const (
	TransactionKindInitialize       TransactionKind = "INITIALIZE"
	TransactionKindList             TransactionKind = "LIST"
	TransactionKindDelist           TransactionKind = "DELIST"
	TransactionKindPurchase         TransactionKind = "PURCHASE"
	TransactionKindMint             TransactionKind = "MINT"
	TransactionKindCreateCollection TransactionKind = "CREATE_COLLECTION"
	TransactionKindVerifyCollection TransactionKind = "VERIFY_COLLECTION"
)

// TransactionStatus is the final outcome of a submitted transaction
type TransactionStatus string

const (
	TransactionStatusConfirmed TransactionStatus = "CONFIRMED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
	TransactionStatusExpired   TransactionStatus = "EXPIRED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// MarketplaceTransaction is the local log entry for one write operation
type MarketplaceTransaction struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Kind          TransactionKind     `gorm:"type:varchar(32);not null;index" json:"kind"`
	Marketplace   string              `gorm:"type:varchar(64)" json:"marketplace,omitempty"`
	WalletAddress string              `gorm:"type:varchar(44);not null;index" json:"wallet_address"`
	Mint          string              `gorm:"type:varchar(44);index" json:"mint,omitempty"`
	Counterparty  string              `gorm:"type:varchar(44)" json:"counterparty,omitempty"`
	Price         decimal.NullDecimal `gorm:"type:decimal(20,9)" json:"price,omitempty"`
	Signature     string              `gorm:"type:varchar(88)" json:"signature,omitempty"`
	Status        TransactionStatus   `gorm:"type:varchar(16);not null" json:"status"`
	Error         string              `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// TableName specifies the table name for MarketplaceTransaction model
func (MarketplaceTransaction) TableName() string {
	return "marketplace_transactions"
}
