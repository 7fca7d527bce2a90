package models

import (
	"time"
)

const collectionKeyPrefix = "collection_"

// CollectionStorageKey is the memo key for a wallet's collection
func CollectionStorageKey(wallet string) string {
	return collectionKeyPrefix + wallet
}

// UserCollection memoizes the one collection mint created for a wallet
type UserCollection struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	StorageKey     string    `gorm:"uniqueIndex;not null" json:"storage_key"`
	WalletAddress  string    `gorm:"index;not null" json:"wallet_address"`
	CollectionMint string    `gorm:"not null" json:"collection_mint"`
	Name           string    `json:"name"`
	Symbol         string    `json:"symbol"`
	MetadataURI    string    `json:"metadata_uri"`
	Signature      string    `json:"signature,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserCollection model
func (UserCollection) TableName() string {
	return "user_collections"
}
