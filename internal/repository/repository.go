package repository

import (
	"context"
	"errors"
	"time"

	"model-marketplace/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetCollectionByKey retrieves a collection memo. A missing memo is (nil, nil).
func (r *Repository) GetCollectionByKey(ctx context.Context, storageKey string) (*models.UserCollection, error) {
	var collection models.UserCollection
	err := r.db.WithContext(ctx).Where("storage_key = ?", storageKey).First(&collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

// UpsertCollection stores the collection memo, replacing a stale one for the same key
func (r *Repository) UpsertCollection(ctx context.Context, collection *models.UserCollection) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"collection_mint",
			"name",
			"symbol",
			"metadata_uri",
			"signature",
			"updated_at",
		}),
	}).Create(collection).Error
}

// DeleteCollection removes the memo for storageKey
func (r *Repository) DeleteCollection(ctx context.Context, storageKey string) error {
	return r.db.WithContext(ctx).
		Where("storage_key = ?", storageKey).
		Delete(&models.UserCollection{}).Error
}

// CreateTransaction appends an entry to the transaction log
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.MarketplaceTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

// ListTransactions returns the newest log entries first. An empty wallet lists all.
func (r *Repository) ListTransactions(ctx context.Context, wallet string, limit int) ([]models.MarketplaceTransaction, error) {
	var txs []models.MarketplaceTransaction
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if wallet != "" {
		q = q.Where("wallet_address = ?", wallet)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// GetUserByWallet retrieves a user by wallet address. A missing user is (nil, nil).
func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by primary key
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// NicknameTaken reports whether a nickname is already in use
func (r *Repository) NicknameTaken(ctx context.Context, nickname string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("nickname = ?", nickname).Count(&count).Error
	return count > 0, err
}

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// TouchLogin records a successful login
func (r *Repository) TouchLogin(ctx context.Context, user *models.User, at time.Time) error {
	user.LastLoginAt = &at
	return r.db.WithContext(ctx).Model(user).Update("last_login_at", at).Error
}
