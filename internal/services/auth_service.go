package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"model-marketplace/internal/models"
	"model-marketplace/internal/repository"
	"model-marketplace/internal/utils"
)

const nicknameAttempts = 5

// AuthService handles authentication business logic
type AuthService struct {
	repo *repository.Repository
}

// NewAuthService creates a new AuthService
func NewAuthService(repo *repository.Repository) *AuthService {
	return &AuthService{repo: repo}
}

// ProcessWalletLogin finds or creates a user by wallet address
func (s *AuthService) ProcessWalletLogin(ctx context.Context, walletAddress string) (*models.User, error) {
	user, err := s.repo.GetUserByWallet(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now()
	if user != nil {
		if err := s.repo.TouchLogin(ctx, user, now); err != nil {
			zap.L().Warn("failed to record login", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		zap.L().Info("User logged in", zap.String("wallet", walletAddress), zap.Uint("user_id", user.ID))
		return user, nil
	}

	nickname, err := s.uniqueNickname(ctx)
	if err != nil {
		return nil, err
	}

	user = &models.User{
		WalletAddress: walletAddress,
		Nickname:      nickname,
		LastLoginAt:   &now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	zap.L().Info("New user created", zap.String("wallet", walletAddress), zap.Uint("user_id", user.ID))
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *AuthService) uniqueNickname(ctx context.Context) (string, error) {
	for i := 0; i < nicknameAttempts; i++ {
		nickname, err := utils.GenerateNickname()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.NicknameTaken(ctx, nickname)
		if err != nil {
			return "", fmt.Errorf("database error: %w", err)
		}
		if !taken {
			return nickname, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique nickname after %d attempts", nicknameAttempts)
}
