package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWalletLogin(t *testing.T) {
	svc := NewAuthService(newTestRepo(t))
	ctx := context.Background()
	wallet := "8ZChEWwMbqD1oP8XhbNpZTr1o9ah7nWFNQnh8bqVtqTm"

	user, err := svc.ProcessWalletLogin(ctx, wallet)
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z][a-z]+_[A-Z][a-z]+_\d{4}$`), user.Nickname)
	require.NotNil(t, user.LastLoginAt)

	again, err := svc.ProcessWalletLogin(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, user.Nickname, again.Nickname)

	loaded, err := svc.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet, loaded.WalletAddress)
}

func TestProcessWalletLoginDistinctWallets(t *testing.T) {
	svc := NewAuthService(newTestRepo(t))
	ctx := context.Background()

	a, err := svc.ProcessWalletLogin(ctx, "walletA")
	require.NoError(t, err)
	b, err := svc.ProcessWalletLogin(ctx, "walletB")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
