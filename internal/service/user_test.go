package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
)

func TestGetOrCreateUserRegisters(t *testing.T) {
	users := newFakeUsers()
	svc := NewUserService(users, logger.Nop())

	name := "alice"
	user, isNew, err := svc.GetOrCreateUser(context.Background(), TelegramUser{ID: 100, Username: &name})
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, int64(100), user.ID)
	require.Len(t, user.ReferralCode, 11)

	again, isNew, err := svc.GetOrCreateUser(context.Background(), TelegramUser{ID: 100, Username: &name})
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, user.ReferralCode, again.ReferralCode)
}

func TestGenerateReferralCodeRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := generateReferralCode()
		require.Len(t, code, 11)
		require.Equal(t, byte('1'), code[0])
	}
}

func TestSetEmailValidation(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 100})
	svc := NewUserService(users, logger.Nop())

	require.ErrorIs(t, svc.SetEmail(context.Background(), 100, "not-an-email"), ErrInvalidEmail)
	require.ErrorIs(t, svc.SetEmail(context.Background(), 100, "a b@mail.com"), ErrInvalidEmail)
	require.NoError(t, svc.SetEmail(context.Background(), 100, "user@example.com"))
	require.Equal(t, "user@example.com", *users.users[100].Email)
}

func TestSubscriptionKeyIsStable(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 100})
	svc := NewUserService(users, logger.Nop())

	key, err := svc.SubscriptionKey(context.Background(), 100)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	same, err := svc.SubscriptionKey(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, key, same)

	owner, err := svc.ResolveSubKey(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, int64(100), owner)
}
