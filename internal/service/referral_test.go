package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
)

func referralConfig() config.ReferralConfig {
	return config.ReferralConfig{
		Cap:              7,
		PerReferralDays:  2,
		MilestoneDays:    15,
		PaidBonusDivisor: 10,
	}
}

func TestRegistrationReward(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 2},
		{6, 2},
		{7, 17}, // cap referral carries the milestone
		{8, 0},
		{100, 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, registrationReward(tc.n, 7, 2, 15), "n=%d", tc.n)
	}
}

func TestBootstrapCreditsReferrer(t *testing.T) {
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: "11111111111"},
		&model.User{ID: 2, ReferralCode: "22222222222"},
	)
	notifier := &fakeNotifier{}
	svc := NewReferralService(users, referralConfig(), logger.Nop())
	svc.SetNotifier(notifier)

	err := svc.Bootstrap(context.Background(), 2, "11111111111")
	require.NoError(t, err)

	referrer := users.users[1]
	require.Equal(t, 1, referrer.ReferralCount)
	require.Equal(t, 2, referrer.BalanceDays)

	referred := users.users[2]
	require.Equal(t, "11111111111", *referred.ReferredBy)

	require.Len(t, notifier.sent, 1)
	require.Equal(t, int64(1), notifier.sent[0].chatID)
}

func TestBootstrapMilestoneAtCap(t *testing.T) {
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: "11111111111", ReferralCount: 6},
		&model.User{ID: 2, ReferralCode: "22222222222"},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	require.NoError(t, svc.Bootstrap(context.Background(), 2, "11111111111"))
	require.Equal(t, 17, users.users[1].BalanceDays)
}

func TestBootstrapBeyondCapGivesNothing(t *testing.T) {
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: "11111111111", ReferralCount: 7},
		&model.User{ID: 2, ReferralCode: "22222222222"},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	require.NoError(t, svc.Bootstrap(context.Background(), 2, "11111111111"))
	require.Equal(t, 8, users.users[1].ReferralCount)
	require.Equal(t, 0, users.users[1].BalanceDays)
}

func TestBootstrapSelfReferral(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, ReferralCode: "11111111111"})
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	err := svc.Bootstrap(context.Background(), 1, "11111111111")
	require.ErrorIs(t, err, ErrSelfReferral)
	require.Equal(t, 0, users.users[1].ReferralCount)
}

func TestBootstrapOnlyOnce(t *testing.T) {
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: "11111111111"},
		&model.User{ID: 2, ReferralCode: "22222222222"},
		&model.User{ID: 3, ReferralCode: "33333333333"},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	require.NoError(t, svc.Bootstrap(context.Background(), 3, "11111111111"))
	err := svc.Bootstrap(context.Background(), 3, "22222222222")
	require.ErrorIs(t, err, ErrReferralAlreadyUsed)
	require.Equal(t, "11111111111", *users.users[3].ReferredBy)
}

func TestBootstrapUnknownCode(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 1, ReferralCode: "11111111111"})
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	err := svc.Bootstrap(context.Background(), 1, "99999999999")
	require.ErrorIs(t, err, ErrReferralNotFound)
}

func TestPaidBonus(t *testing.T) {
	code := "11111111111"
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: code},
		&model.User{ID: 2, ReferralCode: "22222222222", ReferredBy: &code},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	payer, _ := users.GetUser(context.Background(), 2)
	require.NoError(t, svc.PaidBonus(context.Background(), payer, 93))
	require.Equal(t, 9, users.users[1].BalanceDays)
}

func TestPaidBonusSkipsUnreferredPayer(t *testing.T) {
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: "11111111111"},
		&model.User{ID: 2, ReferralCode: "22222222222"},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	payer, _ := users.GetUser(context.Background(), 2)
	require.NoError(t, svc.PaidBonus(context.Background(), payer, 365))
	require.Equal(t, 0, users.users[1].BalanceDays)
}

func TestPaidBonusRoundsDown(t *testing.T) {
	code := "11111111111"
	users := newFakeUsers(
		&model.User{ID: 1, ReferralCode: code},
		&model.User{ID: 2, ReferralCode: "22222222222", ReferredBy: &code},
	)
	svc := NewReferralService(users, referralConfig(), logger.Nop())

	payer, _ := users.GetUser(context.Background(), 2)
	require.NoError(t, svc.PaidBonus(context.Background(), payer, 9))
	require.Equal(t, 0, users.users[1].BalanceDays)
}

func TestLink(t *testing.T) {
	svc := NewReferralService(newFakeUsers(), referralConfig(), logger.Nop())
	require.Equal(t, "https://t.me/my_vpn_bot?start=ref_12345678901", svc.Link("my_vpn_bot", "12345678901"))
}
