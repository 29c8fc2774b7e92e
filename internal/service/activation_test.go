package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Regions: []config.RegionConfig{
			{Code: "fi", Parent: "fi"},
			{Code: "fi2", Parent: "fi"},
			{Code: "nl", Parent: "nl"},
		},
		Tariffs: []config.Tariff{
			{Payload: "sub_1m", Days: 31, PriceRUB: 149, PriceStars: 149},
			{Payload: "sub_3m", Days: 93, PriceRUB: 349, PriceStars: 349},
		},
		Referral: referralConfig(),
	}
}

func newActivation(slots *fakeSlots, users *fakeUsers, panel *fakePanel, cfg *config.Config) *ActivationService {
	resv := NewReservationService(slots, panel, time.Minute, logger.Nop())
	inventory := NewInventoryService(slots, panel, cfg, logger.Nop())
	return NewActivationService(slots, users, resv, inventory, cfg, logger.Nop())
}

func TestFanOutGrantsOnePerParentRegion(t *testing.T) {
	slots := newFakeSlots(
		freeSlot("fi-1", "fi"),
		freeSlot("fi2-1", "fi2"),
		freeSlot("nl-1", "nl"),
	)
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, err := svc.FanOut(context.Background(), 100, 31)
	require.NoError(t, err)
	require.Len(t, result.Granted, 2)
	require.Equal(t, "fi", result.Granted[0].Region)
	require.Equal(t, "nl", result.Granted[1].Region)

	// the variant region does not participate
	require.Equal(t, model.OwnerFree, slots.find("fi2-1").OwnerKind)
}

func TestFanOutPartialFailure(t *testing.T) {
	slots := newFakeSlots(freeSlot("fi-1", "fi"))
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, err := svc.FanOut(context.Background(), 100, 31)
	require.NoError(t, err)
	require.Len(t, result.Granted, 1)
	require.Equal(t, []string{"nl"}, result.Failed)
}

func TestDeliverReusesExpiredAssignments(t *testing.T) {
	lapsed := time.Now().Unix() - 3600
	slots := newFakeSlots(
		ownedSlot("fi-1", "fi", 200, lapsed),
		ownedSlot("nl-1", "nl", 200, lapsed),
	)
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, err := svc.Deliver(context.Background(), 100, 31)
	require.NoError(t, err)
	require.Len(t, result.Granted, 2)
	require.Empty(t, result.Failed)
	require.True(t, slots.find("fi-1").OwnedBy(100))
	require.True(t, slots.find("nl-1").OwnedBy(100))
}

func TestDeliverExtendsExistingSlots(t *testing.T) {
	expiry := time.Now().Unix() + 5*86400
	slots := newFakeSlots(
		ownedSlot("fi-1", "fi", 100, expiry),
		freeSlot("nl-1", "nl"),
	)
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, err := svc.Deliver(context.Background(), 100, 31)
	require.NoError(t, err)
	require.Len(t, result.Extended, 1)
	require.Empty(t, result.Granted)
	require.Equal(t, expiry+31*86400, slots.find("fi-1").ExpiresAt)
	require.Equal(t, model.OwnerFree, slots.find("nl-1").OwnerKind)
}

func TestActivateTrial(t *testing.T) {
	slots := newFakeSlots(
		freeSlot("fi-1", "fi"),
		freeSlot("nl-1", "nl"),
	)
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, err := svc.ActivateTrial(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, result.Granted, 2)
	require.True(t, users.users[100].TrialUsed)
	require.InDelta(t, time.Now().Unix()+config.TrialDays*86400, slots.find("fi-1").ExpiresAt, 5)
}

func TestActivateTrialOnlyOnce(t *testing.T) {
	slots := newFakeSlots(freeSlot("fi-1", "fi"), freeSlot("nl-1", "nl"))
	users := newFakeUsers(&model.User{ID: 100, TrialUsed: true})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	_, err := svc.ActivateTrial(context.Background(), 100)
	require.ErrorIs(t, err, ErrTrialAlreadyUsed)
	require.Equal(t, model.OwnerFree, slots.find("fi-1").OwnerKind)
}

func TestActivateTrialNeedsEveryRegion(t *testing.T) {
	// nl has no free slot, so the trial is refused and stays available
	slots := newFakeSlots(freeSlot("fi-1", "fi"))
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	_, err := svc.ActivateTrial(context.Background(), 100)
	require.ErrorIs(t, err, ErrRegionsUnavailable)
	require.False(t, users.users[100].TrialUsed)
	require.Equal(t, model.OwnerFree, slots.find("fi-1").OwnerKind)
}

func TestActivateBalanceExtends(t *testing.T) {
	expiry := time.Now().Unix() + 86400
	slots := newFakeSlots(
		ownedSlot("fi-1", "fi", 100, expiry),
		freeSlot("fi-2", "fi"),
		freeSlot("nl-1", "nl"),
	)
	users := newFakeUsers(&model.User{ID: 100, BalanceDays: 12})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	result, days, err := svc.ActivateBalance(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 12, days)
	require.Len(t, result.Extended, 1)
	require.Equal(t, 0, users.users[100].BalanceDays)
	require.Equal(t, expiry+12*86400, slots.find("fi-1").ExpiresAt)
}

func TestActivateBalanceGateCoversExtensions(t *testing.T) {
	// nl has no free slot, so even an extension-only activation is refused
	expiry := time.Now().Unix() + 86400
	slots := newFakeSlots(
		ownedSlot("fi-1", "fi", 100, expiry),
		freeSlot("fi-2", "fi"),
	)
	users := newFakeUsers(&model.User{ID: 100, BalanceDays: 12})
	svc := newActivation(slots, users, newFakePanel(), testConfig())

	_, _, err := svc.ActivateBalance(context.Background(), 100)
	require.ErrorIs(t, err, ErrRegionsUnavailable)
	require.Equal(t, 12, users.users[100].BalanceDays)
	require.Equal(t, expiry, slots.find("fi-1").ExpiresAt)
}

func TestActivateBalanceEmpty(t *testing.T) {
	users := newFakeUsers(&model.User{ID: 100})
	svc := newActivation(newFakeSlots(), users, newFakePanel(), testConfig())

	_, _, err := svc.ActivateBalance(context.Background(), 100)
	require.ErrorIs(t, err, ErrEmptyBalance)
}

func TestActivateBalanceRefundsOnTotalFailure(t *testing.T) {
	slots := newFakeSlots(freeSlot("fi-1", "fi"), freeSlot("nl-1", "nl"))
	users := newFakeUsers(&model.User{ID: 100, BalanceDays: 12})
	panel := newFakePanel()
	panel.enableErr["fi"] = context.DeadlineExceeded
	panel.enableErr["nl"] = context.DeadlineExceeded
	svc := newActivation(slots, users, panel, testConfig())

	_, _, err := svc.ActivateBalance(context.Background(), 100)
	require.ErrorIs(t, err, ErrNothingDelivered)
	require.Equal(t, 12, users.users[100].BalanceDays)
}
