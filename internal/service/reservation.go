package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

var ErrNoFreeSlots = repository.ErrNoFreeSlots

// ReservationService hands out slots with a short exclusive hold: reserve in
// the store, enable on the panel, then finalize. The hold keeps the slot from
// being granted twice while the panel call is in flight.
type ReservationService struct {
	slots SlotStore
	panel Panel
	ttl   time.Duration
	log   *logger.Logger
}

func NewReservationService(slots SlotStore, panel Panel, ttl time.Duration, log *logger.Logger) *ReservationService {
	return &ReservationService{
		slots: slots,
		panel: panel,
		ttl:   ttl,
		log:   log,
	}
}

// Grant assigns one free slot in the region to the user for the given number
// of days and returns its uid.
func (s *ReservationService) Grant(ctx context.Context, region string, tgID int64, days int) (string, error) {
	resvID := uuid.New().String()
	until := time.Now().Add(s.ttl).Unix()

	uid, err := s.slots.ReserveOneFree(ctx, region, resvID, until)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Unix() + int64(days)*86400

	if err := s.panel.EnableClient(ctx, region, uid, expiresAt*1000); err != nil {
		if cancelErr := s.slots.CancelReservation(ctx, uid, resvID); cancelErr != nil {
			s.log.Errorw("failed to cancel reservation after panel error",
				"uid", uid, "region", region, "err", cancelErr)
		}
		return "", fmt.Errorf("enable client on %s: %w", region, err)
	}

	if err := s.slots.FinalizeReservation(ctx, uid, resvID, tgID, expiresAt); err != nil {
		if errors.Is(err, repository.ErrReservationLost) {
			// hold lapsed while the panel call ran; roll the panel back
			if disErr := s.panel.DisableClient(ctx, region, uid); disErr != nil {
				s.log.Errorw("failed to disable client after lost reservation",
					"uid", uid, "region", region, "err", disErr)
			}
		}
		return "", fmt.Errorf("finalize reservation %s: %w", uid, err)
	}

	s.log.Infow("slot granted", "uid", uid, "region", region, "tg_id", tgID, "days", days)
	return uid, nil
}

// Extend pushes the slot's expiry forward. The base is the later of the
// current expiry and now, so a lapsed slot starts counting from today.
// The store is authoritative: a panel failure is logged but not reverted.
func (s *ReservationService) Extend(ctx context.Context, uid string, tgID int64, days int) (int64, error) {
	slot, err := s.slots.SlotByUID(ctx, uid)
	if err != nil {
		return 0, err
	}
	if !slot.OwnedBy(tgID) {
		return 0, repository.ErrSlotNotOwned
	}

	base := slot.ExpiresAt
	if now := time.Now().Unix(); base < now {
		base = now
	}
	newExpiry := base + int64(days)*86400

	if err := s.slots.SetSlotExpiry(ctx, uid, tgID, newExpiry); err != nil {
		return 0, err
	}

	if err := s.panel.UpdateClientExpiry(ctx, slot.Region, uid, newExpiry*1000); err != nil {
		s.log.Errorw("failed to push new expiry to panel",
			"uid", uid, "region", slot.Region, "err", err)
	}

	s.log.Infow("slot extended", "uid", uid, "tg_id", tgID, "days", days, "expires_at", newExpiry)
	return newExpiry, nil
}
