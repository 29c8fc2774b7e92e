package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
)

// InventoryService covers the operator's view of the slot pool: availability
// checks, expiry sweeps, reports, and provisioning.
type InventoryService struct {
	slots    SlotStore
	panel    Panel
	cfg      *config.Config
	log      *logger.Logger
	notifier Notifier
}

func NewInventoryService(slots SlotStore, panel Panel, cfg *config.Config, log *logger.Logger) *InventoryService {
	return &InventoryService{
		slots: slots,
		panel: panel,
		cfg:   cfg,
		log:   log,
	}
}

func (s *InventoryService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Available reports free slots in a region. Expired assignments are swept
// first so a freshly lapsed slot counts as free.
func (s *InventoryService) Available(ctx context.Context, region string) (int, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return 0, err
	}
	return s.slots.FreeSlotCount(ctx, region)
}

// AnyAvailable reports whether any region has a free slot.
func (s *InventoryService) AnyAvailable(ctx context.Context) (int, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return 0, err
	}
	counts, err := s.slots.FreeSlotCounts(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// AllRegionsAvailable is the fan-out gate: every participating region must
// have at least one free slot.
func (s *InventoryService) AllRegionsAvailable(ctx context.Context) (bool, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return false, err
	}
	counts, err := s.slots.FreeSlotCounts(ctx)
	if err != nil {
		return false, err
	}
	for _, region := range s.cfg.FanOutRegions() {
		if counts[region.Code] == 0 {
			return false, nil
		}
	}
	return true, nil
}

// SweepExpired frees lapsed assignments and reservations, then disables the
// freed uids on their panels. Panel failures are logged, not fatal: the slot
// is already free in the store and the panel client is disabled on next use.
func (s *InventoryService) SweepExpired(ctx context.Context) (int, error) {
	if _, err := s.slots.ReclaimLapsedReservations(ctx); err != nil {
		return 0, err
	}

	freed, err := s.slots.ResetExpiredSlots(ctx)
	if err != nil {
		return 0, err
	}

	for _, slot := range freed {
		if err := s.panel.DisableClient(ctx, slot.Region, slot.UID); err != nil {
			s.log.Errorw("failed to disable expired client", "uid", slot.UID, "region", slot.Region, "err", err)
		}
	}

	if len(freed) > 0 {
		s.log.Infow("expired slots swept", "count", len(freed))
	}
	return len(freed), nil
}

func (s *InventoryService) ActiveSlots(ctx context.Context, tgID int64) ([]model.Slot, error) {
	return s.slots.ActiveSlotsByOwner(ctx, tgID)
}

func (s *InventoryService) AllSlots(ctx context.Context) ([]model.Slot, error) {
	return s.slots.ListSlots(ctx)
}

// Report aggregates the pool per region for the operator surface.
func (s *InventoryService) Report(ctx context.Context) ([]model.RegionStats, error) {
	slots, err := s.slots.ListSlots(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	byRegion := make(map[string]*model.RegionStats)
	var order []string
	for _, slot := range slots {
		stats, ok := byRegion[slot.Region]
		if !ok {
			stats = &model.RegionStats{Region: slot.Region}
			byRegion[slot.Region] = stats
			order = append(order, slot.Region)
		}
		switch slot.Status(now) {
		case model.SlotStatusAssigned:
			stats.Assigned++
		case model.SlotStatusReserved:
			stats.Reserved++
		case model.SlotStatusExpired:
			stats.Expired++
		default:
			stats.Free++
		}
	}

	report := make([]model.RegionStats, 0, len(order))
	for _, region := range order {
		report = append(report, *byRegion[region])
	}
	return report, nil
}

// Provision registers freshly created panel clients as free slots.
func (s *InventoryService) Provision(ctx context.Context, region string, uids []string) (int, error) {
	if _, ok := s.cfg.Region(region); !ok {
		return 0, fmt.Errorf("unknown region: %s", region)
	}
	return s.slots.InsertSlots(ctx, region, uids)
}

// ProbeShortage warns the admins about regions that ran out of free slots.
func (s *InventoryService) ProbeShortage(ctx context.Context) {
	counts, err := s.slots.FreeSlotCounts(ctx)
	if err != nil {
		s.log.Errorw("shortage probe failed", "err", err)
		return
	}

	for _, region := range s.cfg.FanOutRegions() {
		if counts[region.Code] > 0 {
			continue
		}
		s.log.Warnw("region out of free slots", "region", region.Code)
		if s.notifier == nil {
			continue
		}
		for _, adminID := range s.cfg.Telegram.AdminIDs {
			text := fmt.Sprintf("⚠️ Закончились свободные конфиги в регионе %s", region.Code)
			if err := s.notifier.SendMessage(adminID, text); err != nil {
				s.log.Errorw("failed to notify admin", "admin_id", adminID, "err", err)
			}
		}
	}
}
