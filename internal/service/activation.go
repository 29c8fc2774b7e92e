package service

import (
	"context"
	"errors"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

var (
	ErrTrialAlreadyUsed   = errors.New("Пробный период уже использован")
	ErrRegionsUnavailable = errors.New("Нет свободных мест на серверах")
	ErrNothingDelivered   = errors.New("Не удалось выдать ни одного конфига")
	ErrEmptyBalance       = errors.New("На балансе нет бонусных дней")
)

type GrantedSlot struct {
	Region string
	UID    string
}

// DeliveryResult describes what a purchase or activation produced: either
// existing slots were extended, or a fan-out granted fresh ones per region.
type DeliveryResult struct {
	Extended []model.Slot
	Granted  []GrantedSlot
	Failed   []string // regions that failed during fan-out
}

// ActivationService turns paid days into slot state: extending what the user
// already has, or fanning out one slot per region when they have nothing.
type ActivationService struct {
	slots     SlotStore
	users     UserStore
	resv      *ReservationService
	inventory *InventoryService
	cfg       *config.Config
	log       *logger.Logger
}

func NewActivationService(
	slots SlotStore,
	users UserStore,
	resv *ReservationService,
	inventory *InventoryService,
	cfg *config.Config,
	log *logger.Logger,
) *ActivationService {
	return &ActivationService{
		slots:     slots,
		users:     users,
		resv:      resv,
		inventory: inventory,
		cfg:       cfg,
		log:       log,
	}
}

// Deliver applies purchased days to the user: extend active slots when there
// are any, otherwise fan out fresh ones.
func (s *ActivationService) Deliver(ctx context.Context, tgID int64, days int) (*DeliveryResult, error) {
	active, err := s.slots.ActiveSlotsByOwner(ctx, tgID)
	if err != nil {
		return nil, err
	}

	if len(active) > 0 {
		return s.extendAll(ctx, tgID, active, days)
	}
	return s.FanOut(ctx, tgID, days)
}

func (s *ActivationService) extendAll(ctx context.Context, tgID int64, active []model.Slot, days int) (*DeliveryResult, error) {
	result := &DeliveryResult{}
	for _, slot := range active {
		if _, err := s.resv.Extend(ctx, slot.UID, tgID, days); err != nil {
			s.log.Errorw("extend failed", "uid", slot.UID, "tg_id", tgID, "err", err)
			result.Failed = append(result.Failed, slot.Region)
			continue
		}
		result.Extended = append(result.Extended, slot)
	}
	if len(result.Extended) == 0 {
		return result, ErrNothingDelivered
	}
	return result, nil
}

// FanOut grants one slot per parent region, in configured order. Region
// variants share a parent and only the first configured one participates.
func (s *ActivationService) FanOut(ctx context.Context, tgID int64, days int) (*DeliveryResult, error) {
	result := &DeliveryResult{}
	for _, region := range s.cfg.FanOutRegions() {
		uid, err := s.resv.Grant(ctx, region.Code, tgID, days)
		if err != nil {
			s.log.Errorw("fan-out grant failed", "region", region.Code, "tg_id", tgID, "err", err)
			result.Failed = append(result.Failed, region.Code)
			continue
		}
		result.Granted = append(result.Granted, GrantedSlot{Region: region.Code, UID: uid})
	}
	if len(result.Granted) == 0 {
		return result, ErrNothingDelivered
	}
	return result, nil
}

// ActivateTrial grants the one-time trial across all regions. The used flag
// is set only after at least one region succeeded, so a total failure leaves
// the trial available.
func (s *ActivationService) ActivateTrial(ctx context.Context, tgID int64) (*DeliveryResult, error) {
	user, err := s.users.GetUser(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if user.TrialUsed {
		return nil, ErrTrialAlreadyUsed
	}

	ok, err := s.inventory.AllRegionsAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRegionsUnavailable
	}

	result, err := s.FanOut(ctx, tgID, config.TrialDays)
	if err != nil {
		return result, err
	}

	if err := s.users.SetTrialUsed(ctx, tgID); err != nil {
		s.log.Errorw("failed to mark trial used", "tg_id", tgID, "err", err)
	}
	return result, nil
}

// ActivateBalance converts accrued bonus days into subscription time. Every
// region must be serviceable before anything is touched. The balance is
// withdrawn up front and refunded if nothing could be delivered.
func (s *ActivationService) ActivateBalance(ctx context.Context, tgID int64) (*DeliveryResult, int, error) {
	user, err := s.users.GetUser(ctx, tgID)
	if err != nil {
		return nil, 0, err
	}
	if user.BalanceDays <= 0 {
		return nil, 0, ErrEmptyBalance
	}
	days := user.BalanceDays

	ok, err := s.inventory.AllRegionsAvailable(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrRegionsUnavailable
	}

	active, err := s.slots.ActiveSlotsByOwner(ctx, tgID)
	if err != nil {
		return nil, 0, err
	}

	if err := s.users.DeductBalanceDays(ctx, tgID, days); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, 0, ErrEmptyBalance
		}
		return nil, 0, err
	}

	var result *DeliveryResult
	if len(active) > 0 {
		result, err = s.extendAll(ctx, tgID, active, days)
	} else {
		result, err = s.FanOut(ctx, tgID, days)
	}
	if err != nil {
		if refundErr := s.users.AddBalanceDays(ctx, tgID, days); refundErr != nil {
			s.log.Errorw("failed to refund balance days", "tg_id", tgID, "days", days, "err", refundErr)
		}
		return result, 0, err
	}
	return result, days, nil
}
