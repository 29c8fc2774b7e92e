package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
	"github.com/VoolFI71/zzz-sub000/internal/yookassa"
)

var (
	ErrUnknownTariff   = errors.New("Неизвестный тариф")
	ErrEmailRequired   = errors.New("Для оплаты картой нужна почта")
	ErrInvoiceInactive = errors.New("Счёт уже обработан или истёк")
	ErrPaymentPending  = errors.New("Платёж ещё не завершён")
)

// PaymentService runs both payment channels. Activation is keyed on the
// invoice id with a compare-and-set, so a duplicated confirmation from either
// channel applies exactly once.
type PaymentService struct {
	invoices   InvoiceStore
	users      UserStore
	totals     TotalsStore
	activation *ActivationService
	referral   *ReferralService
	yk         *yookassa.Client
	cfg        *config.Config
	log        *logger.Logger
	notifier   Notifier
}

func NewPaymentService(
	invoices InvoiceStore,
	users UserStore,
	totals TotalsStore,
	activation *ActivationService,
	referral *ReferralService,
	yk *yookassa.Client,
	cfg *config.Config,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		invoices:   invoices,
		users:      users,
		totals:     totals,
		activation: activation,
		referral:   referral,
		yk:         yk,
		cfg:        cfg,
		log:        log,
	}
}

// SetNotifier sets the notifier for payment messages (implemented by telegram.Bot).
func (s *PaymentService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// CreateCardInvoice opens a card payment for the tariff and returns the
// invoice together with the provider confirmation URL.
func (s *PaymentService) CreateCardInvoice(ctx context.Context, tgID int64, payload string) (*model.Invoice, string, error) {
	tariff, ok := s.cfg.Tariff(payload)
	if !ok {
		return nil, "", ErrUnknownTariff
	}

	user, err := s.users.GetUser(ctx, tgID)
	if err != nil {
		return nil, "", err
	}
	if !user.HasEmail() {
		return nil, "", ErrEmailRequired
	}

	if err := s.cancelPending(ctx, tgID, model.ChannelCard); err != nil {
		return nil, "", err
	}

	description := fmt.Sprintf("Доступ к VPN на %d дн.", tariff.Days)
	payment, err := s.yk.Create(ctx, tariff.PriceRUB, description, s.cfg.YooKassa.ReturnURL, *user.Email, map[string]string{
		"tg_id":   fmt.Sprintf("%d", tgID),
		"payload": payload,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create provider payment: %w", err)
	}

	inv := &model.Invoice{
		ID:         uuid.New(),
		ExternalID: &payment.ID,
		UserID:     tgID,
		Channel:    model.ChannelCard,
		Amount:     int64(tariff.PriceRUB),
		Days:       tariff.Days,
		Status:     model.InvoiceStatusPending,
		ExpiresAt:  time.Now().Add(s.cfg.InvoiceTTL()).Unix(),
	}
	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, "", err
	}

	confirmationURL := ""
	if payment.Confirmation != nil {
		confirmationURL = payment.Confirmation.ConfirmationURL
	}

	s.startWatchdog(inv.ID)
	return inv, confirmationURL, nil
}

// CreateStarsInvoice opens a credits payment. The invoice id doubles as the
// platform invoice payload.
func (s *PaymentService) CreateStarsInvoice(ctx context.Context, tgID int64, payload string) (*model.Invoice, error) {
	tariff, ok := s.cfg.Tariff(payload)
	if !ok {
		return nil, ErrUnknownTariff
	}

	if err := s.cancelPending(ctx, tgID, model.ChannelStars); err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		ID:        uuid.New(),
		UserID:    tgID,
		Channel:   model.ChannelStars,
		Amount:    int64(tariff.PriceStars),
		Days:      tariff.Days,
		Status:    model.InvoiceStatusPending,
		ExpiresAt: time.Now().Add(s.cfg.InvoiceTTL()).Unix(),
	}
	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	s.startWatchdog(inv.ID)
	return inv, nil
}

// cancelPending closes the user's previous open invoice on the channel, so at
// most one is pending per user per channel.
func (s *PaymentService) cancelPending(ctx context.Context, tgID int64, channel model.PaymentChannel) error {
	prev, err := s.invoices.PendingInvoice(ctx, tgID, channel)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return nil
		}
		return err
	}

	if err := s.invoices.MarkInvoice(ctx, prev.ID, model.InvoiceStatusPending, model.InvoiceStatusCanceled); err != nil {
		if errors.Is(err, repository.ErrInvoiceNotPending) {
			return nil
		}
		return err
	}
	s.editInvoiceMessage(prev, "❌ Счёт отменён: создан новый.")
	return nil
}

func (s *PaymentService) SetInvoiceMessage(ctx context.Context, id uuid.UUID, messageID int) error {
	return s.invoices.SetInvoiceMessageID(ctx, id, messageID)
}

func (s *PaymentService) Invoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	return s.invoices.InvoiceByID(ctx, id)
}

// CancelInvoice handles the user's cancel button.
func (s *PaymentService) CancelInvoice(ctx context.Context, id uuid.UUID, tgID int64) error {
	inv, err := s.invoices.InvoiceByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.UserID != tgID {
		return repository.ErrInvoiceNotFound
	}
	if err := s.invoices.MarkInvoice(ctx, id, model.InvoiceStatusPending, model.InvoiceStatusCanceled); err != nil {
		if errors.Is(err, repository.ErrInvoiceNotPending) {
			return ErrInvoiceInactive
		}
		return err
	}
	return nil
}

// ConfirmCard polls the provider for one invoice and settles it.
func (s *PaymentService) ConfirmCard(ctx context.Context, inv *model.Invoice) error {
	if inv.ExternalID == nil {
		return fmt.Errorf("card invoice %s has no provider id", inv.ID)
	}

	payment, err := s.yk.Find(ctx, *inv.ExternalID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case yookassa.StatusSucceeded:
		return s.Activate(ctx, inv.ID)
	case yookassa.StatusCanceled:
		if err := s.invoices.MarkInvoice(ctx, inv.ID, model.InvoiceStatusPending, model.InvoiceStatusCanceled); err != nil {
			if errors.Is(err, repository.ErrInvoiceNotPending) {
				return nil
			}
			return err
		}
		s.editInvoiceMessage(inv, "❌ Платёж отклонён провайдером.")
		return nil
	default:
		return ErrPaymentPending
	}
}

// CheckPendingCard is the scheduled poll over all open card invoices.
func (s *PaymentService) CheckPendingCard(ctx context.Context) {
	pending, err := s.invoices.PendingCardInvoices(ctx)
	if err != nil {
		s.log.Errorw("failed to list pending card invoices", "err", err)
		return
	}

	now := time.Now()
	for i := range pending {
		inv := &pending[i]
		if inv.Expired(now) {
			s.expire(ctx, inv.ID)
			continue
		}
		if err := s.ConfirmCard(ctx, inv); err != nil && !errors.Is(err, ErrPaymentPending) {
			s.log.Errorw("card poll failed", "invoice", inv.ID, "err", err)
		}
	}
}

// ActivateStars settles a credits payment arriving from the platform. The
// charge id is kept for refunds.
func (s *PaymentService) ActivateStars(ctx context.Context, id uuid.UUID, chargeID string) error {
	if chargeID != "" {
		if err := s.invoices.SetInvoiceExternalID(ctx, id, chargeID); err != nil {
			s.log.Errorw("failed to save charge id", "invoice", id, "err", err)
		}
	}
	return s.Activate(ctx, id)
}

// Activate settles an invoice exactly once: the pending->succeeded flip is a
// compare-and-set, and everything after it runs only for the winner.
func (s *PaymentService) Activate(ctx context.Context, id uuid.UUID) error {
	if err := s.invoices.MarkInvoice(ctx, id, model.InvoiceStatusPending, model.InvoiceStatusSucceeded); err != nil {
		if errors.Is(err, repository.ErrInvoiceNotPending) {
			return nil
		}
		return err
	}

	inv, err := s.invoices.InvoiceByID(ctx, id)
	if err != nil {
		return err
	}

	result, err := s.activation.Deliver(ctx, inv.UserID, inv.Days)
	if err != nil {
		s.log.Errorw("paid delivery failed", "invoice", inv.ID, "tg_id", inv.UserID, "err", err)
		s.notify(inv.UserID, "⚠️ Оплата получена, но выдача конфига не удалась. Напишите в поддержку: "+s.cfg.Telegram.SupportContact)
		return fmt.Errorf("deliver invoice %s: %w", inv.ID, err)
	}

	if err := s.totals.RecordPayment(ctx, inv.Channel, inv.Amount); err != nil {
		s.log.Errorw("failed to record payment totals", "invoice", inv.ID, "err", err)
	}
	if err := s.users.RecordUserPayment(ctx, inv.UserID, time.Now().Unix()); err != nil {
		s.log.Errorw("failed to record user payment", "invoice", inv.ID, "err", err)
	}

	payer, err := s.users.GetUser(ctx, inv.UserID)
	if err == nil {
		if err := s.referral.PaidBonus(ctx, payer, inv.Days); err != nil {
			s.log.Errorw("failed to credit paid referral bonus", "invoice", inv.ID, "err", err)
		}
	}

	s.log.Infow("invoice settled", "invoice", inv.ID, "channel", inv.Channel, "tg_id", inv.UserID,
		"days", inv.Days, "granted", len(result.Granted), "extended", len(result.Extended))

	text := fmt.Sprintf("✅ Оплата прошла успешно! Подписка продлена на %d дн.", inv.Days)
	if len(result.Failed) > 0 {
		failed := strings.Join(result.Failed, ", ")
		text += fmt.Sprintf("\n⚠️ Не удалось выдать конфиг в регионах: %s. Поддержка: %s", failed, s.cfg.Telegram.SupportContact)
		for _, adminID := range s.cfg.Telegram.AdminIDs {
			s.notify(adminID, fmt.Sprintf("⚠️ Частичная выдача по счёту %s: регионы %s", inv.ID, failed))
		}
	}
	s.notify(inv.UserID, text)
	return nil
}

// expire closes a timed-out invoice and takes its chat message down.
func (s *PaymentService) expire(ctx context.Context, id uuid.UUID) {
	if err := s.invoices.MarkInvoice(ctx, id, model.InvoiceStatusPending, model.InvoiceStatusExpired); err != nil {
		return
	}
	inv, err := s.invoices.InvoiceByID(ctx, id)
	if err != nil {
		return
	}
	s.deleteInvoiceMessage(inv)
	s.log.Infow("invoice expired", "invoice", id)
}

// startWatchdog expires the invoice after its TTL. The CAS in expire makes a
// late fire harmless when the invoice already settled.
func (s *PaymentService) startWatchdog(id uuid.UUID) {
	time.AfterFunc(s.cfg.InvoiceTTL(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.expire(ctx, id)
	})
}

func (s *PaymentService) Totals(ctx context.Context) (*model.PaymentTotals, error) {
	return s.totals.PaymentTotals(ctx)
}

func (s *PaymentService) notify(tgID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(tgID, text); err != nil {
		s.log.Errorw("failed to notify user", "tg_id", tgID, "err", err)
	}
}

func (s *PaymentService) editInvoiceMessage(inv *model.Invoice, text string) {
	if s.notifier == nil || inv.MessageID == 0 {
		return
	}
	if err := s.notifier.EditMessage(inv.UserID, inv.MessageID, text); err != nil {
		s.log.Errorw("failed to edit invoice message", "invoice", inv.ID, "err", err)
	}
}

func (s *PaymentService) deleteInvoiceMessage(inv *model.Invoice) {
	if s.notifier == nil || inv.MessageID == 0 {
		return
	}
	if err := s.notifier.DeleteMessage(inv.UserID, inv.MessageID); err != nil {
		s.log.Errorw("failed to delete invoice message", "invoice", inv.ID, "err", err)
	}
}
