package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"

	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/service"
)

func (b *Bot) sendRegionScreen(c tele.Context) error {
	text := `🌍 <b>Доступные локации</b>

Оплаченный доступ выдаётся сразу во всех доступных регионах.`

	keyboard := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, region := range b.cfg.FanOutRegions() {
		rows = append(rows, keyboard.Row(
			keyboard.Data("🌍 "+strings.ToUpper(region.Parent), "region_"+region.Code),
		))
	}
	rows = append(rows, keyboard.Row(keyboard.Data("⬅️ Назад", "menu")))
	keyboard.Inline(rows...)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) sendTariffScreen(c tele.Context) error {
	keyboard := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, t := range b.cfg.Tariffs {
		label := fmt.Sprintf("%d дн. — %d ₽ / %d ⭐", t.Days, t.PriceRUB, t.PriceStars)
		rows = append(rows, keyboard.Row(keyboard.Data(label, "tariff_"+t.Payload)))
	}
	rows = append(rows, keyboard.Row(keyboard.Data("⬅️ Назад", "buy")))
	keyboard.Inline(rows...)

	return c.Send("Выберите тариф:", keyboard, tele.ModeHTML)
}

func (b *Bot) sendPaymentMethodScreen(c tele.Context, payload string) error {
	tariff, ok := b.cfg.Tariff(payload)
	if !ok {
		return c.Send("⚠️ Неизвестный тариф.")
	}

	text := fmt.Sprintf("Выбран тариф: %d дн. Выберите способ оплаты:", tariff.Days)

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data(fmt.Sprintf("💳 Картой — %d ₽", tariff.PriceRUB), "paycard_"+payload),
		),
		keyboard.Row(
			keyboard.Data(fmt.Sprintf("⭐ Звёздами — %d", tariff.PriceStars), "paystars_"+payload),
		),
		keyboard.Row(
			keyboard.Data("⬅️ Назад", "tariffs_back"),
			keyboard.Data("🏠 Меню", "menu"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleCardPurchase(c tele.Context, payload string) error {
	ctx := context.Background()
	user := c.Sender()

	inv, confirmURL, err := b.paymentSvc.CreateCardInvoice(ctx, user.ID, payload)
	if err != nil {
		if errors.Is(err, service.ErrEmailRequired) {
			b.states.set(user.ID, "email:"+payload)
			return c.Send("📧 Для чека нужна почта. Отправьте адрес сообщением:")
		}
		if errors.Is(err, service.ErrUnknownTariff) {
			return c.Send("⚠️ Неизвестный тариф.")
		}
		b.log.Errorw("card invoice failed", "tg_id", user.ID, "err", err)
		return c.Send("⚠️ Не удалось создать счёт. Попробуйте позже.")
	}

	text := fmt.Sprintf(`💳 <b>Счёт на оплату</b>

Тариф: %d дн.
Сумма: %d ₽

Счёт действует 4 минуты.`, inv.Days, inv.Amount)

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.URL("💳 Оплатить", confirmURL),
		),
		keyboard.Row(
			keyboard.Data("🔄 Проверить оплату", "checkcard_"+inv.ID.String()),
			keyboard.Data("❌ Отменить", "cancelinv_"+inv.ID.String()),
		),
	)

	msg, err := b.bot.Send(c.Recipient(), text, keyboard, tele.ModeHTML)
	if err != nil {
		return err
	}
	if err := b.paymentSvc.SetInvoiceMessage(ctx, inv.ID, msg.ID); err != nil {
		b.log.Errorw("failed to bind invoice message", "invoice", inv.ID, "err", err)
	}
	return nil
}

func (b *Bot) handleEmailInput(c tele.Context, payload string) error {
	ctx := context.Background()
	user := c.Sender()
	email := strings.TrimSpace(c.Text())

	if err := b.userService.SetEmail(ctx, user.ID, email); err != nil {
		if errors.Is(err, service.ErrInvalidEmail) {
			return c.Send("❌ Похоже, это не почта. Отправьте адрес ещё раз:")
		}
		return err
	}

	b.states.clear(user.ID)
	_ = c.Send("✅ Почта сохранена.")
	return b.handleCardPurchase(c, payload)
}

func (b *Bot) handleStarsPurchase(c tele.Context, payload string) error {
	ctx := context.Background()
	user := c.Sender()

	inv, err := b.paymentSvc.CreateStarsInvoice(ctx, user.ID, payload)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTariff) {
			return c.Send("⚠️ Неизвестный тариф.")
		}
		b.log.Errorw("stars invoice failed", "tg_id", user.ID, "err", err)
		return c.Send("⚠️ Не удалось создать счёт. Попробуйте позже.")
	}

	title := fmt.Sprintf("Доступ к VPN на %d дн.", inv.Days)
	link, err := b.CreateStarsInvoice(title, title, int(inv.Amount), inv.ID.String())
	if err != nil {
		b.log.Errorw("stars invoice link failed", "invoice", inv.ID, "err", err)
		return c.Send("⚠️ Не удалось создать счёт. Попробуйте позже.")
	}

	text := fmt.Sprintf(`⭐ <b>Счёт на оплату</b>

Тариф: %d дн.
Сумма: %d ⭐

Счёт действует 4 минуты.`, inv.Days, inv.Amount)

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.URL("⭐ Оплатить", link),
		),
		keyboard.Row(
			keyboard.Data("❌ Отменить", "cancelinv_"+inv.ID.String()),
		),
	)

	msg, err := b.bot.Send(c.Recipient(), text, keyboard, tele.ModeHTML)
	if err != nil {
		return err
	}
	if err := b.paymentSvc.SetInvoiceMessage(ctx, inv.ID, msg.ID); err != nil {
		b.log.Errorw("failed to bind invoice message", "invoice", inv.ID, "err", err)
	}
	return nil
}

func (b *Bot) handleCheckCard(c tele.Context, rawID string) error {
	ctx := context.Background()

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	inv, err := b.paymentSvc.Invoice(ctx, id)
	if err != nil || inv.UserID != c.Sender().ID {
		return nil
	}

	if err := b.paymentSvc.ConfirmCard(ctx, inv); err != nil {
		if errors.Is(err, service.ErrPaymentPending) {
			return c.Respond(&tele.CallbackResponse{Text: "Платёж ещё не поступил. Попробуйте чуть позже."})
		}
		b.log.Errorw("manual card check failed", "invoice", id, "err", err)
		return c.Respond(&tele.CallbackResponse{Text: "Не удалось проверить платёж."})
	}
	return nil
}

func (b *Bot) handleCancelInvoice(c tele.Context, rawID string) error {
	ctx := context.Background()

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}

	if err := b.paymentSvc.CancelInvoice(ctx, id, c.Sender().ID); err != nil {
		if errors.Is(err, service.ErrInvoiceInactive) {
			return c.Respond(&tele.CallbackResponse{Text: "Счёт уже обработан."})
		}
		return nil
	}

	return c.Edit("❌ Счёт отменён.")
}

// handlePreCheckout approves the platform checkout only while the invoice is
// still pending; an expired or replaced invoice is declined.
func (b *Bot) handlePreCheckout(c tele.Context) error {
	query := c.PreCheckoutQuery()
	if query == nil {
		return nil
	}

	id, err := uuid.Parse(query.Payload)
	if err != nil {
		return c.Accept("Счёт не найден")
	}

	inv, err := b.paymentSvc.Invoice(context.Background(), id)
	if err != nil || inv.Status != model.InvoiceStatusPending {
		return c.Accept("Счёт истёк, создайте новый")
	}
	return c.Accept()
}

func (b *Bot) handleSuccessfulPayment(c tele.Context) error {
	payment := c.Message().Payment
	if payment == nil {
		return nil
	}

	id, err := uuid.Parse(payment.Payload)
	if err != nil {
		b.log.Errorw("invalid payment payload", "payload", payment.Payload)
		return nil
	}

	if err := b.paymentSvc.ActivateStars(context.Background(), id, payment.TelegramChargeID); err != nil {
		b.log.Errorw("stars activation failed", "invoice", id, "err", err)
		return c.Send("⚠️ Ошибка при обработке платежа. Напишите в поддержку: " + b.cfg.Telegram.SupportContact)
	}
	return nil
}

// CreateStarsInvoice creates a platform invoice link in the credits currency.
func (b *Bot) CreateStarsInvoice(title, description string, amount int, payload string) (string, error) {
	invoice := tele.Invoice{
		Title:       title,
		Description: description,
		Payload:     payload,
		Currency:    "XTR",
		Prices: []tele.Price{
			{Label: title, Amount: amount},
		},
	}

	link, err := b.bot.CreateInvoiceLink(invoice)
	if err != nil {
		return "", fmt.Errorf("failed to create invoice: %w", err)
	}
	return link, nil
}
