package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

func (b *Bot) handleAdmin(c tele.Context) error {
	if !b.cfg.IsAdmin(c.Sender().ID) {
		return nil
	}
	return b.sendAdminMenu(c)
}

func (b *Bot) sendAdminMenu(c tele.Context) error {
	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("📊 Отчёт по регионам", "admin_report"),
		),
		keyboard.Row(
			keyboard.Data("💰 Платежи", "admin_payments"),
		),
		keyboard.Row(
			keyboard.Data("📣 Рассылка", "admin_broadcast"),
			keyboard.Data("🔍 Пользователь", "admin_lookup"),
		),
	)
	return c.Send("🛠 <b>Панель администратора</b>", keyboard, tele.ModeHTML)
}

func (b *Bot) handleAdminCallback(c tele.Context, data string) error {
	if !b.cfg.IsAdmin(c.Sender().ID) {
		return nil
	}

	switch data {
	case "admin_report":
		return b.handleAdminReport(c)
	case "admin_payments":
		return b.handleAdminPayments(c)
	case "admin_broadcast":
		b.states.set(c.Sender().ID, "broadcast")
		return c.Send("📣 Отправьте текст рассылки одним сообщением:")
	case "admin_lookup":
		b.states.set(c.Sender().ID, "lookup")
		return c.Send("🔍 Отправьте ID пользователя:")
	}
	return nil
}

func (b *Bot) handleAdminReport(c tele.Context) error {
	ctx := context.Background()

	stats, err := b.inventory.Report(ctx)
	if err != nil {
		return err
	}
	total, err := b.userService.CountUsers(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Состояние регионов</b>\n")
	for _, s := range stats {
		sb.WriteString(fmt.Sprintf("\n🌍 <b>%s</b>: свободно %d, занято %d, в резерве %d, истекло %d",
			strings.ToUpper(s.Region), s.Free, s.Assigned, s.Reserved, s.Expired))
	}
	sb.WriteString(fmt.Sprintf("\n\n👥 Пользователей: %d", total))

	return c.Send(sb.String(), tele.ModeHTML)
}

func (b *Bot) handleAdminPayments(c tele.Context) error {
	totals, err := b.paymentSvc.Totals(context.Background())
	if err != nil {
		return err
	}

	text := fmt.Sprintf(`💰 <b>Платежи</b>

💳 Картой: %d ₽ (%d платежей)
⭐ Звёздами: %d ⭐ (%d платежей)`,
		totals.TotalCard, totals.CountCard,
		totals.TotalCredits, totals.CountCredits,
	)

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleBroadcastInput(c tele.Context) error {
	if !b.cfg.IsAdmin(c.Sender().ID) {
		return nil
	}
	b.states.clear(c.Sender().ID)

	text := c.Text()
	ids, err := b.userService.AllIDs(context.Background())
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, id := range ids {
		if err := b.SendMessage(id, text); err != nil {
			failed++
			continue
		}
		sent++
		// stay under the API flood limit
		time.Sleep(50 * time.Millisecond)
	}

	return c.Send(fmt.Sprintf("📣 Рассылка завершена: доставлено %d, ошибок %d, всего %d.", sent, failed, len(ids)))
}

func (b *Bot) handleLookupInput(c tele.Context) error {
	if !b.cfg.IsAdmin(c.Sender().ID) {
		return nil
	}
	b.states.clear(c.Sender().ID)

	ctx := context.Background()
	tgID, err := strconv.ParseInt(strings.TrimSpace(c.Text()), 10, 64)
	if err != nil {
		return c.Send("❌ Некорректный ID.")
	}

	user, err := b.userService.GetUser(ctx, tgID)
	if err != nil {
		return c.Send("❌ Пользователь не найден.")
	}

	slots, err := b.inventory.ActiveSlots(ctx, tgID)
	if err != nil {
		return err
	}

	username := "—"
	if user.Username != nil && *user.Username != "" {
		username = "@" + *user.Username
	}
	email := "—"
	if user.HasEmail() {
		email = *user.Email
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`🔍 <b>Пользователь %d</b>

👤 %s
📧 %s
💳 Оплат: %d
🤝 Приглашено: %d
💰 Бонусных дней: %d
🎁 Триал использован: %t
🔑 Активных конфигов: %d`,
		user.ID, username, email, user.PaidCount,
		user.ReferralCount, user.BalanceDays, user.TrialUsed,
		len(slots),
	))
	for _, slot := range slots {
		sb.WriteString(fmt.Sprintf("\n• %s <code>%s</code> до %s",
			strings.ToUpper(slot.Region), slot.UID,
			time.Unix(slot.ExpiresAt, 0).Format("02.01.2006"),
		))
	}

	return c.Send(sb.String(), tele.ModeHTML)
}
