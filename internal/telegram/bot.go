package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/service"
)

type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	userService *service.UserService
	activation  *service.ActivationService
	inventory   *service.InventoryService
	referralSvc *service.ReferralService
	paymentSvc  *service.PaymentService
	log         *logger.Logger
	limiter     *RateLimiter
	states      *stateStore
}

func NewBot(
	cfg *config.Config,
	userService *service.UserService,
	activation *service.ActivationService,
	inventory *service.InventoryService,
	referralSvc *service.ReferralService,
	log *logger.Logger,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:         bot,
		cfg:         cfg,
		userService: userService,
		activation:  activation,
		inventory:   inventory,
		referralSvc: referralSvc,
		log:         log,
		limiter:     NewRateLimiter(config.ClickCoalesceTTL),
		states:      newStateStore(),
	}

	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/admin", b.handleAdmin)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnCheckout, b.handlePreCheckout)
	b.bot.Handle(tele.OnPayment, b.handleSuccessfulPayment)
}

func (b *Bot) SetPaymentService(svc *service.PaymentService) {
	b.paymentSvc = svc
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

// SendMessage implements service.Notifier.
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}

// EditMessage implements service.Notifier.
func (b *Bot) EditMessage(chatID int64, messageID int, text string) error {
	msg := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
	_, err := b.bot.Edit(msg, text, tele.ModeHTML)
	return err
}

// DeleteMessage implements service.Notifier.
func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	return b.bot.Delete(&tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	})
}

func (b *Bot) handleStart(c tele.Context) error {
	user := c.Sender()

	username := user.Username
	firstName := user.FirstName
	_, isNew, err := b.userService.GetOrCreateUser(context.Background(), service.TelegramUser{
		ID:        user.ID,
		Username:  &username,
		FirstName: &firstName,
	})
	if err != nil {
		return err
	}

	args := c.Message().Payload
	if strings.HasPrefix(args, "ref_") {
		code := strings.TrimPrefix(args, "ref_")
		if err := b.referralSvc.Bootstrap(context.Background(), user.ID, code); err != nil {
			b.log.Infow("referral bootstrap rejected", "tg_id", user.ID, "reason", err)
		} else if isNew {
			_ = c.Send("🎁 Вы пришли по приглашению — ваш друг получил бонусные дни!")
		}
	}

	return b.sendMainMenu(c)
}

func (b *Bot) sendMainMenu(c tele.Context) error {
	text := `🔐 <b>VPN</b> — быстрый и безопасный доступ

- 🔐 Полная конфиденциальность
- ♾️ Безлимитный трафик
- 🚀 Стабильная скорость

Выберите опцию:`

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("🛒 Купить доступ", "buy"),
		),
		keyboard.Row(
			keyboard.Data("🎁 Попробовать бесплатно (3 дня)", "trial"),
		),
		keyboard.Row(
			keyboard.Data("👤 Профиль", "profile"),
			keyboard.Data("🔑 Мои конфиги", "myconfigs"),
		),
		keyboard.Row(
			keyboard.Data("🤝 Пригласить друга", "referral"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleCallback(c tele.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")
	defer c.Respond()

	if b.limiter.IsLimited(c.Sender().ID, data) {
		return nil
	}

	switch {
	case data == "menu":
		return b.sendMainMenu(c)
	case data == "buy":
		return b.sendRegionScreen(c)
	case data == "trial":
		return b.handleTrial(c)
	case data == "profile":
		return b.handleProfile(c)
	case data == "myconfigs":
		return b.handleMyConfigs(c)
	case data == "referral":
		return b.handleReferral(c)
	case data == "activate_balance":
		return b.handleActivateBalance(c)
	case data == "tariffs_back":
		return b.sendTariffScreen(c)
	case strings.HasPrefix(data, "region_"):
		return b.sendTariffScreen(c)
	case strings.HasPrefix(data, "tariff_"):
		return b.sendPaymentMethodScreen(c, strings.TrimPrefix(data, "tariff_"))
	case strings.HasPrefix(data, "paycard_"):
		return b.handleCardPurchase(c, strings.TrimPrefix(data, "paycard_"))
	case strings.HasPrefix(data, "paystars_"):
		return b.handleStarsPurchase(c, strings.TrimPrefix(data, "paystars_"))
	case strings.HasPrefix(data, "checkcard_"):
		return b.handleCheckCard(c, strings.TrimPrefix(data, "checkcard_"))
	case strings.HasPrefix(data, "cancelinv_"):
		return b.handleCancelInvoice(c, strings.TrimPrefix(data, "cancelinv_"))
	case strings.HasPrefix(data, "admin_"):
		return b.handleAdminCallback(c, data)
	default:
		b.log.Infow("unknown callback", "data", data, "tg_id", c.Sender().ID)
	}
	return nil
}

func (b *Bot) handleText(c tele.Context) error {
	state, ok := b.states.get(c.Sender().ID)
	if !ok {
		return nil
	}

	switch {
	case strings.HasPrefix(state, "email:"):
		return b.handleEmailInput(c, strings.TrimPrefix(state, "email:"))
	case state == "broadcast":
		return b.handleBroadcastInput(c)
	case state == "lookup":
		return b.handleLookupInput(c)
	}
	return nil
}

func (b *Bot) handleTrial(c tele.Context) error {
	user := c.Sender()

	result, err := b.activation.ActivateTrial(context.Background(), user.ID)
	if err != nil {
		switch err {
		case service.ErrTrialAlreadyUsed:
			return c.Send("❌ Пробный период уже использован. Выберите тариф в меню покупки.")
		case service.ErrRegionsUnavailable:
			return c.Send("😔 Сейчас нет свободных мест на всех серверах. Попробуйте позже.")
		case service.ErrNothingDelivered:
			return c.Send("⚠️ Не удалось выдать пробный доступ. Попробуйте позже или напишите в поддержку: " + b.cfg.Telegram.SupportContact)
		default:
			return c.Send("⚠️ Ошибка активации. Попробуйте позже.")
		}
	}

	text := fmt.Sprintf(`✅ <b>Пробный доступ активирован!</b>

🎁 Вам выдано %d конфигов на %d дня.`, len(result.Granted), config.TrialDays)
	if len(result.Failed) > 0 {
		text += fmt.Sprintf("\n\n⚠️ Не удалось подключить регионы: %s", strings.Join(result.Failed, ", "))
	}
	text += "\n\nКонфиги доступны в разделе «Мои конфиги»."

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("🔑 Мои конфиги", "myconfigs"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleProfile(c tele.Context) error {
	ctx := context.Background()
	user, err := b.userService.GetUser(ctx, c.Sender().ID)
	if err != nil {
		return err
	}

	slots, err := b.inventory.ActiveSlots(ctx, user.ID)
	if err != nil {
		return err
	}

	email := "не указана"
	if user.HasEmail() {
		email = *user.Email
	}

	var expiryLine string
	if len(slots) > 0 {
		maxExpiry := int64(0)
		for _, slot := range slots {
			if slot.ExpiresAt > maxExpiry {
				maxExpiry = slot.ExpiresAt
			}
		}
		expiryLine = fmt.Sprintf("\n📅 Подписка до: %s", time.Unix(maxExpiry, 0).Format("02.01.2006"))
	}

	text := fmt.Sprintf(`👤 <b>Профиль</b>

🆔 ID: <code>%d</code>
🔑 Активных конфигов: %d%s
💰 Бонусных дней: %d
📧 Почта: %s`,
		user.ID,
		len(slots),
		expiryLine,
		user.BalanceDays,
		email,
	)

	keyboard := &tele.ReplyMarkup{}
	rows := []tele.Row{}
	if user.BalanceDays > 0 {
		rows = append(rows, keyboard.Row(
			keyboard.Data(fmt.Sprintf("⚡ Активировать %d дн.", user.BalanceDays), "activate_balance"),
		))
	}
	rows = append(rows, keyboard.Row(keyboard.Data("⬅️ Назад", "menu")))
	keyboard.Inline(rows...)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleMyConfigs(c tele.Context) error {
	ctx := context.Background()
	user := c.Sender()

	slots, err := b.inventory.ActiveSlots(ctx, user.ID)
	if err != nil {
		return err
	}

	if len(slots) == 0 {
		keyboard := &tele.ReplyMarkup{}
		keyboard.Inline(
			keyboard.Row(
				keyboard.Data("🛒 Купить доступ", "buy"),
			),
		)
		return c.Send("❌ У вас нет активных конфигов. Оформите подписку или пробный доступ.", keyboard)
	}

	subKey, err := b.userService.SubscriptionKey(ctx, user.ID)
	if err != nil {
		return err
	}
	subURL := b.cfg.Server.PublicURL + "/subscription/" + subKey

	var sb strings.Builder
	sb.WriteString("🔑 <b>Ваши конфиги</b>\n")
	for _, slot := range slots {
		sb.WriteString(fmt.Sprintf("\n🌍 %s — до %s",
			strings.ToUpper(slot.Region),
			time.Unix(slot.ExpiresAt, 0).Format("02.01.2006"),
		))
	}
	sb.WriteString(fmt.Sprintf(`

📲 <b>Ссылка подписки</b> (вставьте в приложение):
<code>%s</code>

Приложения: Streisand, V2Box (iOS), v2RayTun, NekoBox (Android)`, subURL))

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("⬅️ Назад", "menu"),
		),
	)

	return c.Send(sb.String(), keyboard, tele.ModeHTML)
}

func (b *Bot) handleReferral(c tele.Context) error {
	user, err := b.userService.GetUser(context.Background(), c.Sender().ID)
	if err != nil {
		return err
	}

	link := b.referralSvc.Link(b.bot.Me.Username, user.ReferralCode)
	ref := b.cfg.Referral

	text := fmt.Sprintf(`🤝 <b>Реферальная программа</b>

Приглашайте друзей и получайте бонусные дни:
• +%d дн. за каждого из первых %d друзей
• +%d дн. бонусом за %d-го друга
• +1 дн. за каждые 10 дн. оплаченной другом подписки

📊 Приглашено: %d
💰 Бонусных дней на балансе: %d

🔗 <b>Ваша ссылка:</b>
<code>%s</code>`,
		ref.PerReferralDays, ref.Cap,
		ref.MilestoneDays, ref.Cap,
		user.ReferralCount,
		user.BalanceDays,
		link,
	)

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("⬅️ Назад", "menu"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleActivateBalance(c tele.Context) error {
	user := c.Sender()

	result, days, err := b.activation.ActivateBalance(context.Background(), user.ID)
	if err != nil {
		switch err {
		case service.ErrEmptyBalance:
			return c.Send("❌ На балансе нет бонусных дней.")
		case service.ErrRegionsUnavailable:
			return c.Send("😔 Сейчас нет свободных мест на всех серверах. Бонусные дни сохранены, попробуйте позже.")
		case service.ErrNothingDelivered:
			return c.Send("⚠️ Не удалось активировать бонусные дни, баланс возвращён. Попробуйте позже.")
		default:
			return c.Send("⚠️ Ошибка активации. Попробуйте позже.")
		}
	}

	var text string
	if len(result.Extended) > 0 {
		text = fmt.Sprintf("✅ Бонусные дни активированы: подписка продлена на %d дн.", days)
	} else {
		text = fmt.Sprintf("✅ Бонусные дни активированы: выдано %d конфигов на %d дн.", len(result.Granted), days)
	}

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("🔑 Мои конфиги", "myconfigs"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}
