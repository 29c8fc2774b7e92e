package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/handler"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/middleware"
	"github.com/VoolFI71/zzz-sub000/internal/panel"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
	"github.com/VoolFI71/zzz-sub000/internal/service"
	"github.com/VoolFI71/zzz-sub000/internal/telegram"
	"github.com/VoolFI71/zzz-sub000/internal/yookassa"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		zl.Fatalw("failed to connect to database", "err", err)
	}
	defer repo.Close()

	panelURLs := make(map[string]string, len(cfg.Regions))
	for _, region := range cfg.Regions {
		panelURLs[region.Code] = region.PanelURL
	}
	panelClient, err := panel.NewClient(panelURLs, cfg.Panel.Username, cfg.Panel.Password, cfg.Panel.InboundID)
	if err != nil {
		zl.Fatalw("failed to create panel client", "err", err)
	}

	ykClient := yookassa.NewClient(cfg.YooKassa.BaseURL, cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)

	userService := service.NewUserService(repo, zl)
	inventorySvc := service.NewInventoryService(repo, panelClient, cfg, zl)
	reservationSvc := service.NewReservationService(repo, panelClient, cfg.ReservationTTL(), zl)
	activationSvc := service.NewActivationService(repo, repo, reservationSvc, inventorySvc, cfg, zl)
	referralSvc := service.NewReferralService(repo, cfg.Referral, zl)
	paymentSvc := service.NewPaymentService(repo, repo, repo, activationSvc, referralSvc, ykClient, cfg, zl)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, userService, activationSvc, inventorySvc, referralSvc, zl)
		if err != nil {
			zl.Errorw("failed to create telegram bot", "err", err)
		} else {
			bot.SetPaymentService(paymentSvc)
			paymentSvc.SetNotifier(bot)
			referralSvc.SetNotifier(bot)
			inventorySvc.SetNotifier(bot)
			zl.Infow("telegram bot initialized", "username", bot.GetBotUsername())
		}
	}

	h := handler.New(cfg, repo, userService, reservationSvc, inventorySvc)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key",
	}))

	app.Get("/healthz", h.Health)
	app.Get("/subscription/:sub_key", h.Subscription)

	internal := app.Group("/internal", middleware.APIKeyAuth(cfg))
	internal.Post("/giveconfig", h.GiveConfig)
	internal.Post("/extendconfig", h.ExtendConfig)
	internal.Get("/check-available-configs", h.CheckAvailable)
	internal.Get("/usercodes/:tg_id", h.UserCodes)
	internal.Get("/sub/:tg_id", h.SubKey)
	internal.Get("/all-configs", h.AllConfigs)
	internal.Post("/createconfig", h.CreateConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if bot != nil {
		go bot.StartPolling(ctx)
		zl.Infow("telegram bot polling started")
	}

	cardPoll := service.NewCardPollWorker(paymentSvc, zl)
	go cardPoll.Start(ctx)

	sched := cron.New()
	sched.AddFunc("@every 15s", func() {
		if _, err := repo.ReclaimLapsedReservations(ctx); err != nil {
			zl.Errorw("reservation sweep failed", "err", err)
		}
	})
	sched.AddFunc("@every 10m", func() {
		if _, err := inventorySvc.SweepExpired(ctx); err != nil {
			zl.Errorw("expiry sweep failed", "err", err)
		}
	})
	sched.AddFunc("@every 5m", func() {
		inventorySvc.ProbeShortage(ctx)
	})
	sched.Start()
	defer sched.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zl.Infow("shutting down server")
		cancel()
		_ = app.Shutdown()
	}()

	zl.Infow("server starting", "port", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		zl.Fatalw("failed to start server", "err", err)
	}
}
