package service

import (
	"context"
	"time"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
)

// CardPollWorker drives the card channel to completion: it re-checks every
// pending card invoice against the provider until it settles or times out.
type CardPollWorker struct {
	payments *PaymentService
	log      *logger.Logger
}

func NewCardPollWorker(payments *PaymentService, log *logger.Logger) *CardPollWorker {
	return &CardPollWorker{payments: payments, log: log}
}

// Start begins the background worker
func (w *CardPollWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(config.CardPollInterval)
	defer ticker.Stop()

	w.log.Infow("card poll worker started", "interval", config.CardPollInterval)

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("card poll worker stopped")
			return
		case <-ticker.C:
			w.payments.CheckPendingCard(ctx)
		}
	}
}
