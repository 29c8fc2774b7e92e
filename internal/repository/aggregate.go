package repository

import (
	"context"
	"fmt"

	"github.com/VoolFI71/zzz-sub000/internal/model"
)

// RecordPayment adds a settled payment to the singleton revenue counters.
// Totals saturate instead of wrapping.
func (r *Repository) RecordPayment(ctx context.Context, channel model.PaymentChannel, amount int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin totals tx: %w", err)
	}
	defer tx.Rollback()

	var totals model.PaymentTotals
	err = tx.GetContext(ctx, &totals,
		"SELECT total_card, count_card, total_credits, count_credits FROM payments_agg WHERE id = 1 FOR UPDATE")
	if err != nil {
		return err
	}

	switch channel {
	case model.ChannelCard:
		totals.TotalCard = model.SaturatingAdd(totals.TotalCard, amount)
		totals.CountCard++
	case model.ChannelStars:
		totals.TotalCredits = model.SaturatingAdd(totals.TotalCredits, amount)
		totals.CountCredits++
	default:
		return fmt.Errorf("unknown payment channel: %s", channel)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments_agg
		SET total_card = $1, count_card = $2, total_credits = $3, count_credits = $4
		WHERE id = 1`,
		totals.TotalCard, totals.CountCard, totals.TotalCredits, totals.CountCredits,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) PaymentTotals(ctx context.Context) (*model.PaymentTotals, error) {
	var totals model.PaymentTotals
	err := r.db.GetContext(ctx, &totals,
		"SELECT total_card, count_card, total_credits, count_credits FROM payments_agg WHERE id = 1")
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
