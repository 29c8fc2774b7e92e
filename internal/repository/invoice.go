package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/VoolFI71/zzz-sub000/internal/model"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvoiceNotPending = errors.New("invoice is not pending")
)

func (r *Repository) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	query := `
		INSERT INTO invoices (id, external_id, tg_id, channel, amount, days, status, message_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return r.db.QueryRowxContext(ctx, query,
		inv.ID,
		inv.ExternalID,
		inv.UserID,
		inv.Channel,
		inv.Amount,
		inv.Days,
		inv.Status,
		inv.MessageID,
		inv.ExpiresAt,
	).Scan(&inv.CreatedAt)
}

func (r *Repository) InvoiceByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.GetContext(ctx, &inv, "SELECT * FROM invoices WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) InvoiceByExternalID(ctx context.Context, externalID string) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.GetContext(ctx, &inv, "SELECT * FROM invoices WHERE external_id = $1", externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// MarkInvoice flips the invoice status only from the expected one. A second
// confirmation of the same invoice finds no pending row and gets
// ErrInvoiceNotPending, which keeps activation at-most-once.
func (r *Repository) MarkInvoice(ctx context.Context, id uuid.UUID, from, to model.InvoiceStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET status = $3 WHERE id = $1 AND status = $2",
		id, from, to,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrInvoiceNotPending
	}
	return nil
}

func (r *Repository) SetInvoiceExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET external_id = $2 WHERE id = $1", id, externalID)
	return err
}

func (r *Repository) SetInvoiceMessageID(ctx context.Context, id uuid.UUID, messageID int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET message_id = $2 WHERE id = $1", id, messageID)
	return err
}

// PendingInvoice returns the user's open invoice on the channel, if any.
func (r *Repository) PendingInvoice(ctx context.Context, tgID int64, channel model.PaymentChannel) (*model.Invoice, error) {
	var inv model.Invoice
	query := `
		SELECT * FROM invoices
		WHERE tg_id = $1 AND channel = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &inv, query, tgID, channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) PendingCardInvoices(ctx context.Context) ([]model.Invoice, error) {
	var invs []model.Invoice
	query := "SELECT * FROM invoices WHERE channel = 'card' AND status = 'pending' ORDER BY created_at"
	err := r.db.SelectContext(ctx, &invs, query)
	return invs, err
}
