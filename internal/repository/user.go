package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/VoolFI71/zzz-sub000/internal/model"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrReferralCodeTaken   = errors.New("referral code already taken")
	ErrAlreadyReferred     = errors.New("user already has a referrer")
	ErrInsufficientBalance = errors.New("insufficient balance days")
)

func (r *Repository) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE tg_id = $1", tgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE referral_code = $1", code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user. A second /start racing the first is fine:
// the tg_id conflict is ignored and the caller re-reads. A referral code
// collision surfaces as ErrReferralCodeTaken so the caller can regenerate.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (tg_id, username, first_name, referral_code)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tg_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.FirstName, user.ReferralCode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrReferralCodeTaken
		}
		return err
	}
	return nil
}

// SetReferredBy records the referrer's code, at most once per user.
func (r *Repository) SetReferredBy(ctx context.Context, tgID int64, code string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET referred_by = $2
		WHERE tg_id = $1 AND (referred_by IS NULL OR referred_by = '')`,
		tgID, code,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

// IncrementReferralCount bumps the referrer's counter and returns the new value.
func (r *Repository) IncrementReferralCount(ctx context.Context, tgID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		UPDATE users SET referral_count = referral_count + 1
		WHERE tg_id = $1
		RETURNING referral_count`,
		tgID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return count, nil
}

func (r *Repository) AddBalanceDays(ctx context.Context, tgID int64, days int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET balance_days = balance_days + $2 WHERE tg_id = $1",
		tgID, days,
	)
	return err
}

// DeductBalanceDays withdraws days only when the balance covers them.
func (r *Repository) DeductBalanceDays(ctx context.Context, tgID int64, days int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance_days = balance_days - $2
		WHERE tg_id = $1 AND balance_days >= $2`,
		tgID, days,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// RecordUserPayment bumps the paid counter and stamps the payment time.
func (r *Repository) RecordUserPayment(ctx context.Context, tgID int64, paidAt int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET paid_count = paid_count + 1, last_payment_at = $2
		WHERE tg_id = $1`,
		tgID, paidAt,
	)
	return err
}

func (r *Repository) SetTrialUsed(ctx context.Context, tgID int64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET trial_used = TRUE WHERE tg_id = $1", tgID)
	return err
}

func (r *Repository) SetEmail(ctx context.Context, tgID int64, email string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET email = $2 WHERE tg_id = $1", tgID, email)
	return err
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users")
	return count, err
}

func (r *Repository) AllUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, "SELECT tg_id FROM users ORDER BY tg_id")
	return ids, err
}
