package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/VoolFI71/zzz-sub000/internal/model"
)

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrNoFreeSlots     = errors.New("no free slots in region")
	ErrReservationLost = errors.New("reservation no longer held")
	ErrSlotNotOwned    = errors.New("slot not owned by user")
)

// ReserveOneFree picks one reservable slot in the region and tags it with the
// reservation id until the deadline. A slot is reservable when it is free, its
// reservation lapsed, or its assignment expired; the winning row is retagged
// in the same transaction. Expired rows nobody picks keep their tag, so the
// sweep can still disable their clients on the panel.
func (r *Repository) ReserveOneFree(ctx context.Context, region, resvID string, until int64) (string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var uid string
	err = tx.GetContext(ctx, &uid, `
		SELECT uid FROM slots
		WHERE region = $1 AND (
			owner_kind = ''
			OR (owner_kind = 'user' AND expires_at <= $2)
			OR (owner_kind = 'resv' AND reserved_until <= $2)
		)
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		region, now,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoFreeSlots
		}
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE slots SET owner_kind = 'resv', owner_ref = $2, reserved_until = $3, expires_at = 0
		WHERE uid = $1`,
		uid, resvID, until,
	)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return uid, nil
}

// FinalizeReservation assigns a reserved slot to the user. The update only
// matches while the reservation tag is held and its deadline has not passed,
// so a lapsed hold fails with ErrReservationLost even before it is reclaimed.
func (r *Repository) FinalizeReservation(ctx context.Context, uid, resvID string, tgID int64, expiresAt int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE slots SET owner_kind = 'user', owner_ref = $3, expires_at = $4, reserved_until = 0
		WHERE uid = $1 AND owner_kind = 'resv' AND owner_ref = $2 AND reserved_until > $5`,
		uid, resvID, strconv.FormatInt(tgID, 10), expiresAt, time.Now().Unix(),
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrReservationLost
	}
	return nil
}

// CancelReservation releases a held slot back to the free pool. It is a no-op
// when the reservation tag is already gone.
func (r *Repository) CancelReservation(ctx context.Context, uid, resvID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE slots SET owner_kind = '', owner_ref = '', reserved_until = 0
		WHERE uid = $1 AND owner_kind = 'resv' AND owner_ref = $2`,
		uid, resvID,
	)
	return err
}

func (r *Repository) SlotByUID(ctx context.Context, uid string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, "SELECT * FROM slots WHERE uid = $1", uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

// SetSlotExpiry writes the new expiry for a slot the user owns.
func (r *Repository) SetSlotExpiry(ctx context.Context, uid string, tgID int64, expiresAt int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE slots SET expires_at = $3
		WHERE uid = $1 AND owner_kind = 'user' AND owner_ref = $2`,
		uid, strconv.FormatInt(tgID, 10), expiresAt,
	)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrSlotNotOwned
	}
	return nil
}

func (r *Repository) ActiveSlotsByOwner(ctx context.Context, tgID int64) ([]model.Slot, error) {
	var slots []model.Slot
	query := `
		SELECT * FROM slots
		WHERE owner_kind = 'user' AND owner_ref = $1 AND expires_at > $2
		ORDER BY region, uid`
	err := r.db.SelectContext(ctx, &slots, query, strconv.FormatInt(tgID, 10), time.Now().Unix())
	return slots, err
}

// ResetExpiredSlots frees every assigned slot whose expiry has passed and
// returns the freed rows so the caller can disable them on the panels.
func (r *Repository) ResetExpiredSlots(ctx context.Context) ([]model.Slot, error) {
	var freed []model.Slot
	query := `
		UPDATE slots SET owner_kind = '', owner_ref = '', reserved_until = 0, expires_at = 0
		WHERE owner_kind = 'user' AND expires_at <= $1
		RETURNING uid, region, expires_at, owner_kind, owner_ref, reserved_until`
	err := r.db.SelectContext(ctx, &freed, query, time.Now().Unix())
	return freed, err
}

// ReclaimLapsedReservations frees reservation tags past their deadline.
func (r *Repository) ReclaimLapsedReservations(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE slots SET owner_kind = '', owner_ref = '', reserved_until = 0
		WHERE owner_kind = 'resv' AND reserved_until <= $1`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) FreeSlotCount(ctx context.Context, region string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM slots WHERE region = $1 AND owner_kind = ''", region)
	return count, err
}

func (r *Repository) FreeSlotCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		"SELECT region, COUNT(*) FROM slots WHERE owner_kind = '' GROUP BY region")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var region string
		var count int
		if err := rows.Scan(&region, &count); err != nil {
			return nil, err
		}
		counts[region] = count
	}
	return counts, rows.Err()
}

func (r *Repository) ListSlots(ctx context.Context) ([]model.Slot, error) {
	var slots []model.Slot
	err := r.db.SelectContext(ctx, &slots, "SELECT * FROM slots ORDER BY region, uid")
	return slots, err
}

// InsertSlots provisions fresh free slots; already known uids are skipped.
func (r *Repository) InsertSlots(ctx context.Context, region string, uids []string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, uid := range uids {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO slots (uid, region) VALUES ($1, $2)
			ON CONFLICT (uid) DO NOTHING`,
			uid, region,
		)
		if err != nil {
			return 0, err
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
