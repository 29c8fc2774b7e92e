package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrSubKeyNotFound = errors.New("subscription key not found")

// GetOrCreateSubKey returns the user's stable subscription key, minting one on
// first use. The upsert makes concurrent calls converge on a single key.
func (r *Repository) GetOrCreateSubKey(ctx context.Context, tgID int64) (string, error) {
	var key string
	err := r.db.GetContext(ctx, &key, `
		INSERT INTO sub_keys (tg_id, sub_key) VALUES ($1, $2)
		ON CONFLICT (tg_id) DO UPDATE SET tg_id = EXCLUDED.tg_id
		RETURNING sub_key`,
		tgID, uuid.New(),
	)
	return key, err
}

func (r *Repository) UserBySubKey(ctx context.Context, subKey string) (int64, error) {
	var tgID int64
	err := r.db.GetContext(ctx, &tgID, "SELECT tg_id FROM sub_keys WHERE sub_key = $1", subKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrSubKeyNotFound
		}
		return 0, err
	}
	return tgID, nil
}
