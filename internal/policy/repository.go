package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// UpdateFunc computes the settings to store from the current ones. exists is
// false when the user has none yet. Returning an error aborts the update.
type UpdateFunc func(current Settings, exists bool) (Settings, error)

// Repository persists policy settings, one row per user. Update runs fn and
// writes its result as one atomic step: no other update to the same user can
// land between the read fn sees and the write.
type Repository interface {
	Get(ctx context.Context, userID string) (Settings, error)
	Update(ctx context.Context, userID string, fn UpdateFunc) (Settings, error)
}

// PostgresRepository stores settings in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const settingsColumns = `user_id, enabled, threshold_amount::text, COALESCE(approver_id, ''), locked, created_at, updated_at`

// Get fetches the settings for a user.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (Settings, error) {
	return scanSettings(r.db.QueryRow(ctx, `SELECT `+settingsColumns+`
        FROM policy_settings WHERE user_id = $1`, userID))
}

// Update locks the user's row for the duration of fn. A first write that
// races another first write for the same user fails with ErrConcurrentUpdate.
func (r *PostgresRepository) Update(ctx context.Context, userID string, fn UpdateFunc) (Settings, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Settings{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	exists := true
	current, err := scanSettings(tx.QueryRow(ctx, `SELECT `+settingsColumns+`
        FROM policy_settings WHERE user_id = $1 FOR UPDATE`, userID))
	if errors.Is(err, ErrNotConfigured) {
		exists, current, err = false, Settings{}, nil
	}
	if err != nil {
		return Settings{}, err
	}

	next, err := fn(current, exists)
	if err != nil {
		return Settings{}, err
	}

	var saved Settings
	if exists {
		saved, err = scanSettings(tx.QueryRow(ctx, `UPDATE policy_settings SET
            enabled = $2, threshold_amount = $3::numeric, approver_id = NULLIF($4, ''), locked = $5, updated_at = $6
        WHERE user_id = $1
        RETURNING `+settingsColumns,
			userID, next.Enabled, next.ThresholdAmount.StringFixed(2), next.ApproverID, next.Locked, next.UpdatedAt.UTC()))
	} else {
		saved, err = scanSettings(tx.QueryRow(ctx, `INSERT INTO policy_settings (user_id, enabled, threshold_amount, approver_id, locked, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, NULLIF($4, ''), $5, $6, $6)
        ON CONFLICT (user_id) DO NOTHING
        RETURNING `+settingsColumns,
			userID, next.Enabled, next.ThresholdAmount.StringFixed(2), next.ApproverID, next.Locked, next.UpdatedAt.UTC()))
		if errors.Is(err, ErrNotConfigured) {
			return Settings{}, ErrConcurrentUpdate
		}
	}
	if err != nil {
		return Settings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Settings{}, err
	}
	return saved, nil
}

func scanSettings(row pgx.Row) (Settings, error) {
	var (
		s         Settings
		threshold string
	)
	if err := row.Scan(&s.UserID, &s.Enabled, &threshold, &s.ApproverID, &s.Locked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrNotConfigured
		}
		return Settings{}, err
	}
	amount, err := decimal.NewFromString(threshold)
	if err != nil {
		return Settings{}, fmt.Errorf("parse threshold %q: %w", threshold, err)
	}
	s.ThresholdAmount = amount
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
