package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateTier(ctx context.Context, id, tier string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, COALESCE(email, ''), phone, tier, pin_hash, device_id, active, token_version, created_at, last_login`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, email, phone, tier, pin_hash, device_id, active, token_version, created_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Phone, user.Tier, user.PINHash, user.DeviceID, user.Active, user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// UpdateDevice stores the users bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.exec(ctx, `UPDATE users SET device_id = $1 WHERE id = $2`, deviceID, id)
}

// UpdateTokenVersion bumps the version embedded in issued tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.exec(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, id)
}

// UpdateLastLogin records the last successful login.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
}

// UpdateTier records the verification tier assigned by the KYC review.
func (r *PostgresRepository) UpdateTier(ctx context.Context, id, tier string) error {
	return r.exec(ctx, `UPDATE users SET tier = $1 WHERE id = $2`, tier, id)
}

// SetActive enables or disables the account.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, `UPDATE users SET active = $1 WHERE id = $2`, active, id)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Phone, &user.Tier, &user.PINHash, &user.DeviceID,
		&user.Active, &user.TokenVersion, &user.CreatedAt, &user.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
