package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists pending transactions. Create reports
// ErrDuplicateReference when the initiator already holds a record with the
// same non-empty reference. Transition must be atomic: it
// applies only while the stored status is still pending and the expiry
// condition holds, and reports ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, p PendingTransaction) error
	Get(ctx context.Context, id string) (PendingTransaction, error)
	GetByReference(ctx context.Context, initiatorID, reference string) (PendingTransaction, error)
	Transition(ctx context.Context, id string, change Change) (PendingTransaction, error)
	ListByApprover(ctx context.Context, approverID string, status Status) ([]PendingTransaction, error)
	ListByInitiator(ctx context.Context, initiatorID string) ([]PendingTransaction, error)
	ExpireDue(ctx context.Context, now time.Time) ([]PendingTransaction, error)
	Stats(ctx context.Context, userID string, now time.Time) (Stats, error)
}

// PostgresRepository stores pending transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	uniqueViolation = "23505"
	referenceIndex  = "pending_transactions_initiator_reference"
)

const pendingColumns = `id::text, initiator_id, COALESCE(reference, ''), approver_id, kind, amount::text, currency, recipient, payload, status,
    expires_at, approved_at, approval_message, rejected_at, rejection_reason, cancelled_at, expired_at, created_at, updated_at`

// Create inserts a new record.
func (r *PostgresRepository) Create(ctx context.Context, p PendingTransaction) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO pending_transactions
        (id, initiator_id, reference, approver_id, kind, amount, currency, recipient, payload, status, expires_at, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $12)`,
		p.ID, p.InitiatorID, p.Reference, p.ApproverID, string(p.Kind), p.Amount.StringFixed(2), p.Currency, p.Recipient,
		payload, string(p.Status), p.ExpiresAt.UTC(), p.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == referenceIndex {
		return ErrDuplicateReference
	}
	return err
}

// Get fetches a record by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (PendingTransaction, error) {
	p, err := scanPending(r.db.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingTransaction{}, ErrNotFound
	}
	return p, err
}

// GetByReference fetches the initiator's record stored under reference.
func (r *PostgresRepository) GetByReference(ctx context.Context, initiatorID, reference string) (PendingTransaction, error) {
	p, err := scanPending(r.db.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_transactions
        WHERE initiator_id = $1 AND reference = $2`, initiatorID, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingTransaction{}, ErrNotFound
	}
	return p, err
}

// Transition applies change with a single conditional UPDATE.
func (r *PostgresRepository) Transition(ctx context.Context, id string, change Change) (PendingTransaction, error) {
	expiryGuard := `expires_at >= $2`
	if change.To == StatusExpired {
		expiryGuard = `expires_at < $2`
	}
	row := r.db.QueryRow(ctx, `UPDATE pending_transactions SET
            status = $3,
            approved_at = CASE WHEN $3 = 'approved' THEN $2 ELSE approved_at END,
            approval_message = CASE WHEN $3 = 'approved' THEN $4 ELSE approval_message END,
            rejected_at = CASE WHEN $3 = 'rejected' THEN $2 ELSE rejected_at END,
            rejection_reason = CASE WHEN $3 = 'rejected' THEN $5 ELSE rejection_reason END,
            cancelled_at = CASE WHEN $3 = 'cancelled' THEN $2 ELSE cancelled_at END,
            expired_at = CASE WHEN $3 = 'expired' THEN $2 ELSE expired_at END,
            updated_at = $2
        WHERE id = $1 AND status = 'pending' AND `+expiryGuard+`
        RETURNING `+pendingColumns,
		id, change.At.UTC(), string(change.To), change.Message, change.Reason)
	p, err := scanPending(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingTransaction{}, ErrConflict
	}
	return p, err
}

// ListByApprover lists records assigned to approverID with the given status.
func (r *PostgresRepository) ListByApprover(ctx context.Context, approverID string, status Status) ([]PendingTransaction, error) {
	return r.list(ctx, `SELECT `+pendingColumns+` FROM pending_transactions
        WHERE approver_id = $1 AND status = $2 ORDER BY created_at DESC`, approverID, string(status))
}

// ListByInitiator lists every record initiatorID created, newest first.
func (r *PostgresRepository) ListByInitiator(ctx context.Context, initiatorID string) ([]PendingTransaction, error) {
	return r.list(ctx, `SELECT `+pendingColumns+` FROM pending_transactions
        WHERE initiator_id = $1 ORDER BY created_at DESC`, initiatorID)
}

// ExpireDue moves every lapsed pending record to expired and returns them.
func (r *PostgresRepository) ExpireDue(ctx context.Context, now time.Time) ([]PendingTransaction, error) {
	return r.list(ctx, `UPDATE pending_transactions
        SET status = 'expired', expired_at = $1, updated_at = $1
        WHERE status = 'pending' AND expires_at < $1
        RETURNING `+pendingColumns, now.UTC())
}

// Stats counts the records userID takes part in.
func (r *PostgresRepository) Stats(ctx context.Context, userID string, now time.Time) (Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE approver_id = $1 AND status = 'pending' AND expires_at >= $2),
            COUNT(*) FILTER (WHERE initiator_id = $1 AND status = 'pending' AND expires_at >= $2),
            COUNT(*) FILTER (WHERE status = 'approved'),
            COUNT(*) FILTER (WHERE status = 'rejected'),
            COUNT(*) FILTER (WHERE approver_id = $1 AND status = 'pending' AND expires_at >= $2 AND expires_at <= $3)
        FROM pending_transactions
        WHERE approver_id = $1 OR initiator_id = $1`,
		userID, now.UTC(), now.Add(ExpiringSoonWindow).UTC(),
	).Scan(&s.AwaitingApproval, &s.PendingInitiated, &s.Approved, &s.Rejected, &s.ExpiringSoon)
	return s, err
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]PendingTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingTransaction
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPending(row pgx.Row) (PendingTransaction, error) {
	var (
		p       PendingTransaction
		kind    string
		status  string
		amount  string
		payload []byte
	)
	err := row.Scan(&p.ID, &p.InitiatorID, &p.Reference, &p.ApproverID, &kind, &amount, &p.Currency, &p.Recipient, &payload, &status,
		&p.ExpiresAt, &p.ApprovedAt, &p.ApprovalMessage, &p.RejectedAt, &p.RejectionReason, &p.CancelledAt, &p.ExpiredAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return PendingTransaction{}, err
	}
	p.Kind = Kind(kind)
	p.Status = Status(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return PendingTransaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p.Payload); err != nil {
			return PendingTransaction{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return p, nil
}
