package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresLedger keeps one balance row per (user, currency) in PostgreSQL and
// journals every applied movement.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const walletColumns = `id, user_id, currency, balance::text, is_active, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		id      uuid.UUID
		balance string
	)
	if err := row.Scan(&id, &w.UserID, &w.Currency, &balance, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.ID = id.String()
	w.Balance = amount
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

// OpenWallet returns the active wallet for the user and currency, creating an
// empty one if none is active.
func (l *PostgresLedger) OpenWallet(ctx context.Context, userID, currency string) (Wallet, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := l.db.Exec(ctx, `INSERT INTO wallets (id, user_id, currency, balance, is_active)
        VALUES ($1, $2, $3, 0, TRUE)
        ON CONFLICT (user_id, currency) WHERE is_active DO NOTHING`, uuid.New(), userID, currency); err != nil {
		return Wallet{}, err
	}
	return scanWallet(l.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND currency = $2 AND is_active`, userID, currency))
}

// Wallet returns the current wallet (active, else most recently deactivated).
func (l *PostgresLedger) Wallet(ctx context.Context, userID, currency string) (Wallet, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return Wallet{}, err
	}
	return scanWallet(l.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND currency = $2
        ORDER BY is_active DESC, created_at DESC LIMIT 1`, userID, currency))
}

// Wallets lists the user's active wallets ordered by currency.
func (l *PostgresLedger) Wallets(ctx context.Context, userID string) ([]Wallet, error) {
	rows, err := l.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND is_active ORDER BY currency`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeactivateWallet soft-deletes the active wallet. The row and its balance are kept.
func (l *PostgresLedger) DeactivateWallet(ctx context.Context, userID, currency string) error {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	cmd, err := l.db.Exec(ctx, `UPDATE wallets SET is_active = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND currency = $2 AND is_active`, userID, currency)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Credit increases a wallet balance, creating the wallet on first use.
func (l *PostgresLedger) Credit(ctx context.Context, p Posting) (Wallet, error) {
	if err := validatePosting(&p); err != nil {
		return Wallet{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if dup, err := referenceExists(ctx, tx, KindCredit, p.Reference); err != nil {
		return Wallet{}, err
	} else if dup {
		w, err := lockWallet(ctx, tx, p.UserID, p.Currency, false)
		if err != nil {
			return Wallet{}, ErrDuplicateTransaction
		}
		return w, ErrDuplicateTransaction
	}

	w, err := lockWallet(ctx, tx, p.UserID, p.Currency, true)
	if err != nil {
		return Wallet{}, err
	}
	if !w.IsActive {
		return Wallet{}, ErrWalletInactive
	}

	w.Balance = w.Balance.Add(p.Amount)
	if err := storeBalance(ctx, tx, &w); err != nil {
		return Wallet{}, err
	}
	if _, err := insertMovement(ctx, tx, Movement{Kind: KindCredit, Reference: p.Reference, ToUserID: p.UserID, Currency: p.Currency, Amount: p.Amount, Note: p.Note}); err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Debit decreases a wallet balance after re-reading it under a row lock.
func (l *PostgresLedger) Debit(ctx context.Context, p Posting) (Wallet, error) {
	if err := validatePosting(&p); err != nil {
		return Wallet{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	w, err := lockWallet(ctx, tx, p.UserID, p.Currency, false)
	if err != nil {
		return Wallet{}, err
	}
	if dup, err := referenceExists(ctx, tx, KindDebit, p.Reference); err != nil {
		return Wallet{}, err
	} else if dup {
		return w, ErrDuplicateTransaction
	}
	if !w.IsActive {
		return Wallet{}, ErrWalletInactive
	}
	if w.Balance.LessThan(p.Amount) {
		return Wallet{}, ErrInsufficientFunds
	}

	w.Balance = w.Balance.Sub(p.Amount)
	if err := storeBalance(ctx, tx, &w); err != nil {
		return Wallet{}, err
	}
	if _, err := insertMovement(ctx, tx, Movement{Kind: KindDebit, Reference: p.Reference, FromUserID: p.UserID, Currency: p.Currency, Amount: p.Amount, Note: p.Note}); err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Transfer moves funds between two wallets in a single database transaction.
// Both wallet rows are locked in user-id order so opposing transfers cannot
// deadlock, and the sender balance is checked only after its lock is held.
func (l *PostgresLedger) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := validateTransfer(&req); err != nil {
		return TransferResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var from, to Wallet
	if req.FromUserID < req.ToUserID {
		if from, err = lockWallet(ctx, tx, req.FromUserID, req.Currency, false); err != nil {
			return TransferResult{}, err
		}
		if to, err = lockWallet(ctx, tx, req.ToUserID, req.Currency, true); err != nil {
			return TransferResult{}, err
		}
	} else {
		if to, err = lockWallet(ctx, tx, req.ToUserID, req.Currency, true); err != nil {
			return TransferResult{}, err
		}
		if from, err = lockWallet(ctx, tx, req.FromUserID, req.Currency, false); err != nil {
			return TransferResult{}, err
		}
	}

	if req.Reference != "" {
		existing, err := movementByReference(ctx, tx, KindTransfer, req.Reference)
		if err == nil {
			return TransferResult{
				MovementID:  existing.ID,
				Currency:    existing.Currency,
				Amount:      existing.Amount,
				FromBalance: from.Balance,
				ToBalance:   to.Balance,
				CompletedAt: existing.CreatedAt,
			}, ErrDuplicateTransaction
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return TransferResult{}, err
		}
	}

	if !from.IsActive || !to.IsActive {
		return TransferResult{}, ErrWalletInactive
	}
	if from.Currency != to.Currency {
		return TransferResult{}, ErrCurrencyMismatch
	}
	if from.Balance.LessThan(req.Amount) {
		return TransferResult{}, ErrInsufficientFunds
	}

	from.Balance = from.Balance.Sub(req.Amount)
	to.Balance = to.Balance.Add(req.Amount)
	if err := storeBalance(ctx, tx, &from); err != nil {
		return TransferResult{}, err
	}
	if err := storeBalance(ctx, tx, &to); err != nil {
		return TransferResult{}, err
	}

	m, err := insertMovement(ctx, tx, Movement{
		Kind:       KindTransfer,
		Reference:  req.Reference,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Currency:   req.Currency,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}

	return TransferResult{
		MovementID:  m.ID,
		Currency:    req.Currency,
		Amount:      req.Amount,
		FromBalance: from.Balance,
		ToBalance:   to.Balance,
		CompletedAt: m.CreatedAt,
	}, nil
}

// MovementByReference returns the movement journaled under kind and
// reference, or ErrMovementNotFound.
func (l *PostgresLedger) MovementByReference(ctx context.Context, kind, reference string) (Movement, error) {
	if reference == "" {
		return Movement{}, ErrMovementNotFound
	}
	m, err := movementByReference(ctx, l.db, kind, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// OutgoingTotal sums debits and outgoing transfers since the given instant.
func (l *PostgresLedger) OutgoingTotal(ctx context.Context, userID, currency string, since time.Time) (decimal.Decimal, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	var total string
	if err := l.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM movements
        WHERE from_user_id = $1 AND currency = $2 AND created_at >= $3`, userID, currency, since.UTC()).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(total)
}

// lockWallet selects the current wallet row FOR UPDATE. With create set, a
// missing wallet is inserted first.
func lockWallet(ctx context.Context, tx pgx.Tx, userID, currency string, create bool) (Wallet, error) {
	const query = `SELECT ` + walletColumns + ` FROM wallets
        WHERE user_id = $1 AND currency = $2
        ORDER BY is_active DESC, created_at DESC LIMIT 1 FOR UPDATE`
	w, err := scanWallet(tx.QueryRow(ctx, query, userID, currency))
	if err == nil || !create || !errors.Is(err, ErrWalletNotFound) {
		return w, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO wallets (id, user_id, currency, balance, is_active)
        VALUES ($1, $2, $3, 0, TRUE)
        ON CONFLICT (user_id, currency) WHERE is_active DO NOTHING`, uuid.New(), userID, currency); err != nil {
		return Wallet{}, err
	}
	return scanWallet(tx.QueryRow(ctx, query, userID, currency))
}

func storeBalance(ctx context.Context, tx pgx.Tx, w *Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = NOW()
        WHERE id = $2 RETURNING updated_at`, w.Balance.StringFixed(Scale), walletID).Scan(&w.UpdatedAt); err != nil {
		return err
	}
	w.UpdatedAt = w.UpdatedAt.UTC()
	return nil
}

func insertMovement(ctx context.Context, tx pgx.Tx, m Movement) (Movement, error) {
	id := uuid.New()
	if err := tx.QueryRow(ctx, `INSERT INTO movements (id, kind, reference, from_user_id, to_user_id, currency, amount, note)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7::numeric, $8)
        RETURNING created_at`,
		id, m.Kind, m.Reference, m.FromUserID, m.ToUserID, m.Currency, m.Amount.StringFixed(Scale), m.Note).Scan(&m.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Movement{}, ErrDuplicateTransaction
		}
		return Movement{}, err
	}
	m.ID = id.String()
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func referenceExists(ctx context.Context, tx pgx.Tx, kind, reference string) (bool, error) {
	if reference == "" {
		return false, nil
	}
	_, err := movementByReference(ctx, tx, kind, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func movementByReference(ctx context.Context, q rowQuerier, kind, reference string) (Movement, error) {
	var (
		m      Movement
		id     uuid.UUID
		amount string
	)
	err := q.QueryRow(ctx, `SELECT id, COALESCE(from_user_id, ''), COALESCE(to_user_id, ''), currency, amount::text, note, created_at
        FROM movements WHERE kind = $1 AND reference = $2`, kind, reference).
		Scan(&id, &m.FromUserID, &m.ToUserID, &m.Currency, &amount, &m.Note, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	if m.Amount, err = decimal.NewFromString(amount); err != nil {
		return Movement{}, err
	}
	m.ID = id.String()
	m.Kind = kind
	m.Reference = reference
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
