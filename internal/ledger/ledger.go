package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

var (
	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = apperr.New(apperr.InsufficientFunds, "insufficient funds")

	// ErrDuplicateTransaction indicates the provided reference was already
	// applied and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = apperr.New(apperr.Duplicate, "duplicate transaction")

	// ErrSelfTransfer rejects transfers whose sender and recipient are the same user.
	ErrSelfTransfer = apperr.New(apperr.SelfReference, "cannot transfer to self")

	// ErrInvalidAmount rejects non-positive amounts or amounts finer than a cent.
	ErrInvalidAmount = apperr.Invalid("amount", "must be positive with at most 2 decimal places")

	// ErrInvalidCurrency rejects currency codes that are not three ASCII letters.
	ErrInvalidCurrency = apperr.Invalid("currency", "must be a 3-letter ISO code")

	// ErrWalletInactive indicates one side of the movement has a deactivated wallet.
	ErrWalletInactive = apperr.New(apperr.UserInactive, "wallet is inactive")

	// ErrCurrencyMismatch indicates the wallets involved hold different currencies.
	ErrCurrencyMismatch = apperr.New(apperr.CurrencyMismatch, "wallet currencies differ")

	// ErrWalletNotFound indicates no wallet exists for the user and currency.
	ErrWalletNotFound = apperr.New(apperr.NotFound, "wallet not found")

	// ErrMovementNotFound indicates no movement was journaled under a reference.
	ErrMovementNotFound = apperr.New(apperr.NotFound, "movement not found")
)

const (
	// Scale is the number of decimal places balances are kept at.
	Scale = 2

	KindCredit   = "credit"
	KindDebit    = "debit"
	KindTransfer = "transfer"
)

// Wallet is the balance a user holds in one currency.
type Wallet struct {
	ID        string
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Posting moves funds into (credit) or out of (debit) a single wallet.
// Reference is optional; when set, a repeat posting of the same kind fails
// with ErrDuplicateTransaction.
type Posting struct {
	UserID    string
	Currency  string
	Amount    decimal.Decimal
	Reference string
	Note      string
}

// TransferRequest moves funds between two users' wallets of the same currency.
type TransferRequest struct {
	FromUserID string
	ToUserID   string
	Currency   string
	Amount     decimal.Decimal
	Note       string
	Reference  string
}

// TransferResult captures the outcome of a ledger transfer.
type TransferResult struct {
	MovementID  string
	Currency    string
	Amount      decimal.Decimal
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
	CompletedAt time.Time
}

// Movement is the journal row written for every applied credit, debit or transfer.
type Movement struct {
	ID         string
	Kind       string
	Reference  string
	FromUserID string
	ToUserID   string
	Currency   string
	Amount     decimal.Decimal
	Note       string
	CreatedAt  time.Time
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
//
// Transfer, Credit and Debit are all-or-nothing. Implementations must re-read
// the debited balance under a lock held until the mutation commits.
type Ledger interface {
	OpenWallet(ctx context.Context, userID, currency string) (Wallet, error)
	Wallet(ctx context.Context, userID, currency string) (Wallet, error)
	Wallets(ctx context.Context, userID string) ([]Wallet, error)
	DeactivateWallet(ctx context.Context, userID, currency string) error
	Credit(ctx context.Context, p Posting) (Wallet, error)
	Debit(ctx context.Context, p Posting) (Wallet, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	MovementByReference(ctx context.Context, kind, reference string) (Movement, error)
	OutgoingTotal(ctx context.Context, userID, currency string, since time.Time) (decimal.Decimal, error)
}

// NormalizeCurrency upper-cases and validates an ISO-4217 style code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// ValidAmount reports whether amount is positive and representable at Scale.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(Scale))
}

func validatePosting(p *Posting) error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperr.Invalid("user_id", "is required")
	}
	currency, err := NormalizeCurrency(p.Currency)
	if err != nil {
		return err
	}
	p.Currency = currency
	if !ValidAmount(p.Amount) {
		return ErrInvalidAmount
	}
	return nil
}

func validateTransfer(req *TransferRequest) error {
	if strings.TrimSpace(req.FromUserID) == "" {
		return apperr.Invalid("from_user_id", "is required")
	}
	if strings.TrimSpace(req.ToUserID) == "" {
		return apperr.Invalid("to_user_id", "is required")
	}
	if req.FromUserID == req.ToUserID {
		return ErrSelfTransfer
	}
	if !ValidAmount(req.Amount) {
		return ErrInvalidAmount
	}
	currency, err := NormalizeCurrency(req.Currency)
	if err != nil {
		return err
	}
	req.Currency = currency
	return nil
}
