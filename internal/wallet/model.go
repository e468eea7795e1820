package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

// Wallet is the caller-facing view of a ledger wallet.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"balance"`
	AsOf     time.Time       `json:"as_of"`
}

func fromLedger(w ledger.Wallet) Wallet {
	return Wallet{
		ID:        w.ID,
		UserID:    w.UserID,
		Currency:  w.Currency,
		Balance:   w.Balance,
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt,
	}
}
