package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	ledger          ledger.Ledger
	defaultCurrency string
	now             func() time.Time
}

// NewService builds a wallet service. defaultCurrency is used when a caller
// names none.
func NewService(led ledger.Ledger, defaultCurrency string) *Service {
	return &Service{ledger: led, defaultCurrency: defaultCurrency, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) currency(code string) string {
	if strings.TrimSpace(code) == "" {
		return s.defaultCurrency
	}
	return code
}

// Open returns the user's active wallet in currency, creating it with a zero
// balance if needed.
func (s *Service) Open(ctx context.Context, userID, currency string) (Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return Wallet{}, apperr.Invalid("user_id", "is required")
	}
	w, err := s.ledger.OpenWallet(ctx, userID, s.currency(currency))
	if err != nil {
		return Wallet{}, err
	}
	return fromLedger(w), nil
}

// Balance returns the balance of the user's wallet in currency.
func (s *Service) Balance(ctx context.Context, userID, currency string) (Balance, error) {
	w, err := s.ledger.Wallet(ctx, userID, s.currency(currency))
	if err != nil {
		return Balance{}, err
	}
	return Balance{Currency: w.Currency, Amount: w.Balance, AsOf: s.now()}, nil
}

// List returns every active wallet the user holds.
func (s *Service) List(ctx context.Context, userID string) ([]Wallet, error) {
	wallets, err := s.ledger.Wallets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Wallet, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, fromLedger(w))
	}
	return out, nil
}

// Deactivate closes the user's wallet in currency. Its balance stays on
// record but it can no longer send or receive.
func (s *Service) Deactivate(ctx context.Context, userID, currency string) error {
	return s.ledger.DeactivateWallet(ctx, userID, s.currency(currency))
}
