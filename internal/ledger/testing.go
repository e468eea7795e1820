package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets the balance of a wallet when using
// the in-memory ledger, creating the wallet if needed. It records no movement.
func SeedBalance(l Ledger, userID, currency string, amount decimal.Decimal) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	w, exists := mem.wallets[walletKey(userID, currency)]
	if !exists {
		w = mem.newWallet(userID, currency)
	}
	w.Balance = amount
}

// SetClock overrides the time source of the in-memory ledger.
func SetClock(l Ledger, now func() time.Time) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.now = now
	}
}
