package wallet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

func TestServiceOpenAndBalance(t *testing.T) {
	led := ledger.NewInMemory()
	svc := NewService(led, "USD")
	ctx := context.Background()

	w, err := svc.Open(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", w.Currency)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.IsActive)

	ledger.SeedBalance(led, "alice", "USD", decimal.RequireFromString("25.50"))
	balance, err := svc.Balance(ctx, "alice", "usd")
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("25.5")))

	_, err = svc.Open(ctx, "alice", "EUR")
	require.NoError(t, err)
	wallets, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, wallets, 2)
}

func TestServiceBalanceUnknownWallet(t *testing.T) {
	svc := NewService(ledger.NewInMemory(), "USD")
	_, err := svc.Balance(context.Background(), "alice", "GBP")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestServiceDeactivate(t *testing.T) {
	led := ledger.NewInMemory()
	svc := NewService(led, "USD")
	ctx := context.Background()

	_, err := svc.Open(ctx, "alice", "USD")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "alice", "USD"))

	wallets, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, wallets)
}
