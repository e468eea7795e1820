package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu        sync.Mutex
	wallets   map[string]*Wallet
	archived  []Wallet
	movements []Movement
	refs      map[string]int
	now       func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		wallets: make(map[string]*Wallet),
		refs:    make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func walletKey(userID, currency string) string {
	return userID + "|" + currency
}

func (l *inMemoryLedger) newWallet(userID, currency string) *Wallet {
	now := l.now()
	w := &Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.wallets[walletKey(userID, currency)] = w
	return w
}

func (l *inMemoryLedger) OpenWallet(_ context.Context, userID, currency string) (Wallet, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return Wallet{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.wallets[walletKey(userID, currency)]; ok {
		if w.IsActive {
			return *w, nil
		}
		l.archived = append(l.archived, *w)
	}
	return *l.newWallet(userID, currency), nil
}

func (l *inMemoryLedger) Wallet(_ context.Context, userID, currency string) (Wallet, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return Wallet{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletKey(userID, currency)]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *w, nil
}

func (l *inMemoryLedger) Wallets(_ context.Context, userID string) ([]Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Wallet, 0)
	for _, w := range l.wallets {
		if w.UserID == userID && w.IsActive {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (l *inMemoryLedger) DeactivateWallet(_ context.Context, userID, currency string) error {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletKey(userID, currency)]
	if !ok || !w.IsActive {
		return ErrWalletNotFound
	}
	w.IsActive = false
	w.UpdatedAt = l.now()
	return nil
}

func (l *inMemoryLedger) Credit(_ context.Context, p Posting) (Wallet, error) {
	if err := validatePosting(&p); err != nil {
		return Wallet{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := walletKey(p.UserID, p.Currency)
	if p.Reference != "" {
		if _, exists := l.refs[KindCredit+":"+p.Reference]; exists {
			if w, ok := l.wallets[key]; ok {
				return *w, ErrDuplicateTransaction
			}
			return Wallet{}, ErrDuplicateTransaction
		}
	}

	w, ok := l.wallets[key]
	if !ok {
		w = l.newWallet(p.UserID, p.Currency)
	}
	if !w.IsActive {
		return Wallet{}, ErrWalletInactive
	}

	w.Balance = w.Balance.Add(p.Amount)
	w.UpdatedAt = l.now()
	l.record(Movement{Kind: KindCredit, Reference: p.Reference, ToUserID: p.UserID, Currency: p.Currency, Amount: p.Amount, Note: p.Note})
	return *w, nil
}

func (l *inMemoryLedger) Debit(_ context.Context, p Posting) (Wallet, error) {
	if err := validatePosting(&p); err != nil {
		return Wallet{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[walletKey(p.UserID, p.Currency)]
	if p.Reference != "" {
		if _, exists := l.refs[KindDebit+":"+p.Reference]; exists {
			if ok {
				return *w, ErrDuplicateTransaction
			}
			return Wallet{}, ErrDuplicateTransaction
		}
	}
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if !w.IsActive {
		return Wallet{}, ErrWalletInactive
	}
	if w.Balance.LessThan(p.Amount) {
		return Wallet{}, ErrInsufficientFunds
	}

	w.Balance = w.Balance.Sub(p.Amount)
	w.UpdatedAt = l.now()
	l.record(Movement{Kind: KindDebit, Reference: p.Reference, FromUserID: p.UserID, Currency: p.Currency, Amount: p.Amount, Note: p.Note})
	return *w, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, req TransferRequest) (TransferResult, error) {
	if err := validateTransfer(&req); err != nil {
		return TransferResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.wallets[walletKey(req.FromUserID, req.Currency)]
	if !ok {
		return TransferResult{}, ErrWalletNotFound
	}

	if req.Reference != "" {
		if idx, exists := l.refs[KindTransfer+":"+req.Reference]; exists {
			res := TransferResult{
				MovementID:  l.movements[idx].ID,
				Currency:    req.Currency,
				Amount:      l.movements[idx].Amount,
				FromBalance: from.Balance,
				CompletedAt: l.movements[idx].CreatedAt,
			}
			if to, ok := l.wallets[walletKey(req.ToUserID, req.Currency)]; ok {
				res.ToBalance = to.Balance
			}
			return res, ErrDuplicateTransaction
		}
	}

	to, ok := l.wallets[walletKey(req.ToUserID, req.Currency)]
	if ok && !to.IsActive {
		return TransferResult{}, ErrWalletInactive
	}
	if !from.IsActive {
		return TransferResult{}, ErrWalletInactive
	}
	if ok && to.Currency != from.Currency {
		return TransferResult{}, ErrCurrencyMismatch
	}
	if from.Balance.LessThan(req.Amount) {
		return TransferResult{}, ErrInsufficientFunds
	}
	if !ok {
		to = l.newWallet(req.ToUserID, req.Currency)
	}

	now := l.now()
	from.Balance = from.Balance.Sub(req.Amount)
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(req.Amount)
	to.UpdatedAt = now

	m := l.record(Movement{
		Kind:       KindTransfer,
		Reference:  req.Reference,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Currency:   req.Currency,
		Amount:     req.Amount,
		Note:       req.Note,
	})

	return TransferResult{
		MovementID:  m.ID,
		Currency:    req.Currency,
		Amount:      req.Amount,
		FromBalance: from.Balance,
		ToBalance:   to.Balance,
		CompletedAt: m.CreatedAt,
	}, nil
}

func (l *inMemoryLedger) MovementByReference(_ context.Context, kind, reference string) (Movement, error) {
	if reference == "" {
		return Movement{}, ErrMovementNotFound
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.refs[kind+":"+reference]
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	return l.movements[idx], nil
}

func (l *inMemoryLedger) OutgoingTotal(_ context.Context, userID, currency string, since time.Time) (decimal.Decimal, error) {
	currency, err := NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, m := range l.movements {
		if m.FromUserID != userID || m.Currency != currency || m.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(m.Amount)
	}
	return total, nil
}

// record appends a movement; callers hold l.mu.
func (l *inMemoryLedger) record(m Movement) Movement {
	m.ID = uuid.NewString()
	m.CreatedAt = l.now()
	l.movements = append(l.movements, m)
	if m.Reference != "" {
		l.refs[m.Kind+":"+m.Reference] = len(l.movements) - 1
	}
	return m
}
