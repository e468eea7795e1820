package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
	"github.com/Chengenchong/PayLentine-Backend/internal/limits"
	"github.com/Chengenchong/PayLentine-Backend/internal/notification"
)

// StatusCompleted is reported once the ledger has applied the movement.
const StatusCompleted = "completed"

// ErrAcquirerDeclined is returned when the card processor refuses the request.
var ErrAcquirerDeclined = apperr.New(apperr.Validation, "card authorization declined")

// Service coordinates card funding and withdrawal using the ledger and the
// acquirer connector.
type Service struct {
	ledger          ledger.Ledger
	limits          limits.Evaluator
	acquirer        Acquirer
	notifier        notification.Notifier
	defaultCurrency string
	logger          *slog.Logger
}

// NewService prepares a funding service. A nil acquirer uses StaticAcquirer.
func NewService(led ledger.Ledger, lim limits.Evaluator, acquirer Acquirer, notifier notification.Notifier, defaultCurrency string, logger *slog.Logger) (*Service, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if lim == nil {
		return nil, fmt.Errorf("limits evaluator is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	return &Service{ledger: led, limits: lim, acquirer: acquirer, notifier: notifier, defaultCurrency: defaultCurrency, logger: logger}, nil
}

// CardInInput captures the required data for a card top-up.
type CardInInput struct {
	UserID     string
	Currency   string
	Amount     decimal.Decimal
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// CardOutInput captures the required data for a card withdrawal.
type CardOutInput struct {
	UserID     string
	Currency   string
	Amount     decimal.Decimal
	ClientTxID string
	CardNumber string
}

// FundingResult represents the domain outcome of a card operation.
type FundingResult struct {
	Reference         string
	Status            string
	Currency          string
	WalletBalance     decimal.Decimal
	AcquirerReference string
	CompletedAt       time.Time
}

func (s *Service) prepare(userID, currency, clientTxID, card string, amount decimal.Decimal) (string, string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", "", apperr.Invalid("user_id", "is required")
	}
	if err := validateCardNumber(card); err != nil {
		return "", "", err
	}
	if !ledger.ValidAmount(amount) {
		return "", "", ledger.ErrInvalidAmount
	}
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	currency, err := ledger.NormalizeCurrency(currency)
	if err != nil {
		return "", "", err
	}
	if clientTxID == "" {
		clientTxID = uuid.NewString()
	}
	return currency, clientTxID, nil
}

// ledgerReference scopes a client transaction id to its user and direction.
func ledgerReference(direction, userID, ref string) string {
	return direction + ":" + userID + ":" + ref
}

// replay reports a movement already applied under reference. It returns
// ledger.ErrDuplicateTransaction with the current balance when one exists,
// and a nil error when the reference is unused.
func (s *Service) replay(ctx context.Context, kind, reference, ref, userID, currency string) (FundingResult, error) {
	m, err := s.ledger.MovementByReference(ctx, kind, reference)
	if errors.Is(err, ledger.ErrMovementNotFound) {
		return FundingResult{}, nil
	}
	if err != nil {
		return FundingResult{}, err
	}
	result := FundingResult{Reference: ref, Status: StatusCompleted, Currency: m.Currency, CompletedAt: m.CreatedAt}
	if w, err := s.ledger.Wallet(ctx, userID, currency); err == nil {
		result.WalletBalance = w.Balance
	}
	s.logger.Info("funding.replayed", slog.String("user_id", userID), slog.String("reference", ref), slog.String("kind", kind))
	return result, ledger.ErrDuplicateTransaction
}

// CardIn authorizes a card charge and credits the user's wallet. A repeated
// ClientTxID returns the current balance with ledger.ErrDuplicateTransaction
// without contacting the acquirer.
func (s *Service) CardIn(ctx context.Context, input CardInInput) (FundingResult, error) {
	currency, ref, err := s.prepare(input.UserID, input.Currency, input.ClientTxID, input.CardNumber, input.Amount)
	if err != nil {
		return FundingResult{}, err
	}
	reference := ledgerReference("card-in", input.UserID, ref)
	if res, err := s.replay(ctx, ledger.KindCredit, reference, ref, input.UserID, currency); err != nil {
		return res, err
	}

	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
		Currency:   currency,
	})
	if err != nil {
		return FundingResult{}, err
	}
	if decision.Status != "approved" {
		return FundingResult{}, ErrAcquirerDeclined
	}

	w, err := s.ledger.Credit(ctx, ledger.Posting{
		UserID:    input.UserID,
		Currency:  currency,
		Amount:    input.Amount,
		Reference: reference,
		Note:      "card top-up " + maskCard(input.CardNumber),
	})
	result := FundingResult{
		Reference:         ref,
		Status:            StatusCompleted,
		Currency:          currency,
		WalletBalance:     w.Balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return result, err
		}
		return FundingResult{}, err
	}

	s.logger.Info("funding.card_in", slog.String("user_id", input.UserID), slog.String("amount", input.Amount.String()), slog.String("currency", currency))
	s.notify(ctx, input.UserID, ref, fmt.Sprintf("Your wallet was topped up with %s %s", input.Amount.StringFixed(ledger.Scale), currency))
	return result, nil
}

// CardOut checks the user's limits, authorizes a payout and debits the wallet.
// A repeated ClientTxID is answered before limits, balance or the acquirer
// are consulted.
func (s *Service) CardOut(ctx context.Context, input CardOutInput) (FundingResult, error) {
	currency, ref, err := s.prepare(input.UserID, input.Currency, input.ClientTxID, input.CardNumber, input.Amount)
	if err != nil {
		return FundingResult{}, err
	}
	reference := ledgerReference("card-out", input.UserID, ref)
	if res, err := s.replay(ctx, ledger.KindDebit, reference, ref, input.UserID, currency); err != nil {
		return res, err
	}
	if err := limits.Enforce(ctx, s.limits, input.UserID, currency, input.Amount); err != nil {
		return FundingResult{}, err
	}

	w, err := s.ledger.Wallet(ctx, input.UserID, currency)
	if err != nil {
		return FundingResult{}, err
	}
	if w.Balance.LessThan(input.Amount) {
		return FundingResult{}, ledger.ErrInsufficientFunds
	}

	decision, err := s.acquirer.AuthorizeCardOut(ctx, CardOutAuthorization{
		CardNumber: input.CardNumber,
		Amount:     input.Amount,
		Currency:   currency,
	})
	if err != nil {
		return FundingResult{}, err
	}
	if decision.Status != "approved" {
		return FundingResult{}, ErrAcquirerDeclined
	}

	w, err = s.ledger.Debit(ctx, ledger.Posting{
		UserID:    input.UserID,
		Currency:  currency,
		Amount:    input.Amount,
		Reference: reference,
		Note:      "card withdrawal " + maskCard(input.CardNumber),
	})
	result := FundingResult{
		Reference:         ref,
		Status:            StatusCompleted,
		Currency:          currency,
		WalletBalance:     w.Balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return result, err
		}
		return FundingResult{}, err
	}

	s.logger.Info("funding.card_out", slog.String("user_id", input.UserID), slog.String("amount", input.Amount.String()), slog.String("currency", currency))
	s.notify(ctx, input.UserID, ref, fmt.Sprintf("%s %s was sent to card %s", input.Amount.StringFixed(ledger.Scale), currency, maskCard(input.CardNumber)))
	return result, nil
}

func (s *Service) notify(ctx context.Context, userID, ref, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: notification.KindCardFunding, Destination: userID, Reference: ref, Body: body}); err != nil {
		s.logger.Warn("funding.notify_failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return apperr.Invalid("card_number", "must be between 12 and 19 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return apperr.Invalid("card_number", "must be numeric")
		}
	}
	return nil
}

func maskCard(card string) string {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}
