// Package limits turns a user's verification tier into transaction ceilings
// and checks amounts against them. Usage is the sum of the user's outgoing
// ledger movements in the current UTC day or month.
package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

// Period selects which ceiling an amount is checked against.
type Period string

const (
	PeriodSingle  Period = "single"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Rejection reasons.
const (
	ReasonNotApproved = "kyc_not_approved"
	ReasonExceeded    = "limit_exceeded"
)

// ErrLimitExceeded is the base error for a disallowed amount.
var ErrLimitExceeded = apperr.New(apperr.LimitExceeded, "transaction limit exceeded")

// Limits are the ceilings that apply to a user.
type Limits struct {
	Approved     bool            `json:"approved"`
	Tier         string          `json:"tier"`
	SingleLimit  decimal.Decimal `json:"single_limit"`
	DailyLimit   decimal.Decimal `json:"daily_limit"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

// Check is the outcome of checking one amount against one period.
type Check struct {
	Allowed   bool            `json:"allowed"`
	Reason    string          `json:"reason,omitempty"`
	Period    Period          `json:"period"`
	Limit     decimal.Decimal `json:"limit"`
	Used      decimal.Decimal `json:"used"`
	Available decimal.Decimal `json:"available"`
}

// Evaluator is what the transfer path consults before moving money.
type Evaluator interface {
	GetLimits(ctx context.Context, userID string) (Limits, error)
	CheckAmount(ctx context.Context, userID, currency string, amount decimal.Decimal, period Period) (Check, error)
}

// KYCSource reports a user's verification tier.
type KYCSource interface {
	KYCStatus(ctx context.Context, userID string) (identity.KYCStatus, error)
}

// UsageSource sums what a user already sent.
type UsageSource interface {
	OutgoingTotal(ctx context.Context, userID, currency string, since time.Time) (decimal.Decimal, error)
}

type tierLimits struct {
	single, daily, monthly int64
}

var tiers = map[string]tierLimits{
	identity.TierOne:   {single: 1_000, daily: 2_000, monthly: 10_000},
	identity.TierTwo:   {single: 10_000, daily: 25_000, monthly: 100_000},
	identity.TierThree: {single: 50_000, daily: 100_000, monthly: 500_000},
}

// TierEvaluator is the Evaluator backed by the tier table.
type TierEvaluator struct {
	kyc   KYCSource
	usage UsageSource
	now   func() time.Time
}

// NewTierEvaluator builds an evaluator. usage is normally the ledger.
func NewTierEvaluator(kyc KYCSource, usage UsageSource) *TierEvaluator {
	return &TierEvaluator{kyc: kyc, usage: usage, now: func() time.Time { return time.Now().UTC() }}
}

// GetLimits returns the user's ceilings. Unverified users get zero ceilings.
func (e *TierEvaluator) GetLimits(ctx context.Context, userID string) (Limits, error) {
	status, err := e.kyc.KYCStatus(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	t, ok := tiers[status.Tier]
	if !status.IsApproved || !ok {
		return Limits{Tier: status.Tier, SingleLimit: decimal.Zero, DailyLimit: decimal.Zero, MonthlyLimit: decimal.Zero}, nil
	}
	return Limits{
		Approved:     true,
		Tier:         status.Tier,
		SingleLimit:  decimal.NewFromInt(t.single),
		DailyLimit:   decimal.NewFromInt(t.daily),
		MonthlyLimit: decimal.NewFromInt(t.monthly),
	}, nil
}

// CheckAmount checks amount against the ceiling for period.
func (e *TierEvaluator) CheckAmount(ctx context.Context, userID, currency string, amount decimal.Decimal, period Period) (Check, error) {
	limits, err := e.GetLimits(ctx, userID)
	if err != nil {
		return Check{}, err
	}

	now := e.now()
	var (
		limit decimal.Decimal
		since time.Time
	)
	switch period {
	case PeriodSingle:
		limit = limits.SingleLimit
	case PeriodDaily:
		limit = limits.DailyLimit
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonthly:
		limit = limits.MonthlyLimit
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return Check{}, apperr.Invalid("period", fmt.Sprintf("unknown period %q", period))
	}

	used := decimal.Zero
	if period != PeriodSingle && limits.Approved {
		if used, err = e.usage.OutgoingTotal(ctx, userID, currency, since); err != nil {
			return Check{}, fmt.Errorf("load usage: %w", err)
		}
	}
	available := limit.Sub(used)
	if available.IsNegative() {
		available = decimal.Zero
	}

	check := Check{Allowed: true, Period: period, Limit: limit, Used: used, Available: available}
	switch {
	case !limits.Approved:
		check.Allowed = false
		check.Reason = ReasonNotApproved
	case amount.GreaterThan(available):
		check.Allowed = false
		check.Reason = ReasonExceeded
	}
	return check, nil
}

// Enforce checks amount against every period and returns a LimitExceeded
// error describing the first one it breaks.
func Enforce(ctx context.Context, ev Evaluator, userID, currency string, amount decimal.Decimal) error {
	for _, period := range []Period{PeriodSingle, PeriodDaily, PeriodMonthly} {
		check, err := ev.CheckAmount(ctx, userID, currency, amount, period)
		if err != nil {
			return err
		}
		if !check.Allowed {
			if check.Reason == ReasonNotApproved {
				return apperr.Wrap(apperr.LimitExceeded, "identity verification required before sending funds", ErrLimitExceeded)
			}
			return apperr.Wrap(apperr.LimitExceeded,
				fmt.Sprintf("%s limit %s, available %s", period, check.Limit.StringFixed(ledger.Scale), check.Available.StringFixed(ledger.Scale)),
				ErrLimitExceeded)
		}
	}
	return nil
}
