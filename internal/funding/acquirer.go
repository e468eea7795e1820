package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Acquirer represents a connector to an external card processor.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
	AuthorizeCardOut(ctx context.Context, input CardOutAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision captures the acquirer's response.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// CardInAuthorization encapsulates details needed for a card top-up authorization.
type CardInAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     decimal.Decimal
	Currency   string
}

// CardOutAuthorization captures data for a push-to-card payout authorization.
type CardOutAuthorization struct {
	CardNumber string
	Amount     decimal.Decimal
	Currency   string
}

// StaticAcquirer approves every request. It stands in for a processor in
// development and tests.
type StaticAcquirer struct{}

// AuthorizeCardIn approves the funding request with a synthetic reference.
func (StaticAcquirer) AuthorizeCardIn(_ context.Context, _ CardInAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}

// AuthorizeCardOut approves the withdrawal request with a synthetic reference.
func (StaticAcquirer) AuthorizeCardOut(_ context.Context, _ CardOutAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
