package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evaluation reasons.
const (
	ReasonNotConfigured  = "not_configured"
	ReasonDisabled       = "disabled"
	ReasonNoApprover     = "no_valid_approver"
	ReasonBelowThreshold = "below_threshold"
	ReasonThresholdMet   = "threshold_met"
)

// MinThreshold is the smallest amount a policy can be configured to trigger at.
var MinThreshold = decimal.New(1, -2)

// Settings is a user's second-party approval policy.
type Settings struct {
	UserID          string
	Enabled         bool
	ThresholdAmount decimal.Decimal
	ApproverID      string
	Locked          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpdateInput is the full desired state of a user's settings. ApproverEmail,
// when set, is resolved to ApproverID through the address book.
type UpdateInput struct {
	Enabled             bool
	ThresholdAmount     decimal.Decimal
	ApproverID          string
	ApproverEmail       string
	Locked              bool
	ReverificationProof string
}

// Evaluation is the outcome of checking an amount against a user's policy.
type Evaluation struct {
	RequiresApproval bool
	Reason           string
	ApproverID       string
}
