package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the workflow state of a pending transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Kind names what a pending transaction will do once approved.
type Kind string

const (
	KindTransfer   Kind = "transfer"
	KindMarket     Kind = "market"
	KindWithdrawal Kind = "withdrawal"
	KindPayment    Kind = "payment"
)

func (k Kind) valid() bool {
	switch k {
	case KindTransfer, KindMarket, KindWithdrawal, KindPayment:
		return true
	}
	return false
}

// DefaultTTL is how long a record waits for a decision when no TTL is given.
const DefaultTTL = 24 * time.Hour

// ExpiringSoonWindow bounds the "expiring soon" stat.
const ExpiringSoonWindow = time.Hour

// PendingTransaction is a request awaiting the designated approver's decision.
// Payload carries the parameters needed to execute it after approval.
// Reference is the initiator's optional idempotency key and is unique per
// initiator.
type PendingTransaction struct {
	ID              string
	InitiatorID     string
	Reference       string
	ApproverID      string
	Kind            Kind
	Amount          decimal.Decimal
	Currency        string
	Recipient       string
	Payload         map[string]string
	Status          Status
	ExpiresAt       time.Time
	ApprovedAt      *time.Time
	ApprovalMessage string
	RejectedAt      *time.Time
	RejectionReason string
	CancelledAt     *time.Time
	ExpiredAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpired reports whether the decision window closed before now. A record
// is still actionable at exactly ExpiresAt.
func IsExpired(p PendingTransaction, now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// effective returns p with a lapsed pending status reported as expired.
func effective(p PendingTransaction, now time.Time) PendingTransaction {
	if p.Status == StatusPending && IsExpired(p, now) {
		p.Status = StatusExpired
	}
	return p
}

// Change is a compare-and-set transition out of pending.
type Change struct {
	To      Status
	At      time.Time
	Message string
	Reason  string
}

// Stats summarises the records a user takes part in.
type Stats struct {
	AwaitingApproval int `json:"awaiting_approval"`
	PendingInitiated int `json:"pending_initiated"`
	Approved         int `json:"approved"`
	Rejected         int `json:"rejected"`
	ExpiringSoon     int `json:"expiring_soon"`
}
