// Package approval implements the pending-transaction workflow: a record
// waits for its designated approver, and leaves the pending state exactly
// once, by approval, rejection, cancellation or expiry.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

var (
	ErrNotFound        = apperr.New(apperr.NotFound, "pending transaction not found")
	ErrInvalidState    = apperr.New(apperr.InvalidState, "pending transaction is no longer pending")
	ErrExpired         = apperr.New(apperr.Expired, "pending transaction has expired")
	ErrConflict        = apperr.New(apperr.Conflict, "pending transaction was decided concurrently")
	ErrNotApprover     = apperr.New(apperr.Forbidden, "only the designated approver can decide this transaction")
	ErrNotInitiator    = apperr.New(apperr.Forbidden, "only the initiator can cancel this transaction")
	ErrReasonRequired  = apperr.Invalid("reason", "is required")
	ErrSelfApproval    = apperr.New(apperr.SelfReference, "initiator cannot approve their own transaction")
	ErrUnknownKind     = apperr.Invalid("kind", "is not a supported transaction kind")
	ErrMissingApprover = apperr.Invalid("approver_id", "is required")

	// ErrDuplicateReference is returned by Repository.Create when the
	// initiator already has a record under the same reference.
	ErrDuplicateReference = apperr.New(apperr.Duplicate, "pending transaction reference already used")
)

// CreateInput describes a new pending transaction. A zero TTL uses the
// service default.
type CreateInput struct {
	InitiatorID string
	Reference   string
	ApproverID  string
	Kind        Kind
	Amount      decimal.Decimal
	Currency    string
	Recipient   string
	Payload     map[string]string
	TTL         time.Duration
}

// Service runs the workflow over a Repository.
type Service struct {
	repo   Repository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a workflow service. ttl <= 0 falls back to DefaultTTL.
func NewService(repo Repository, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, ttl: ttl, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new pending record expiring after the TTL. When the
// initiator already used in.Reference, the existing record is returned with
// ErrDuplicateReference and nothing is stored.
func (s *Service) Create(ctx context.Context, in CreateInput) (PendingTransaction, error) {
	if strings.TrimSpace(in.InitiatorID) == "" {
		return PendingTransaction{}, apperr.Invalid("initiator_id", "is required")
	}
	if strings.TrimSpace(in.ApproverID) == "" {
		return PendingTransaction{}, ErrMissingApprover
	}
	if in.InitiatorID == in.ApproverID {
		return PendingTransaction{}, ErrSelfApproval
	}
	if !in.Kind.valid() {
		return PendingTransaction{}, ErrUnknownKind
	}
	if !ledger.ValidAmount(in.Amount) {
		return PendingTransaction{}, ledger.ErrInvalidAmount
	}
	currency, err := ledger.NormalizeCurrency(in.Currency)
	if err != nil {
		return PendingTransaction{}, err
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference != "" {
		existing, err := s.repo.GetByReference(ctx, in.InitiatorID, in.Reference)
		if err == nil {
			return effective(existing, s.now()), ErrDuplicateReference
		}
		if !errors.Is(err, ErrNotFound) {
			return PendingTransaction{}, err
		}
	}

	now := s.now()
	p := PendingTransaction{
		ID:          uuid.NewString(),
		InitiatorID: in.InitiatorID,
		Reference:   in.Reference,
		ApproverID:  in.ApproverID,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Currency:    currency,
		Recipient:   in.Recipient,
		Payload:     in.Payload,
		Status:      StatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			existing, getErr := s.repo.GetByReference(ctx, in.InitiatorID, in.Reference)
			if getErr != nil {
				return PendingTransaction{}, getErr
			}
			return effective(existing, s.now()), ErrDuplicateReference
		}
		return PendingTransaction{}, err
	}

	s.logger.Info("approval.created",
		slog.String("pending_id", p.ID),
		slog.String("initiator_id", p.InitiatorID),
		slog.String("approver_id", p.ApproverID),
		slog.String("kind", string(p.Kind)),
		slog.String("amount", p.Amount.String()),
		slog.Time("expires_at", p.ExpiresAt),
	)
	return p, nil
}

// Get returns the record, reporting a lapsed pending record as expired
// whether or not the sweep has run.
func (s *Service) Get(ctx context.Context, id string) (PendingTransaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return PendingTransaction{}, ErrNotFound
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PendingTransaction{}, err
	}
	return effective(p, s.now()), nil
}

// IsExpired reports whether p's decision window has closed.
func (s *Service) IsExpired(p PendingTransaction) bool {
	return IsExpired(p, s.now())
}

// Approve moves the record to approved on behalf of its designated approver.
func (s *Service) Approve(ctx context.Context, id, approverID, message string) (PendingTransaction, error) {
	p, err := s.decide(ctx, id, func(p PendingTransaction) error {
		if p.ApproverID != approverID {
			return ErrNotApprover
		}
		return nil
	}, Change{To: StatusApproved, Message: strings.TrimSpace(message)})
	if err != nil {
		return PendingTransaction{}, err
	}
	s.logger.Info("approval.approved", slog.String("pending_id", p.ID), slog.String("approver_id", approverID))
	return p, nil
}

// Reject moves the record to rejected. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, id, approverID, reason string) (PendingTransaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return PendingTransaction{}, ErrReasonRequired
	}
	p, err := s.decide(ctx, id, func(p PendingTransaction) error {
		if p.ApproverID != approverID {
			return ErrNotApprover
		}
		return nil
	}, Change{To: StatusRejected, Reason: reason})
	if err != nil {
		return PendingTransaction{}, err
	}
	s.logger.Info("approval.rejected", slog.String("pending_id", p.ID), slog.String("approver_id", approverID))
	return p, nil
}

// Cancel withdraws the record on behalf of its initiator.
func (s *Service) Cancel(ctx context.Context, id, initiatorID string) (PendingTransaction, error) {
	p, err := s.decide(ctx, id, func(p PendingTransaction) error {
		if p.InitiatorID != initiatorID {
			return ErrNotInitiator
		}
		return nil
	}, Change{To: StatusCancelled})
	if err != nil {
		return PendingTransaction{}, err
	}
	s.logger.Info("approval.cancelled", slog.String("pending_id", p.ID), slog.String("initiator_id", initiatorID))
	return p, nil
}

// decide checks the record, then applies change with a compare-and-set.
// Expiry takes precedence over actor checks so a lapsed record always
// reports ErrExpired.
func (s *Service) decide(ctx context.Context, id string, authorize func(PendingTransaction) error, change Change) (PendingTransaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return PendingTransaction{}, ErrNotFound
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PendingTransaction{}, err
	}
	now := s.now()
	if p.Status != StatusPending {
		if p.Status == StatusExpired {
			return PendingTransaction{}, ErrExpired
		}
		return PendingTransaction{}, ErrInvalidState
	}
	if IsExpired(p, now) {
		return PendingTransaction{}, ErrExpired
	}
	if err := authorize(p); err != nil {
		return PendingTransaction{}, err
	}

	change.At = now
	updated, err := s.repo.Transition(ctx, id, change)
	if errors.Is(err, ErrConflict) {
		s.logger.Debug("approval.transition_lost",
			slog.String("pending_id", id),
			slog.String("to", string(change.To)),
		)
		return PendingTransaction{}, ErrConflict
	}
	if err != nil {
		return PendingTransaction{}, err
	}
	return updated, nil
}

// SweepExpired moves every lapsed pending record to expired and returns them.
func (s *Service) SweepExpired(ctx context.Context) ([]PendingTransaction, error) {
	expired, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		s.logger.Info("approval.swept", slog.Int("expired", len(expired)))
	}
	return expired, nil
}

// ListPendingForApprover returns the records still awaiting approverID.
func (s *Service) ListPendingForApprover(ctx context.Context, approverID string) ([]PendingTransaction, error) {
	records, err := s.repo.ListByApprover(ctx, approverID, StatusPending)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]PendingTransaction, 0, len(records))
	for _, p := range records {
		if !IsExpired(p, now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListInitiatedBy returns every record initiatorID created, newest first.
func (s *Service) ListInitiatedBy(ctx context.Context, initiatorID string) ([]PendingTransaction, error) {
	records, err := s.repo.ListByInitiator(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range records {
		records[i] = effective(records[i], now)
	}
	return records, nil
}

// Stats counts the records userID takes part in.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	return s.repo.Stats(ctx, userID, s.now())
}
