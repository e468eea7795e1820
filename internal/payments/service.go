// Package payments is the transfer orchestrator. A transfer request is
// validated, checked against limits and the sender's approval policy, and
// then either applied to the ledger at once or parked as a pending
// transaction that the ledger executes when the approver approves it.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/approval"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
	"github.com/Chengenchong/PayLentine-Backend/internal/limits"
	"github.com/Chengenchong/PayLentine-Backend/internal/notification"
	"github.com/Chengenchong/PayLentine-Backend/internal/policy"
)

// Transfer outcomes.
const (
	StatusCompleted       = "completed"
	StatusPendingApproval = "pending_approval"
)

// Payload keys stored on pending transfers.
const (
	payloadFrom        = "from_user_id"
	payloadTo          = "to_user_id"
	payloadAmount      = "amount"
	payloadCurrency    = "currency"
	payloadDescription = "description"
)

// ErrNotExecutable is returned when retrying execution of a record that is
// not an approved transfer.
var ErrNotExecutable = apperr.New(apperr.InvalidState, "only approved transfers can be executed")

// ExecutionError reports that a pending transfer was approved but the ledger
// refused it. The approval stands; the transfer can be retried.
type ExecutionError struct {
	PendingID string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("approved transaction %s was not executed: %v", e.PendingID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Users resolves account holders and their active flag.
type Users interface {
	RequireActive(ctx context.Context, id string) (identity.User, error)
}

// PolicyEvaluator decides whether an amount needs second-party approval.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, userID string, amount decimal.Decimal) (policy.Evaluation, error)
}

// Service orchestrates transfers.
type Service struct {
	ledger   ledger.Ledger
	users    Users
	limits   limits.Evaluator
	policy   PolicyEvaluator
	workflow *approval.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs the orchestrator. notifier may be nil.
func NewService(led ledger.Ledger, users Users, lim limits.Evaluator, pol PolicyEvaluator, workflow *approval.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		ledger:   led,
		users:    users,
		limits:   lim,
		policy:   pol,
		workflow: workflow,
		notifier: notifier,
		logger:   logger,
	}
}

// TransferInput is a request to move money to another user. Reference is an
// optional client idempotency key, scoped to the initiator: a repeat returns
// the original outcome whether the transfer was applied or is pending.
type TransferInput struct {
	InitiatorID string
	RecipientID string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Reference   string
}

// TransferOutcome is either an applied transfer or a pending reference.
type TransferOutcome struct {
	Status   string
	Reason   string
	Transfer *ledger.TransferResult
	Pending  *approval.PendingTransaction
}

// Decision is the result of approving a pending transaction. Transfer is set
// once the ledger applied it.
type Decision struct {
	Pending  approval.PendingTransaction
	Transfer *ledger.TransferResult
}

// RequestTransfer validates the request, enforces limits and policy, and
// either applies the transfer or creates a pending transaction. Nothing
// touches the ledger before the final step.
func (s *Service) RequestTransfer(ctx context.Context, in TransferInput) (TransferOutcome, error) {
	currency, err := s.validate(&in)
	if err != nil {
		return TransferOutcome{}, err
	}
	if _, err := s.users.RequireActive(ctx, in.InitiatorID); err != nil {
		return TransferOutcome{}, err
	}
	if _, err := s.users.RequireActive(ctx, in.RecipientID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return TransferOutcome{}, apperr.New(apperr.NotFound, "recipient not found")
		}
		return TransferOutcome{}, err
	}

	if err := limits.Enforce(ctx, s.limits, in.InitiatorID, currency, in.Amount); err != nil {
		s.logger.Debug("payments.transfer.limit_rejected", slog.String("user_id", in.InitiatorID), slog.Any("error", err))
		return TransferOutcome{}, err
	}

	ev, err := s.policy.Evaluate(ctx, in.InitiatorID, in.Amount)
	if err != nil {
		return TransferOutcome{}, fmt.Errorf("evaluate policy: %w", err)
	}

	if !ev.RequiresApproval {
		res, err := s.ledger.Transfer(ctx, ledger.TransferRequest{
			FromUserID: in.InitiatorID,
			ToUserID:   in.RecipientID,
			Currency:   currency,
			Amount:     in.Amount,
			Note:       in.Description,
			Reference:  ClientReference(in.InitiatorID, in.Reference),
		})
		if err != nil {
			return TransferOutcome{}, err
		}
		s.logger.Info("payments.transfer.executed",
			slog.String("movement_id", res.MovementID),
			slog.String("from_user_id", in.InitiatorID),
			slog.String("to_user_id", in.RecipientID),
			slog.String("amount", res.Amount.String()),
			slog.String("currency", res.Currency),
		)
		s.notifyReceived(ctx, in.RecipientID, in.InitiatorID, res)
		return TransferOutcome{Status: StatusCompleted, Reason: ev.Reason, Transfer: &res}, nil
	}

	pending, err := s.workflow.Create(ctx, approval.CreateInput{
		InitiatorID: in.InitiatorID,
		Reference:   in.Reference,
		ApproverID:  ev.ApproverID,
		Kind:        approval.KindTransfer,
		Amount:      in.Amount,
		Currency:    currency,
		Recipient:   in.RecipientID,
		Payload: map[string]string{
			payloadFrom:        in.InitiatorID,
			payloadTo:          in.RecipientID,
			payloadAmount:      in.Amount.StringFixed(ledger.Scale),
			payloadCurrency:    currency,
			payloadDescription: in.Description,
		},
	})
	if errors.Is(err, approval.ErrDuplicateReference) {
		s.logger.Info("payments.transfer.pending_replayed", slog.String("pending_id", pending.ID), slog.String("user_id", in.InitiatorID))
		return TransferOutcome{Status: StatusPendingApproval, Reason: ev.Reason, Pending: &pending}, nil
	}
	if err != nil {
		return TransferOutcome{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindApprovalRequested,
		Destination: pending.ApproverID,
		Reference:   pending.ID,
		Body:        fmt.Sprintf("A transfer of %s %s needs your approval", pending.Amount.StringFixed(ledger.Scale), pending.Currency),
	})
	return TransferOutcome{Status: StatusPendingApproval, Reason: ev.Reason, Pending: &pending}, nil
}

func (s *Service) validate(in *TransferInput) (string, error) {
	in.InitiatorID = strings.TrimSpace(in.InitiatorID)
	in.RecipientID = strings.TrimSpace(in.RecipientID)
	in.Description = strings.TrimSpace(in.Description)
	in.Reference = strings.TrimSpace(in.Reference)
	if in.InitiatorID == "" {
		return "", apperr.Invalid("initiator_id", "is required")
	}
	if in.RecipientID == "" {
		return "", apperr.Invalid("recipient_id", "is required")
	}
	if !ledger.ValidAmount(in.Amount) {
		return "", ledger.ErrInvalidAmount
	}
	currency, err := ledger.NormalizeCurrency(in.Currency)
	if err != nil {
		return "", err
	}
	if in.InitiatorID == in.RecipientID {
		return "", ledger.ErrSelfTransfer
	}
	return currency, nil
}

// Approve approves a pending transaction and, for transfers, applies it to
// the ledger exactly once. A workflow failure is returned as is; a ledger
// failure after a successful approval is returned as *ExecutionError along
// with the approved record.
func (s *Service) Approve(ctx context.Context, id, approverID, message string) (Decision, error) {
	p, err := s.workflow.Approve(ctx, id, approverID, message)
	if err != nil {
		return Decision{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindApprovalApproved,
		Destination: p.InitiatorID,
		Reference:   p.ID,
		Body:        fmt.Sprintf("Your %s of %s %s was approved", p.Kind, p.Amount.StringFixed(ledger.Scale), p.Currency),
	})
	if p.Kind != approval.KindTransfer {
		return Decision{Pending: p}, nil
	}

	res, err := s.execute(ctx, p)
	if err != nil {
		return Decision{Pending: p}, err
	}
	return Decision{Pending: p, Transfer: &res}, nil
}

// ExecuteApproved retries the ledger transfer of an approved record. Either
// party may retry; a record already applied returns the original result.
func (s *Service) ExecuteApproved(ctx context.Context, id, actorID string) (Decision, error) {
	p, err := s.workflow.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if p.InitiatorID != actorID && p.ApproverID != actorID {
		return Decision{}, apperr.New(apperr.Forbidden, "not a party to this transaction")
	}
	if p.Status != approval.StatusApproved || p.Kind != approval.KindTransfer {
		return Decision{}, ErrNotExecutable
	}
	res, err := s.execute(ctx, p)
	if err != nil {
		return Decision{Pending: p}, err
	}
	return Decision{Pending: p, Transfer: &res}, nil
}

// execute applies an approved transfer with the record id as idempotency key.
func (s *Service) execute(ctx context.Context, p approval.PendingTransaction) (ledger.TransferResult, error) {
	req := transferFromPending(p)
	res, err := s.ledger.Transfer(ctx, req)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		s.logger.Info("payments.transfer.already_executed", slog.String("pending_id", p.ID))
		return res, nil
	}
	if err != nil {
		s.logger.Warn("payments.transfer.execution_failed",
			slog.String("pending_id", p.ID),
			slog.String("kind", string(apperr.KindOf(err))),
			slog.Any("error", err),
		)
		s.notify(ctx, notification.Message{
			Kind:        notification.KindExecutionFailed,
			Destination: p.InitiatorID,
			Reference:   p.ID,
			Body:        fmt.Sprintf("Your approved transfer of %s %s could not be completed", p.Amount.StringFixed(ledger.Scale), p.Currency),
		})
		return ledger.TransferResult{}, &ExecutionError{PendingID: p.ID, Err: err}
	}

	s.logger.Info("payments.transfer.executed",
		slog.String("pending_id", p.ID),
		slog.String("movement_id", res.MovementID),
		slog.String("from_user_id", req.FromUserID),
		slog.String("to_user_id", req.ToUserID),
		slog.String("amount", res.Amount.String()),
		slog.String("currency", res.Currency),
	)
	s.notifyReceived(ctx, req.ToUserID, req.FromUserID, res)
	return res, nil
}

func transferFromPending(p approval.PendingTransaction) ledger.TransferRequest {
	to := p.Payload[payloadTo]
	if to == "" {
		to = p.Recipient
	}
	return ledger.TransferRequest{
		FromUserID: p.InitiatorID,
		ToUserID:   to,
		Currency:   p.Currency,
		Amount:     p.Amount,
		Note:       p.Payload[payloadDescription],
		Reference:  ExecutionReference(p.ID),
	}
}

// ExecutionReference is the ledger reference used for a pending record.
func ExecutionReference(pendingID string) string {
	return "pending:" + pendingID
}

// ClientReference is the ledger reference for a client idempotency key. It
// never shares a namespace with ExecutionReference or with other users' keys.
func ClientReference(initiatorID, ref string) string {
	if ref == "" {
		return ""
	}
	return "p2p:" + initiatorID + ":" + ref
}

// Reject rejects a pending transaction and tells the initiator.
func (s *Service) Reject(ctx context.Context, id, approverID, reason string) (approval.PendingTransaction, error) {
	p, err := s.workflow.Reject(ctx, id, approverID, reason)
	if err != nil {
		return approval.PendingTransaction{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindApprovalRejected,
		Destination: p.InitiatorID,
		Reference:   p.ID,
		Body:        fmt.Sprintf("Your %s of %s %s was rejected: %s", p.Kind, p.Amount.StringFixed(ledger.Scale), p.Currency, p.RejectionReason),
	})
	return p, nil
}

// Cancel withdraws a pending transaction on behalf of its initiator.
func (s *Service) Cancel(ctx context.Context, id, initiatorID string) (approval.PendingTransaction, error) {
	return s.workflow.Cancel(ctx, id, initiatorID)
}

func (s *Service) notifyReceived(ctx context.Context, recipientID, senderID string, res ledger.TransferResult) {
	s.notify(ctx, notification.Message{
		Kind:        notification.KindFundsReceived,
		Destination: recipientID,
		Reference:   res.MovementID,
		Body:        fmt.Sprintf("You received %s %s from %s", res.Amount.StringFixed(ledger.Scale), res.Currency, senderID),
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("payments.notify_failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
