package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/ledger"
)

var (
	// ErrNotConfigured is returned by Get when the user never saved settings.
	ErrNotConfigured = apperr.New(apperr.PolicyNotConfigured, "approval policy not configured")

	// ErrVerificationRequired rejects changes to locked settings made without a
	// valid re-verification proof.
	ErrVerificationRequired = apperr.New(apperr.VerificationRequired, "settings are locked, re-verification required")

	ErrSelfApprover = apperr.New(apperr.SelfReference, "approver cannot be the account owner")
	ErrNoApprover   = apperr.Invalid("approver_id", "an approver is required to enable the policy")
	ErrBadThreshold = apperr.Invalid("threshold_amount", "must be at least 0.01 with at most 2 decimal places")

	// ErrConcurrentUpdate is returned when another first save for the same
	// user committed while this one was in flight.
	ErrConcurrentUpdate = apperr.New(apperr.Conflict, "policy settings changed concurrently, retry")
)

// Users is the user directory the policy store validates approvers against.
type Users interface {
	Get(ctx context.Context, id string) (identity.User, error)
	ResolveByEmail(ctx context.Context, ownerID, email string) (string, error)
}

// ProofVerifier consumes single-use re-verification proofs.
type ProofVerifier interface {
	Consume(ctx context.Context, userID, token string) error
}

// Service owns users' approval policies.
type Service struct {
	repo   Repository
	users  Users
	proofs ProofVerifier
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a policy service.
func NewService(repo Repository, users Users, proofs ProofVerifier, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		proofs: proofs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetSettings returns the user's settings or ErrNotConfigured.
func (s *Service) GetSettings(ctx context.Context, userID string) (Settings, error) {
	return s.repo.Get(ctx, userID)
}

// UpdateSettings replaces the user's settings.
//
// When the stored settings are locked, disabling the policy, changing the
// approver or removing the lock requires proof to be a valid unused
// re-verification proof for userID; otherwise ErrVerificationRequired is
// returned and nothing is written.
func (s *Service) UpdateSettings(ctx context.Context, userID string, in UpdateInput) (Settings, error) {
	if strings.TrimSpace(userID) == "" {
		return Settings{}, apperr.Invalid("user_id", "is required")
	}
	if in.ThresholdAmount.LessThan(MinThreshold) || !in.ThresholdAmount.Equal(in.ThresholdAmount.Round(ledger.Scale)) {
		return Settings{}, ErrBadThreshold
	}

	approverID := strings.TrimSpace(in.ApproverID)
	if in.ApproverEmail != "" {
		resolved, err := s.users.ResolveByEmail(ctx, userID, in.ApproverEmail)
		if err != nil {
			return Settings{}, err
		}
		if approverID != "" && approverID != resolved {
			return Settings{}, apperr.Invalid("approver_email", "does not match approver_id")
		}
		approverID = resolved
	}
	if approverID != "" {
		if approverID == userID {
			return Settings{}, ErrSelfApprover
		}
		if _, err := s.users.Get(ctx, approverID); err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				return Settings{}, apperr.New(apperr.NotFound, "approver not found")
			}
			return Settings{}, fmt.Errorf("lookup approver: %w", err)
		}
	}
	if in.Enabled && approverID == "" {
		return Settings{}, ErrNoApprover
	}

	// The lock guard must see the exact settings this write replaces.
	saved, err := s.repo.Update(ctx, userID, func(current Settings, _ bool) (Settings, error) {
		if current.Locked && weakensLock(current, in.Enabled, approverID, in.Locked) {
			if in.ReverificationProof == "" {
				return Settings{}, ErrVerificationRequired
			}
			if err := s.proofs.Consume(ctx, userID, in.ReverificationProof); err != nil {
				if apperr.IsKind(err, apperr.VerificationRequired) {
					return Settings{}, apperr.Wrap(apperr.VerificationRequired, ErrVerificationRequired.Message, err)
				}
				return Settings{}, err
			}
		}
		return Settings{
			UserID:          userID,
			Enabled:         in.Enabled,
			ThresholdAmount: in.ThresholdAmount,
			ApproverID:      approverID,
			Locked:          in.Locked,
			UpdatedAt:       s.now(),
		}, nil
	})
	if err != nil {
		return Settings{}, err
	}

	s.logger.Info("policy.updated",
		slog.String("user_id", userID),
		slog.Bool("enabled", saved.Enabled),
		slog.String("threshold", saved.ThresholdAmount.String()),
		slog.String("approver_id", saved.ApproverID),
		slog.Bool("locked", saved.Locked),
	)
	return saved, nil
}

// weakensLock reports whether the requested state disables the policy,
// swaps the approver or drops the lock.
func weakensLock(current Settings, enabled bool, approverID string, locked bool) bool {
	return (current.Enabled && !enabled) || current.ApproverID != approverID || !locked
}

// Evaluate decides whether amount needs second-party approval for userID.
// The threshold is inclusive.
func (s *Service) Evaluate(ctx context.Context, userID string, amount decimal.Decimal) (Evaluation, error) {
	settings, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotConfigured) {
		return Evaluation{Reason: ReasonNotConfigured}, nil
	}
	if err != nil {
		return Evaluation{}, err
	}
	if !settings.Enabled {
		return Evaluation{Reason: ReasonDisabled}, nil
	}
	if !s.validApprover(ctx, settings) {
		return Evaluation{Reason: ReasonNoApprover}, nil
	}
	if amount.LessThan(settings.ThresholdAmount) {
		return Evaluation{Reason: ReasonBelowThreshold}, nil
	}
	return Evaluation{RequiresApproval: true, Reason: ReasonThresholdMet, ApproverID: settings.ApproverID}, nil
}

func (s *Service) validApprover(ctx context.Context, settings Settings) bool {
	if settings.ApproverID == "" || settings.ApproverID == settings.UserID {
		return false
	}
	approver, err := s.users.Get(ctx, settings.ApproverID)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			s.logger.Warn("policy.approver_lookup_failed", slog.String("user_id", settings.UserID), slog.Any("error", err))
		}
		return false
	}
	return approver.Active
}
