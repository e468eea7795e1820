package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

var (
	ErrUserNotFound   = apperr.New(apperr.NotFound, "user not found")
	ErrUserExists     = apperr.New(apperr.Conflict, "user exists")
	ErrUserInactive   = apperr.New(apperr.UserInactive, "user is inactive")
	ErrInvalidPIN     = apperr.New(apperr.Unauthorized, "invalid PIN")
	ErrDeviceMismatch = apperr.New(apperr.Unauthorized, "device mismatch")
)

var validTiers = map[string]bool{TierZero: true, TierOne: true, TierTwo: true, TierThree: true}

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates a new Tier0 user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if strings.TrimSpace(creds.Phone) == "" {
		return User{}, apperr.Invalid("phone", "is required")
	}
	if len(creds.PIN) < 4 {
		return User{}, apperr.Invalid("pin", "must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(creds.Email)),
		Phone:     creds.Phone,
		Tier:      TierZero,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		Active:    true,
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, creds.Phone)
	if err != nil {
		return User{}, err
	}
	if !user.Active {
		return User{}, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidPIN
	}

	if user.DeviceID == "" {
		if creds.DeviceID == "" {
			return User{}, apperr.Invalid("device_id", "device binding required")
		}
		if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
			return User{}, err
		}
		user.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, ErrDeviceMismatch
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now

	return user, nil
}

// VerifyPIN checks the PIN of an already authenticated user.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) error {
	user, err := s.RequireActive(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		return ErrInvalidPIN
	}
	return nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RequireActive returns the user, failing with ErrUserInactive when disabled.
func (s *Service) RequireActive(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !user.Active {
		return User{}, ErrUserInactive
	}
	return user, nil
}

// ResolveByEmail maps an email to a user id on behalf of owner. It serves as
// the address-book lookup used when a policy approver is given by email.
func (s *Service) ResolveByEmail(ctx context.Context, ownerID, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Invalid("approver_email", "is required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user.ID == ownerID {
		return "", apperr.New(apperr.SelfReference, "approver cannot be the account owner")
	}
	return user.ID, nil
}

// KYCStatus reports the user's verification tier. Tier0 accounts are not approved.
func (s *Service) KYCStatus(ctx context.Context, userID string) (KYCStatus, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return KYCStatus{}, err
	}
	return KYCStatus{UserID: user.ID, Tier: user.Tier, IsApproved: user.Tier != TierZero}, nil
}

// SetTier records the outcome of an identity review.
func (s *Service) SetTier(ctx context.Context, userID, tier string) error {
	if !validTiers[tier] {
		return apperr.Invalid("tier", fmt.Sprintf("unknown tier %q", tier))
	}
	return s.repo.UpdateTier(ctx, userID, tier)
}

// SetActive enables or disables a user.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	err := s.repo.SetActive(ctx, userID, active)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("set active: %w", err)
	}
	return err
}
