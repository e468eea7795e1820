// Package reverify issues and consumes re-verification proofs: short-lived,
// single-use tokens showing the account owner re-entered their credentials
// before a sensitive change.
//
// A proof is a self-contained HS256 JWT, so any instance can validate it
// without a lookup. Single use is enforced by recording the token id in a
// UsedStore shared by every instance (Redis in deployments).
package reverify

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

// PurposePolicyChange scopes proofs to policy setting changes.
const PurposePolicyChange = "policy_change"

// ErrProofInvalid covers malformed, forged, expired, foreign and replayed proofs.
var ErrProofInvalid = apperr.New(apperr.VerificationRequired, "re-verification proof is invalid or already used")

// UsedStore remembers consumed token ids until they would have expired anyway.
type UsedStore interface {
	// MarkUsed records jti and reports whether this call was the first to do so.
	MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Proof is an issued re-verification token.
type Proof struct {
	Token     string
	ExpiresAt time.Time
}

type claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service issues and consumes proofs.
type Service struct {
	secret []byte
	ttl    time.Duration
	used   UsedStore
	now    func() time.Time
}

// NewService builds a proof service. ttl bounds how long a proof stays valid.
func NewService(secret string, ttl time.Duration, used UsedStore) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		used:   used,
		now:    time.Now,
	}
}

// Issue creates a proof bound to userID. Callers must have checked the
// user's credentials first.
func (s *Service) Issue(userID string) (Proof, error) {
	if userID == "" {
		return Proof{}, apperr.Invalid("user_id", "is required")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Purpose: PurposePolicyChange,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Proof{}, fmt.Errorf("sign proof: %w", err)
	}
	return Proof{Token: signed, ExpiresAt: exp.UTC()}, nil
}

// Consume validates the proof for userID and marks it used. A second
// Consume of the same proof fails with ErrProofInvalid.
func (s *Service) Consume(ctx context.Context, userID, token string) error {
	if token == "" {
		return ErrProofInvalid
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrProofInvalid
	}
	if c.Subject != userID || c.Purpose != PurposePolicyChange || c.ID == "" {
		return ErrProofInvalid
	}

	remaining := c.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return ErrProofInvalid
	}
	first, err := s.used.MarkUsed(ctx, c.ID, remaining)
	if err != nil {
		return fmt.Errorf("record proof use: %w", err)
	}
	if !first {
		return ErrProofInvalid
	}
	return nil
}
