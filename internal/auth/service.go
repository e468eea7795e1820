// Package auth issues and validates the access and refresh tokens used by
// the HTTP API. Tokens carry the user's token version; logging out bumps the
// version so every earlier token stops validating.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/config"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/reverify"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	ErrInvalidToken     = apperr.New(apperr.Unauthorized, "invalid token")
	ErrTokenInvalidated = apperr.New(apperr.Unauthorized, "token invalidated")
	ErrBadCredentials   = apperr.New(apperr.Unauthorized, "invalid credentials")
)

// Claims is the JWT payload of both token kinds.
type Claims struct {
	Type    string `json:"typ"`
	Version int    `json:"ver"`
	Tier    string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type Service struct {
	cfg    config.Config
	users  *identity.Service
	repo   identity.Repository
	proofs *reverify.Service
	now    func() time.Time
}

func NewService(cfg config.Config, users *identity.Service, repo identity.Repository, proofs *reverify.Service) *Service {
	return &Service{cfg: cfg, users: users, repo: repo, proofs: proofs, now: time.Now}
}

// Login authenticates the credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (identity.User, TokenPair, error) {
	user, err := s.users.Authenticate(ctx, creds)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, identity.ErrInvalidPIN) {
			return identity.User{}, TokenPair{}, ErrBadCredentials
		}
		return identity.User{}, TokenPair{}, err
	}
	pair, err := s.issue(user)
	if err != nil {
		return identity.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

func (s *Service) issue(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, tokenRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:    typ,
		Version: user.TokenVersion,
		Tier:    user.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *Service) parse(ctx context.Context, raw, typ, secret string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || c.Type != typ || c.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	user, err := s.repo.FindByID(ctx, c.Subject)
	if err != nil || !user.Active || user.TokenVersion != c.Version {
		return Claims{}, ErrTokenInvalidated
	}
	return c, nil
}

// Authenticate validates an access token and returns its claims.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Claims, error) {
	return s.parse(ctx, accessToken, tokenAccess, s.cfg.JWTSecret)
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	c, err := s.parse(ctx, refreshToken, tokenRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	user, err := s.repo.FindByID(ctx, c.Subject)
	if err != nil {
		return "", 0, err
	}
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

// Reverify checks the PIN of a logged-in user and issues a single-use proof
// for changing locked approval settings.
func (s *Service) Reverify(ctx context.Context, userID, pin string) (reverify.Proof, error) {
	if err := s.users.VerifyPIN(ctx, userID, pin); err != nil {
		return reverify.Proof{}, err
	}
	return s.proofs.Issue(userID)
}
