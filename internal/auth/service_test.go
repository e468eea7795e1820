package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
	"github.com/Chengenchong/PayLentine-Backend/internal/config"
	"github.com/Chengenchong/PayLentine-Backend/internal/identity"
	"github.com/Chengenchong/PayLentine-Backend/internal/reverify"
)

func newService(t *testing.T) (*Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	users := identity.NewService(repo)
	user, err := users.Register(context.Background(), identity.Credentials{Phone: "555000", PIN: "1234", DeviceID: "dev-1"})
	require.NoError(t, err)
	cfg := config.Config{
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	proofs := reverify.NewService("reverify", time.Minute, reverify.NewMemoryUsedStore())
	return NewService(cfg, users, repo, proofs), user
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, user := newService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, identity.Credentials{Phone: "555000", PIN: "1234", DeviceID: "dev-1"})
	require.NoError(t, err)

	claims, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	// a refresh token is not an access token
	_, err = svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = svc.Login(ctx, identity.Credentials{Phone: "555000", PIN: "9999"})
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, _, err = svc.Login(ctx, identity.Credentials{Phone: "nobody", PIN: "1234"})
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestLogoutInvalidatesTokens(t *testing.T) {
	svc, user := newService(t)
	ctx := context.Background()
	_, pair, err := svc.Login(ctx, identity.Credentials{Phone: "555000", PIN: "1234"})
	require.NoError(t, err)

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, access)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID))
	_, err = svc.Authenticate(ctx, access)
	assert.ErrorIs(t, err, ErrTokenInvalidated)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestExpiredAccessToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, pair, err := svc.Login(ctx, identity.Credentials{Phone: "555000", PIN: "1234"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestReverifyRequiresPIN(t *testing.T) {
	svc, user := newService(t)
	ctx := context.Background()

	_, err := svc.Reverify(ctx, user.ID, "0000")
	assert.ErrorIs(t, err, identity.ErrInvalidPIN)

	proof, err := svc.Reverify(ctx, user.ID, "1234")
	require.NoError(t, err)
	assert.NoError(t, svc.proofs.Consume(ctx, user.ID, proof.Token))
}
