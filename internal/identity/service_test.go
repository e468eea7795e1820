package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Email: "Alice@Example.com", Phone: "+15550000001", PIN: "1234", DeviceID: "device-1"})
	require.NoError(t, err)
	assert.Equal(t, TierZero, user.Tier)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active)

	authed, err := svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "1234", DeviceID: "device-1"})
	require.NoError(t, err)
	require.NotNil(t, authed.LastLogin)

	_, err = svc.Authenticate(ctx, Credentials{Phone: user.Phone, PIN: "9999", DeviceID: "device-1"})
	assert.ErrorIs(t, err, ErrInvalidPIN)
}

func TestAuthenticateDeviceMismatch(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "1234", DeviceID: "device-1"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, Credentials{Phone: "123", PIN: "1234", DeviceID: "device-2"})
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "1234"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Credentials{Phone: "123", PIN: "5678"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestResolveByEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	owner, err := svc.Register(ctx, Credentials{Email: "owner@example.com", Phone: "1", PIN: "1234"})
	require.NoError(t, err)
	approver, err := svc.Register(ctx, Credentials{Email: "carol@example.com", Phone: "2", PIN: "1234"})
	require.NoError(t, err)

	id, err := svc.ResolveByEmail(ctx, owner.ID, "CAROL@example.com")
	require.NoError(t, err)
	assert.Equal(t, approver.ID, id)

	_, err = svc.ResolveByEmail(ctx, owner.ID, "owner@example.com")
	assert.Equal(t, apperr.SelfReference, apperr.KindOf(err))

	_, err = svc.ResolveByEmail(ctx, owner.ID, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestKYCStatusAndDeactivation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "1", PIN: "1234"})
	require.NoError(t, err)

	status, err := svc.KYCStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, status.IsApproved)

	require.NoError(t, svc.SetTier(ctx, user.ID, TierTwo))
	status, err = svc.KYCStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, status.IsApproved)
	assert.Equal(t, TierTwo, status.Tier)

	assert.Error(t, svc.SetTier(ctx, user.ID, "gold"))

	require.NoError(t, svc.SetActive(ctx, user.ID, false))
	_, err = svc.RequireActive(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserInactive)
	assert.ErrorIs(t, svc.VerifyPIN(ctx, user.ID, "1234"), ErrUserInactive)
}
