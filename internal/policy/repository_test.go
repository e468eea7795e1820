package policy_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/infra"
	"github.com/Chengenchong/PayLentine-Backend/internal/policy"
)

func postgresRepository(t *testing.T) *policy.PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, infra.RunMigrations(url))
	pool, err := infra.NewPostgresPool(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return policy.NewPostgresRepository(pool)
}

func settings(approverID string, locked bool) policy.Settings {
	return policy.Settings{
		Enabled:         true,
		ThresholdAmount: decimal.RequireFromString("100"),
		ApproverID:      approverID,
		Locked:          locked,
		UpdatedAt:       time.Now().UTC(),
	}
}

func TestPostgresRepository_UpdateUpserts(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	user, carol, dave := uuid.NewString(), uuid.NewString(), uuid.NewString()

	_, err := repo.Get(ctx, user)
	assert.ErrorIs(t, err, policy.ErrNotConfigured)

	created, err := repo.Update(ctx, user, func(current policy.Settings, exists bool) (policy.Settings, error) {
		assert.False(t, exists)
		return settings(carol, false), nil
	})
	require.NoError(t, err)
	assert.Equal(t, user, created.UserID)
	assert.Equal(t, carol, created.ApproverID)

	updated, err := repo.Update(ctx, user, func(current policy.Settings, exists bool) (policy.Settings, error) {
		assert.True(t, exists)
		assert.Equal(t, carol, current.ApproverID)
		return settings(dave, true), nil
	})
	require.NoError(t, err)
	assert.Equal(t, dave, updated.ApproverID)
	assert.True(t, updated.Locked)
	assert.True(t, updated.ThresholdAmount.Equal(decimal.RequireFromString("100")))
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	got, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, dave, got.ApproverID)
}

func TestPostgresRepository_UpdateAbortsOnGuardError(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	user, carol := uuid.NewString(), uuid.NewString()

	_, err := repo.Update(ctx, user, func(policy.Settings, bool) (policy.Settings, error) {
		return settings(carol, true), nil
	})
	require.NoError(t, err)

	_, err = repo.Update(ctx, user, func(current policy.Settings, _ bool) (policy.Settings, error) {
		if current.Locked {
			return policy.Settings{}, policy.ErrVerificationRequired
		}
		return settings("", false), nil
	})
	assert.ErrorIs(t, err, policy.ErrVerificationRequired)

	got, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, carol, got.ApproverID)
}

func TestPostgresRepository_UpdateSeesCommittedLock(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	user, carol, mallory := uuid.NewString(), uuid.NewString(), uuid.NewString()
	_, err := repo.Update(ctx, user, func(policy.Settings, bool) (policy.Settings, error) {
		return settings(carol, false), nil
	})
	require.NoError(t, err)

	holding := make(chan struct{})
	lockDone := make(chan error, 1)
	go func() {
		_, err := repo.Update(ctx, user, func(policy.Settings, bool) (policy.Settings, error) {
			close(holding)
			time.Sleep(100 * time.Millisecond)
			return settings(carol, true), nil
		})
		lockDone <- err
	}()

	<-holding
	_, err = repo.Update(ctx, user, func(current policy.Settings, _ bool) (policy.Settings, error) {
		if current.Locked && current.ApproverID != mallory {
			return policy.Settings{}, policy.ErrVerificationRequired
		}
		return settings(mallory, false), nil
	})
	assert.ErrorIs(t, err, policy.ErrVerificationRequired)
	require.NoError(t, <-lockDone)

	got, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, carol, got.ApproverID)
	assert.True(t, got.Locked)
}

func TestPostgresRepository_RacingFirstWritesConflict(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	user, carol, mallory := uuid.NewString(), uuid.NewString(), uuid.NewString()

	reading := make(chan struct{})
	resume := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		_, err := repo.Update(ctx, user, func(_ policy.Settings, exists bool) (policy.Settings, error) {
			close(reading)
			<-resume
			return settings(mallory, false), nil
		})
		firstDone <- err
	}()

	<-reading
	_, err := repo.Update(ctx, user, func(policy.Settings, bool) (policy.Settings, error) {
		return settings(carol, true), nil
	})
	require.NoError(t, err)
	close(resume)
	assert.ErrorIs(t, <-firstDone, policy.ErrConcurrentUpdate)

	got, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, carol, got.ApproverID)
	assert.True(t, got.Locked)
}
