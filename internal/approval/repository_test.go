package approval_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/approval"
	"github.com/Chengenchong/PayLentine-Backend/internal/infra"
)

func postgresRepository(t *testing.T) *approval.PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, infra.RunMigrations(url))
	pool, err := infra.NewPostgresPool(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return approval.NewPostgresRepository(pool)
}

// now is truncated to the precision TIMESTAMPTZ keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func insertPending(t *testing.T, repo approval.Repository, initiatorID, approverID string, expiresAt time.Time) approval.PendingTransaction {
	t.Helper()
	p := approval.PendingTransaction{
		ID:          uuid.NewString(),
		InitiatorID: initiatorID,
		ApproverID:  approverID,
		Kind:        approval.KindTransfer,
		Amount:      decimal.RequireFromString("150"),
		Currency:    "USD",
		Recipient:   "bob",
		Payload:     map[string]string{"to_user_id": "bob"},
		Status:      approval.StatusPending,
		ExpiresAt:   expiresAt,
		CreatedAt:   now(),
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestPostgresRepository_TransitionHasOneWinner(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		at := now()
		p := insertPending(t, repo, uuid.NewString(), uuid.NewString(), at.Add(time.Hour))

		var (
			wg         sync.WaitGroup
			approveErr error
			rejectErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = repo.Transition(ctx, p.ID, approval.Change{To: approval.StatusApproved, At: at})
		}()
		go func() {
			defer wg.Done()
			_, rejectErr = repo.Transition(ctx, p.ID, approval.Change{To: approval.StatusRejected, At: at, Reason: "no"})
		}()
		wg.Wait()

		got, err := repo.Get(ctx, p.ID)
		require.NoError(t, err)
		switch {
		case approveErr == nil:
			assert.ErrorIs(t, rejectErr, approval.ErrConflict)
			assert.Equal(t, approval.StatusApproved, got.Status)
			require.NotNil(t, got.ApprovedAt)
			assert.Nil(t, got.RejectedAt)
		case rejectErr == nil:
			assert.ErrorIs(t, approveErr, approval.ErrConflict)
			assert.Equal(t, approval.StatusRejected, got.Status)
			assert.Equal(t, "no", got.RejectionReason)
			assert.Nil(t, got.ApprovedAt)
		default:
			t.Fatalf("both transitions failed: approve=%v reject=%v", approveErr, rejectErr)
		}
	}
}

func TestPostgresRepository_TransitionHonoursExpiry(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	at := now()
	p := insertPending(t, repo, uuid.NewString(), uuid.NewString(), at)

	// still actionable at exactly ExpiresAt
	_, err := repo.Transition(ctx, p.ID, approval.Change{To: approval.StatusExpired, At: at})
	assert.ErrorIs(t, err, approval.ErrConflict)

	_, err = repo.Transition(ctx, p.ID, approval.Change{To: approval.StatusApproved, At: at.Add(time.Second)})
	assert.ErrorIs(t, err, approval.ErrConflict)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, got.Status)
}

func TestPostgresRepository_ExpireDueOnlyTouchesLapsed(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	at := now()
	initiator := uuid.NewString()

	due := insertPending(t, repo, initiator, uuid.NewString(), at.Add(-time.Minute))
	boundary := insertPending(t, repo, initiator, uuid.NewString(), at)
	fresh := insertPending(t, repo, initiator, uuid.NewString(), at.Add(time.Hour))
	decided := insertPending(t, repo, initiator, uuid.NewString(), at.Add(-time.Minute))
	_, err := repo.Transition(ctx, decided.ID, approval.Change{To: approval.StatusCancelled, At: at.Add(-2 * time.Minute)})
	require.NoError(t, err)

	expired, err := repo.ExpireDue(ctx, at)
	require.NoError(t, err)
	ids := make(map[string]approval.PendingTransaction)
	for _, p := range expired {
		ids[p.ID] = p
	}
	require.Contains(t, ids, due.ID)
	assert.Equal(t, approval.StatusExpired, ids[due.ID].Status)
	require.NotNil(t, ids[due.ID].ExpiredAt)
	assert.NotContains(t, ids, boundary.ID)
	assert.NotContains(t, ids, fresh.ID)
	assert.NotContains(t, ids, decided.ID)

	for _, id := range []string{boundary.ID, fresh.ID} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, approval.StatusPending, got.Status)
	}

	again, err := repo.ExpireDue(ctx, at)
	require.NoError(t, err)
	for _, p := range again {
		assert.NotEqual(t, due.ID, p.ID)
	}
}

func TestPostgresRepository_Stats(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	at := now()
	user := uuid.NewString()

	insertPending(t, repo, uuid.NewString(), user, at.Add(30*time.Minute))
	insertPending(t, repo, uuid.NewString(), user, at.Add(3*time.Hour))
	insertPending(t, repo, uuid.NewString(), user, at.Add(-time.Minute))
	insertPending(t, repo, user, uuid.NewString(), at.Add(time.Hour))

	approved := insertPending(t, repo, uuid.NewString(), user, at.Add(time.Hour))
	_, err := repo.Transition(ctx, approved.ID, approval.Change{To: approval.StatusApproved, At: at})
	require.NoError(t, err)
	rejected := insertPending(t, repo, user, uuid.NewString(), at.Add(time.Hour))
	_, err = repo.Transition(ctx, rejected.ID, approval.Change{To: approval.StatusRejected, At: at, Reason: "no"})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, user, at)
	require.NoError(t, err)
	assert.Equal(t, approval.Stats{
		AwaitingApproval: 2,
		PendingInitiated: 1,
		Approved:         1,
		Rejected:         1,
		ExpiringSoon:     1,
	}, stats)
}

func TestPostgresRepository_ReferenceIsUniquePerInitiator(t *testing.T) {
	repo := postgresRepository(t)
	ctx := context.Background()
	at := now()
	initiator := uuid.NewString()

	first := approval.PendingTransaction{
		ID: uuid.NewString(), InitiatorID: initiator, Reference: "rent", ApproverID: uuid.NewString(),
		Kind: approval.KindTransfer, Amount: decimal.NewFromInt(10), Currency: "USD",
		Status: approval.StatusPending, ExpiresAt: at.Add(time.Hour), CreatedAt: at,
	}
	require.NoError(t, repo.Create(ctx, first))

	second := first
	second.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, second), approval.ErrDuplicateReference)

	other := first
	other.ID = uuid.NewString()
	other.InitiatorID = uuid.NewString()
	require.NoError(t, repo.Create(ctx, other))

	got, err := repo.GetByReference(ctx, initiator, "rent")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "rent", got.Reference)

	_, err = repo.GetByReference(ctx, initiator, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}
