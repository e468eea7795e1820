package reverify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

func newRedisStore(t *testing.T) (*RedisUsedStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisUsedStore(cache), mr
}

func TestProofIsSingleUse(t *testing.T) {
	store, _ := newRedisStore(t)
	svc := NewService("secret", 5*time.Minute, store)
	ctx := context.Background()

	proof, err := svc.Issue("alice")
	require.NoError(t, err)

	require.NoError(t, svc.Consume(ctx, "alice", proof.Token))
	err = svc.Consume(ctx, "alice", proof.Token)
	assert.ErrorIs(t, err, ErrProofInvalid)
	assert.Equal(t, apperr.VerificationRequired, apperr.KindOf(err))
}

func TestProofBoundToUser(t *testing.T) {
	svc := NewService("secret", 5*time.Minute, NewMemoryUsedStore())
	proof, err := svc.Issue("alice")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Consume(context.Background(), "mallory", proof.Token), ErrProofInvalid)
	// a rejected attempt does not burn the proof
	assert.NoError(t, svc.Consume(context.Background(), "alice", proof.Token))
}

func TestProofExpires(t *testing.T) {
	svc := NewService("secret", time.Minute, NewMemoryUsedStore())
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }
	proof, err := svc.Issue("alice")
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	assert.ErrorIs(t, svc.Consume(context.Background(), "alice", proof.Token), ErrProofInvalid)
}

func TestProofRejectsForeignSignature(t *testing.T) {
	issuer := NewService("other-secret", time.Minute, NewMemoryUsedStore())
	verifier := NewService("secret", time.Minute, NewMemoryUsedStore())

	proof, err := issuer.Issue("alice")
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Consume(context.Background(), "alice", proof.Token), ErrProofInvalid)
	assert.ErrorIs(t, verifier.Consume(context.Background(), "alice", ""), ErrProofInvalid)
	assert.ErrorIs(t, verifier.Consume(context.Background(), "alice", "not-a-jwt"), ErrProofInvalid)
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	store, _ := newRedisStore(t)
	svc := NewService("secret", time.Minute, store)
	proof, err := svc.Issue("alice")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Consume(context.Background(), "alice", proof.Token) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisUsedStoreKeyExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	first, err := store.MarkUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	mr.FastForward(2 * time.Minute)
	again, err := store.MarkUsed(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}
