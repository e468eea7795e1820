package approval

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chengenchong/PayLentine-Backend/internal/logging"
	"github.com/Chengenchong/PayLentine-Backend/internal/notification"
)

func newRedsync(t *testing.T) *redsync.Redsync {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redsync.New(goredis.NewPool(client))
}

func TestSweeperExpiresAndNotifies(t *testing.T) {
	svc, c := newService(t)
	p := createTransfer(t, svc)
	c.advance(DefaultTTL + time.Minute)

	recorder := &notification.Recorder{}
	sweeper := NewSweeper(svc, time.Minute, newRedsync(t), recorder, logging.Discard())

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent := recorder.Sent(notification.KindApprovalExpired)
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].Destination)
	assert.Equal(t, p.ID, sent[0].Reference)

	n, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	svc, c := newService(t)
	createTransfer(t, svc)
	c.advance(DefaultTTL + time.Minute)

	locks := newRedsync(t)
	held := locks.NewMutex(sweepLockKey, redsync.WithExpiry(time.Minute))
	require.NoError(t, held.Lock())

	sweeper := NewSweeper(svc, time.Minute, locks, nil, logging.Discard())
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = held.Unlock()
	require.NoError(t, err)
	n, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeperWithoutLocks(t *testing.T) {
	svc, c := newService(t)
	createTransfer(t, svc)
	c.advance(DefaultTTL + time.Minute)

	n, err := NewSweeper(svc, 0, nil, nil, logging.Discard()).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(svc, 10*time.Millisecond, nil, nil, logging.Discard()).Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, notification.Message) error {
	return errors.New("push gateway down")
}

func TestSweeperLogsNotifyFailure(t *testing.T) {
	svc, c := newService(t)
	p := createTransfer(t, svc)
	c.advance(DefaultTTL + time.Minute)

	var buf bytes.Buffer
	sweeper := NewSweeper(svc, time.Minute, nil, failingNotifier{}, slog.New(slog.NewJSONHandler(&buf, nil)))
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), `"msg":"approval.notify_failed"`)
	assert.Contains(t, buf.String(), p.ID)
}
