package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"

	"github.com/Chengenchong/PayLentine-Backend/internal/notification"
)

const sweepLockKey = "lock:approval:sweep"

// Sweeper periodically expires lapsed records. With a redsync instance only
// one process sweeps per tick; without one every process sweeps and each
// expiry remains a conditional update.
type Sweeper struct {
	service  *Service
	interval time.Duration
	locks    *redsync.Redsync
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewSweeper builds a sweeper. locks and notifier may be nil.
func NewSweeper(service *Service, interval time.Duration, locks *redsync.Redsync, notifier notification.Notifier, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{service: service, interval: interval, locks: locks, notifier: notifier, logger: logger}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("approval.sweeper_started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("approval.sweeper_stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("approval.sweep_failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce runs a single sweep and reports how many records expired. It
// returns zero without error when another process holds the sweep lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.locks != nil {
		mutex := s.locks.NewMutex(sweepLockKey,
			redsync.WithExpiry(s.interval),
			redsync.WithTries(1),
		)
		if err := mutex.LockContext(ctx); err != nil {
			if lockContention(err) {
				s.logger.Debug("approval.sweep_skipped", slog.String("reason", "lock held elsewhere"))
				return 0, nil
			}
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
				s.logger.Warn("approval.sweep_unlock_failed", slog.Any("error", err))
			}
		}()
	}

	expired, err := s.service.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil {
		for _, p := range expired {
			err := s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindApprovalExpired,
				Destination: p.InitiatorID,
				Reference:   p.ID,
				Body:        fmt.Sprintf("Your %s of %s %s expired without a decision", p.Kind, p.Amount.StringFixed(2), p.Currency),
			})
			if err != nil {
				s.logger.Warn("approval.notify_failed", slog.String("pending_id", p.ID), slog.Any("error", err))
			}
		}
	}
	return len(expired), nil
}

func lockContention(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		strings.Contains(err.Error(), "lock already taken")
}
