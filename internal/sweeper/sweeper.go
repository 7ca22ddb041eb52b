package sweeper

import (
	"context"
	"log/slog"
	"time"

	"clinic-service/pkg/sl"
)

// ScheduleStore is the slice of storage the sweeper needs.
type ScheduleStore interface {
	DeactivateExpiredSchedules(ctx context.Context, today, now string) (int64, error)
}

// Sweeper periodically deactivates schedules whose date or end time has
// fully elapsed, so stale schedules stop accepting generation and bookings.
// It never touches slots or appointments.
type Sweeper struct {
	log      *slog.Logger
	store    ScheduleStore
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func New(log *slog.Logger, store ScheduleStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled. It
// sweeps once immediately so a restart does not wait a full interval.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.stopped)

		s.sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
}

// sweep is idempotent: once every qualifying schedule is flipped, re-running
// finds nothing.
func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now()

	count, err := s.store.DeactivateExpiredSchedules(ctx, now.Format("2006-01-02"), now.Format("15:04"))
	if err != nil {
		s.log.Error("Expired schedule sweep failed", sl.Err(err))
		return
	}

	if count > 0 {
		s.log.Info("Deactivated expired schedules", slog.Int64("count", count))
	}
}
