package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

const defaultWriteAttempts = 3

// writeRetrier re-runs a read-modify-write of one patient when the store
// reports that the version it read is no longer current.
type writeRetrier struct {
	attempts int
	backoff  func(attempt int) time.Duration
	metrics  *metrics.Collector
	log      *zap.Logger
}

func newWriteRetrier(attempts int, m *metrics.Collector, log *zap.Logger) writeRetrier {
	if attempts < 1 {
		attempts = defaultWriteAttempts
	}
	return writeRetrier{attempts: attempts, backoff: jitteredBackoff, metrics: m, log: log}
}

// run calls fn until it returns something other than a version conflict.
// Each call must re-read the aggregate. Exhausting the budget yields
// ErrWriteConflict.
func (r writeRetrier) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, patient.ErrVersionConflict) {
			return err
		}

		r.metrics.WriteConflictsTotal.WithLabelValues(op).Inc()
		if attempt >= r.attempts {
			r.log.Warn("write conflict retries exhausted",
				zap.String("operation", op),
				zap.Int("attempts", attempt),
			)
			return ErrWriteConflict
		}

		r.log.Debug("write conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
		)

		t := time.NewTimer(r.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func jitteredBackoff(attempt int) time.Duration {
	base := 10 * time.Millisecond << (attempt - 1)
	return base + rand.N(base)
}
