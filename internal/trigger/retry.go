package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fundLedger/internal/ledger"
)

const defaultRetryBackoff = 100 * time.Millisecond

// retry runs fn until it succeeds, with doubling backoff between attempts.
// Ledger rejections and context errors are returned at once: another attempt
// would get the same answer.
func (r *Relay) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	maxRetries := r.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := r.cfg.RetryBackoff
	if delay <= 0 {
		delay = defaultRetryBackoff
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("recovered after retry", zap.String("op", op), zap.Int("attempts", attempt))
			}
			return nil
		}
		if ledger.KindOf(err) != "" || ctx.Err() != nil {
			return err
		}
		if attempt > maxRetries {
			r.logger.Warn("giving up", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
			return err
		}
		r.logger.Warn("attempt failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
