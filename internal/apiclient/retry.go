package apiclient

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fiatramp/internal/faults"
	"fiatramp/internal/metrics"
)

// Shared retry policy for every curator call: up to 3 attempts, retrying only
// transport failures and rate-limited responses. Validation, not-found and
// other API errors propagate on the first attempt.
const (
	maxAttempts       = 3
	networkRetryDelay = time.Second
)

// withRetry runs op under the shared policy. Rate-limit backoff doubles per
// attempt (delay × 2^attempt); plain network errors wait a fixed second.
func withRetry(ctx context.Context, logger *logrus.Logger, sleep func(context.Context, time.Duration) error, name string, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !faults.IsRetryable(err) || attempt == maxAttempts-1 {
			return err
		}

		delay := networkRetryDelay
		if faults.IsRateLimited(err) {
			delay = networkRetryDelay * time.Duration(1<<uint(attempt))
		}

		metrics.CuratorRetries.WithLabelValues(string(faults.KindOf(err))).Inc()
		logger.WithFields(logrus.Fields{
			"call":    name,
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err,
		}).Warn("curator call failed, retrying")

		if serr := sleep(ctx, delay); serr != nil {
			return faults.Network(serr)
		}
	}
	return err
}

// sleepContext waits out d unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
