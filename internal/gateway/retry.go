package gateway

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/metrics"
)

const maxFetchAttempts = 3

type backoffConfig struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

var fetchBackoff = backoffConfig{Initial: 2 * time.Second, Multiplier: 2, Max: 10 * time.Second}

func (cfg backoffConfig) nextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(cfg.Initial)
	if base <= 0 {
		base = float64(2 * time.Second)
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = 2
	}
	delay := base * math.Pow(multiplier, float64(attempt))
	if cfg.Max > 0 && delay > float64(cfg.Max) {
		delay = float64(cfg.Max)
	}
	return time.Duration(delay)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn up to maxFetchAttempts times while it fails with a retryable
// error, waiting 2s, 4s, ... between attempts.
func retry[T any](ctx context.Context, op string, sleep sleepFunc, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			delay := fetchBackoff.nextDelay(attempt - 1)
			metrics.GatewayRetriesTotal.WithLabelValues(op).Inc()
			log.Warn().
				Err(lastErr).
				Str("operation", op).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Retrying payment gateway call")
			if err := sleep(ctx, delay); err != nil {
				return zero, internalerrors.Gateway(op, errors.Join(lastErr, err))
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !internalerrors.IsRetryableError(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// isTransient classifies network failures worth retrying: connection resets,
// timeouts and DNS errors.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
