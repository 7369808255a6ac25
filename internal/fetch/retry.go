package fetch

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"inliner/inline"
)

// Retry repeats transient failures of the wrapped fetcher with
// exponential backoff. Transport errors and 429/5xx responses are retried;
// everything else fails at once.
type Retry struct {
	next    inline.Fetcher
	retries int
	logger  *log.Logger
	// initial backoff interval, shortened in tests
	initial time.Duration
}

// NewRetry wraps next with up to retries extra attempts.
func NewRetry(next inline.Fetcher, retries int, logger *log.Logger) *Retry {
	return &Retry{next: next, retries: retries, logger: logger, initial: 250 * time.Millisecond}
}

func (r *Retry) Fetch(ctx context.Context, ref string) (*inline.Resource, error) {
	var res *inline.Resource
	op := func() error {
		var err error
		res, err = r.next.Fetch(ctx, ref)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.retries)), ctx)
	notify := func(err error, wait time.Duration) {
		if r.logger != nil {
			r.logger.Printf("FETCH retry %s in %s: %v", ref, wait.Round(time.Millisecond), err)
		}
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return res, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
