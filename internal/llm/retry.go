package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retryClient struct {
	next     Client
	maxTries uint
	initial  time.Duration
}

// WithRetry wraps c so that retryable failures are repeated with exponential
// backoff, up to maxTries attempts in total. maxTries <= 1 disables retries.
func WithRetry(c Client, maxTries uint) Client {
	if maxTries <= 1 {
		return c
	}
	return &retryClient{next: c, maxTries: maxTries, initial: 500 * time.Millisecond}
}

func (r *retryClient) Complete(ctx context.Context, req Request) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = 8 * r.initial

	return backoff.Retry(ctx, func() (string, error) {
		out, err := r.next.Complete(ctx, req)
		if err != nil && !IsRetryable(ctx, err) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.maxTries))
}
