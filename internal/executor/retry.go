// Package executor turns triggered rules into purchase orders: it runs the
// calculation, selects a supplier, creates and optionally approves the order,
// and finalizes the execution audit record.
package executor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stokcerdas/replenish/pkg/types"
)

const (
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxAttempts     = 3
)

// withRetry retries transient port failures with exponential backoff.
// Permanent failures and context cancellation return immediately.
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if types.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
