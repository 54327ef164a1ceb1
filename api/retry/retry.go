// Package retry runs an operation a bounded number of times with short
// exponential backoff. It is for transient transport failures only.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Policy bounds a retry loop.
type Policy struct {
	Retries         int           // additional attempts after the first
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration
}

// Default is three retries starting at 250ms.
var Default = Policy{Retries: 3, InitialInterval: 250 * time.Millisecond, MaxInterval: 2 * time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the retries are
// exhausted or ctx is done. notify, if set, sees every failed attempt that
// will be retried.
func Do(ctx context.Context, p Policy, op func() error, notify func(err error, wait time.Duration)) error {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if p.Retries > 0 {
		policy = backoff.WithMaxRetries(bo, uint64(p.Retries))
	}
	b := backoff.WithContext(policy, ctx)

	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
