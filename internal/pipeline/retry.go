package pipeline

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds the attempts of a single stage. The wait after a failed
// attempt starts at InitialBackoff and doubles up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff < 0 {
		p.MaxBackoff = 0
	}
	return p
}

// backoff returns a fresh backoff allowing MaxAttempts-1 retries.
func (p RetryPolicy) backoff() retry.Backoff {
	p = p.normalize()

	retries := uint64(p.MaxAttempts - 1)
	if p.InitialBackoff == 0 {
		return retry.WithMaxRetries(retries, retry.BackoffFunc(func() (time.Duration, bool) { return 0, false }))
	}

	b := retry.NewExponential(p.InitialBackoff)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(retries, b)
}
