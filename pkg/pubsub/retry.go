package pubsub

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryDelay is the fixed pause after a failed poll.
const DefaultRetryDelay = time.Second

// RetryPolicy controls how a Subscription waits after a transport or decode
// failure. The zero value is the documented default: a fixed one-second
// delay, retried forever. Persistent failure is therefore silent and never
// surfaces to the caller of Run.
type RetryPolicy struct {
	// Initial is the first (and, without Max, every) delay.
	Initial time.Duration
	// Max, when greater than Initial, turns on exponential growth capped
	// at Max.
	Max time.Duration
	// Multiplier is the growth factor for exponential delays (default 2).
	Multiplier float64
	// MaxRetries caps consecutive failures; 0 means unlimited. Once
	// exhausted, Run returns the last error.
	MaxRetries int
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultRetryDelay
	}
	var b backoff.BackOff
	if p.Max > initial {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = initial
		exp.MaxInterval = p.Max
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		if p.Multiplier > 1 {
			exp.Multiplier = p.Multiplier
		} else {
			exp.Multiplier = 2
		}
		b = exp
	} else {
		b = backoff.NewConstantBackOff(initial)
	}
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	b.Reset()
	return b
}
