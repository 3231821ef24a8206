package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// MaxReconnectAttempts is how many automatic reconnects follow a drop before the
	// manager gives up and reports StateFailed.
	MaxReconnectAttempts = 10

	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// NewReconnectBackOff returns the reconnect schedule: 1s doubling to a 30s ceiling,
// no jitter, backoff.Stop after MaxReconnectAttempts delays.
func NewReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = reconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxReconnectAttempts)
}
