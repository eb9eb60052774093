package retry

import (
	"math"
	"time"
)

// Policy computes backoff delays and expiry timestamps for durable event
// records. It is immutable after construction and safe for concurrent use.
type Policy struct {
	MinRetryDuration time.Duration
	MaxRetryDuration time.Duration
	Multiplier       float64
	// RecoveryDelay is added on top of the computed backoff before an
	// operation is considered abandoned, so recovery never races a normal
	// in-flight retry.
	RecoveryDelay time.Duration
}

// Default returns the policy used when no tunables are configured.
// 2s, 4s, 8s, ... capped at 60s, with a two minute recovery window.
func Default() Policy {
	return Policy{
		MinRetryDuration: 2 * time.Second,
		MaxRetryDuration: 60 * time.Second,
		Multiplier:       2.0,
		RecoveryDelay:    120 * time.Second,
	}
}

// BackoffDelay returns min * multiplier^retryCount capped at max,
// truncated to whole seconds.
func (p Policy) BackoffDelay(retryCount int) time.Duration {
	d := float64(p.MinRetryDuration) * math.Pow(p.Multiplier, float64(retryCount))
	if d > float64(p.MaxRetryDuration) {
		d = float64(p.MaxRetryDuration)
	}
	secs := int64(time.Duration(d) / time.Second)
	return time.Duration(secs) * time.Second
}

// ExpiryTimestamp returns now + BackoffDelay(retryCount) + RecoveryDelay as
// an RFC3339 UTC string, the format persisted on event records.
func (p Policy) ExpiryTimestamp(retryCount int) string {
	return time.Now().UTC().Add(p.BackoffDelay(retryCount) + p.RecoveryDelay).Format(time.RFC3339)
}

// IsExpired reports whether the timestamp has passed. Unparseable
// timestamps count as expired: fail open toward recovery, never toward a
// record silently stuck forever.
func IsExpired(timestamp string) bool {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return true
	}
	return !time.Now().Before(t)
}
