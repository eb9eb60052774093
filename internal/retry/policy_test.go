package retry

import (
	"testing"
	"time"
)

func TestPolicy_BackoffDelay(t *testing.T) {
	p := Default()

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second}, // 64s capped at max
		{10, 60 * time.Second},
	}

	for _, c := range cases {
		if got := p.BackoffDelay(c.retryCount); got != c.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestPolicy_BackoffMonotonic(t *testing.T) {
	p := Default()
	for n := 0; n < 20; n++ {
		if p.BackoffDelay(n+1) < p.BackoffDelay(n) {
			t.Errorf("backoff decreased between attempt %d and %d", n, n+1)
		}
	}
}

func TestPolicy_BackoffTruncatesToSeconds(t *testing.T) {
	p := Policy{
		MinRetryDuration: 1500 * time.Millisecond,
		MaxRetryDuration: 60 * time.Second,
		Multiplier:       2.0,
	}
	// 1.5s truncates to 1s, 3s stays 3s.
	if got := p.BackoffDelay(0); got != 1*time.Second {
		t.Errorf("BackoffDelay(0) = %v, want 1s", got)
	}
	if got := p.BackoffDelay(1); got != 3*time.Second {
		t.Errorf("BackoffDelay(1) = %v, want 3s", got)
	}
}

func TestPolicy_ExpiryComposition(t *testing.T) {
	p := Default()

	for n := 0; n <= 6; n++ {
		ts := p.ExpiryTimestamp(n)
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			t.Fatalf("ExpiryTimestamp(%d) not RFC3339: %v", n, err)
		}

		want := p.BackoffDelay(n) + p.RecoveryDelay
		got := time.Until(parsed)
		// RFC3339 truncates sub-second precision, allow 2s tolerance.
		if got < want-2*time.Second || got > want+2*time.Second {
			t.Errorf("ExpiryTimestamp(%d) offset = %v, want ~%v", n, got, want)
		}
	}
}

func TestIsExpired(t *testing.T) {
	past := time.Now().UTC().Add(-1 * time.Second).Format(time.RFC3339)
	future := time.Now().UTC().Add(1 * time.Hour).Format(time.RFC3339)

	if !IsExpired(past) {
		t.Error("past timestamp should be expired")
	}
	if IsExpired(future) {
		t.Error("future timestamp should not be expired")
	}
	if !IsExpired("not-a-timestamp") {
		t.Error("unparseable timestamp should count as expired")
	}
	if !IsExpired("") {
		t.Error("empty timestamp should count as expired")
	}
}
