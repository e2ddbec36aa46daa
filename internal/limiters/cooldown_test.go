package limiters

import (
	"testing"
	"time"
)

func TestCooldownRetryAfter(t *testing.T) {
	c, err := NewCooldown(time.Minute)
	if err != nil {
		t.Fatalf("new cooldown: %v", err)
	}
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		blocked bool
		secs    int
	}{
		{"same instant", 0, true, 60},
		{"ten seconds", 10 * time.Second, true, 50},
		{"fractional rounds up", 10*time.Second + 300*time.Millisecond, true, 50},
		{"last millisecond", time.Minute - time.Millisecond, true, 1},
		{"exactly at window", time.Minute, false, 0},
		{"well after", 5 * time.Minute, false, 0},
		{"future created", -5 * time.Second, true, 60},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			secs, blocked := c.RetryAfter(created, created.Add(tc.elapsed))
			if blocked != tc.blocked || secs != tc.secs {
				t.Fatalf("expected (%d, %v), got (%d, %v)", tc.secs, tc.blocked, secs, blocked)
			}
		})
	}
}

func TestNewCooldownRejectsNonPositive(t *testing.T) {
	if _, err := NewCooldown(0); err == nil {
		t.Fatal("expected zero window rejected")
	}
}
