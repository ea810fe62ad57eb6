package config

import (
	"testing"
	"time"
)

func TestCalculateMillisecondsOfCheckingPeriod(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMillisecondsOfCheckingPeriod(timer); got != want {
		t.Fatalf("CalculateMillisecondsOfCheckingPeriod returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestCalculateAttemptTimeout(t *testing.T) {
	if got := CalculateAttemptTimeout(Timer{}); got != 10*time.Second {
		t.Fatalf("CalculateAttemptTimeout(empty) = %s, want 10s", got)
	}
	if got := CalculateAttemptTimeout(Timer{Seconds: 3}); got != 3*time.Second {
		t.Fatalf("CalculateAttemptTimeout(3s) = %s, want 3s", got)
	}
}

func TestSetAttemptTimeout(t *testing.T) {
	orig := GetAttemptTimeout()
	t.Cleanup(func() { attemptTimeout.Store(int64(orig)) })

	setAttemptTimeout(4 * time.Second)
	if got := GetAttemptTimeout(); got != 4*time.Second {
		t.Fatalf("GetAttemptTimeout = %s, want 4s", got)
	}

	setAttemptTimeout(0)
	if got := GetAttemptTimeout(); got != defaultAttemptTimeout {
		t.Fatalf("GetAttemptTimeout after zero = %s, want default", got)
	}
}
