package config

import (
	"sync/atomic"
	"time"
)

const defaultAttemptTimeout = 10 * time.Second

var attemptTimeout atomic.Int64

func init() {
	attemptTimeout.Store(int64(defaultAttemptTimeout))
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfCheckingPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfCheckingPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// CalculateAttemptTimeout returns the per-attempt delivery timeout; an empty
// timer means the default.
func CalculateAttemptTimeout(timer Timer) time.Duration {
	if timer == (Timer{}) {
		return defaultAttemptTimeout
	}
	return CalculateBetweenTime(timer)
}

func GetAttemptTimeout() time.Duration {
	return time.Duration(attemptTimeout.Load())
}

func setAttemptTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	attemptTimeout.Store(int64(timeout))
}
