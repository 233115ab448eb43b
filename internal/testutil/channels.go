// Package testutil provides shared test helpers for the recorder packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// pollInterval is how often Eventually re-checks its condition.
	pollInterval = 5 * time.Millisecond
)

// ReceiveWithin returns the next value from ch or fails after timeout.
func ReceiveWithin[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, "timed out waiting for value")
		var zero T
		return zero
	}
}

// Eventually polls cond until it returns true or fails after DefaultTestTimeout.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, DefaultTestTimeout, pollInterval, msg)
}
