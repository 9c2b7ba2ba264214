package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ace-loop/trading-ace/internal/ace/aceerr"
	"github.com/stretchr/testify/require"
)

func TestNoCredentialAlwaysDegrades(t *testing.T) {
	c := New("", "claude-sonnet-4-5")
	_, err := c.Generate(context.Background(), "sys", "user", Config{})
	require.True(t, errors.Is(err, aceerr.ErrUpstreamUnavailable))
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	require.True(t, cb.Allow())
	cb.RecordFailure()
	require.True(t, cb.Allow())
	cb.RecordFailure()
	require.False(t, cb.Allow())

	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.Allow(), "should allow a half-open probe after reset timeout")
}

func TestCircuitBreakerRecordSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.RecordFailure()
	require.False(t, cb.Allow())
	cb.RecordSuccess()
	require.True(t, cb.Allow())
}

func TestCooldownExpires(t *testing.T) {
	cd := NewCooldown(20 * time.Millisecond)
	_, cooling := cd.Remaining()
	require.False(t, cooling)

	cd.Trigger()
	_, cooling = cd.Remaining()
	require.True(t, cooling)

	time.Sleep(30 * time.Millisecond)
	_, cooling = cd.Remaining()
	require.False(t, cooling)
}
