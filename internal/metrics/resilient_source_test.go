package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/internal/resilience"
)

func newResilient(source Source, maxFailures, retries int) *ResilientSource {
	return NewResilientSource(ResilientSourceConfig{
		Source:        source,
		MaxFailures:   maxFailures,
		Timeout:       50 * time.Millisecond,
		RetryAttempts: retries,
		RetryDelay:    time.Millisecond,
	})
}

func TestResilientSource_PassesThrough(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{BaseCPU: 0.5})
	source := newResilient(mock, 3, 2)

	snapshot, err := source.CurrentMetrics(context.Background())
	require.NoError(t, err)
	assert.Greater(t, snapshot.CPU, 0.0)
	assert.Equal(t, resilience.StateClosed, source.CircuitState())
}

func TestResilientSource_RetriesTransientFailure(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{})
	source := newResilient(mock, 5, 3)

	// Fail once, then recover before the retries are exhausted.
	mock.SetShouldFail(ErrCollectionFailed)
	go func() {
		time.Sleep(2 * time.Millisecond)
		mock.SetShouldFail(nil)
	}()

	_, err := source.CurrentMetrics(context.Background())
	assert.NoError(t, err)
}

func TestResilientSource_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{})
	mock.SetShouldFail(ErrCollectionFailed)
	source := newResilient(mock, 2, 1)

	ctx := context.Background()

	_, err := source.CurrentMetrics(ctx)
	assert.ErrorIs(t, err, ErrCollectionFailed)
	_, err = source.CurrentMetrics(ctx)
	assert.ErrorIs(t, err, ErrCollectionFailed)

	// Two consecutive failures trip the breaker; the next call is
	// rejected without touching the backend.
	_, err = source.CurrentMetrics(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, resilience.StateOpen, source.CircuitState())
}

func TestResilientSource_CircuitRecovers(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{})
	mock.SetShouldFail(ErrCollectionFailed)
	source := newResilient(mock, 1, 1)

	ctx := context.Background()

	_, err := source.CurrentMetrics(ctx)
	require.Error(t, err)
	require.Equal(t, resilience.StateOpen, source.CircuitState())

	mock.SetShouldFail(nil)
	time.Sleep(60 * time.Millisecond) // past the breaker timeout

	_, err = source.CurrentMetrics(ctx)
	assert.NoError(t, err)
	assert.Equal(t, resilience.StateHalfOpen, source.CircuitState())

	// Three half-open probes in a row close the circuit again.
	for i := 0; i < 2; i++ {
		_, err = source.CurrentMetrics(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.StateClosed, source.CircuitState())
}

func TestResilientSource_ContextCancellation(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{})
	mock.SetShouldFail(ErrCollectionFailed)
	source := newResilient(mock, 10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.CurrentMetrics(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockSource_FailureInjection(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{})

	boom := errors.New("boom")
	mock.SetShouldFail(boom)
	_, err := mock.CurrentMetrics(context.Background())
	assert.ErrorIs(t, err, boom)

	mock.SetShouldFail(nil)
	snapshot, err := mock.CurrentMetrics(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snapshot.CPU, 0.0)
	assert.LessOrEqual(t, snapshot.CPU, 1.0)
	assert.False(t, snapshot.Timestamp.IsZero())
}

func TestMockSource_UnstableSignal(t *testing.T) {
	mock := NewMockSource(MockSourceConfig{BaseCPU: 0.5, Variance: 0.01})
	mock.SetErrorRate(0.2)

	snapshot, err := mock.CurrentMetrics(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshot.IsUnstable())
}
