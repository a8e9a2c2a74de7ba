package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/errors"
)

func TestAcquireWithinBudget(t *testing.T) {
	gate := New(map[Class]Budget{
		ClassInteractive: {RPS: 100, Burst: 10},
	}, Budget{RPS: 1, Burst: 1}, time.Second)

	for range 5 {
		require.NoError(t, gate.Acquire(context.Background(), ClassInteractive))
	}
}

func TestAcquireSaturatedReturnsRateLimited(t *testing.T) {
	// Tiny budget with no burst headroom and a near-zero wait bound.
	gate := New(map[Class]Budget{
		ClassBatch: {RPS: 0.001, Burst: 1},
	}, Budget{RPS: 1, Burst: 1}, 10*time.Millisecond)

	require.NoError(t, gate.Acquire(context.Background(), ClassBatch))

	err := gate.Acquire(context.Background(), ClassBatch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
}

func TestAcquireCanceledContextReturnsTimeout(t *testing.T) {
	gate := New(map[Class]Budget{
		ClassBatch: {RPS: 0.001, Burst: 1},
	}, Budget{RPS: 1, Burst: 1}, time.Minute)

	require.NoError(t, gate.Acquire(context.Background(), ClassBatch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Acquire(ctx, ClassBatch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestClassBudgetsAreIndependent(t *testing.T) {
	gate := New(map[Class]Budget{
		ClassInteractive: {RPS: 0.001, Burst: 1},
		ClassWebhook:     {RPS: 100, Burst: 10},
	}, Budget{RPS: 1, Burst: 1}, 10*time.Millisecond)

	// Exhaust the interactive budget.
	require.NoError(t, gate.Acquire(context.Background(), ClassInteractive))
	err := gate.Acquire(context.Background(), ClassInteractive)
	require.Error(t, err)

	// Webhook traffic is unaffected.
	require.NoError(t, gate.Acquire(context.Background(), ClassWebhook))
}

func TestUnknownClassGetsFallbackBudget(t *testing.T) {
	gate := New(nil, Budget{RPS: 100, Burst: 5}, time.Second)

	require.NoError(t, gate.Acquire(context.Background(), Class("reporting")))
	assert.True(t, gate.Allow(Class("reporting")))
}

func TestAllow(t *testing.T) {
	gate := New(map[Class]Budget{
		ClassBatch: {RPS: 0.001, Burst: 1},
	}, Budget{RPS: 1, Burst: 1}, time.Second)

	assert.True(t, gate.Allow(ClassBatch))
	assert.False(t, gate.Allow(ClassBatch), "burst of one is spent")
}
