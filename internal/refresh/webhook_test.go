package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/matcher"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/resolver"
	"github.com/questlogapp/questlog-server/internal/store"
)

// newWebhookFixture builds a coordinator whose pipeline resolves purely
// against a seeded local index; the upstream client is never touched.
func newWebhookFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	st, err := store.NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx := refindex.New(refindex.Options{})
	require.NoError(t, idx.Rebuild(&refindex.Snapshot{
		Games: []*domain.CatalogEntry{
			{ID: 1, Title: "Half-Life 2"},
			{ID: 2, Title: "Portal"},
		},
	}))

	scorer := matcher.NewScorer(matcher.DefaultWeights(), 3)
	pipeline := resolver.New(idx, st, nil, scorer, resolver.Options{
		Policy: matcher.Policy{AcceptThreshold: 0.80, Margin: 0.05, Floor: 0.30},
	})

	return &coordinatorFixture{
		coordinator: New(st, idx, nil, pipeline, Options{WebhookDedupTTL: time.Hour}),
		store:       st,
		index:       idx,
	}
}

func TestHandleWebhookValidation(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.HandleWebhook(ctx, WebhookEvent{
		Storefront: "origin",
		Entries:    []WebhookEntry{{StoreGameID: "1"}},
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.coordinator.HandleWebhook(ctx, WebhookEvent{
		Storefront: domain.StorefrontSteam,
	})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestHandleWebhookResolvesEntries(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	result, err := f.coordinator.HandleWebhook(ctx, WebhookEvent{
		IdempotencyKey: "delivery-1",
		Storefront:     domain.StorefrontSteam,
		Entries: []WebhookEntry{
			{StoreGameID: "220", Title: "Half-Life 2"},
			{StoreGameID: "400", Title: "Portal"},
			{StoreGameID: "", Title: "Missing ID"},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 1, result.Failed, "an entry without a store id is counted failed")

	entry, err := f.store.LibraryEntries.Get(ctx, "steam/220")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(1), entry.ResolvedID)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	event := WebhookEvent{
		IdempotencyKey: "delivery-1",
		Storefront:     domain.StorefrontSteam,
		Entries:        []WebhookEntry{{StoreGameID: "220", Title: "Half-Life 2"}},
	}

	first, err := f.coordinator.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Accepted)

	second, err := f.coordinator.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Zero(t, second.Accepted)
	assert.Zero(t, second.Failed)
}

func TestHandleWebhookGeneratedKey(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	// Without an idempotency key each delivery is unique by definition.
	event := WebhookEvent{
		Storefront: domain.StorefrontSteam,
		Entries:    []WebhookEntry{{StoreGameID: "220", Title: "Half-Life 2"}},
	}

	first, err := f.coordinator.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.coordinator.HandleWebhook(ctx, event)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
}

// saturatedSearcher stands in for an upstream behind an exhausted admission
// gate: every live search fails with RateLimited.
type saturatedSearcher struct{}

func (saturatedSearcher) SearchByTitle(context.Context, ratelimit.Class, string, int) ([]*domain.CatalogEntry, error) {
	return nil, errors.RateLimited("admission gate saturated")
}

func TestHandleWebhookKeepsEntryWhenGateSaturated(t *testing.T) {
	st, err := store.NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx := refindex.New(refindex.Options{})
	require.NoError(t, idx.Rebuild(&refindex.Snapshot{
		Games: []*domain.CatalogEntry{{ID: 1, Title: "Half-Life 2"}},
	}))

	scorer := matcher.NewScorer(matcher.DefaultWeights(), 3)
	pipeline := resolver.New(idx, st, saturatedSearcher{}, scorer, resolver.Options{
		Policy:       matcher.Policy{AcceptThreshold: 0.80, Margin: 0.05, Floor: 0.30},
		LiveFallback: true,
	})
	coordinator := New(st, idx, nil, pipeline, Options{WebhookDedupTTL: time.Hour})
	ctx := context.Background()

	result, err := coordinator.HandleWebhook(ctx, WebhookEvent{
		IdempotencyKey: "delivery-3",
		Storefront:     domain.StorefrontSteam,
		Entries:        []WebhookEntry{{StoreGameID: "400", Title: "Uncharted Depths"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Accepted)

	// The resolution was cut short without a persisted outcome, but the
	// reported game must survive for the next bulk pass even though the
	// delivery replay will be deduplicated.
	entry, err := st.LibraryEntries.Get(ctx, "steam/400")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnresolved, entry.Status)
	assert.Equal(t, "Uncharted Depths", entry.RawTitle)
}

func TestHandleWebhookUnmatchedEntryIsKeptForRetry(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	// The unknown title cannot be matched; the entry lands in the library as
	// failed-retryable and the delivery still processes the rest.
	result, err := f.coordinator.HandleWebhook(ctx, WebhookEvent{
		IdempotencyKey: "delivery-2",
		Storefront:     domain.StorefrontGOG,
		Entries: []WebhookEntry{
			{StoreGameID: "a", Title: "Completely Unknown Game"},
			{StoreGameID: "b", Title: "Portal"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Accepted)
	assert.Zero(t, result.Failed)

	entry, err := f.store.LibraryEntries.Get(ctx, "gog/a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.True(t, entry.Retryable, "a later bulk pass reattempts it")

	entry, err = f.store.LibraryEntries.Get(ctx, "gog/b")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, entry.Status)
}
