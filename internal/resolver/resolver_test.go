package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/matcher"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/store"
)

// fakeSearcher is a scripted upstream search used for live-fallback tests.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   atomic.Int64
	results []*domain.CatalogEntry
	err     error

	// block, when set, stalls every call until released.
	block chan struct{}
}

func (f *fakeSearcher) SearchByTitle(ctx context.Context, _ ratelimit.Class, _ string, _ int) ([]*domain.CatalogEntry, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CodeTimeout, "search canceled")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	index    *refindex.Index
	store    *store.Store
	searcher *fakeSearcher
}

func newFixture(t *testing.T, opts Options) *pipelineFixture {
	t.Helper()

	st, err := store.NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx := refindex.New(refindex.Options{})
	searcher := &fakeSearcher{}

	if opts.Policy == (matcher.Policy{}) {
		opts.Policy = matcher.Policy{AcceptThreshold: 0.80, Margin: 0.05, Floor: 0.30}
	}

	scorer := matcher.NewScorer(matcher.DefaultWeights(), 3)
	return &pipelineFixture{
		pipeline: New(idx, st, searcher, scorer, opts),
		index:    idx,
		store:    st,
		searcher: searcher,
	}
}

func (f *pipelineFixture) seedCatalog(t *testing.T, games ...*domain.CatalogEntry) {
	t.Helper()
	require.NoError(t, f.index.Rebuild(&refindex.Snapshot{Games: games}))
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.pipeline.Resolve(ctx, Request{Storefront: "origin", StoreGameID: "1"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.pipeline.Resolve(ctx, Request{Storefront: domain.StorefrontSteam})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	// No title and no cached mapping: nothing to match on.
	_, err = f.pipeline.Resolve(ctx, Request{Storefront: domain.StorefrontSteam, StoreGameID: "1"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestResolveFastPathFromIndex(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.index.Seed(&refindex.Snapshot{
		Mappings: []*domain.ExternalGameMapping{
			{Storefront: domain.StorefrontSteam, StoreGameID: "220", CatalogID: 42, Confidence: 1},
		},
	}))

	entry, err := f.pipeline.Resolve(context.Background(), Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		Title:       "Half-Life 2",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(42), entry.ResolvedID)
	assert.Equal(t, 1.0, entry.Confidence)
	assert.Zero(t, f.searcher.calls.Load(), "fast path must not search")
}

func TestResolveFastPathFromPersistedMapping(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.store.PutMapping(ctx, &domain.ExternalGameMapping{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		CatalogID:   7,
		Confidence:  0.9,
	}, false)
	require.NoError(t, err)

	entry, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		Title:       "Half-Life 2",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(7), entry.ResolvedID)
	assert.Zero(t, f.searcher.calls.Load())
}

func TestResolveAcceptWritesMapping(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedCatalog(t,
		&domain.CatalogEntry{ID: 1, Title: "Half-Life 2"},
		&domain.CatalogEntry{ID: 2, Title: "Quake"},
	)
	ctx := context.Background()

	entry, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		Title:       "Half-Life 2",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(1), entry.ResolvedID)
	assert.Greater(t, entry.Confidence, 0.0)

	mapping, err := f.store.GetMapping(ctx, domain.StorefrontSteam, "220")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), mapping.CatalogID)
}

func TestResolveIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedCatalog(t, &domain.CatalogEntry{ID: 1, Title: "Half-Life 2"})
	ctx := context.Background()

	req := Request{Storefront: domain.StorefrontSteam, StoreGameID: "220", Title: "Half-Life 2"}

	first, err := f.pipeline.Resolve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.StatusResolved, first.Status)

	// A repeated request short-circuits on the stored entry.
	second, err := f.pipeline.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedID, second.ResolvedID)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestResolveAmbiguousKeepsShortlist(t *testing.T) {
	f := newFixture(t, Options{})
	// Two entries the query cannot separate.
	f.seedCatalog(t,
		&domain.CatalogEntry{ID: 1, Title: "Portal"},
		&domain.CatalogEntry{ID: 2, Title: "Portal", Aliases: []string{"Portal Classic"}},
	)
	ctx := context.Background()

	entry, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "400",
		Title:       "Portal",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAmbiguous, entry.Status)
	assert.NotEmpty(t, entry.Candidates)
	assert.Zero(t, entry.ResolvedID)

	// Ambiguity never writes a mapping.
	_, err = f.store.GetMapping(ctx, domain.StorefrontSteam, "400")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestResolveFailsWithoutCandidates(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: false})
	f.seedCatalog(t, &domain.CatalogEntry{ID: 1, Title: "Quake"})

	entry, err := f.pipeline.Resolve(context.Background(), Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "999",
		Title:       "Zzyzx Road Simulator",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.True(t, entry.Retryable, "a later crawl may bring the entry")
	assert.Zero(t, f.searcher.calls.Load(), "fallback disabled")
}

func TestResolveLiveFallback(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true})
	f.searcher.results = []*domain.CatalogEntry{{ID: 9, Title: "Obscure Indie Game"}}

	entry, err := f.pipeline.Resolve(context.Background(), Request{
		Storefront:  domain.StorefrontEGS,
		StoreGameID: "abc",
		Title:       "Obscure Indie Game",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(9), entry.ResolvedID)
	assert.Equal(t, int64(1), f.searcher.calls.Load())
}

func TestResolvePermanentUpstreamFailureIsNotRetryable(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true})
	f.searcher.err = errors.UpstreamPermanent("unsupported query")
	ctx := context.Background()

	_, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "1",
		Title:       "Anything",
	})
	require.Error(t, err)

	entry, err := f.store.LibraryEntries.Get(ctx, "steam/1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.False(t, entry.Retryable)
}

func TestResolveTransientUpstreamFailureIsRetryable(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true})
	f.searcher.err = errors.UpstreamTransient("upstream hiccup")
	ctx := context.Background()

	_, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "1",
		Title:       "Anything",
	})
	require.Error(t, err)

	entry, err := f.store.LibraryEntries.Get(ctx, "steam/1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.True(t, entry.Retryable)
}

func TestResolveRateLimitLeavesNoState(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true})
	f.searcher.err = errors.RateLimited("quota exhausted")
	ctx := context.Background()

	_, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "1",
		Title:       "Anything",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	// The identical request stays retryable: no entry state was written.
	_, err = f.store.LibraryEntries.Get(ctx, "steam/1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestResolveDeadlineLeavesNoState(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true, Deadline: 20 * time.Millisecond})
	f.searcher.block = make(chan struct{})
	defer close(f.searcher.block)
	ctx := context.Background()

	_, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "1",
		Title:       "Anything",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout))

	_, err = f.store.LibraryEntries.Get(ctx, "steam/1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestResolveSingleFlight(t *testing.T) {
	f := newFixture(t, Options{LiveFallback: true})
	f.searcher.results = []*domain.CatalogEntry{{ID: 9, Title: "Obscure Indie Game"}}
	f.searcher.block = make(chan struct{})

	req := Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "77",
		Title:       "Obscure Indie Game",
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.LibraryEntry, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.pipeline.Resolve(context.Background(), req)
		}()
	}

	// Wait until at least one caller reached the searcher, then release.
	require.Eventually(t, func() bool { return f.searcher.calls.Load() >= 1 },
		time.Second, time.Millisecond)
	close(f.searcher.block)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, uint64(9), results[i].ResolvedID)
	}
	assert.Equal(t, int64(1), f.searcher.calls.Load(),
		"concurrent callers must collapse into one attempt")
}

func TestResolveAdoptsConcurrentWinner(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedCatalog(t, &domain.CatalogEntry{ID: 1, Title: "Half-Life 2"})
	ctx := context.Background()

	// A mapping written between the fast-path check and the accept would be
	// kept; simulate by pre-writing a different winner and forcing reconcile
	// semantics off.
	_, err := f.store.PutMapping(ctx, &domain.ExternalGameMapping{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		CatalogID:   5,
		Confidence:  1,
	}, false)
	require.NoError(t, err)

	entry, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "220",
		Title:       "Half-Life 2",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), entry.ResolvedID, "stored mapping is authoritative")
}

func TestManualMatch(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedCatalog(t,
		&domain.CatalogEntry{ID: 1, Title: "Portal"},
		&domain.CatalogEntry{ID: 2, Title: "Portal", Aliases: []string{"Portal Classic"}},
	)
	ctx := context.Background()

	// An ambiguous resolution first.
	entry, err := f.pipeline.Resolve(ctx, Request{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "400",
		Title:       "Portal",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusAmbiguous, entry.Status)

	// The user settles it.
	entry, err = f.pipeline.ManualMatch(ctx, domain.StorefrontSteam, "400", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, entry.Status)
	assert.Equal(t, uint64(2), entry.ResolvedID)
	assert.Equal(t, 1.0, entry.Confidence)
	assert.Empty(t, entry.Candidates)

	mapping, err := f.store.GetMapping(ctx, domain.StorefrontSteam, "400")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), mapping.CatalogID)
}

func TestManualMatchOverridesEqualConfidenceMapping(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedCatalog(t, &domain.CatalogEntry{ID: 2, Title: "Portal 2"})
	ctx := context.Background()

	_, err := f.store.PutMapping(ctx, &domain.ExternalGameMapping{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: "620",
		CatalogID:   1,
		Confidence:  1.0,
	}, false)
	require.NoError(t, err)

	entry, err := f.pipeline.ManualMatch(ctx, domain.StorefrontSteam, "620", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.ResolvedID)

	mapping, err := f.store.GetMapping(ctx, domain.StorefrontSteam, "620")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), mapping.CatalogID)
}

func TestManualMatchUnknownCatalogEntry(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.pipeline.ManualMatch(context.Background(), domain.StorefrontSteam, "400", 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
