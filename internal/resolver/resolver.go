// Package resolver implements the resolution pipeline that turns a
// storefront-reported game into a canonical catalog identity.
//
// The pipeline per request: mapping fast path, title normalization, candidate
// search against the reference index (with optional live fallback), scoring,
// decision, then a write-once mapping cache write. Concurrent requests for the
// same storefront+store-id pair are collapsed into one attempt.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/matcher"
	"github.com/questlogapp/questlog-server/internal/normalize"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/refindex"
	"github.com/questlogapp/questlog-server/internal/store"
)

// Searcher is the upstream search surface the pipeline falls back to when the
// local index yields no candidates. Implemented by the catalog client.
type Searcher interface {
	SearchByTitle(ctx context.Context, class ratelimit.Class, title string, limit int) ([]*domain.CatalogEntry, error)
}

// Request is one resolution attempt.
type Request struct {
	Storefront  domain.Storefront
	StoreGameID string
	Title       string

	// Class attributes the attempt to a rate budget.
	Class ratelimit.Class

	// Reconcile allows overwriting an existing resolution when the new match
	// carries strictly higher confidence. Normal attempts are write-once.
	Reconcile bool
}

// Options configures the pipeline.
type Options struct {
	Policy matcher.Policy
	// Deadline bounds one resolution attempt end to end. Zero disables it.
	Deadline time.Duration
	// MaxCandidates caps the live-fallback candidate fetch.
	MaxCandidates int
	// LiveFallback enables querying the upstream when the local index has no
	// candidates for a title.
	LiveFallback bool
	Logger       *slog.Logger
}

// Pipeline resolves storefront games to catalog identities.
type Pipeline struct {
	index   *refindex.Index
	store   *store.Store
	catalog Searcher
	scorer  *matcher.Scorer

	policy        matcher.Policy
	deadline      time.Duration
	maxCandidates int
	liveFallback  bool
	logger        *slog.Logger

	// group collapses concurrent attempts per entry key into one execution.
	group singleflight.Group
}

// New creates a resolution pipeline.
func New(index *refindex.Index, st *store.Store, catalog Searcher, scorer *matcher.Scorer, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = refindex.DefaultMaxCandidates
	}

	return &Pipeline{
		index:         index,
		store:         st,
		catalog:       catalog,
		scorer:        scorer,
		policy:        opts.Policy,
		deadline:      opts.Deadline,
		maxCandidates: maxCandidates,
		liveFallback:  opts.LiveFallback,
		logger:        logger,
	}
}

// Resolve runs the pipeline for one storefront game and returns the updated
// library entry. Idempotent: a resolved entry short-circuits unless the
// request asks for reconciliation.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (*domain.LibraryEntry, error) {
	if !req.Storefront.Valid() {
		return nil, errors.Validationf("unknown storefront %q", req.Storefront)
	}
	if req.StoreGameID == "" {
		return nil, errors.Validation("store game id is required")
	}
	if req.Class == "" {
		req.Class = ratelimit.ClassInteractive
	}

	key := domain.EntryKey(req.Storefront, req.StoreGameID)

	result, err, shared := p.group.Do(key, func() (any, error) {
		attemptCtx := ctx
		if p.deadline > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.deadline)
			defer cancel()
		}
		return p.resolveOne(attemptCtx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("resolution shared with concurrent caller", "key", key)
	}
	return result.(*domain.LibraryEntry), nil
}

func (p *Pipeline) resolveOne(ctx context.Context, req Request) (*domain.LibraryEntry, error) {
	key := domain.EntryKey(req.Storefront, req.StoreGameID)
	now := time.Now().UTC()

	entry, err := p.store.LibraryEntries.Get(ctx, key)
	switch {
	case err == nil:
		if entry.Status == domain.StatusResolved && !req.Reconcile {
			return entry, nil
		}
		if req.Title != "" {
			entry.RawTitle = req.Title
		}
	case errors.Is(err, errors.ErrNotFound):
		entry = &domain.LibraryEntry{
			Storefront:  req.Storefront,
			StoreGameID: req.StoreGameID,
			RawTitle:    req.Title,
			Status:      domain.StatusUnresolved,
			AddedAt:     now,
		}
	default:
		return nil, err
	}

	// Fast path: the mapping table already knows this pair.
	if !req.Reconcile {
		if catalogID, ok := p.fastPath(ctx, req.Storefront, req.StoreGameID); ok {
			return p.accept(ctx, entry, catalogID, 1.0, false)
		}
	}

	if entry.RawTitle == "" {
		return nil, errors.Validation("title is required for unmapped games")
	}

	normTitle := normalize.Title(normalize.StoreTitle(req.Storefront, entry.RawTitle))
	if normTitle == "" {
		return p.fail(ctx, entry, false)
	}

	candidates, err := p.candidates(ctx, req.Class, entry.RawTitle, normTitle)
	if err != nil {
		return p.finishError(ctx, entry, err)
	}
	if len(candidates) == 0 {
		return p.fail(ctx, entry, true)
	}

	query := matcher.Query{NormTitle: normTitle}
	decision := matcher.Decide(p.scorer.Rank(query, candidates), p.policy)

	switch decision.Outcome {
	case matcher.OutcomeAccept:
		return p.accept(ctx, entry, decision.Winner.CatalogID, decision.Winner.Score, req.Reconcile)
	case matcher.OutcomeAmbiguous:
		entry.Status = domain.StatusAmbiguous
		entry.Candidates = decision.Shortlist
		entry.ResolvedID = 0
		entry.Confidence = 0
		entry.Retryable = false
		return p.persist(ctx, entry)
	default:
		return p.fail(ctx, entry, true)
	}
}

// fastPath checks the live index mapping table, then the persistent mapping
// cache, without touching the upstream.
func (p *Pipeline) fastPath(ctx context.Context, storefront domain.Storefront, storeGameID string) (uint64, bool) {
	if catalogID, ok := p.index.Lookup(storefront, storeGameID); ok {
		return catalogID, true
	}
	mapping, err := p.store.GetMapping(ctx, storefront, storeGameID)
	if err != nil {
		return 0, false
	}
	return mapping.CatalogID, true
}

// candidates queries the reference index and falls back to the upstream when
// the index has nothing for the title.
func (p *Pipeline) candidates(ctx context.Context, class ratelimit.Class, rawTitle, normTitle string) ([]*domain.CatalogEntry, error) {
	local, err := p.index.Search(normTitle)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "index search")
	}
	if len(local) > 0 || !p.liveFallback || p.catalog == nil {
		return local, nil
	}

	p.logger.Debug("index miss, querying upstream", "title", rawTitle)
	return p.catalog.SearchByTitle(ctx, class, rawTitle, p.maxCandidates)
}

// accept records a resolution: the mapping cache first (write-once unless
// reconciling), then the entry. The mapping that survives the cache write is
// authoritative, so a concurrent winner is adopted rather than clobbered.
func (p *Pipeline) accept(ctx context.Context, entry *domain.LibraryEntry, catalogID uint64, confidence float64, overwrite bool) (*domain.LibraryEntry, error) {
	mapping := &domain.ExternalGameMapping{
		Storefront:  entry.Storefront,
		StoreGameID: entry.StoreGameID,
		CatalogID:   catalogID,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
	stored, err := p.store.PutMapping(ctx, mapping, overwrite)
	if err != nil {
		return p.finishError(ctx, entry, err)
	}

	entry.Status = domain.StatusResolved
	entry.ResolvedID = stored.CatalogID
	entry.Confidence = stored.Confidence
	entry.Candidates = nil
	entry.Retryable = false
	return p.persist(ctx, entry)
}

func (p *Pipeline) fail(ctx context.Context, entry *domain.LibraryEntry, retryable bool) (*domain.LibraryEntry, error) {
	entry.Status = domain.StatusFailed
	entry.ResolvedID = 0
	entry.Confidence = 0
	entry.Candidates = nil
	entry.Retryable = retryable
	return p.persist(ctx, entry)
}

// finishError handles a pipeline step failure. Deadline and admission
// failures propagate without touching stored state so the caller can retry
// the identical request; other failures mark the entry failed and record
// whether a later pass should reattempt it.
func (p *Pipeline) finishError(ctx context.Context, entry *domain.LibraryEntry, err error) (*domain.LibraryEntry, error) {
	if errors.Is(err, errors.ErrTimeout) || errors.Is(err, errors.ErrRateLimited) || ctx.Err() != nil {
		if ctx.Err() != nil && !errors.Is(err, errors.ErrRateLimited) {
			return nil, errors.Wrap(err, errors.CodeTimeout, "resolution deadline exceeded")
		}
		return nil, err
	}

	retryable := true
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		retryable = domainErr.Retryable()
	}

	p.logger.Warn("resolution attempt failed",
		"key", entry.Key(),
		"retryable", retryable,
		"error", err,
	)

	// Best effort: losing the status write only delays the retry.
	if _, persistErr := p.fail(context.WithoutCancel(ctx), entry, retryable); persistErr != nil {
		p.logger.Error("failed to persist failed entry", "key", entry.Key(), "error", persistErr)
	}
	return nil, err
}

func (p *Pipeline) persist(ctx context.Context, entry *domain.LibraryEntry) (*domain.LibraryEntry, error) {
	entry.UpdatedAt = time.Now().UTC()
	if err := p.store.LibraryEntries.Upsert(ctx, entry.Key(), entry); err != nil {
		return nil, err
	}

	p.logger.Info("resolution complete",
		"key", entry.Key(),
		"status", entry.Status,
		"catalog_id", entry.ResolvedID,
		"confidence", entry.Confidence,
	)
	return entry, nil
}
