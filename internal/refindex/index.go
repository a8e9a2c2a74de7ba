// Package refindex holds the in-memory reference index: canonical catalog
// entries, auxiliary entity tables, and the storefront mapping table, all
// versioned as immutable generations.
//
// Thread safety: reads are lock-free against an atomically published
// generation pointer; rebuilds are serialized and swap a fully built
// generation in one store. Readers never observe a half-built index.
package refindex

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

// DefaultMaxCandidates bounds worst-case scoring cost per resolution.
const DefaultMaxCandidates = 50

// Options configures the reference index.
type Options struct {
	// MaxCandidates caps the candidate set returned by Search.
	MaxCandidates int
	// MinSizes is the per-family minimum snapshot size for rebuilds.
	MinSizes MinSizes
	Logger   *slog.Logger
}

// Index is the generational reference index.
type Index struct {
	gen     atomic.Pointer[generation]
	rebuild sync.Mutex // serializes rebuilds; readers never take it

	version       atomic.Uint64
	maxCandidates int
	minSizes      MinSizes
	logger        *slog.Logger
}

// New creates an empty index. Lookup and Search miss until the first Rebuild.
func New(opts Options) *Index {
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	idx := &Index{
		maxCandidates: maxCandidates,
		minSizes:      opts.MinSizes,
		logger:        logger,
	}

	empty, _ := newGeneration(0, &Snapshot{})
	idx.gen.Store(empty)

	return idx
}

// Version returns the version of the live generation.
func (idx *Index) Version() uint64 {
	return idx.gen.Load().version
}

// CatalogSize returns the number of catalog entries in the live generation.
func (idx *Index) CatalogSize() int {
	return len(idx.gen.Load().games)
}

// Lookup resolves a storefront game id through the mapping table. O(1).
func (idx *Index) Lookup(storefront domain.Storefront, storeGameID string) (uint64, bool) {
	id, ok := idx.gen.Load().mappings[domain.EntryKey(storefront, storeGameID)]
	return id, ok
}

// Search returns catalog entries whose title or aliases share a normalized
// token with the query, capped at MaxCandidates. Candidate generation only.
func (idx *Index) Search(normTitle string) ([]*domain.CatalogEntry, error) {
	return idx.gen.Load().search(normTitle, idx.maxCandidates)
}

// Entry returns the catalog entry for an id in the live generation.
func (idx *Index) Entry(id uint64) (*domain.CatalogEntry, bool) {
	entry, ok := idx.gen.Load().games[id]
	return entry, ok
}

// Collection returns a collection from the auxiliary tables.
func (idx *Index) Collection(id uint64) (*domain.Annotation, bool) {
	a, ok := idx.gen.Load().collections[id]
	return a, ok
}

// Company returns a company from the auxiliary tables.
func (idx *Index) Company(id uint64) (*domain.Annotation, bool) {
	a, ok := idx.gen.Load().companies[id]
	return a, ok
}

// Genre returns a genre from the auxiliary tables.
func (idx *Index) Genre(id uint64) (*domain.Annotation, bool) {
	a, ok := idx.gen.Load().genres[id]
	return a, ok
}

// Keyword returns a keyword from the auxiliary tables.
func (idx *Index) Keyword(id uint64) (*domain.Annotation, bool) {
	a, ok := idx.gen.Load().keywords[id]
	return a, ok
}

// Rebuild validates a complete snapshot and atomically swaps in a new
// generation. On rejection the prior generation stays live.
func (idx *Index) Rebuild(snap *Snapshot) error {
	idx.rebuild.Lock()
	defer idx.rebuild.Unlock()

	for _, family := range domain.Families() {
		if err := idx.validateFamily(family, snap.FamilyCount(family)); err != nil {
			return err
		}
	}

	return idx.publish(snap)
}

// Seed publishes a snapshot without min-size validation. Used once at
// startup to restore persisted mappings before the first crawl; an empty or
// tiny seed is expected on a fresh install.
func (idx *Index) Seed(snap *Snapshot) error {
	idx.rebuild.Lock()
	defer idx.rebuild.Unlock()
	return idx.publish(snap)
}

// RebuildFamily replaces a single entity family, inheriting every other
// family from the live generation. Used by partial refreshes where some
// family crawls failed: whatever succeeded is still swapped in.
func (idx *Index) RebuildFamily(family domain.EntityFamily, snap *Snapshot) error {
	idx.rebuild.Lock()
	defer idx.rebuild.Unlock()

	if err := idx.validateFamily(family, snap.FamilyCount(family)); err != nil {
		return err
	}

	live := idx.gen.Load()
	merged := &Snapshot{}
	for _, f := range domain.Families() {
		if f == family {
			continue
		}
		live.exportFamily(f, merged)
	}

	switch family {
	case domain.FamilyGames:
		merged.Games = snap.Games
	case domain.FamilyCollections:
		merged.Collections = snap.Collections
	case domain.FamilyCompanies:
		merged.Companies = snap.Companies
	case domain.FamilyGenres:
		merged.Genres = snap.Genres
	case domain.FamilyKeywords:
		merged.Keywords = snap.Keywords
	case domain.FamilyExternal:
		merged.Mappings = snap.Mappings
	}

	return idx.publish(merged)
}

func (idx *Index) validateFamily(family domain.EntityFamily, count int) error {
	if min, ok := idx.minSizes[family]; ok && count < min {
		return errors.IndexStale(fmt.Sprintf(
			"family %s snapshot has %d entities, minimum is %d", family, count, min))
	}
	return nil
}

func (idx *Index) publish(snap *Snapshot) error {
	version := idx.version.Add(1)

	gen, err := newGeneration(version, snap)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "build index generation")
	}

	idx.gen.Store(gen)
	idx.logger.Info("published reference index generation",
		"version", version,
		"games", len(gen.games),
		"mappings", len(gen.mappings),
	)

	return nil
}
