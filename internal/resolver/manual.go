package resolver

import (
	"context"
	"time"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

// ManualMatch pins a storefront game to a catalog entry chosen by the user,
// typically to settle an ambiguous resolution. The mapping is written with
// full confidence and overrides whatever the pipeline decided.
func (p *Pipeline) ManualMatch(ctx context.Context, storefront domain.Storefront, storeGameID string, catalogID uint64) (*domain.LibraryEntry, error) {
	if !storefront.Valid() {
		return nil, errors.Validationf("unknown storefront %q", storefront)
	}
	if _, ok := p.index.Entry(catalogID); !ok {
		return nil, errors.NotFoundf("catalog entry %d not found", catalogID)
	}

	key := domain.EntryKey(storefront, storeGameID)
	now := time.Now().UTC()

	entry, err := p.store.LibraryEntries.Get(ctx, key)
	if errors.Is(err, errors.ErrNotFound) {
		entry = &domain.LibraryEntry{
			Storefront:  storefront,
			StoreGameID: storeGameID,
			Status:      domain.StatusUnresolved,
			AddedAt:     now,
		}
	} else if err != nil {
		return nil, err
	}

	mapping := &domain.ExternalGameMapping{
		Storefront:  storefront,
		StoreGameID: storeGameID,
		CatalogID:   catalogID,
		Confidence:  1.0,
		CreatedAt:   now,
	}
	// A manual pin replaces the cached mapping unconditionally, including
	// same-confidence mappings pointing at a different catalog entry.
	if err := p.store.DeleteMapping(ctx, storefront, storeGameID); err != nil {
		return nil, err
	}
	if _, err := p.store.PutMapping(ctx, mapping, true); err != nil {
		return nil, err
	}

	entry.Status = domain.StatusResolved
	entry.ResolvedID = catalogID
	entry.Confidence = 1.0
	entry.Candidates = nil
	entry.Retryable = false
	return p.persist(ctx, entry)
}
