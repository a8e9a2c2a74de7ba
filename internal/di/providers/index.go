package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/logger"
	"github.com/questlogapp/questlog-server/internal/refindex"
)

// ProvideReferenceIndex provides the generational reference index, seeded
// with previously persisted mappings so the fast path works before the first
// crawl completes.
func ProvideReferenceIndex(i do.Injector) (*refindex.Index, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	minSizes := refindex.MinSizes{
		domain.FamilyGames:       cfg.Refresh.MinCatalogSize,
		domain.FamilyCollections: cfg.Refresh.MinFamilySize,
		domain.FamilyCompanies:   cfg.Refresh.MinFamilySize,
		domain.FamilyGenres:      cfg.Refresh.MinFamilySize,
		domain.FamilyKeywords:    cfg.Refresh.MinFamilySize,
		domain.FamilyExternal:    cfg.Refresh.MinFamilySize,
	}

	idx := refindex.New(refindex.Options{
		MaxCandidates: cfg.Resolver.MaxCandidates,
		MinSizes:      minSizes,
		Logger:        log.Logger,
	})

	// Restore the mapping fast path from the persistent cache so resolution
	// works before the first crawl lands.
	snap := &refindex.Snapshot{}
	for mapping, err := range storeHandle.ListMappings(context.Background()) {
		if err != nil {
			log.Warn("failed to seed mappings from store", "error", err)
			break
		}
		snap.Mappings = append(snap.Mappings, mapping)
	}
	if len(snap.Mappings) > 0 {
		if err := idx.Seed(snap); err != nil {
			log.Warn("failed to seed reference index", "error", err)
		} else {
			log.Info("reference index seeded from persisted mappings", "mappings", len(snap.Mappings))
		}
	}

	return idx, nil
}
