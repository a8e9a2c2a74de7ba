package refindex

import (
	"github.com/questlogapp/questlog-server/internal/domain"
)

// Snapshot is one complete set of reference entities produced by a crawl.
// A snapshot is consumed by Rebuild and never mutated afterwards.
type Snapshot struct {
	Games       []*domain.CatalogEntry
	Collections []*domain.Annotation
	Companies   []*domain.Annotation
	Genres      []*domain.Annotation
	Keywords    []*domain.Annotation
	Mappings    []*domain.ExternalGameMapping
}

// FamilyCount returns the number of entities the snapshot carries for a family.
func (s *Snapshot) FamilyCount(family domain.EntityFamily) int {
	switch family {
	case domain.FamilyGames:
		return len(s.Games)
	case domain.FamilyCollections:
		return len(s.Collections)
	case domain.FamilyCompanies:
		return len(s.Companies)
	case domain.FamilyGenres:
		return len(s.Genres)
	case domain.FamilyKeywords:
		return len(s.Keywords)
	case domain.FamilyExternal:
		return len(s.Mappings)
	}
	return 0
}

// MinSizes holds the per-family minimum snapshot sizes. A rebuild that would
// publish fewer entities than the minimum is rejected so that a failed crawl
// cannot silently truncate the catalog.
type MinSizes map[domain.EntityFamily]int

func annotationMap(items []*domain.Annotation) map[uint64]*domain.Annotation {
	m := make(map[uint64]*domain.Annotation, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m
}
