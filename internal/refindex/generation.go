package refindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/normalize"
)

// generation is one immutable snapshot of the reference data. Readers that
// obtained a generation keep using it even while a newer one is published;
// superseded generations are simply garbage collected once the last reader
// drops them (the title index is memory-only and holds no file resources).
type generation struct {
	version uint64

	games       map[uint64]*domain.CatalogEntry
	collections map[uint64]*domain.Annotation
	companies   map[uint64]*domain.Annotation
	genres      map[uint64]*domain.Annotation
	keywords    map[uint64]*domain.Annotation

	// mappings is the storefront+store-id fast path: EntryKey -> catalog id.
	mappings map[string]uint64

	// titles is a memory-only bleve index over normalized titles and aliases
	// used for candidate generation.
	titles bleve.Index
}

// titleDoc is the indexed shape of one catalog entry.
type titleDoc struct {
	Title string `json:"title"`
	Alias string `json:"alias,omitempty"`
}

const indexBatchSize = 500

// newGeneration assembles a generation from a snapshot.
func newGeneration(version uint64, snap *Snapshot) (*generation, error) {
	games := make(map[uint64]*domain.CatalogEntry, len(snap.Games))
	for _, game := range snap.Games {
		games[game.ID] = game
	}

	mappings := make(map[string]uint64, len(snap.Mappings))
	for _, m := range snap.Mappings {
		mappings[m.Key()] = m.CatalogID
	}

	titles, err := buildTitleIndex(snap.Games)
	if err != nil {
		return nil, err
	}

	return &generation{
		version:     version,
		games:       games,
		collections: annotationMap(snap.Collections),
		companies:   annotationMap(snap.Companies),
		genres:      annotationMap(snap.Genres),
		keywords:    annotationMap(snap.Keywords),
		mappings:    mappings,
		titles:      titles,
	}, nil
}

func buildTitleIndex(games []*domain.CatalogEntry) (bleve.Index, error) {
	index, err := bleve.NewMemOnly(buildTitleMapping())
	if err != nil {
		return nil, fmt.Errorf("create title index: %w", err)
	}

	for i := 0; i < len(games); i += indexBatchSize {
		end := min(i+indexBatchSize, len(games))

		batch := index.NewBatch()
		for _, game := range games[i:end] {
			aliases := make([]string, 0, len(game.Aliases))
			for _, alias := range game.Aliases {
				aliases = append(aliases, normalize.Title(alias))
			}
			doc := titleDoc{
				Title: normalize.Title(game.Title),
				Alias: strings.Join(aliases, " "),
			}
			if err := batch.Index(strconv.FormatUint(game.ID, 10), doc); err != nil {
				return nil, fmt.Errorf("batch index %d: %w", game.ID, err)
			}
		}

		if err := index.Batch(batch); err != nil {
			return nil, fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return index, nil
}

// search returns catalog entries sharing at least one normalized token with
// the query, capped at limit. Candidate generation only; ranking belongs to
// the matcher.
func (g *generation) search(normTitle string, limit int) ([]*domain.CatalogEntry, error) {
	if strings.TrimSpace(normTitle) == "" {
		return nil, nil
	}

	titleQuery := bleve.NewMatchQuery(normTitle)
	titleQuery.SetField("title")
	aliasQuery := bleve.NewMatchQuery(normTitle)
	aliasQuery.SetField("alias")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(titleQuery, aliasQuery), limit, 0, false)

	result, err := g.titles.Search(req)
	if err != nil {
		return nil, fmt.Errorf("title search: %w", err)
	}

	entries := make([]*domain.CatalogEntry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		if entry, ok := g.games[id]; ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// exportFamily copies one entity family from this generation into a
// snapshot, used when a partial refresh replaces only some families.
func (g *generation) exportFamily(family domain.EntityFamily, snap *Snapshot) {
	switch family {
	case domain.FamilyGames:
		snap.Games = make([]*domain.CatalogEntry, 0, len(g.games))
		for _, game := range g.games {
			snap.Games = append(snap.Games, game)
		}
	case domain.FamilyCollections:
		snap.Collections = exportAnnotations(g.collections)
	case domain.FamilyCompanies:
		snap.Companies = exportAnnotations(g.companies)
	case domain.FamilyGenres:
		snap.Genres = exportAnnotations(g.genres)
	case domain.FamilyKeywords:
		snap.Keywords = exportAnnotations(g.keywords)
	case domain.FamilyExternal:
		snap.Mappings = make([]*domain.ExternalGameMapping, 0, len(g.mappings))
		for key, catalogID := range g.mappings {
			storefront, storeGameID, ok := strings.Cut(key, "/")
			if !ok {
				continue
			}
			snap.Mappings = append(snap.Mappings, &domain.ExternalGameMapping{
				Storefront:  domain.Storefront(storefront),
				StoreGameID: storeGameID,
				CatalogID:   catalogID,
			})
		}
	}
}

func exportAnnotations(m map[uint64]*domain.Annotation) []*domain.Annotation {
	items := make([]*domain.Annotation, 0, len(m))
	for _, item := range m {
		items = append(items, item)
	}
	return items
}
