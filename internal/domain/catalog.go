package domain

// CatalogEntry is the canonical game identity sourced from the upstream
// game database. Entries are immutable within a reference-index generation
// and replaced wholesale on rebuild.
type CatalogEntry struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	Aliases     []string `json:"aliases,omitempty"`
	ReleaseYear int      `json:"release_year,omitempty"`

	// Cross references are plain identifier references resolved through the
	// reference index lookup tables, never object pointers.
	CollectionID uint64   `json:"collection_id,omitempty"`
	CompanyIDs   []uint64 `json:"company_ids,omitempty"`
	GenreIDs     []uint64 `json:"genre_ids,omitempty"`
	KeywordIDs   []uint64 `json:"keyword_ids,omitempty"`
}

// Annotation is a named auxiliary entity (collection, company, genre or
// keyword) from the upstream catalog.
type Annotation struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// MatchSignals are the individual scoring signals behind a candidate score.
type MatchSignals struct {
	TitleSimilarity float64 `json:"title_similarity"`
	YearProximity   float64 `json:"year_proximity"`
	CompanyOverlap  float64 `json:"company_overlap"`
	CollectionBonus float64 `json:"collection_bonus"`
}

// MatchCandidate is a scored catalog candidate for a resolution attempt.
// Transient: only the winning candidate (or the ambiguous shortlist) ever
// outlives the attempt.
type MatchCandidate struct {
	CatalogID uint64       `json:"catalog_id"`
	Title     string       `json:"title"`
	Score     float64      `json:"score"`
	Signals   MatchSignals `json:"signals"`
}
