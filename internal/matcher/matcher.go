// Package matcher implements candidate scoring and the accept/ambiguous/fail
// decision policy for title resolution. It is pure logic: candidates come
// from the reference index, persistence belongs to the caller.
package matcher

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/normalize"
)

// Query carries the normalized inputs of one resolution attempt. Company and
// collection metadata is typically absent for bare storefront titles and only
// present during reconciliation passes.
type Query struct {
	NormTitle    string
	Year         int
	CompanyIDs   []uint64
	CollectionID uint64
}

// Weights are the fixed linear-combination weights for the scoring signals.
// Title similarity is the primary signal; everything else is a bonus.
type Weights struct {
	Title      float64
	Year       float64
	Company    float64
	Collection float64
}

// DefaultWeights keeps title similarity dominant.
func DefaultWeights() Weights {
	return Weights{Title: 0.80, Year: 0.10, Company: 0.06, Collection: 0.04}
}

// Scorer scores catalog candidates against a query.
type Scorer struct {
	weights Weights

	// yearWindow is the distance in years beyond which the year proximity
	// bonus decays to zero. Within one year the bonus is full.
	yearWindow int
}

// NewScorer creates a scorer. A yearWindow of zero disables the year signal.
func NewScorer(weights Weights, yearWindow int) *Scorer {
	return &Scorer{weights: weights, yearWindow: yearWindow}
}

// Score produces a MatchCandidate for one catalog entry.
func (s *Scorer) Score(q Query, cand *domain.CatalogEntry) domain.MatchCandidate {
	signals := domain.MatchSignals{
		TitleSimilarity: s.titleSimilarity(q.NormTitle, cand),
		YearProximity:   s.yearProximity(q.Year, cand.ReleaseYear),
		CompanyOverlap:  companyOverlap(q.CompanyIDs, cand.CompanyIDs),
	}
	if q.CollectionID != 0 && q.CollectionID == cand.CollectionID {
		signals.CollectionBonus = 1
	}

	score := s.weights.Title*signals.TitleSimilarity +
		s.weights.Year*signals.YearProximity +
		s.weights.Company*signals.CompanyOverlap +
		s.weights.Collection*signals.CollectionBonus

	return domain.MatchCandidate{
		CatalogID: cand.ID,
		Title:     cand.Title,
		Score:     clamp01(score),
		Signals:   signals,
	}
}

// Rank scores all candidates and returns them ordered by descending score.
func (s *Scorer) Rank(q Query, cands []*domain.CatalogEntry) []domain.MatchCandidate {
	ranked := make([]domain.MatchCandidate, 0, len(cands))
	for _, cand := range cands {
		ranked = append(ranked, s.Score(q, cand))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// titleSimilarity is a normalized-edit-distance score in [0,1], taking the
// maximum over the primary title and every alias.
func (s *Scorer) titleSimilarity(normQuery string, cand *domain.CatalogEntry) float64 {
	best := similarity(normQuery, normalize.Title(cand.Title))
	for _, alias := range cand.Aliases {
		if sim := similarity(normQuery, normalize.Title(alias)); sim > best {
			best = sim
		}
	}
	return best
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// yearProximity returns the full bonus within one year and decays linearly
// to zero at the window edge. Unknown years contribute nothing.
func (s *Scorer) yearProximity(queryYear, candYear int) float64 {
	if s.yearWindow <= 0 || queryYear == 0 || candYear == 0 {
		return 0
	}
	diff := queryYear - candYear
	if diff < 0 {
		diff = -diff
	}
	if diff <= 1 {
		return 1
	}
	if diff >= s.yearWindow {
		return 0
	}
	return 1 - float64(diff-1)/float64(s.yearWindow-1)
}

// companyOverlap is the fraction of query companies present on the candidate.
func companyOverlap(query, cand []uint64) float64 {
	if len(query) == 0 || len(cand) == 0 {
		return 0
	}
	set := make(map[uint64]bool, len(cand))
	for _, id := range cand {
		set[id] = true
	}
	shared := 0
	for _, id := range query {
		if set[id] {
			shared++
		}
	}
	return float64(shared) / float64(len(query))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
