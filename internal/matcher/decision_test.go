package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/normalize"
)

func testPolicy() Policy {
	return Policy{AcceptThreshold: 0.80, Margin: 0.05, Floor: 0.30}
}

func ranked(scores ...float64) []domain.MatchCandidate {
	cands := make([]domain.MatchCandidate, 0, len(scores))
	for i, s := range scores {
		cands = append(cands, domain.MatchCandidate{CatalogID: uint64(i + 1), Score: s})
	}
	return cands
}

func TestDecideAccept(t *testing.T) {
	decision := Decide(ranked(0.95, 0.60), testPolicy())

	require.Equal(t, OutcomeAccept, decision.Outcome)
	assert.Equal(t, uint64(1), decision.Winner.CatalogID)
}

func TestDecideAcceptSingleCandidate(t *testing.T) {
	decision := Decide(ranked(0.85), testPolicy())

	require.Equal(t, OutcomeAccept, decision.Outcome)
	assert.Equal(t, uint64(1), decision.Winner.CatalogID)
}

func TestDecideAmbiguousWithinMargin(t *testing.T) {
	// Both clear the threshold but the lead is under the margin.
	decision := Decide(ranked(0.90, 0.88), testPolicy())

	require.Equal(t, OutcomeAmbiguous, decision.Outcome)
	assert.Len(t, decision.Shortlist, 2)
}

func TestDecideAmbiguousBelowThreshold(t *testing.T) {
	// Viable candidates exist but none clears the accept threshold.
	decision := Decide(ranked(0.70, 0.40), testPolicy())

	require.Equal(t, OutcomeAmbiguous, decision.Outcome)
	assert.Len(t, decision.Shortlist, 2)
}

func TestDecideMarginBoundary(t *testing.T) {
	// A lead of exactly the margin accepts.
	decision := Decide(ranked(0.90, 0.85), testPolicy())
	assert.Equal(t, OutcomeAccept, decision.Outcome)
}

func TestDecideFailBelowFloor(t *testing.T) {
	decision := Decide(ranked(0.20, 0.10), testPolicy())

	assert.Equal(t, OutcomeFail, decision.Outcome)
	assert.Empty(t, decision.Shortlist)
}

func TestDecideFailNoCandidates(t *testing.T) {
	decision := Decide(nil, testPolicy())
	assert.Equal(t, OutcomeFail, decision.Outcome)
}

func TestDecideFloorPrunesRunnerUp(t *testing.T) {
	// The runner-up is below the floor, so the top candidate wins on
	// threshold alone even though the raw gap check would not matter.
	decision := Decide(ranked(0.85, 0.10), testPolicy())

	require.Equal(t, OutcomeAccept, decision.Outcome)
	assert.Equal(t, uint64(1), decision.Winner.CatalogID)
}

func TestDecideShortlistBounded(t *testing.T) {
	decision := Decide(ranked(0.70, 0.68, 0.66, 0.64, 0.62, 0.60, 0.58), testPolicy())

	require.Equal(t, OutcomeAmbiguous, decision.Outcome)
	assert.Len(t, decision.Shortlist, maxShortlist)
	// Highest-ranked candidates are retained.
	assert.Equal(t, uint64(1), decision.Shortlist[0].CatalogID)
}

func TestRankAndDecideAcceptsSequelOverBaseTitle(t *testing.T) {
	scorer := NewScorer(DefaultWeights(), 3)
	catalog := []*domain.CatalogEntry{
		{ID: 7, Title: "Half-Life 2", Aliases: []string{"HL2"}},
		{ID: 9, Title: "Half-Life"},
	}

	query := Query{NormTitle: normalize.Title("Half Life 2")}
	decision := Decide(scorer.Rank(query, catalog), testPolicy())

	require.Equal(t, OutcomeAccept, decision.Outcome)
	assert.Equal(t, uint64(7), decision.Winner.CatalogID)
	assert.GreaterOrEqual(t, decision.Winner.Score, testPolicy().AcceptThreshold)
}
