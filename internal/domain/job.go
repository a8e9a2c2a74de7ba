package domain

import "time"

// JobState is the lifecycle state of a refresh job.
type JobState string

// Refresh job states. Scheduled -> Running -> {Succeeded, PartiallyFailed, Failed}.
const (
	JobScheduled       JobState = "scheduled"
	JobRunning         JobState = "running"
	JobSucceeded       JobState = "succeeded"
	JobPartiallyFailed JobState = "partially_failed"
	JobFailed          JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobPartiallyFailed, JobFailed:
		return true
	}
	return false
}

// EntityFamily names one reference entity family refreshed from upstream.
// Families are crawled and validated independently.
type EntityFamily string

// Reference entity families.
const (
	FamilyGames       EntityFamily = "games"
	FamilyCollections EntityFamily = "collections"
	FamilyCompanies   EntityFamily = "companies"
	FamilyGenres      EntityFamily = "genres"
	FamilyKeywords    EntityFamily = "keywords"
	FamilyExternal    EntityFamily = "external_games"
)

// Families lists all entity families in crawl order. Games last so that the
// catalog swap happens after its lookup tables are fresh.
func Families() []EntityFamily {
	return []EntityFamily{
		FamilyCollections,
		FamilyCompanies,
		FamilyGenres,
		FamilyKeywords,
		FamilyExternal,
		FamilyGames,
	}
}

// FamilyResult records the outcome of refreshing one entity family.
type FamilyResult struct {
	Family  EntityFamily `json:"family"`
	Count   int          `json:"count"`
	Error   string       `json:"error,omitempty"`
	Skipped bool         `json:"skipped,omitempty"`
}

// RefreshJob tracks a bulk refresh pass over the reference entities and the
// pending portion of the library.
type RefreshJob struct {
	ID         string         `json:"id"`
	State      JobState       `json:"state"`
	Reconcile  bool           `json:"reconcile,omitempty"`
	Families   []FamilyResult `json:"families,omitempty"`
	Reresolved int            `json:"reresolved,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}
