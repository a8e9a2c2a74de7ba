package domain

import "time"

// EntryStatus is the resolution state of a library entry.
type EntryStatus string

// Library entry resolution states. Entries are never deleted; they move
// between states as resolution attempts complete.
const (
	StatusUnresolved EntryStatus = "unresolved"
	StatusResolved   EntryStatus = "resolved"
	StatusAmbiguous  EntryStatus = "ambiguous"
	StatusFailed     EntryStatus = "failed"
)

// Pending reports whether the status is one a bulk refresh pass re-resolves.
// Resolved entries are left alone unless a reconcile pass is requested.
func (s EntryStatus) Pending() bool {
	switch s {
	case StatusUnresolved, StatusAmbiguous, StatusFailed:
		return true
	}
	return false
}

// LibraryEntry is a storefront-reported game owned by the user, together
// with its resolution outcome. Mutated only by the resolution pipeline and
// the refresh coordinator.
type LibraryEntry struct {
	Storefront  Storefront  `json:"storefront"`
	StoreGameID string      `json:"store_game_id"`
	RawTitle    string      `json:"raw_title"`
	ResolvedID  uint64      `json:"resolved_id,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
	Status      EntryStatus `json:"status"`

	// Retryable marks a failed entry that a later bulk pass should reattempt.
	Retryable bool `json:"retryable,omitempty"`

	// Candidates holds the top match digests for ambiguous entries so they
	// can be reviewed manually instead of being silently dropped.
	Candidates []MatchCandidate `json:"candidates,omitempty"`

	AddedAt   time.Time `json:"added_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Key returns the storage key identifying this entry. Resolution is
// linearized per key.
func (e *LibraryEntry) Key() string {
	return EntryKey(e.Storefront, e.StoreGameID)
}

// EntryKey builds the canonical storefront+store-id key.
func EntryKey(storefront Storefront, storeGameID string) string {
	return string(storefront) + "/" + storeGameID
}

// ExternalGameMapping is the fast-path cache mapping a storefront game id to
// a canonical catalog id. Write-once per key under normal operation; only an
// explicit reconciliation may overwrite it with a higher-confidence match.
type ExternalGameMapping struct {
	Storefront  Storefront `json:"storefront"`
	StoreGameID string     `json:"store_game_id"`
	CatalogID   uint64     `json:"catalog_id"`
	Confidence  float64    `json:"confidence"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
}

// Key returns the storage key for this mapping.
func (m *ExternalGameMapping) Key() string {
	return EntryKey(m.Storefront, m.StoreGameID)
}
