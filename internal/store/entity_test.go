package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(storeGameID string, status domain.EntryStatus) *domain.LibraryEntry {
	return &domain.LibraryEntry{
		Storefront:  domain.StorefrontSteam,
		StoreGameID: storeGameID,
		RawTitle:    "Half-Life 2",
		Status:      status,
	}
}

func TestEntityCreateAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := testEntry("220", domain.StatusUnresolved)
	require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))

	got, err := s.LibraryEntries.Get(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, "Half-Life 2", got.RawTitle)
	assert.Equal(t, domain.StatusUnresolved, got.Status)
}

func TestEntityCreateDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := testEntry("220", domain.StatusUnresolved)
	require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))

	err := s.LibraryEntries.Create(ctx, entry.Key(), entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestEntityGetMissing(t *testing.T) {
	s := testStore(t)

	_, err := s.LibraryEntries.Get(context.Background(), "steam/999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEntityUpdateMissing(t *testing.T) {
	s := testStore(t)

	entry := testEntry("220", domain.StatusUnresolved)
	err := s.LibraryEntries.Update(context.Background(), entry.Key(), entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEntityUpsertAndExists(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := testEntry("220", domain.StatusUnresolved)

	exists, err := s.LibraryEntries.Exists(ctx, entry.Key())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.LibraryEntries.Upsert(ctx, entry.Key(), entry))

	entry.Status = domain.StatusResolved
	entry.ResolvedID = 42
	require.NoError(t, s.LibraryEntries.Upsert(ctx, entry.Key(), entry))

	got, err := s.LibraryEntries.Get(ctx, entry.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	assert.Equal(t, uint64(42), got.ResolvedID)
}

func TestEntityDeleteIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := testEntry("220", domain.StatusUnresolved)
	require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))

	require.NoError(t, s.LibraryEntries.Delete(ctx, entry.Key()))
	require.NoError(t, s.LibraryEntries.Delete(ctx, entry.Key()))

	_, err := s.LibraryEntries.Get(ctx, entry.Key())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEntityStatusIndexFollowsUpdates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		entry := testEntry(id, domain.StatusUnresolved)
		require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))
	}

	count, err := s.LibraryEntries.CountByIndex(ctx, "status", string(domain.StatusUnresolved))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Resolving one entry moves it between index values.
	resolved := testEntry("2", domain.StatusResolved)
	require.NoError(t, s.LibraryEntries.Update(ctx, resolved.Key(), resolved))

	count, err = s.LibraryEntries.CountByIndex(ctx, "status", string(domain.StatusUnresolved))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var resolvedIDs []string
	for entry, err := range s.LibraryEntries.ListByIndex(ctx, "status", string(domain.StatusResolved)) {
		require.NoError(t, err)
		resolvedIDs = append(resolvedIDs, entry.StoreGameID)
	}
	assert.Equal(t, []string{"2"}, resolvedIDs)
}

func TestEntityBothIndexesSurviveOneWrite(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Each write commits keys for two indexes in the same transaction; the
	// later index key must not overwrite the earlier one's bytes.
	for _, id := range []string{"10", "11", "12"} {
		entry := testEntry(id, domain.StatusUnresolved)
		require.NoError(t, s.LibraryEntries.Upsert(ctx, entry.Key(), entry))
	}

	count, err := s.LibraryEntries.CountByIndex(ctx, "status", string(domain.StatusUnresolved))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.LibraryEntries.CountByIndex(ctx, "storefront", string(domain.StorefrontSteam))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var fromStorefrontIndex []string
	for entry, err := range s.LibraryEntries.ListByIndex(ctx, "storefront", string(domain.StorefrontSteam)) {
		require.NoError(t, err)
		fromStorefrontIndex = append(fromStorefrontIndex, entry.StoreGameID)
	}
	assert.ElementsMatch(t, []string{"10", "11", "12"}, fromStorefrontIndex)
}

func TestEntityListAll(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entries := []*domain.LibraryEntry{
		testEntry("1", domain.StatusUnresolved),
		testEntry("2", domain.StatusResolved),
	}
	for _, entry := range entries {
		require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))
	}

	seen := 0
	for entry, err := range s.LibraryEntries.List(ctx) {
		require.NoError(t, err)
		require.NotNil(t, entry)
		seen++
	}
	assert.Equal(t, len(entries), seen)
}

func TestEntityListSkipsIndexKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := testEntry("220", domain.StatusUnresolved)
	require.NoError(t, s.LibraryEntries.Create(ctx, entry.Key(), entry))

	// One stored entry plus two index keys; List must yield the entry once.
	seen := 0
	for got, err := range s.LibraryEntries.List(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "220", got.StoreGameID)
		seen++
	}
	assert.Equal(t, 1, seen)
}

func TestJobsEntity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job := &domain.RefreshJob{ID: "job-1", State: domain.JobRunning}
	require.NoError(t, s.Jobs.Create(ctx, job.ID, job))

	job.State = domain.JobSucceeded
	require.NoError(t, s.Jobs.Upsert(ctx, job.ID, job))

	got, err := s.Jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, got.State)

	count, err := s.Jobs.CountByIndex(ctx, "state", string(domain.JobRunning))
	require.NoError(t, err)
	assert.Zero(t, count, "state index must track the upsert")
}
