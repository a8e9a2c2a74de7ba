// Package store provides persistent storage on top of Badger for library
// entries, resolved mappings, refresh jobs, and webhook receipts.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/questlogapp/questlog-server/internal/domain"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Generic entities
	LibraryEntries *Entity[domain.LibraryEntry]
	Jobs           *Entity[domain.RefreshJob]
}

// WebhookReceipt records a processed webhook delivery for idempotent replay
// detection. Receipts expire from the database after the dedup TTL.
type WebhookReceipt struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	Family         string    `json:"family"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.initLibraryEntries()
	store.initJobs()

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// NewInMemory creates a Store backed by an in-memory Badger instance.
// Used by tests and the crawl CLI's dry-run mode.
func NewInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.initLibraryEntries()
	store.initJobs()

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// initLibraryEntries initializes the LibraryEntries entity on the store.
// Entries are keyed by storefront + store game ID and indexed by status so
// refresh passes can enumerate unresolved work without a full scan, and by
// storefront for per-store library listings.
func (s *Store) initLibraryEntries() {
	s.LibraryEntries = NewEntity[domain.LibraryEntry](s, "entry:").
		WithIndex("status", func(e *domain.LibraryEntry) []string {
			return []string{string(e.Status)}
		}).
		WithIndex("storefront", func(e *domain.LibraryEntry) []string {
			return []string{string(e.Storefront)}
		})
}

// initJobs initializes the Jobs entity on the store.
func (s *Store) initJobs() {
	s.Jobs = NewEntity[domain.RefreshJob](s, "job:").
		WithIndex("state", func(j *domain.RefreshJob) []string {
			return []string{string(j.State)}
		})
}

