package store

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

const mappingPrefix = "map:"

// GetMapping returns the cached mapping for a storefront game, or a NotFound
// error when the pair has never been resolved.
func (s *Store) GetMapping(ctx context.Context, storefront domain.Storefront, storeGameID string) (*domain.ExternalGameMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mapping domain.ExternalGameMapping
	err := s.db.View(func(txn *badger.Txn) error {
		key := buildKey(mappingPrefix, domain.EntryKey(storefront, storeGameID))
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("mapping %s/%s not found", storefront, storeGameID)
		}
		if err != nil {
			return fmt.Errorf("failed to get mapping: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &mapping)
		})
	})
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeStorage, "get mapping")
	}
	return &mapping, nil
}

// PutMapping records a resolved mapping. Mappings are write-once: a second
// write for the same pair keeps the stored mapping and returns it, unless
// overwrite is set and the new mapping carries strictly higher confidence.
// The returned mapping is the one persisted after the call.
func (s *Store) PutMapping(ctx context.Context, mapping *domain.ExternalGameMapping, overwrite bool) (*domain.ExternalGameMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	winner := mapping
	key := mappingPrefix + mapping.Key()

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			var existing domain.ExternalGameMapping
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal existing mapping: %w", err)
			}
			if !overwrite || mapping.Confidence <= existing.Confidence {
				winner = &existing
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("failed to check existing mapping: %w", err)
		}

		data, err := json.Marshal(mapping)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "put mapping")
	}
	return winner, nil
}

// DeleteMapping removes a cached mapping. Idempotent.
func (s *Store) DeleteMapping(ctx context.Context, storefront domain.Storefront, storeGameID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := mappingPrefix + domain.EntryKey(storefront, storeGameID)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "delete mapping")
	}
	return nil
}

// ListMappings iterates all cached mappings, used to seed the reference index
// on startup alongside the upstream crawl.
func (s *Store) ListMappings(ctx context.Context) iter.Seq2[*domain.ExternalGameMapping, error] {
	return func(yield func(*domain.ExternalGameMapping, error) bool) {
		s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(mappingPrefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(mappingPrefix)); it.ValidForPrefix([]byte(mappingPrefix)); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				var mapping domain.ExternalGameMapping
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &mapping)
				})
				if err != nil {
					yield(nil, errors.Wrap(err, errors.CodeStorage, "list mappings"))
					return err
				}

				if !yield(&mapping, nil) {
					return nil
				}
			}
			return nil
		})
	}
}
