package store

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/questlogapp/questlog-server/internal/errors"
)

const receiptPrefix = "whk:"

// RecordWebhookReceipt stores a receipt for an idempotency key, returning
// false if the key was already recorded (duplicate delivery). Receipts expire
// via Badger TTL after the dedup window, so replays inside the window are
// rejected and the keyspace does not grow without bound.
func (s *Store) RecordWebhookReceipt(ctx context.Context, receipt *WebhookReceipt, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	recorded := false
	key := receiptPrefix + receipt.IdempotencyKey

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil // already seen, leave recorded false
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check receipt: %w", err)
		}

		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("failed to marshal receipt: %w", err)
		}

		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("failed to set receipt: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeStorage, "record webhook receipt")
	}
	return recorded, nil
}

// GetWebhookReceipt returns a previously recorded receipt, or a NotFound
// error if the key was never seen or its TTL has elapsed.
func (s *Store) GetWebhookReceipt(ctx context.Context, idempotencyKey string) (*WebhookReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var receipt WebhookReceipt
	err := s.db.View(func(txn *badger.Txn) error {
		key := buildKey(receiptPrefix, idempotencyKey)
		defer releaseKey(key)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFoundf("webhook receipt %s not found", idempotencyKey)
		}
		if err != nil {
			return fmt.Errorf("failed to get receipt: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &receipt)
		})
	})
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeStorage, "get webhook receipt")
	}
	return &receipt, nil
}
