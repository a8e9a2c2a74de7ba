package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
	"github.com/questlogapp/questlog-server/internal/resolver"
	"github.com/questlogapp/questlog-server/internal/store"
)

// WebhookEvent is one storefront library change delivery.
type WebhookEvent struct {
	// IdempotencyKey identifies the delivery for replay detection. Storefronts
	// that do not send one get a generated key, which makes the delivery
	// unique by definition.
	IdempotencyKey string
	Storefront     domain.Storefront
	Entries        []WebhookEntry
}

// WebhookEntry is one game reported in a webhook delivery.
type WebhookEntry struct {
	StoreGameID string
	Title       string
}

// WebhookResult summarizes the handling of one delivery.
type WebhookResult struct {
	// Duplicate is set when the idempotency key was already processed inside
	// the dedup window; the delivery is acknowledged without effect.
	Duplicate bool
	Accepted  int
	Failed    int
}

// HandleWebhook ingests a storefront library delivery: deduplicates by
// idempotency key, then resolves each reported game through the pipeline
// under the webhook caller class. Per-entry failures are logged and counted,
// never abort the batch.
func (c *Coordinator) HandleWebhook(ctx context.Context, event WebhookEvent) (*WebhookResult, error) {
	if !event.Storefront.Valid() {
		return nil, errors.Validationf("unknown storefront %q", event.Storefront)
	}
	if len(event.Entries) == 0 {
		return nil, errors.Validation("delivery carries no entries")
	}

	key := event.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	recorded, err := c.store.RecordWebhookReceipt(ctx, &store.WebhookReceipt{
		IdempotencyKey: key,
		Family:         string(event.Storefront),
		ReceivedAt:     time.Now().UTC(),
	}, c.dedupTTL)
	if err != nil {
		return nil, err
	}
	if !recorded {
		c.logger.Debug("duplicate webhook delivery acknowledged",
			"idempotency_key", key,
			"storefront", event.Storefront,
		)
		return &WebhookResult{Duplicate: true}, nil
	}

	result := &WebhookResult{}
	for _, item := range event.Entries {
		if item.StoreGameID == "" {
			result.Failed++
			continue
		}

		// Make the reported game durable before resolving. If resolution is
		// cut short without a persisted outcome (gate saturation, deadline),
		// the unresolved entry is still there for the next bulk pass.
		if err := c.upsertEntry(ctx, event.Storefront, item); err != nil {
			result.Failed++
			c.logger.Warn("webhook entry upsert failed",
				"storefront", event.Storefront,
				"store_game_id", item.StoreGameID,
				"error", err,
			)
			continue
		}

		_, err := c.pipeline.Resolve(ctx, resolver.Request{
			Storefront:  event.Storefront,
			StoreGameID: item.StoreGameID,
			Title:       item.Title,
			Class:       ratelimit.ClassWebhook,
		})
		if err != nil {
			result.Failed++
			c.logger.Warn("webhook entry resolution failed",
				"storefront", event.Storefront,
				"store_game_id", item.StoreGameID,
				"error", err,
			)
			continue
		}
		result.Accepted++
	}

	c.logger.Info("webhook delivery processed",
		"idempotency_key", key,
		"storefront", event.Storefront,
		"accepted", result.Accepted,
		"failed", result.Failed,
	)
	return result, nil
}

// upsertEntry records a reported game as an unresolved library entry if the
// pair is new. Existing entries keep their state; the pipeline owns all
// status transitions.
func (c *Coordinator) upsertEntry(ctx context.Context, storefront domain.Storefront, item WebhookEntry) error {
	now := time.Now().UTC()
	entry := &domain.LibraryEntry{
		Storefront:  storefront,
		StoreGameID: item.StoreGameID,
		RawTitle:    item.Title,
		Status:      domain.StatusUnresolved,
		AddedAt:     now,
		UpdatedAt:   now,
	}

	err := c.store.LibraryEntries.Create(ctx, entry.Key(), entry)
	if err != nil && !errors.Is(err, errors.ErrAlreadyExists) {
		return err
	}
	return nil
}
