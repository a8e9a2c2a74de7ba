package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlogapp/questlog-server/internal/errors"
)

func TestRecordWebhookReceiptDedup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	receipt := &WebhookReceipt{
		IdempotencyKey: "evt-123",
		Family:         "steam",
		ReceivedAt:     time.Now().UTC(),
	}

	recorded, err := s.RecordWebhookReceipt(ctx, receipt, time.Hour)
	require.NoError(t, err)
	assert.True(t, recorded, "first delivery is recorded")

	recorded, err = s.RecordWebhookReceipt(ctx, receipt, time.Hour)
	require.NoError(t, err)
	assert.False(t, recorded, "replay inside the window is a duplicate")
}

func TestGetWebhookReceipt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.GetWebhookReceipt(ctx, "never-seen")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	receipt := &WebhookReceipt{
		IdempotencyKey: "evt-456",
		Family:         "gog",
		ReceivedAt:     time.Now().UTC(),
	}
	_, err = s.RecordWebhookReceipt(ctx, receipt, time.Hour)
	require.NoError(t, err)

	got, err := s.GetWebhookReceipt(ctx, "evt-456")
	require.NoError(t, err)
	assert.Equal(t, "gog", got.Family)
}

func TestRecordWebhookReceiptDistinctKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		recorded, err := s.RecordWebhookReceipt(ctx, &WebhookReceipt{IdempotencyKey: key}, time.Hour)
		require.NoError(t, err)
		assert.True(t, recorded)
	}
}
