package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
)

func TestOutboundRepository_EnqueueAndDrainOrder(t *testing.T) {
	q := newTestStack(t)
	repo := NewOutboundRepository(q)
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, "+254700000010", "low", models.PriorityNormal, 0, nil)
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, "+254700000011", "urgent", models.PriorityUrgent, 0, nil)
	require.NoError(t, err)

	batch, err := repo.NextBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "urgent", batch[0].Body, "higher priority drains first")
}

func TestOutboundRepository_EnqueueDedupesRecentMatchingEntry(t *testing.T) {
	q := newTestStack(t)
	repo := NewOutboundRepository(q)
	ctx := context.Background()

	firstID, err := repo.Enqueue(ctx, "+254700000030", "reminder", models.PriorityNormal, 0, nil)
	require.NoError(t, err)

	dupID, err := repo.Enqueue(ctx, "+254700000030", "reminder", models.PriorityNormal, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, firstID, dupID, "identical to/body/simSlot within the dedup window is a no-op")

	batch, err := repo.NextBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1, "no duplicate row was inserted")

	otherSlotID, err := repo.Enqueue(ctx, "+254700000030", "reminder", models.PriorityNormal, 1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, otherSlotID, "a different sim slot is a distinct entry")

	exhausted, err := repo.MarkFailedOrExhausted(ctx, firstID, 5)
	require.NoError(t, err)
	assert.False(t, exhausted)

	afterFailID, err := repo.Enqueue(ctx, "+254700000030", "reminder", models.PriorityNormal, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, firstID, afterFailID, "a failed (not yet exhausted) entry is still deduped against")
}

func TestOutboundRepository_NextBatchIncludesFailedUnderRetryCap(t *testing.T) {
	q := newTestStack(t)
	repo := NewOutboundRepository(q)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, "+254700000031", "retry me", models.PriorityNormal, 0, nil)
	require.NoError(t, err)

	exhausted, err := repo.MarkFailedOrExhausted(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, exhausted)

	batch, err := repo.NextBatch(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, batch, 1, "a failed entry under maxRetries is picked up again")
	assert.Equal(t, models.OutboundStatusFailed, batch[0].Status)

	exhausted, err = repo.MarkFailedOrExhausted(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, exhausted)
	exhausted, err = repo.MarkFailedOrExhausted(ctx, id, 3)
	require.NoError(t, err)
	assert.True(t, exhausted)

	batch, err = repo.NextBatch(ctx, 10, 3)
	require.NoError(t, err)
	assert.Len(t, batch, 0, "an exhausted entry is no longer eligible")
}

func TestOutboundRepository_MarkFailedOrExhausted(t *testing.T) {
	q := newTestStack(t)
	repo := NewOutboundRepository(q)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, "+254700000012", "hi", models.PriorityNormal, 0, nil)
	require.NoError(t, err)

	exhausted, err := repo.MarkFailedOrExhausted(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, exhausted)

	exhausted, err = repo.MarkFailedOrExhausted(ctx, id, 2)
	require.NoError(t, err)
	assert.True(t, exhausted, "retry count reaching the cap marks the entry exhausted")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Exhausted)
}

func TestSendLogRepository_WasSentWithinDeduplicatesRecentSends(t *testing.T) {
	q := newTestStack(t)
	repo := NewSendLogRepository(q)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, models.SendLog{
		ToNumber: "+254700000020", Body: "hello", Timestamp: time.Now().UTC(), Status: models.SendLogSuccess,
	}))

	dup, err := repo.WasSentWithin(ctx, "+254700000020", "hello", time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)

	notDup, err := repo.WasSentWithin(ctx, "+254700000020", "different body", time.Hour)
	require.NoError(t, err)
	assert.False(t, notDup)
}
