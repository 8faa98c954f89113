package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
)

func newTestStack(t *testing.T) *queue.Queue {
	t.Helper()
	ctx := context.Background()
	engine, err := storage.Open(ctx, storage.Options{Path: ":memory:", OpenTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, migrations.NewRunner(engine.WriteDB(), nil).Apply(ctx, migrations.All()))

	q := queue.New(engine, queue.Options{Tick: time.Millisecond, MaxConcurrentReads: 3, BulkBatchSize: 10})
	t.Cleanup(func() {
		q.Stop()
		engine.Close()
	})
	return q
}

func TestUpsertIncoming_CreatesConversationAndMessage(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	convID, err := repo.UpsertIncoming(ctx, "+254700000001", "+254700000001", "msg-1", "hello there", time.Now())
	require.NoError(t, err)
	assert.NotZero(t, convID)

	msgs, err := repo.ListMessages(ctx, convID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Body)
	assert.Equal(t, models.DirectionIncoming, msgs[0].Direction)

	conv, err := repo.GetConversationByThread(ctx, "+254700000001")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestUpsertIncoming_IsIdempotentOnMessageID(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	first, err := repo.UpsertIncoming(ctx, "+254700000002", "+254700000002", "dup-1", "hi", time.Now())
	require.NoError(t, err)
	second, err := repo.UpsertIncoming(ctx, "+254700000002", "+254700000002", "dup-1", "hi", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	msgs, err := repo.ListMessages(ctx, first, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "retrying the same native message id must not duplicate the row")
}

func TestUpsertIncoming_SuffixMatchesFormattingVariantOfSameNumber(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	first, err := repo.UpsertIncoming(ctx, "+254712345678", "+254712345678", "m1", "hi", time.Now())
	require.NoError(t, err)

	second, err := repo.UpsertIncoming(ctx, "0712345678", "0712345678", "m2", "hi again", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first, second, "a local-format variant of the same last-9-digits merges into the existing conversation")

	msgs, err := repo.ListMessages(ctx, first, 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestUpsertIncoming_AlphanumericSenderNeverSuffixMatches(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	first, err := repo.UpsertIncoming(ctx, "254712345678", "254712345678", "m1", "hi", time.Now())
	require.NoError(t, err)

	second, err := repo.UpsertIncoming(ctx, "BRAND712345678", "BRAND712345678", "m2", "promo", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "an alphanumeric sender id never merges into a numeric conversation by suffix")
}

func TestMarkRead_ZeroesUnreadAndFlipsMessages(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	convID, err := repo.UpsertIncoming(ctx, "+254700000003", "+254700000003", "m1", "hi", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.MarkRead(ctx, convID))

	conv, err := repo.GetConversationByThread(ctx, "+254700000003")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)

	msgs, err := repo.ListMessages(ctx, convID, 10, 0)
	require.NoError(t, err)
	assert.True(t, msgs[0].Read)
}

func TestListConversations_FiltersArchivedByDefault(t *testing.T) {
	q := newTestStack(t)
	repo := NewMessagingRepository(q)
	ctx := context.Background()

	convID, err := repo.UpsertIncoming(ctx, "+254700000004", "+254700000004", "m1", "hi", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.SetArchived(ctx, convID, true))

	active, err := repo.ListConversations(ctx, models.ConversationListOptions{})
	require.NoError(t, err)
	assert.Empty(t, active, "default listing excludes archived conversations")

	archived, err := repo.ListConversations(ctx, models.ConversationListOptions{Filter: models.ConversationFilterArchived})
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	all, err := repo.ListConversations(ctx, models.ConversationListOptions{Filter: models.ConversationFilterAll})
	require.NoError(t, err)
	assert.Len(t, all, 1, "the all filter includes archived threads")
}
