package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
)

func TestAuditRepository_RecordThenList(t *testing.T) {
	q := newTestStack(t)
	repo := NewAuditRepository(q, nil)
	ctx := context.Background()

	repo.Record(ctx, models.AuditEntry{
		ActorKind:  models.ActorEntitlement,
		Action:     "activated_trial",
		EntityKind: "subscription",
		EntityID:   "",
		Detail:     "{}",
	})

	require.Eventually(t, func() bool {
		entries, err := repo.List(ctx, 10)
		return err == nil && len(entries) == 1
	}, time.Second, 5*time.Millisecond)

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "activated_trial", entries[0].Action)
	assert.Equal(t, models.ActorEntitlement, entries[0].ActorKind)
}

func TestAuditRepository_ListCapsAtLimit(t *testing.T) {
	q := newTestStack(t)
	repo := NewAuditRepository(q, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		repo.Record(ctx, models.AuditEntry{ActorKind: models.ActorPipeline, Action: "campaign_finished", EntityKind: "campaign", EntityID: "c1"})
	}

	require.Eventually(t, func() bool {
		entries, err := repo.List(ctx, 10)
		return err == nil && len(entries) == 5
	}, time.Second, 5*time.Millisecond)

	entries, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
