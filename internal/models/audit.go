package models

import (
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// AuditActorKind identifies which subsystem recorded an AuditEntry.
type AuditActorKind string

const (
	ActorPipeline      AuditActorKind = "pipeline"
	ActorRetryWorker   AuditActorKind = "retryWorker"
	ActorEntitlement   AuditActorKind = "entitlement"
	ActorAdmin         AuditActorKind = "admin"
)

// AuditEntry is a best-effort append-only record of a state-changing
// operation, written through the Operation Queue's low-priority lane so a
// failure to log never blocks the originating operation.
type AuditEntry struct {
	ID         int64          `db:"id" json:"id"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurredAt"`
	ActorKind  AuditActorKind `db:"actor_kind" json:"actorKind"`
	Action     string         `db:"action" json:"action"`
	EntityKind string         `db:"entity_kind" json:"entityKind"`
	EntityID   string         `db:"entity_id" json:"entityId"`
	Detail     string         `db:"detail" json:"detail,omitempty"` // JSON-encoded, free-form
}

// Validate reports apperrors.ErrInvalidAuditEntry when actorKind, action
// or entityKind is empty.
func (e AuditEntry) Validate() error {
	if e.ActorKind == "" || e.Action == "" || e.EntityKind == "" {
		return apperrors.ErrInvalidAuditEntry
	}
	return nil
}
