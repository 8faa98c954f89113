package models

import (
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// OutboundPriority orders dispatch within a single drain cycle (priority
// DESC, enqueuedAt ASC). It does not affect the Operation Queue lane the
// enqueue write itself runs on.
type OutboundPriority int

const (
	PriorityNormal OutboundPriority = 0
	PriorityHigh   OutboundPriority = 1
	PriorityUrgent OutboundPriority = 2
)

// OutboundStatus is the lifecycle of a durable dispatch intent.
type OutboundStatus string

const (
	OutboundStatusPending   OutboundStatus = "pending"
	OutboundStatusSent      OutboundStatus = "sent"
	OutboundStatusFailed    OutboundStatus = "failed"
	OutboundStatusExhausted OutboundStatus = "exhausted"
)

// OutboundEntry is a durable dispatch intent, the unit the Retry Worker
// drains under the circuit breaker.
type OutboundEntry struct {
	ID          int64            `db:"id" json:"id"`
	ToNumber    string           `db:"to_number" json:"toNumber"`
	Body        string           `db:"body" json:"body"`
	EnqueuedAt  time.Time        `db:"enqueued_at" json:"enqueuedAt"`
	Status      OutboundStatus   `db:"status" json:"status"`
	RetryCount  int              `db:"retry_count" json:"retryCount"`
	SimSlot     int              `db:"sim_slot" json:"simSlot"`
	DBMessageID *int64           `db:"db_message_id" json:"dbMessageId,omitempty"`
	Priority    OutboundPriority `db:"priority" json:"priority"`
}

// Validate reports apperrors.ErrInvalidOutboundEntry when toNumber or body
// is empty, or simSlot is negative.
func (e OutboundEntry) Validate() error {
	if e.ToNumber == "" || e.Body == "" || e.SimSlot < 0 {
		return apperrors.ErrInvalidOutboundEntry
	}
	return nil
}

// OutboundStats summarises the queue for observers (the local API's
// /outbound/stats route).
type OutboundStats struct {
	Pending   int
	Failed    int
	Exhausted int
	Total     int
}
