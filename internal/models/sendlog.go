package models

import (
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// SendLogStatus records the outcome of a single transport attempt.
type SendLogStatus string

const (
	SendLogSuccess SendLogStatus = "success"
	SendLogError   SendLogStatus = "error"
)

// SendLog is an append-only audit of transport attempts, used for
// duplicate suppression (I6). Per-number counts can be read from it, but
// no send path enforces a rate limit on them.
type SendLog struct {
	ID         int64         `db:"id" json:"id"`
	ToNumber   string        `db:"to_number" json:"toNumber"`
	Body       string        `db:"body" json:"body"`
	BodyLength int           `db:"body_length" json:"bodyLength"`
	Timestamp  time.Time     `db:"timestamp" json:"timestamp"`
	Status     SendLogStatus `db:"status" json:"status"`
	SimSlot    int           `db:"sim_slot" json:"simSlot"`
	Error      string        `db:"error" json:"error,omitempty"`
}

// Validate reports apperrors.ErrInvalidSendLog when toNumber or body is
// empty.
func (s SendLog) Validate() error {
	if s.ToNumber == "" || s.Body == "" {
		return apperrors.ErrInvalidSendLog
	}
	return nil
}
