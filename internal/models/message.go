package models

import (
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// MessageDirection distinguishes inbound from outbound messages.
type MessageDirection string

const (
	DirectionIncoming MessageDirection = "incoming"
	DirectionOutgoing MessageDirection = "outgoing"
)

// MessageStatus tracks a message's lifecycle. Status advances
// monotonically along pending -> sent -> delivered -> read, or diverts to
// failed; truncated is assigned once at insert time for oversize bodies.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusReceived  MessageStatus = "received"
	MessageStatusTruncated MessageStatus = "truncated"
)

// MaxBodyLength is the hard cap on Message.Body; longer bodies are
// truncated with TruncationMarker appended and Status set to truncated.
const MaxBodyLength = 1600

// TruncationMarker is appended to a body that exceeded MaxBodyLength.
const TruncationMarker = "…[truncated]"

// Message belongs to exactly one Conversation.
type Message struct {
	ID             int64            `db:"id" json:"id"`
	ConversationID int64            `db:"conversation_id" json:"conversationId"`
	MessageID      string           `db:"message_id" json:"messageId"`
	Direction      MessageDirection `db:"direction" json:"direction"`
	Address        string           `db:"address" json:"address"`
	Body           string           `db:"body" json:"body"`
	Timestamp      time.Time        `db:"timestamp" json:"timestamp"`
	DateSent       time.Time        `db:"date_sent" json:"dateSent,omitempty"`
	Read           bool             `db:"read" json:"read"`
	Status         MessageStatus    `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	CampaignID     *string          `db:"campaign_id" json:"campaignId,omitempty"`
	VariantID      *string          `db:"variant_id" json:"variantId,omitempty"`
}

// Validate reports apperrors.ErrInvalidMessage when address or body is
// empty, or the direction is not one of the known constants.
func (m Message) Validate() error {
	if m.Address == "" || m.Body == "" {
		return apperrors.ErrInvalidMessage
	}
	switch m.Direction {
	case DirectionIncoming, DirectionOutgoing:
	default:
		return apperrors.ErrInvalidMessage
	}
	return nil
}

// TruncateBody enforces MaxBodyLength, returning the stored body and
// whether truncation occurred (I7: stored length is exactly MaxBodyLength
// and ends with the truncation marker).
func TruncateBody(body string) (stored string, truncated bool) {
	r := []rune(body)
	if len(r) <= MaxBodyLength {
		return body, false
	}
	markerLen := len([]rune(TruncationMarker))
	cut := MaxBodyLength - markerLen
	if cut < 0 {
		cut = 0
	}
	stored = string(r[:cut]) + TruncationMarker
	if extra := len([]rune(stored)) - MaxBodyLength; extra > 0 {
		rr := []rune(stored)
		stored = string(rr[:MaxBodyLength])
	}
	return stored, true
}
