package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

func TestMessage_Validate(t *testing.T) {
	valid := Message{Address: "+254712345678", Body: "hi", Direction: DirectionIncoming}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Message{Body: "hi", Direction: DirectionIncoming}.Validate(), apperrors.ErrInvalidMessage)
	assert.ErrorIs(t, Message{Address: "+254712345678", Direction: DirectionIncoming}.Validate(), apperrors.ErrInvalidMessage)
	assert.ErrorIs(t, Message{Address: "+254712345678", Body: "hi", Direction: "sideways"}.Validate(), apperrors.ErrInvalidMessage)
}

func TestOutboundEntry_Validate(t *testing.T) {
	valid := OutboundEntry{ToNumber: "+254712345678", Body: "hi", SimSlot: 0}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, OutboundEntry{Body: "hi"}.Validate(), apperrors.ErrInvalidOutboundEntry)
	assert.ErrorIs(t, OutboundEntry{ToNumber: "+254712345678"}.Validate(), apperrors.ErrInvalidOutboundEntry)
	assert.ErrorIs(t, OutboundEntry{ToNumber: "+254712345678", Body: "hi", SimSlot: -1}.Validate(), apperrors.ErrInvalidOutboundEntry)
}

func TestRecipient_Validate(t *testing.T) {
	assert.NoError(t, Recipient{Phone: "+254712345678"}.Validate())
	assert.ErrorIs(t, Recipient{Name: "no phone"}.Validate(), apperrors.ErrInvalidRecipient)
}

func TestSendLog_Validate(t *testing.T) {
	assert.NoError(t, SendLog{ToNumber: "+254712345678", Body: "hi"}.Validate())
	assert.ErrorIs(t, SendLog{Body: "hi"}.Validate(), apperrors.ErrInvalidSendLog)
	assert.ErrorIs(t, SendLog{ToNumber: "+254712345678"}.Validate(), apperrors.ErrInvalidSendLog)
}

func TestSubscription_Validate(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	valid := Subscription{
		PlanID:            "monthly",
		DeviceFingerprint: "device-1",
		ActivatedAt:       now,
		ExpiryAt:          now.AddDate(0, 1, 0),
	}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Subscription{DeviceFingerprint: "device-1", ActivatedAt: now, ExpiryAt: now.AddDate(0, 1, 0)}.Validate(), apperrors.ErrInvalidSubscription)
	assert.ErrorIs(t, Subscription{PlanID: "monthly", ActivatedAt: now, ExpiryAt: now.AddDate(0, 1, 0)}.Validate(), apperrors.ErrInvalidSubscription)

	expiredBeforeActivation := Subscription{
		PlanID:            "monthly",
		DeviceFingerprint: "device-1",
		ActivatedAt:       now,
		ExpiryAt:          now.AddDate(0, 0, -1),
	}
	assert.ErrorIs(t, expiredBeforeActivation.Validate(), apperrors.ErrInvalidSubscription)
}

func TestPlan_Validate(t *testing.T) {
	assert.NoError(t, Plan{ID: "monthly", Name: "Monthly", PriceKES: 350, DurationDays: 30}.Validate())
	assert.ErrorIs(t, Plan{Name: "Monthly", PriceKES: 350, DurationDays: 30}.Validate(), apperrors.ErrInvalidPlan)
	assert.ErrorIs(t, Plan{ID: "monthly", PriceKES: 350, DurationDays: 30}.Validate(), apperrors.ErrInvalidPlan)
	assert.ErrorIs(t, Plan{ID: "monthly", Name: "Monthly", PriceKES: 0, DurationDays: 30}.Validate(), apperrors.ErrInvalidPlan)
	assert.ErrorIs(t, Plan{ID: "monthly", Name: "Monthly", PriceKES: 350, DurationDays: 0}.Validate(), apperrors.ErrInvalidPlan)
}

func TestAuditEntry_Validate(t *testing.T) {
	valid := AuditEntry{ActorKind: ActorPipeline, Action: "enqueue", EntityKind: "outbound_entry", EntityID: "42"}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, AuditEntry{Action: "enqueue", EntityKind: "outbound_entry"}.Validate(), apperrors.ErrInvalidAuditEntry)
	assert.ErrorIs(t, AuditEntry{ActorKind: ActorPipeline, EntityKind: "outbound_entry"}.Validate(), apperrors.ErrInvalidAuditEntry)
	assert.ErrorIs(t, AuditEntry{ActorKind: ActorPipeline, Action: "enqueue"}.Validate(), apperrors.ErrInvalidAuditEntry)
}
