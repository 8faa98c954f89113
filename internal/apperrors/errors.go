// Package apperrors declares the sentinel error kinds shared across the
// storage, pipeline, retry and entitlement subsystems.
package apperrors

import "errors"

var (
	// ErrInitTimeout is returned when the storage engine fails to open
	// within the configured timeout.
	ErrInitTimeout = errors.New("storage: init timeout exceeded")

	// ErrNativeDependencyMissing is returned when the embedded database
	// driver could not be loaded and the degraded fallback took over.
	ErrNativeDependencyMissing = errors.New("storage: native dependency missing")

	// ErrIntegrityFailure is returned when the integrity check fails after
	// the recovery attempts are exhausted.
	ErrIntegrityFailure = errors.New("storage: integrity check failed")

	// ErrMigrationTimeout is returned when a single migration exceeds its
	// per-migration timeout.
	ErrMigrationTimeout = errors.New("migrations: timeout exceeded")

	// ErrMigrationFailed is returned when a migration's statements or run
	// function return an error.
	ErrMigrationFailed = errors.New("migrations: failed to apply")

	// ErrQueueCleared is returned to every future rejected by Queue.Clear.
	ErrQueueCleared = errors.New("queue: cleared by administrative action")

	// ErrTxFailure wraps the primary cause of a rolled-back transaction.
	ErrTxFailure = errors.New("queue: transaction failed")

	// ErrTransportTimeout is returned when a send races its deadline.
	ErrTransportTimeout = errors.New("transport: timed out")

	// ErrTransportFailed is returned when the transport reports failure.
	ErrTransportFailed = errors.New("transport: send failed")

	// ErrTransportCancelled is returned when cancellation wins the race
	// against an in-flight send.
	ErrTransportCancelled = errors.New("transport: cancelled")

	// ErrPermissionDenied is returned by the Send Pipeline when the access
	// checker reports that access has been revoked mid-run.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPlanUnknown is returned when a payment amount maps to no plan.
	ErrPlanUnknown = errors.New("entitlement: amount does not match a plan")

	// ErrDuplicateTransaction is returned when a transaction code has
	// already been used to activate a subscription.
	ErrDuplicateTransaction = errors.New("entitlement: duplicate transaction code")

	// ErrDuplicateLicenseKey is returned when a license key has already
	// been redeemed on this device.
	ErrDuplicateLicenseKey = errors.New("entitlement: duplicate license key")

	// ErrTamperDetected is returned when a signed subscription token fails
	// signature verification or device-binding verification.
	ErrTamperDetected = errors.New("entitlement: tamper detected")

	// ErrTrialAlreadyUsed is returned when a device's one-shot trial has
	// already been consumed.
	ErrTrialAlreadyUsed = errors.New("entitlement: trial already used on this device")

	// ErrNotFound is a general not-found sentinel for repository lookups.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecipient is returned when a recipient address cannot be
	// normalised into a dispatchable number.
	ErrInvalidRecipient = errors.New("pipeline: invalid recipient address")

	// ErrInvalidMessage is returned by Message.Validate when address or
	// body is empty.
	ErrInvalidMessage = errors.New("models: invalid message")

	// ErrInvalidOutboundEntry is returned by OutboundEntry.Validate when
	// toNumber or body is empty, or simSlot is negative.
	ErrInvalidOutboundEntry = errors.New("models: invalid outbound entry")

	// ErrInvalidSendLog is returned by SendLog.Validate when toNumber or
	// body is empty.
	ErrInvalidSendLog = errors.New("models: invalid send log")

	// ErrInvalidSubscription is returned by Subscription.Validate when
	// planID or deviceFingerprint is empty, or expiryAt precedes
	// activatedAt.
	ErrInvalidSubscription = errors.New("models: invalid subscription")

	// ErrInvalidPlan is returned by Plan.Validate when id or name is
	// empty, or priceKES/durationDays is not positive.
	ErrInvalidPlan = errors.New("models: invalid plan")

	// ErrInvalidAuditEntry is returned by AuditEntry.Validate when
	// actorKind, action or entityKind is empty.
	ErrInvalidAuditEntry = errors.New("models: invalid audit entry")
)

// Kind classifies err into one of the spec's named error kinds, for
// callers (such as the local control API) that need a stable string
// without leaking internal wrapping detail.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInitTimeout):
		return "InitTimeout"
	case errors.Is(err, ErrNativeDependencyMissing):
		return "NativeDependencyMissing"
	case errors.Is(err, ErrIntegrityFailure):
		return "IntegrityFailure"
	case errors.Is(err, ErrMigrationTimeout):
		return "MigrationTimeout"
	case errors.Is(err, ErrMigrationFailed):
		return "MigrationFailed"
	case errors.Is(err, ErrQueueCleared):
		return "QueueCleared"
	case errors.Is(err, ErrTxFailure):
		return "TxFailure"
	case errors.Is(err, ErrTransportTimeout):
		return "TransportTimeout"
	case errors.Is(err, ErrTransportFailed):
		return "TransportFailed"
	case errors.Is(err, ErrTransportCancelled):
		return "TransportCancelled"
	case errors.Is(err, ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, ErrPlanUnknown):
		return "PlanUnknown"
	case errors.Is(err, ErrDuplicateTransaction):
		return "DuplicateTransaction"
	case errors.Is(err, ErrDuplicateLicenseKey):
		return "DuplicateLicenseKey"
	case errors.Is(err, ErrTamperDetected):
		return "TamperDetected"
	case errors.Is(err, ErrTrialAlreadyUsed):
		return "TrialAlreadyUsed"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidRecipient):
		return "InvalidRecipient"
	case errors.Is(err, ErrInvalidMessage):
		return "InvalidMessage"
	case errors.Is(err, ErrInvalidOutboundEntry):
		return "InvalidOutboundEntry"
	case errors.Is(err, ErrInvalidSendLog):
		return "InvalidSendLog"
	case errors.Is(err, ErrInvalidSubscription):
		return "InvalidSubscription"
	case errors.Is(err, ErrInvalidPlan):
		return "InvalidPlan"
	case errors.Is(err, ErrInvalidAuditEntry):
		return "InvalidAuditEntry"
	default:
		return "Unknown"
	}
}
