package models

import (
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// SubscriptionSource records how a Subscription was activated.
type SubscriptionSource string

const (
	SourceMpesa      SubscriptionSource = "mpesa"
	SourceLicenseKey SubscriptionSource = "license_key"
	SourceTrial      SubscriptionSource = "trial"
	SourceManual     SubscriptionSource = "manual"
)

// Subscription is the single active billing record, persisted as a
// signed token (see internal/entitlement) keyed by device fingerprint.
type Subscription struct {
	ID                int64              `db:"id" json:"id"`
	PlanID            string             `db:"plan_id" json:"planId"`
	ActivatedAt       time.Time          `db:"activated_at" json:"activatedAt"`
	ExpiryAt          time.Time          `db:"expiry_at" json:"expiryAt"`
	Source            SubscriptionSource `db:"source" json:"source"`
	TransactionCode   *string            `db:"transaction_code" json:"transactionCode,omitempty"`
	LicenseKey        *string            `db:"license_key" json:"licenseKey,omitempty"`
	DeviceFingerprint string             `db:"device_fingerprint" json:"deviceFingerprint"`
	ExtendedFrom      *time.Time         `db:"extended_from" json:"extendedFrom,omitempty"`
}

// Validate reports apperrors.ErrInvalidSubscription when planID or
// deviceFingerprint is empty, or expiryAt precedes activatedAt.
func (s Subscription) Validate() error {
	if s.PlanID == "" || s.DeviceFingerprint == "" {
		return apperrors.ErrInvalidSubscription
	}
	if s.ExpiryAt.Before(s.ActivatedAt) {
		return apperrors.ErrInvalidSubscription
	}
	return nil
}

// BillingStatus is the derived access state surfaced by the entitlement
// manager, in bypass > active > trial > grace > expired > none order.
type BillingStatus string

const (
	BillingStatusBypass  BillingStatus = "bypass"
	BillingStatusActive  BillingStatus = "active"
	BillingStatusTrial   BillingStatus = "trial"
	BillingStatusGrace   BillingStatus = "grace"
	BillingStatusExpired BillingStatus = "expired"
	BillingStatusNone    BillingStatus = "none"
)

// BillingState is the read model returned by EntitlementManager.GetState.
type BillingState struct {
	Status          BillingStatus `json:"status"`
	PlanID          string        `json:"planId,omitempty"`
	DaysRemaining   int           `json:"daysRemaining"`
	ExpiryAt        *time.Time    `json:"expiryAt,omitempty"`
	RenewalReminder bool          `json:"renewalReminder"`
	TrialEligible   bool          `json:"trialEligible"`
	TrialStartedAt  *time.Time    `json:"trialStartedAt,omitempty"`
}

// Plan describes one purchasable subscription tier.
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PriceKES     int    `json:"priceKes"`
	DurationDays int    `json:"durationDays"`
}

// Validate reports apperrors.ErrInvalidPlan when id or name is empty, or
// priceKES/durationDays is not positive.
func (p Plan) Validate() error {
	if p.ID == "" || p.Name == "" || p.PriceKES <= 0 || p.DurationDays <= 0 {
		return apperrors.ErrInvalidPlan
	}
	return nil
}

// SchemaVersion records one applied migration.
type SchemaVersion struct {
	Version   int
	Name      string
	AppliedAt time.Time
}
