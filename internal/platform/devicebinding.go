package platform

import "time"

// TrialStatus reports whether this device has already consumed its
// one-shot trial.
type TrialStatus struct {
	Used      bool
	StartTime *time.Time
}

// DeviceBinding abstracts the host's device-identity and trial-eligibility
// service. Subscriptions and license keys are bound to GetFingerprint's
// return value so they cannot be copied to another device.
type DeviceBinding interface {
	GetFingerprint() string
	GetTrialStatus() (TrialStatus, error)
	CanStartTrial() (bool, error)
	StartTrial() error
	VerifySubscriptionBinding(fingerprint string) bool
}

// StaticDeviceBinding is a test/fake DeviceBinding with an in-memory
// trial ledger, fixed to a single fingerprint.
type StaticDeviceBinding struct {
	Fingerprint string
	trialUsed   bool
	trialStart  *time.Time
	clock       Clock
}

// NewStaticDeviceBinding returns a DeviceBinding fixed to fingerprint.
func NewStaticDeviceBinding(fingerprint string, clock Clock) *StaticDeviceBinding {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StaticDeviceBinding{Fingerprint: fingerprint, clock: clock}
}

// GetFingerprint returns the fixed device fingerprint.
func (d *StaticDeviceBinding) GetFingerprint() string { return d.Fingerprint }

// GetTrialStatus reports the current trial ledger state.
func (d *StaticDeviceBinding) GetTrialStatus() (TrialStatus, error) {
	return TrialStatus{Used: d.trialUsed, StartTime: d.trialStart}, nil
}

// CanStartTrial reports whether the trial has not yet been consumed.
func (d *StaticDeviceBinding) CanStartTrial() (bool, error) {
	return !d.trialUsed, nil
}

// StartTrial marks the trial as consumed, starting now.
func (d *StaticDeviceBinding) StartTrial() error {
	now := d.clock.Now()
	d.trialUsed = true
	d.trialStart = &now
	return nil
}

// VerifySubscriptionBinding reports whether fingerprint matches this
// device's fingerprint.
func (d *StaticDeviceBinding) VerifySubscriptionBinding(fingerprint string) bool {
	return fingerprint == d.Fingerprint
}
