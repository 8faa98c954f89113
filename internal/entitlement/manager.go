package entitlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/platform"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	auditrepo "github.com/enjuguna-bit/bulksms-sub001/internal/repository"
)

// DefaultTrialDuration is the one-shot trial length when ManagerConfig
// does not override it.
const DefaultTrialDuration = 48 * time.Hour

// graceWindow extends access past a subscription's expiry before it is
// reported as fully expired.
const graceWindow = 3 * 24 * time.Hour

// renewalReminderDays are the daysRemaining values that flip
// BillingState.RenewalReminder on.
var renewalReminderDays = map[int]bool{7: true, 3: true, 1: true}

// ManagerConfig wires an EntitlementManager's collaborators.
type ManagerConfig struct {
	Plans         []models.Plan
	TrialDuration time.Duration
	Bypass        bool
	Syncer        Syncer
	Clock         platform.Clock
	Logger        *log.Logger
	Audit         *auditrepo.AuditRepository
}

// Manager is the access gate: it derives a BillingState from a bypass
// flag, a signed Subscription and the device's trial ledger, and
// mediates every activation path.
type Manager struct {
	repo     *repository
	keystore platform.Keystore
	device   platform.DeviceBinding
	plans    []models.Plan
	trial    time.Duration
	bypass   bool
	syncer   Syncer
	clock    platform.Clock
	logger   *log.Logger
	audit    *auditrepo.AuditRepository

	secret []byte
}

// NewManager constructs a Manager. The signing secret is fetched from
// ks, generating and persisting one on first use.
func NewManager(q *queue.Queue, ks platform.Keystore, device platform.DeviceBinding, cfg ManagerConfig) (*Manager, error) {
	secret, err := platform.EnsureIntegrityKey(ks)
	if err != nil {
		return nil, err
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans
	}
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = DefaultTrialDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = platform.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Manager{
		repo:     newRepository(q),
		keystore: ks,
		device:   device,
		plans:    cfg.Plans,
		trial:    cfg.TrialDuration,
		bypass:   cfg.Bypass,
		syncer:   cfg.Syncer,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		secret:   secret,
	}, nil
}

func (m *Manager) recordAudit(ctx context.Context, action, entityID, detail string) {
	if m.audit == nil {
		return
	}
	m.audit.Record(ctx, models.AuditEntry{
		ActorKind:  models.ActorEntitlement,
		Action:     action,
		EntityKind: "subscription",
		EntityID:   entityID,
		Detail:     detail,
	})
}

// HasActiveAccess reports whether the current state grants access,
// satisfying pipeline.AccessChecker.
func (m *Manager) HasActiveAccess(ctx context.Context) bool {
	state, err := m.GetState(ctx)
	if err != nil {
		return false
	}
	switch state.Status {
	case models.BillingStatusBypass, models.BillingStatusActive, models.BillingStatusTrial, models.BillingStatusGrace:
		return true
	default:
		return false
	}
}

// loadVerifiedSubscription loads the persisted token, verifying its
// signature and device binding. A tampered, foreign-device or absent
// token returns (nil, nil): the absence of a subscription is not an
// error. An expired token is still returned.
func (m *Manager) loadVerifiedSubscription(ctx context.Context) (*models.Subscription, error) {
	tokenString, ok, err := m.repo.loadToken(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	sub, err := parseSubscription(m.secret, tokenString)
	if err != nil {
		_ = m.repo.clearToken(ctx)
		return nil, nil
	}
	if !m.device.VerifySubscriptionBinding(sub.DeviceFingerprint) {
		_ = m.repo.clearToken(ctx)
		return nil, nil
	}
	return &sub, nil
}

// GetState derives the current BillingState, following the
// bypass -> active -> trial -> grace -> expired -> none order.
func (m *Manager) GetState(ctx context.Context) (models.BillingState, error) {
	now := m.clock.Now()

	if m.bypass {
		return models.BillingState{Status: models.BillingStatusBypass}, nil
	}

	sub, err := m.loadVerifiedSubscription(ctx)
	if err != nil {
		return models.BillingState{}, err
	}

	trialStatus, trialErr := m.device.GetTrialStatus()
	trialEligible := trialErr == nil && !trialStatus.Used

	var subState *models.BillingState
	if sub != nil {
		state := deriveSubscriptionState(*sub, now)
		state.TrialEligible = trialEligible
		state.TrialStartedAt = trialStatus.StartTime
		if state.Status == models.BillingStatusActive {
			return state, nil
		}
		subState = &state
	}

	if trialErr == nil && trialStatus.Used && trialStatus.StartTime != nil {
		trialExpiry := trialStatus.StartTime.Add(m.trial)
		if now.Before(trialExpiry) {
			return models.BillingState{
				Status:         models.BillingStatusTrial,
				DaysRemaining:  daysUntil(now, trialExpiry),
				ExpiryAt:       &trialExpiry,
				TrialEligible:  false,
				TrialStartedAt: trialStatus.StartTime,
			}, nil
		}
	}

	if subState != nil {
		return *subState, nil
	}

	return models.BillingState{
		Status:        models.BillingStatusNone,
		TrialEligible: trialEligible,
	}, nil
}

func deriveSubscriptionState(sub models.Subscription, now time.Time) models.BillingState {
	daysRemaining := daysUntil(now, sub.ExpiryAt)
	expiry := sub.ExpiryAt

	switch {
	case now.Before(sub.ExpiryAt):
		return models.BillingState{
			Status:          models.BillingStatusActive,
			PlanID:          sub.PlanID,
			DaysRemaining:   daysRemaining,
			ExpiryAt:        &expiry,
			RenewalReminder: renewalReminderDays[daysRemaining],
		}
	case now.Before(sub.ExpiryAt.Add(graceWindow)):
		return models.BillingState{
			Status:        models.BillingStatusGrace,
			PlanID:        sub.PlanID,
			DaysRemaining: daysUntil(now, sub.ExpiryAt.Add(graceWindow)),
			ExpiryAt:      &expiry,
		}
	default:
		return models.BillingState{
			Status:   models.BillingStatusExpired,
			PlanID:   sub.PlanID,
			ExpiryAt: &expiry,
		}
	}
}

func daysUntil(now, target time.Time) int {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// ActivateWithPayment maps amountKES to a plan (with 5% underpayment
// tolerance) and activates it, extending from the current subscription's
// expiry if one is active, otherwise starting from now.
func (m *Manager) ActivateWithPayment(ctx context.Context, amountKES int, transactionCode string) (models.Subscription, error) {
	plan, ok := getPlanByAmount(m.plans, amountKES)
	if !ok {
		return models.Subscription{}, apperrors.ErrPlanUnknown
	}

	used, err := m.repo.transactionCodeUsed(ctx, transactionCode)
	if err != nil {
		return models.Subscription{}, err
	}
	if used {
		return models.Subscription{}, apperrors.ErrDuplicateTransaction
	}

	code := transactionCode
	sub, err := m.activate(ctx, plan, models.SourceMpesa, &code, nil)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := m.repo.recordActivation(ctx, plan.ID, string(models.SourceMpesa), sub.ActivatedAt, &code); err != nil {
		return models.Subscription{}, err
	}
	m.recordAudit(ctx, "activated_payment", plan.ID, fmt.Sprintf(`{"amountKES":%d}`, amountKES))
	return sub, nil
}

// ActivateWithLicenseKey decodes and redeems key, failing if it has
// already been used on this device.
func (m *Manager) ActivateWithLicenseKey(ctx context.Context, key string) (models.Subscription, error) {
	fingerprint := m.device.GetFingerprint()
	payload, err := decodeLicenseKey(m.plans, m.secret, key, fingerprint)
	if err != nil {
		return models.Subscription{}, apperrors.ErrTamperDetected
	}
	plan, ok := planByID(m.plans, payload.PlanID)
	if !ok {
		return models.Subscription{}, apperrors.ErrPlanUnknown
	}

	hash := hashLicenseKey(m.secret, key)
	used, err := m.repo.licenseKeyUsed(ctx, hash)
	if err != nil {
		return models.Subscription{}, err
	}
	if used {
		return models.Subscription{}, apperrors.ErrDuplicateLicenseKey
	}

	now := m.clock.Now()
	sub := models.Subscription{
		PlanID:            plan.ID,
		ActivatedAt:       now,
		ExpiryAt:          payload.ExpiresAt,
		Source:            models.SourceLicenseKey,
		LicenseKey:        &key,
		DeviceFingerprint: fingerprint,
	}
	if err := m.repo.redeemLicenseKey(ctx, hash, plan.ID, now); err != nil {
		return models.Subscription{}, err
	}

	tokenString, err := signSubscription(m.secret, sub)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := m.repo.saveToken(ctx, tokenString, now); err != nil {
		return models.Subscription{}, err
	}

	syncWithRetry(ctx, m.syncer, sub, m.logger.Printf)
	m.recordAudit(ctx, "activated_license", plan.ID, "{}")
	return sub, nil
}

// ActivateTrial starts the device's one-shot trial, failing if it has
// already been consumed.
func (m *Manager) ActivateTrial(ctx context.Context) (models.BillingState, error) {
	can, err := m.device.CanStartTrial()
	if err != nil {
		return models.BillingState{}, err
	}
	if !can {
		return models.BillingState{}, apperrors.ErrTrialAlreadyUsed
	}
	if err := m.device.StartTrial(); err != nil {
		return models.BillingState{}, err
	}
	m.recordAudit(ctx, "activated_trial", "", "{}")
	return m.GetState(ctx)
}

// activate builds and persists a signed Subscription for plan,
// extending from the current subscription's expiry when one is active.
func (m *Manager) activate(ctx context.Context, plan models.Plan, source models.SubscriptionSource, transactionCode, licenseKey *string) (models.Subscription, error) {
	now := m.clock.Now()
	fingerprint := m.device.GetFingerprint()

	start := now
	var extendedFrom *time.Time
	if existing, err := m.loadVerifiedSubscription(ctx); err == nil && existing != nil && now.Before(existing.ExpiryAt) {
		start = existing.ExpiryAt
		oldExpiry := existing.ExpiryAt
		extendedFrom = &oldExpiry
	}

	sub := models.Subscription{
		PlanID:            plan.ID,
		ActivatedAt:       now,
		ExpiryAt:          start.Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		Source:            source,
		TransactionCode:   transactionCode,
		LicenseKey:        licenseKey,
		DeviceFingerprint: fingerprint,
		ExtendedFrom:      extendedFrom,
	}

	tokenString, err := signSubscription(m.secret, sub)
	if err != nil {
		return models.Subscription{}, err
	}
	if err := m.repo.saveToken(ctx, tokenString, now); err != nil {
		return models.Subscription{}, err
	}

	syncWithRetry(ctx, m.syncer, sub, m.logger.Printf)
	return sub, nil
}
