package entitlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/platform"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
)

type fakeSyncer struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (f *fakeSyncer) RegisterActivation(ctx context.Context, sub models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return assertErr
	}
	return nil
}

var assertErr = &syncError{"server unreachable"}

type syncError struct{ msg string }

func (e *syncError) Error() string { return e.msg }

func newTestManager(t *testing.T, clock *platform.FixedClock, device platform.DeviceBinding) (*Manager, *fakeSyncer) {
	t.Helper()
	ctx := context.Background()
	engine, err := storage.Open(ctx, storage.Options{Path: ":memory:", OpenTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, migrations.NewRunner(engine.WriteDB(), nil).Apply(ctx, migrations.All()))

	q := queue.New(engine, queue.Options{Tick: time.Millisecond, MaxConcurrentReads: 3, BulkBatchSize: 10})
	t.Cleanup(func() {
		q.Stop()
		engine.Close()
	})

	ks := platform.NewMemoryKeystore()
	syncer := &fakeSyncer{}
	mgr, err := NewManager(q, ks, device, ManagerConfig{Clock: clock, Syncer: syncer})
	require.NoError(t, err)
	return mgr, syncer
}

func TestManager_NoSubscriptionNoTrialYieldsNone(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-1", clock)
	mgr, _ := newTestManager(t, clock, device)

	state, err := mgr.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusNone, state.Status)
	assert.True(t, state.TrialEligible)
	assert.False(t, mgr.HasActiveAccess(context.Background()))
}

func TestManager_ActivateWithPayment_GrantsActiveAccess(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-2", clock)
	mgr, syncer := newTestManager(t, clock, device)
	ctx := context.Background()

	sub, err := mgr.ActivateWithPayment(ctx, 350, "tx-001")
	require.NoError(t, err)
	assert.Equal(t, "monthly", sub.PlanID)

	state, err := mgr.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusActive, state.Status)
	assert.True(t, mgr.HasActiveAccess(ctx))
	assert.Equal(t, 1, syncer.calls)
}

func TestManager_ActivateWithPayment_RejectsDuplicateTransactionCode(t *testing.T) {
	now := time.Now()
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-3", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	_, err := mgr.ActivateWithPayment(ctx, 350, "tx-dup")
	require.NoError(t, err)

	_, err = mgr.ActivateWithPayment(ctx, 350, "tx-dup")
	assert.Error(t, err)
}

func TestManager_ActivateWithPayment_ExtendsFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-4", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	first, err := mgr.ActivateWithPayment(ctx, 100, "tx-a")
	require.NoError(t, err)
	firstExpiry := first.ExpiryAt

	second, err := mgr.ActivateWithPayment(ctx, 100, "tx-b")
	require.NoError(t, err)
	assert.NotNil(t, second.ExtendedFrom)
	assert.Equal(t, firstExpiry, *second.ExtendedFrom)
	assert.True(t, second.ExpiryAt.After(firstExpiry))
}

func TestManager_ActivateWithLicenseKey_RejectsReuse(t *testing.T) {
	now := time.Now()
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-5", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	key, err := generateLicenseKey(mgr.plans, mgr.secret, "weekly", now.Add(7*24*time.Hour), "device-5")
	require.NoError(t, err)

	_, err = mgr.ActivateWithLicenseKey(ctx, key)
	require.NoError(t, err)

	_, err = mgr.ActivateWithLicenseKey(ctx, key)
	assert.Error(t, err)
}

func TestManager_ActivateTrial_OneShot(t *testing.T) {
	now := time.Now()
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-6", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	state, err := mgr.ActivateTrial(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusTrial, state.Status)

	_, err = mgr.ActivateTrial(ctx)
	assert.Error(t, err)
}

func TestManager_GraceWindowAfterExpiry(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-7", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	_, err := mgr.ActivateWithPayment(ctx, 100, "tx-grace")
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour) // past the 7-day weekly plan's expiry
	state, err := mgr.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusGrace, state.Status)
	assert.True(t, mgr.HasActiveAccess(ctx))

	clock.Advance(4 * 24 * time.Hour) // past the 3-day grace window too
	state, err = mgr.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusExpired, state.Status)
	assert.False(t, mgr.HasActiveAccess(ctx))
}

func TestManager_DeviceMismatchDiscardsSubscription(t *testing.T) {
	now := time.Now()
	clock := platform.NewFixedClock(now)
	device := platform.NewStaticDeviceBinding("device-8", clock)
	mgr, _ := newTestManager(t, clock, device)
	ctx := context.Background()

	_, err := mgr.ActivateWithPayment(ctx, 350, "tx-mismatch")
	require.NoError(t, err)

	device.Fingerprint = "device-8-stolen-copy"
	state, err := mgr.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusNone, state.Status)
}
