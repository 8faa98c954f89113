package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/pipeline"
	"github.com/enjuguna-bit/bulksms-sub001/internal/platform"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
	"github.com/enjuguna-bit/bulksms-sub001/internal/transport"

	"github.com/enjuguna-bit/bulksms-sub001/internal/entitlement"
)

type alwaysAllow struct{}

func (alwaysAllow) HasActiveAccess(ctx context.Context) bool { return true }

type fakeTransport struct{}

func (fakeTransport) Send(ctx context.Context, to, body string, simSlot int) (transport.SendResult, error) {
	return transport.SendResult{ProviderMessageID: "sid"}, nil
}

func newTestServer(t *testing.T) *Server {
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

	messaging := repository.NewMessagingRepository(q)
	outbound := repository.NewOutboundRepository(q)
	sendlog := repository.NewSendLogRepository(q)
	p := pipeline.New(messaging, outbound, sendlog, fakeTransport{}, alwaysAllow{}, pipeline.Config{FlushEveryNMessages: 1, FlushEvery: time.Millisecond})

	clock := platform.NewFixedClock(time.Now())
	ks := platform.NewMemoryKeystore()
	device := platform.NewStaticDeviceBinding("device-api-test", clock)
	mgr, err := entitlement.NewManager(q, ks, device, entitlement.ManagerConfig{Clock: clock})
	require.NoError(t, err)

	return NewServer(Config{Messaging: messaging, Outbound: outbound, Pipeline: p, Entitlement: mgr})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestStartCampaign_AcceptsAndReportsStatus(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/campaigns", startCampaignRequest{
		Recipients: []recipientDTO{{Phone: "+254700000001", Name: "Asha"}},
		Template:   "Hi {name}",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var started startCampaignResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.NotEmpty(t, started.CampaignID)

	require.Eventually(t, func() bool {
		w := doJSON(t, s, http.MethodGet, "/campaigns/"+started.CampaignID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var status campaignStatusResponse
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		return status.Done
	}, time.Second, 5*time.Millisecond)
}

func TestStartCampaign_RejectsEmptyRecipients(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/campaigns", startCampaignRequest{Template: "Hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignStatus_UnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/campaigns/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntitlement_DefaultStateIsNone(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/entitlement", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state billingStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, string(models.BillingStatusNone), state.Status)
}

func TestEntitlement_ActivatePaymentThenReflectsActive(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/entitlement/activate/payment", activatePaymentRequest{AmountKES: 350, TransactionCode: "tx-api-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/entitlement", nil)
	var state billingStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, string(models.BillingStatusActive), state.Status)
}

func TestEntitlement_DuplicateTransactionCodeReturnsConflict(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/entitlement/activate/payment", activatePaymentRequest{AmountKES: 350, TransactionCode: "tx-api-dup"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/entitlement/activate/payment", activatePaymentRequest{AmountKES: 350, TransactionCode: "tx-api-dup"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOutboundStats_ReturnsQueueSnapshot(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/outbound/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats outboundStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Pending)
}

func TestListConversations_ReturnsEmptyInitially(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
