// Package pipeline implements the Send Pipeline: a single cooperative
// task that walks a campaign's recipient list, rendering, dispatching
// and persisting one message at a time. Parallelism is deliberately
// absent here; a SIM-backed transport sends one message at a time in
// practice, and interleaving sends would scramble delivery order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/transport"
)

// AccessChecker is the slice of the Entitlement Manager the pipeline
// needs. It is declared here rather than imported from
// internal/entitlement to avoid a dependency cycle.
type AccessChecker interface {
	HasActiveAccess(ctx context.Context) bool
}

// Counters summarises a run in progress, flushed to Observer
// periodically and always once more on exit.
type Counters struct {
	Processed int
	Sent      int
	Failed    int
	Queued    int
	Total     int
}

// Observer receives counter snapshots. Implementations must not block:
// the pipeline calls it inline on its own goroutine.
type Observer func(Counters)

// Config carries the pipeline's timing knobs, sourced from
// internal/config.Config.
type Config struct {
	MaxRetries          int
	TransportTimeout    time.Duration
	DedupWindow         time.Duration
	FlushEveryNMessages int
	FlushEvery          time.Duration
	Audit               *repository.AuditRepository
}

// Pipeline runs campaigns. One Pipeline value can run many campaigns in
// sequence, never concurrently with itself.
type Pipeline struct {
	messaging *repository.MessagingRepository
	outbound  *repository.OutboundRepository
	sendlog   *repository.SendLogRepository
	transport transport.Transport
	access    AccessChecker
	audit     *repository.AuditRepository
	cfg       Config
}

// New builds a Pipeline from its collaborators.
func New(messaging *repository.MessagingRepository, outbound *repository.OutboundRepository, sendlog *repository.SendLogRepository, tr transport.Transport, access AccessChecker, cfg Config) *Pipeline {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TransportTimeout <= 0 {
		cfg.TransportTimeout = 10 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.FlushEveryNMessages <= 0 {
		cfg.FlushEveryNMessages = 20
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 500 * time.Millisecond
	}
	return &Pipeline{messaging: messaging, outbound: outbound, sendlog: sendlog, transport: tr, access: access, audit: cfg.Audit, cfg: cfg}
}

// Run carries out req's campaign, returning once every recipient has
// been processed, the run was cancelled, or access was revoked
// mid-flight. A final counter flush always happens before Run returns.
type Run struct {
	Recipients  []models.Recipient
	Template    string
	SimSlot     int
	PacingDelay time.Duration
	CampaignID  *string
	Cancel      *CancelToken
	Pause       *PauseGate
	Observer    Observer
}

// TimeoutForAttempt returns the progressive transport timeout for the
// given zero-based attempt count: base, base+5s, base+10s, ...
func TimeoutForAttempt(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	return base + time.Duration(attempt)*5*time.Second
}

func (p *Pipeline) Run(ctx context.Context, req Run) error {
	if req.Cancel == nil {
		req.Cancel = NewCancelToken()
	}
	if req.Pause == nil {
		req.Pause = NewPauseGate()
	}
	if req.PacingDelay <= 0 {
		req.PacingDelay = 400 * time.Millisecond
	}

	campaignID := ""
	if req.CampaignID != nil {
		campaignID = *req.CampaignID
	}
	p.recordAudit(ctx, "campaign_started", campaignID, fmt.Sprintf(`{"recipients":%d}`, len(req.Recipients)))

	counters := Counters{Total: len(req.Recipients)}
	lastFlush := time.Now()
	flush := func() {
		if req.Observer != nil {
			req.Observer(counters)
		}
		lastFlush = time.Now()
	}
	defer flush()
	defer func() {
		p.recordAudit(ctx, "campaign_finished", campaignID,
			fmt.Sprintf(`{"processed":%d,"sent":%d,"failed":%d}`, counters.Processed, counters.Sent, counters.Failed))
	}()

	flushDue := func() bool {
		return counters.Processed > 0 &&
			(counters.Processed%p.cfg.FlushEveryNMessages == 0 || time.Since(lastFlush) >= p.cfg.FlushEvery)
	}

	for _, recipient := range req.Recipients {
		if req.Cancel.Cancelled() {
			return nil
		}
		if err := req.Pause.Wait(ctx, req.Cancel); err != nil {
			return nil
		}
		if req.Cancel.Cancelled() {
			return nil
		}

		if !p.access.HasActiveAccess(ctx) {
			return apperrors.ErrPermissionDenied
		}

		dispatched := p.processOne(ctx, recipient, req, &counters)
		counters.Processed++

		if flushDue() {
			flush()
		}

		if req.Cancel.Cancelled() {
			return nil
		}
		if !dispatched {
			// Invalid and duplicate recipients do not consume a pacing slot.
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-req.Cancel.Done():
			return nil
		case <-time.After(req.PacingDelay):
		}
	}
	return nil
}

func (p *Pipeline) recordAudit(ctx context.Context, action, entityID, detail string) {
	if p.audit == nil {
		return
	}
	p.audit.Record(ctx, models.AuditEntry{
		ActorKind:  models.ActorPipeline,
		Action:     action,
		EntityKind: "campaign",
		EntityID:   entityID,
		Detail:     detail,
	})
}

// processOne handles one recipient and reports whether it got as far as
// a dispatch attempt; invalid and duplicate recipients report false.
func (p *Pipeline) processOne(ctx context.Context, recipient models.Recipient, req Run, counters *Counters) bool {
	if !transport.ValidatePhone(recipient.Phone) {
		counters.Failed++
		return false
	}

	body := ExpandTemplate(req.Template, recipient)

	duplicate, err := p.sendlog.WasSentWithin(ctx, recipient.Phone, body, p.cfg.DedupWindow)
	if err == nil && duplicate {
		return false
	}

	messageID := uuid.NewString()
	_, err = p.messaging.RecordOutgoing(ctx, recipient.Phone, messageID, body, req.CampaignID, nil)
	if err != nil {
		counters.Failed++
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, TimeoutForAttempt(p.cfg.TransportTimeout, 0))
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, sendErr := p.transport.Send(sendCtx, recipient.Phone, body, req.SimSlot)
		resultCh <- sendErr
	}()

	var sendErr error
	select {
	case sendErr = <-resultCh:
	case <-req.Cancel.Done():
		// Leave the message row pending. No outbound entry is written for
		// it, so the Retry Worker does not pick it up.
		return true
	case <-sendCtx.Done():
		sendErr = fmt.Errorf("%w", apperrors.ErrTransportTimeout)
	}

	if sendErr != nil {
		p.writebackFailure(ctx, recipient, messageID, body, req, counters, sendErr)
		return true
	}
	p.writebackSuccess(ctx, recipient, messageID, body, counters)
	return true
}

func (p *Pipeline) writebackSuccess(ctx context.Context, recipient models.Recipient, messageID, body string, counters *Counters) {
	_ = p.messaging.MarkMessageStatus(ctx, messageID, models.MessageStatusSent)
	_ = p.sendlog.Append(ctx, models.SendLog{
		ToNumber: recipient.Phone, Body: body, Timestamp: time.Now().UTC(), Status: models.SendLogSuccess,
	})
	counters.Sent++
}

func (p *Pipeline) writebackFailure(ctx context.Context, recipient models.Recipient, messageID, body string, req Run, counters *Counters, sendErr error) {
	_ = p.messaging.MarkMessageStatus(ctx, messageID, models.MessageStatusFailed)
	_, _ = p.outbound.Enqueue(ctx, recipient.Phone, body, models.PriorityNormal, req.SimSlot, nil)
	_ = p.sendlog.Append(ctx, models.SendLog{
		ToNumber: recipient.Phone, Body: body, Timestamp: time.Now().UTC(), Status: models.SendLogError, Error: sendErr.Error(),
	})
	counters.Failed++
	counters.Queued++
}
