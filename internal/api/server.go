// Package api exposes the engine's loopback-only control surface: start
// and steer campaigns, read conversations, manage entitlement and read
// outbound/retry health, using a router group plus middleware and the
// ShouldBindJSON-then-validator.Struct handler shape.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/entitlement"
	"github.com/enjuguna-bit/bulksms-sub001/internal/eventbus"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/pipeline"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/retry"
)

// Server is the loopback control API: campaigns, conversations, outbound
// stats and entitlement, bound to localhost only.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *log.Logger
	validate   *validator.Validate

	messaging   *repository.MessagingRepository
	outbound    *repository.OutboundRepository
	audit       *repository.AuditRepository
	pipeline    *pipeline.Pipeline
	retryWorker *retry.Worker
	entitlement *entitlement.Manager
	campaigns   *campaignRegistry
	bus         eventbus.Bus
}

// Config wires a Server's collaborators.
type Config struct {
	BindAddr    string
	Messaging   *repository.MessagingRepository
	Outbound    *repository.OutboundRepository
	Audit       *repository.AuditRepository
	Pipeline    *pipeline.Pipeline
	RetryWorker *retry.Worker
	Entitlement *entitlement.Manager
	EventBus    eventbus.Bus
	Logger      *log.Logger
}

// NewServer builds a Server and registers its routes. It does not start
// listening; call Start for that.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8765"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router:      router,
		logger:      cfg.Logger,
		validate:    validator.New(),
		messaging:   cfg.Messaging,
		outbound:    cfg.Outbound,
		audit:       cfg.Audit,
		pipeline:    cfg.Pipeline,
		retryWorker: cfg.RetryWorker,
		entitlement: cfg.Entitlement,
		campaigns:   newCampaignRegistry(),
		bus:         cfg.EventBus,
	}
	s.httpServer = &http.Server{Addr: cfg.BindAddr, Handler: router}

	router.Use(recovery(cfg.Logger), requestLogger(cfg.Logger))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	campaigns := s.router.Group("/campaigns")
	{
		campaigns.POST("", s.startCampaign)
		campaigns.GET("/:id", s.campaignStatus)
		campaigns.POST("/:id/pause", s.pauseCampaign)
		campaigns.POST("/:id/resume", s.resumeCampaign)
		campaigns.POST("/:id/cancel", s.cancelCampaign)
	}

	conversations := s.router.Group("/conversations")
	{
		conversations.GET("", s.listConversations)
		conversations.GET("/:id/messages", s.listMessages)
	}

	entitlementGroup := s.router.Group("/entitlement")
	{
		entitlementGroup.GET("", s.getEntitlement)
		entitlementGroup.POST("/activate/payment", s.activatePayment)
		entitlementGroup.POST("/activate/license", s.activateLicense)
		entitlementGroup.POST("/activate/trial", s.activateTrial)
	}

	s.router.GET("/outbound/stats", s.outboundStats)
	s.router.GET("/audit", s.listAudit)
}

// Start begins serving on cfg.BindAddr. It blocks until the server
// stops, returning nil on a clean Shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return false
	}
	return true
}

func (s *Server) startCampaign(c *gin.Context) {
	var req startCampaignRequest
	if !s.bindJSON(c, &req) {
		return
	}

	recipients := make([]models.Recipient, len(req.Recipients))
	for i, r := range req.Recipients {
		recipients[i] = models.Recipient{Phone: r.Phone, Name: r.Name, Amount: r.Amount, Fields: r.Fields}
	}

	id := req.CampaignID
	if id == "" {
		id = uuid.NewString()
	}
	pacing := time.Duration(req.SendSpeedMs) * time.Millisecond

	handle := s.campaigns.register(id, s.bus)
	campaignID := id
	handle.run(context.Background(), s.pipeline, pipeline.Run{
		Recipients:  recipients,
		Template:    req.Template,
		SimSlot:     req.SimSlot,
		PacingDelay: pacing,
		CampaignID:  &campaignID,
	})

	c.JSON(http.StatusAccepted, startCampaignResponse{CampaignID: id})
}

func (s *Server) campaignStatus(c *gin.Context) {
	handle, ok := s.campaigns.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	counters, done := handle.snapshot()
	c.JSON(http.StatusOK, campaignStatusResponse{
		CampaignID: handle.id,
		Processed:  counters.Processed,
		Sent:       counters.Sent,
		Failed:     counters.Failed,
		Queued:     counters.Queued,
		Total:      counters.Total,
		Done:       done,
	})
}

func (s *Server) pauseCampaign(c *gin.Context) {
	handle, ok := s.campaigns.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	handle.pause.Pause()
	c.Status(http.StatusNoContent)
}

func (s *Server) resumeCampaign(c *gin.Context) {
	handle, ok := s.campaigns.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	handle.pause.Resume()
	c.Status(http.StatusNoContent)
}

func (s *Server) cancelCampaign(c *gin.Context) {
	handle, ok := s.campaigns.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	handle.cancel.Cancel()
	c.Status(http.StatusNoContent)
}

func (s *Server) listConversations(c *gin.Context) {
	opts := models.ConversationListOptions{
		Filter: models.ConversationFilter(c.DefaultQuery("filter", string(models.ConversationFilterAll))),
		Sort:   models.ConversationSort(c.DefaultQuery("sort", string(models.ConversationSortRecent))),
		Query:  c.Query("q"),
		Limit:  50,
	}
	conversations, err := s.messaging.ListConversations(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversations})
}

func (s *Server) listMessages(c *gin.Context) {
	conversationIDStr := c.Param("id")
	var conversationID int64
	if _, err := fmt.Sscanf(conversationIDStr, "%d", &conversationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	messages, err := s.messaging.ListMessages(c.Request.Context(), conversationID, 100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func (s *Server) getEntitlement(c *gin.Context) {
	state, err := s.entitlement.GetState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entitlement state"})
		return
	}
	c.JSON(http.StatusOK, toBillingStateResponse(state))
}

func (s *Server) activatePayment(c *gin.Context) {
	var req activatePaymentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	sub, err := s.entitlement.ActivateWithPayment(c.Request.Context(), req.AmountKES, req.TransactionCode)
	if err != nil {
		s.writeEntitlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"planId": sub.PlanID, "expiryAt": sub.ExpiryAt})
}

func (s *Server) activateLicense(c *gin.Context) {
	var req activateLicenseRequest
	if !s.bindJSON(c, &req) {
		return
	}
	sub, err := s.entitlement.ActivateWithLicenseKey(c.Request.Context(), req.LicenseKey)
	if err != nil {
		s.writeEntitlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"planId": sub.PlanID, "expiryAt": sub.ExpiryAt})
}

func (s *Server) activateTrial(c *gin.Context) {
	state, err := s.entitlement.ActivateTrial(c.Request.Context())
	if err != nil {
		s.writeEntitlementError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBillingStateResponse(state))
}

func (s *Server) writeEntitlementError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrPlanUnknown):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrDuplicateTransaction), errors.Is(err, apperrors.ErrDuplicateLicenseKey), errors.Is(err, apperrors.ErrTrialAlreadyUsed):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrTamperDetected):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": apperrors.Kind(err), "details": err.Error()})
}

func (s *Server) outboundStats(c *gin.Context) {
	stats, err := s.outbound.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read outbound stats"})
		return
	}
	resp := outboundStatsResponse{
		Pending:   stats.Pending,
		Failed:    stats.Failed,
		Exhausted: stats.Exhausted,
		Total:     stats.Total,
	}
	if s.retryWorker != nil {
		workerStats := s.retryWorker.Stats()
		resp.WorkerProcessed = workerStats.Processed
		resp.WorkerSent = workerStats.Sent
		resp.WorkerFailed = workerStats.Failed

		breaker := s.retryWorker.BreakerStatus()
		resp.CircuitBreakerOpen = breaker.Active
		resp.CooldownRemainingMs = breaker.CooldownRemainingMs
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listAudit(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusOK, gin.H{"data": []models.AuditEntry{}})
		return
	}
	limit := 100
	entries, err := s.audit.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func toBillingStateResponse(state models.BillingState) billingStateResponse {
	resp := billingStateResponse{
		Status:          string(state.Status),
		PlanID:          state.PlanID,
		DaysRemaining:   state.DaysRemaining,
		RenewalReminder: state.RenewalReminder,
		TrialEligible:   state.TrialEligible,
	}
	if state.ExpiryAt != nil {
		resp.ExpiryAt = state.ExpiryAt.Format(time.RFC3339)
	}
	return resp
}
