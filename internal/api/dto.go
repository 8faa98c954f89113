package api

// recipientDTO is the wire shape of one campaign recipient.
type recipientDTO struct {
	Phone  string            `json:"phone" validate:"required"`
	Name   string            `json:"name"`
	Amount float64           `json:"amount"`
	Fields map[string]string `json:"fields"`
}

// startCampaignRequest is the body of POST /campaigns.
type startCampaignRequest struct {
	Recipients  []recipientDTO `json:"recipients" validate:"required,min=1,dive"`
	Template    string         `json:"template" validate:"required"`
	SimSlot     int            `json:"simSlot"`
	SendSpeedMs int            `json:"sendSpeedMs"`
	CampaignID  string         `json:"campaignId"`
}

// startCampaignResponse is returned by POST /campaigns.
type startCampaignResponse struct {
	CampaignID string `json:"campaignId"`
}

// campaignStatusResponse is returned by GET /campaigns/:id.
type campaignStatusResponse struct {
	CampaignID string `json:"campaignId"`
	Processed  int    `json:"processed"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Queued     int    `json:"queued"`
	Total      int    `json:"total"`
	Done       bool   `json:"done"`
}

// activatePaymentRequest is the body of POST /entitlement/activate/payment.
type activatePaymentRequest struct {
	AmountKES       int    `json:"amountKes" validate:"required,gt=0"`
	TransactionCode string `json:"transactionCode" validate:"required"`
}

// activateLicenseRequest is the body of POST /entitlement/activate/license.
type activateLicenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required,len=20"`
}

// billingStateResponse mirrors models.BillingState for the wire.
type billingStateResponse struct {
	Status          string `json:"status"`
	PlanID          string `json:"planId,omitempty"`
	DaysRemaining   int    `json:"daysRemaining"`
	ExpiryAt        string `json:"expiryAt,omitempty"`
	RenewalReminder bool   `json:"renewalReminder"`
	TrialEligible   bool   `json:"trialEligible"`
}

// outboundStatsResponse is returned by GET /outbound/stats, combining
// the durable queue snapshot with the Retry Worker's cumulative
// counters and circuit breaker state.
type outboundStatsResponse struct {
	Pending             int   `json:"pending"`
	Failed              int   `json:"failed"`
	Exhausted           int   `json:"exhausted"`
	Total               int   `json:"total"`
	WorkerProcessed     int64 `json:"workerProcessed"`
	WorkerSent          int64 `json:"workerSent"`
	WorkerFailed        int64 `json:"workerFailed"`
	CircuitBreakerOpen  bool  `json:"circuitBreakerOpen"`
	CooldownRemainingMs int64 `json:"cooldownRemainingMs"`
}
