package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// TwilioConfig holds the credentials needed to reach the Twilio REST API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioTransport sends SMS via Twilio's Programmable Messaging API.
// SimSlot is accepted for interface parity with the native transport but
// ignored: a cloud carrier has no concept of a device SIM slot.
type TwilioTransport struct {
	config TwilioConfig
	client *twilio.RestClient
}

// NewTwilioTransport builds a TwilioTransport. Returns
// apperrors.ErrTransportFailed immediately if cfg is incomplete, so a
// misconfigured deployment fails at wiring time rather than on first send.
func NewTwilioTransport(cfg TwilioConfig) (*TwilioTransport, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio transport: incomplete configuration: %w", apperrors.ErrTransportFailed)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioTransport{config: cfg, client: client}, nil
}

// Send posts one message to the Twilio REST API.
func (t *TwilioTransport) Send(ctx context.Context, to, body string, simSlot int) (SendResult, error) {
	if !ValidatePhone(to) {
		return SendResult{}, apperrors.ErrInvalidRecipient
	}

	if err := ctx.Err(); err != nil {
		return SendResult{}, apperrors.ErrTransportCancelled
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.config.FromNumber)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return SendResult{}, classifyTwilioError(err)
	}

	var sid string
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	return SendResult{ProviderMessageID: sid}, nil
}

// classifyTwilioError maps Twilio's numeric error codes onto the
// package's carrier-agnostic sentinels.
func classifyTwilioError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "21610"), strings.Contains(msg, "21614"), strings.Contains(msg, "21211"):
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidRecipient, err)
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", apperrors.ErrTransportTimeout, err)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrTransportFailed, err)
	}
}
