// Package notify implements C8's outbound notification step: a thin
// SendGrid v3 mail/send client, grounded on the raw-HTTP SendGrid client
// pattern used elsewhere in the retrieved pack, since the official SDK is
// not part of this stack.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/pkg/config"
)

// Kind names the notification event, matching the audit action that
// triggered it.
type Kind string

const (
	KindSubmitSuccess Kind = "SUBMIT_SUCCESS"
	KindSubmitFailed  Kind = "SUBMIT_FAIL"
	KindPayloadReject Kind = "PAYLOAD_REJECT"
)

// Notifier posts an out-of-band notification; the wire format of the
// underlying channel is an external collaborator's concern, not this
// core's (spec §1 non-goals).
type Notifier interface {
	Notify(ctx context.Context, kind Kind, to string, metadata map[string]string) error
}

// NoopNotifier is used when no email channel is configured.
type NoopNotifier struct{ Logger *zap.Logger }

// Notify logs and discards the notification.
func (n *NoopNotifier) Notify(ctx context.Context, kind Kind, to string, metadata map[string]string) error {
	if n.Logger != nil {
		n.Logger.Info("notification suppressed: no email channel configured",
			zap.String("kind", string(kind)), zap.String("to", to))
	}
	return nil
}

// SendgridNotifier posts a templated notification through the SendGrid v3
// mail/send API.
type SendgridNotifier struct {
	httpClient *http.Client
	apiKey     string
	fromEmail  string
	fromName   string
	logger     *zap.Logger
}

// NewSendgridNotifier builds a notifier from EmailConfig, or nil if the API
// key is unset.
func NewSendgridNotifier(cfg config.EmailConfig, logger *zap.Logger) *SendgridNotifier {
	if cfg.SendgridAPIKey == "" {
		return nil
	}
	return &SendgridNotifier{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     cfg.SendgridAPIKey,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		logger:     logger,
	}
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridMailRequest struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

func subjectFor(kind Kind) string {
	switch kind {
	case KindSubmitSuccess:
		return "Examination paper submitted to the LMS"
	case KindSubmitFailed:
		return "Examination paper submission failed"
	case KindPayloadReject:
		return "Examination paper rejected by the LMS"
	default:
		return "Ingestion core notification"
	}
}

// Notify sends a plain-text email through SendGrid.
func (n *SendgridNotifier) Notify(ctx context.Context, kind Kind, to string, metadata map[string]string) error {
	body := &bytes.Buffer{}
	for k, v := range metadata {
		fmt.Fprintf(body, "%s: %s\n", k, v)
	}

	req := sendgridMailRequest{
		Personalizations: []sendgridPersonalization{{To: []sendgridAddress{{Email: to}}}},
		From:             sendgridAddress{Email: n.fromEmail},
		Subject:          subjectFor(kind),
		Content:          []sendgridContent{{Type: "text/plain", Value: body.String()}},
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal sendgrid request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.sendgrid.com/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+n.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if n.logger != nil {
			n.logger.Warn("sendgrid notification rejected", zap.Int("status", resp.StatusCode), zap.String("kind", string(kind)))
		}
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
