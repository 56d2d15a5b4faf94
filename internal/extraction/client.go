// Package extraction implements the C3 remote AI extraction client: a
// bounded-timeout HTTP client over the configured HF Space endpoint, with
// graceful fallback to filename parsing on any failure (spec §4.3).
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/pkg/config"
)

// Result is the AI service's inference over a single uploaded file.
type Result struct {
	RegisterNumber      string  `json:"register_number"`
	RegisterConfidence  float64 `json:"register_confidence"`
	SubjectCode         string  `json:"subject_code"`
	SubjectConfidence   float64 `json:"subject_confidence"`
	SuggestedFilename   string  `json:"suggested_filename"`
}

// Confident reports whether both fields clear the configured threshold.
func (r Result) Confident(threshold float64) bool {
	return r.RegisterConfidence >= threshold && r.SubjectConfidence >= threshold
}

// Client calls the remote extraction service. A zero-value BaseURL
// disables remote extraction entirely — callers should check Enabled().
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient builds a Client from ExtractionConfig.
func NewClient(cfg config.ExtractionConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

// Enabled reports whether a remote extraction endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Extract posts the file to the remote service and parses its JSON
// response. On any transport, status, or decode failure it returns a
// nil Result and a non-nil error; callers are expected to fall back to
// internal/identity's filename parser in that case, per §4.3.
func (c *Client) Extract(ctx context.Context, filename string, data []byte) (*Result, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("extraction: no endpoint configured")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("extraction: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("extraction: write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("extraction: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", body)
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("extraction request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("extraction: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.logger.Warn("extraction non-2xx response", zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return nil, fmt.Errorf("extraction: service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("extraction: decode response: %w", err)
	}

	return &result, nil
}

// HealthCheck performs a short-timeout probe of the remote service,
// independent of the long-lived extraction timeout — grounded on the
// teacher's health-check ping pattern for external collaborators.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	probe := &http.Client{Timeout: 10 * time.Second}
	resp, err := probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Outcome classifies an extraction attempt for metrics.
type Outcome string

const (
	OutcomeConfident    Outcome = "confident"
	OutcomeLowConfidence Outcome = "low_confidence"
	OutcomeFailed       Outcome = "failed"
	OutcomeDisabled     Outcome = "disabled"
)

// Classify buckets an extraction attempt's outcome for Result/err pairs.
func Classify(result *Result, err error, threshold float64) Outcome {
	if err != nil {
		return OutcomeFailed
	}
	if result == nil {
		return OutcomeFailed
	}
	if result.Confident(threshold) {
		return OutcomeConfident
	}
	return OutcomeLowConfidence
}
