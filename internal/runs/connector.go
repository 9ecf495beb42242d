package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EngineClient talks to the discovery engine over HTTP. The engine owns the
// actual connector crawl; this client only submits admitted runs.
type EngineClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEngineClient constructs a discovery engine client.
func NewEngineClient(baseURL string) *EngineClient {
	return &EngineClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Ping checks if the discovery engine is available.
func (c *EngineClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discovery engine returned status %d", resp.StatusCode)
	}
	return nil
}

type discoverRequest struct {
	RunID       string `json:"runId"`
	TenantID    string `json:"tenantId"`
	CaseID      string `json:"caseId"`
	Purpose     string `json:"purpose"`
	ContentScan bool   `json:"contentScan"`
	OCR         bool   `json:"ocr"`
	LLMAnalysis bool   `json:"llmAnalysis"`
}

// Discover submits a run to the engine and blocks until it finishes.
func (c *EngineClient) Discover(ctx context.Context, run Run) error {
	payload, err := json.Marshal(discoverRequest{
		RunID:       run.ID.String(),
		TenantID:    run.TenantID,
		CaseID:      run.CaseID,
		Purpose:     run.Purpose,
		ContentScan: run.ContentScan,
		OCR:         run.OCR,
		LLMAnalysis: run.LLMAnalysis,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/discover", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discovery engine returned status %d", resp.StatusCode)
	}
	return nil
}
