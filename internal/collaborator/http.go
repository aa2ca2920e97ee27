package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/pkg/keycase"
	"github.com/ugclab/ugc-pipeline/pkg/requestid"
)

const maxErrorBody = 512

// HTTPRunner executes the stages on a remote collaborator service.
// Bodies are exchanged in snake_case.
type HTTPRunner struct {
	baseURL    string
	httpClient *http.Client
}

var _ pipeline.StageRunner = (*HTTPRunner)(nil)

func NewHTTPRunner(baseURL string, timeout time.Duration) *HTTPRunner {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPRunner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Run posts the stage request to {baseURL}/stages/{step}. Client errors are
// permanent, server and transport errors may be retried.
func (r *HTTPRunner) Run(ctx context.Context, req pipeline.StageRequest) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/stages/%s", r.baseURL, req.Step)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pipeline.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}
	body, err = keycase.ToSnake(body)
	if err != nil {
		return nil, pipeline.Permanent(fmt.Errorf("failed to transcode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, pipeline.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	requestid.Propagate(ctx, httpReq)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s stage: %w", req.Step, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, pipeline.Permanent(statusError(req.Step, resp.StatusCode, bodyBytes))
	default:
		return nil, statusError(req.Step, resp.StatusCode, bodyBytes)
	}

	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return json.RawMessage(`{}`), nil
	}

	out, err := keycase.ToCamel(bodyBytes)
	if err != nil {
		return nil, pipeline.Permanent(fmt.Errorf("failed to decode %s stage response: %w", req.Step, err))
	}
	return out, nil
}

// HealthCheck calls {baseURL}/health.
func (r *HTTPRunner) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", r.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call collaborator: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Drain body to enable connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator health check returned status %d", resp.StatusCode)
	}
	return nil
}

// stageErrorBody is the error document returned by the collaborator.
type stageErrorBody struct {
	Error string `json:"error"`
}

func statusError(step catalog.StepID, code int, body []byte) error {
	var e stageErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("%s stage returned status %d: %s", step, code, e.Error)
	}

	msg := truncate(strings.TrimSpace(string(body)), maxErrorBody)
	if msg == "" {
		return fmt.Errorf("%s stage returned status %d", step, code)
	}
	return fmt.Errorf("%s stage returned status %d: %s", step, code, msg)
}

// truncate cuts s to at most n bytes without splitting a utf-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
