package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/pkg/requestid"
)

const apiPrefix = "/api/v1/pipeline"

// PipelineClient is an HTTP client for the pipeline api server
type PipelineClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPipelineClient(baseURL string, httpClient *http.Client) *PipelineClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &PipelineClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// APIError is a non 2xx answer of the api server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api server returned status %d: %s (request id %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api server returned status %d: %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Start creates a job. A request carrying a blueprint goes to the prompts route.
func (c *PipelineClient) Start(ctx context.Context, req api.PipelineStartRequest) (string, error) {
	path := apiPrefix + "/jobs"
	if req.HasBlueprint() {
		path = apiPrefix + "/prompts"
	}

	var resp api.PipelineStartResponse
	if err := c.do(ctx, http.MethodPost, path, req, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.JobId, nil
}

func (c *PipelineClient) GetStatus(ctx context.Context, jobID string) (*api.JobStatus, error) {
	var status api.JobStatus
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/jobs/"+url.PathEscape(jobID), nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// List returns the jobs, only those with the given status when it is not empty.
func (c *PipelineClient) List(ctx context.Context, status string) (api.JobStatusList, error) {
	path := apiPrefix + "/jobs"
	if status != "" {
		path += "?" + url.Values{"status": []string{status}}.Encode()
	}

	var list api.JobStatusList
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *PipelineClient) Delete(ctx context.Context, jobID string) (*api.JobStatus, error) {
	var status api.JobStatus
	if err := c.do(ctx, http.MethodDelete, apiPrefix+"/jobs/"+url.PathEscape(jobID), nil, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *PipelineClient) Catalog(ctx context.Context) (api.Catalog, error) {
	var steps api.Catalog
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/catalog", nil, http.StatusOK, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (c *PipelineClient) HealthCheck(ctx context.Context) error {
	var health api.Health
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &health)
}

func (c *PipelineClient) do(ctx context.Context, method, path string, in any, expected int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	requestid.Propagate(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call api server: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expected {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var e api.Error
		if err := json.Unmarshal(bodyBytes, &e); err == nil && e.Message != "" {
			apiErr.Message = e.Message
			if e.RequestId != nil {
				apiErr.RequestID = *e.RequestId
			}
		}
		return apiErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
