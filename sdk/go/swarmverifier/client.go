package swarmverifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the swarm verifier REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Agent identifies one member of the swarm under verification.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Endpoint string `json:"endpoint"`
	Identity string `json:"identity,omitempty"`
}

// VerificationRequest is the payload accepted by the verification endpoints.
type VerificationRequest struct {
	Agents    []Agent `json:"agents"`
	Type      string  `json:"type,omitempty"`
	TimeoutMs int64   `json:"timeout_ms,omitempty"`
}

// Scores carries the four sub-scores of a completed verification.
type Scores struct {
	ResponseTime  float64 `json:"response_time"`
	TimeVariance  float64 `json:"time_variance"`
	Consistency   float64 `json:"consistency"`
	Participation float64 `json:"participation"`
}

// Verification is the result of a synchronous verification run.
type Verification struct {
	ID          string `json:"id"`
	ChallengeID string `json:"challenge_id"`
	Scores      Scores `json:"scores"`
	Overall     int    `json:"overall"`
	Verdict     string `json:"verdict"`
	Responded   int    `json:"responded"`
}

// JobOutcome summarizes the result of an asynchronous verification job.
type JobOutcome struct {
	VerificationID string `json:"verification_id"`
	Overall        int    `json:"overall"`
	Verdict        string `json:"verdict"`
}

// Job tracks an asynchronous verification.
type Job struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	Outcome   *JobOutcome `json:"outcome,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("swarmverifier api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the swarm verifier API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Verify runs a synchronous verification and returns the full result.
func (c *Client) Verify(ctx context.Context, req VerificationRequest) (Verification, error) {
	var verification Verification
	if err := c.post(ctx, "/api/v1/verifications", req, &verification); err != nil {
		return Verification{}, err
	}
	return verification, nil
}

// GetVerification fetches a stored verification by identifier.
func (c *Client) GetVerification(ctx context.Context, id string) (Verification, error) {
	var verification Verification
	if err := c.get(ctx, "/api/v1/verifications/"+url.PathEscape(id), &verification); err != nil {
		return Verification{}, err
	}
	return verification, nil
}

// SubmitJob enqueues an asynchronous verification job.
func (c *Client) SubmitJob(ctx context.Context, req VerificationRequest) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", req, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches job status by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// WaitForJob polls a job until it reaches a terminal state or the context is
// cancelled.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Status == "succeeded" || job.Status == "failed" {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
