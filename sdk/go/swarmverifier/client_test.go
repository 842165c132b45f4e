package swarmverifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sampleVerificationRequest() VerificationRequest {
	return VerificationRequest{
		Agents: []Agent{
			{ID: "agent-a", Endpoint: "http://agent-a.local"},
			{ID: "agent-b", Endpoint: "http://agent-b.local"},
		},
	}
}

func TestVerifyDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verifications" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req VerificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if len(req.Agents) != 2 {
			t.Fatalf("unexpected agent count: %d", len(req.Agents))
		}
		_ = json.NewEncoder(w).Encode(Verification{
			ID:      "ver-1",
			Overall: 88,
			Verdict: "genuine",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	verification, err := client.Verify(context.Background(), sampleVerificationRequest())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verification.ID != "ver-1" || verification.Verdict != "genuine" {
		t.Fatalf("unexpected verification: %+v", verification)
	}
}

func TestGetVerificationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "验证记录不存在", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetVerification(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}

func TestWaitForJobPollsUntilTerminal(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		polls++
		job := Job{ID: "job-1", Status: "running"}
		if polls >= 3 {
			job.Status = "succeeded"
			job.Outcome = &JobOutcome{VerificationID: "ver-1", Overall: 91, Verdict: "genuine"}
		}
		_ = json.NewEncoder(w).Encode(job)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.WaitForJob(ctx, "job-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for job: %v", err)
	}
	if job.Status != "succeeded" || job.Outcome == nil || job.Outcome.VerificationID != "ver-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if polls < 3 {
		t.Fatalf("expected at least three polls, got %d", polls)
	}
}

func TestSubmitJobReturnsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "pending"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	job, err := client.SubmitJob(context.Background(), sampleVerificationRequest())
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	if job.ID != "job-1" || job.Status != "pending" {
		t.Fatalf("unexpected job: %+v", job)
	}
}
