package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/pvtclawn/swarm-verifier/sdk/go/swarmverifier"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/verifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(swarmverifier.Verification{
				ID:      "ver-demo",
				Overall: 93,
				Verdict: "genuine",
				Scores: swarmverifier.Scores{
					ResponseTime:  95,
					TimeVariance:  90,
					Consistency:   92,
					Participation: 100,
				},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(swarmverifier.Job{ID: "job-demo", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(swarmverifier.Job{
			ID:     "job-demo",
			Status: "succeeded",
			Outcome: &swarmverifier.JobOutcome{
				VerificationID: "ver-demo",
				Overall:        93,
				Verdict:        "genuine",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := swarmverifier.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request := swarmverifier.VerificationRequest{
		Agents: []swarmverifier.Agent{
			{ID: "agent-a", Endpoint: "http://agent-a.local"},
			{ID: "agent-b", Endpoint: "http://agent-b.local"},
		},
	}

	verification, err := client.Verify(ctx, request)
	if err != nil {
		panic(err)
	}
	fmt.Printf("verification %s verdict=%s overall=%d\n", verification.ID, verification.Verdict, verification.Overall)

	job, err := client.SubmitJob(ctx, request)
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", job.ID, job.Status)

	final, err := client.WaitForJob(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s finished verdict=%s\n", final.ID, final.Outcome.Verdict)
}
