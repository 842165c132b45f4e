package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pvtclawn/swarm-verifier/internal/swarm"
)

func sampleVerification(id string) *swarm.Verification {
	return &swarm.Verification{
		ID:          id,
		ChallengeID: "ch-1",
		Agents: []swarm.Agent{
			{ID: "a-1", Endpoint: "http://a1.example"},
			{ID: "a-2", Endpoint: "http://a2.example"},
		},
		Responses: []swarm.ChallengeResponse{
			{ChallengeID: "ch-1", AgentID: "a-1", Text: "32", Latency: 300 * time.Millisecond},
			{ChallengeID: "ch-1", AgentID: "a-2", Text: "32", Latency: 310 * time.Millisecond},
		},
		Scores:    swarm.Scores{ResponseTime: 100, TimeVariance: 100, Consistency: 100, Participation: 100},
		Overall:   100,
		Verdict:   swarm.VerdictGenuine,
		Responded: 2,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryRepositorySaveAndGet(t *testing.T) {
	repo, err := NewMemoryVerificationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}

	want := sampleVerification("v-1")
	if err := repo.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(context.Background(), "v-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Overall != 100 || got.Verdict != swarm.VerdictGenuine || len(got.Responses) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryRepositoryWriteOnce(t *testing.T) {
	repo, err := NewMemoryVerificationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	if err := repo.Save(context.Background(), sampleVerification("v-1")); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := repo.Save(context.Background(), sampleVerification("v-1")); !errors.Is(err, ErrVerificationExists) {
		t.Fatalf("expected ErrVerificationExists, got %v", err)
	}
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	repo, err := NewMemoryVerificationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound, got %v", err)
	}
}

func TestMemoryRepositoryReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewMemoryVerificationRepository(dir)
	if err != nil {
		t.Fatalf("create repo: %v", err)
	}
	if err := repo.Save(context.Background(), sampleVerification("v-persisted")); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := NewMemoryVerificationRepository(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(context.Background(), "v-persisted")
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.ChallengeID != "ch-1" {
		t.Fatalf("unexpected record after reload: %+v", got)
	}
}
