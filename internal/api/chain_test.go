package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pvtclawn/swarm-verifier/internal/chain"
)

// manualClock is a hand-cranked block height source.
type manualClock struct {
	height uint64
}

func (c *manualClock) BlockNumber(context.Context) (uint64, error) {
	return c.height, nil
}

func newChainTestServer(t *testing.T) (*Server, *manualClock) {
	t.Helper()
	clock := &manualClock{height: 100}
	machine := chain.NewMachine(clock)
	server := newTestServer(t)
	WithChainMachine(machine, clock)(server)
	WithChallengeWindows(10, 10)(server)
	return server, clock
}

func postJSON(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func createChallenge(t *testing.T, server *Server) challengeView {
	t.Helper()
	prompt := crypto.Keccak256Hash([]byte("what is 6*7")).Hex()
	body := fmt.Sprintf(`{"prompt_hash":%q,"creator":"0x00000000000000000000000000000000000000c1"}`, prompt)
	rec := postJSON(t, server, "/api/v1/chain/challenges", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create challenge: got %d, body %s", rec.Code, rec.Body.String())
	}
	var view challengeView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	return view
}

func TestChainChallengeLifecycleOverHTTP(t *testing.T) {
	server, clock := newChainTestServer(t)

	view := createChallenge(t, server)
	if view.StartBlock != 100 || view.CommitDeadline != 110 || view.RevealDeadline != 120 {
		t.Fatalf("unexpected windows: %+v", view)
	}

	salt := []byte("salt-1")
	commitHash := chain.CommitHash("42", salt).Hex()
	base := "/api/v1/chain/challenges/" + view.ID

	commitBody := fmt.Sprintf(`{"agent":"0x00000000000000000000000000000000000000a1","commit_hash":%q}`, commitHash)
	if rec := postJSON(t, server, base+"/commit", commitBody); rec.Code != http.StatusOK {
		t.Fatalf("commit: got %d, body %s", rec.Code, rec.Body.String())
	}

	clock.height = 110
	revealBody := fmt.Sprintf(`{"agent":"0x00000000000000000000000000000000000000a1","answer":"42","salt":%q}`, hex.EncodeToString(salt))
	if rec := postJSON(t, server, base+"/reveal", revealBody); rec.Code != http.StatusOK {
		t.Fatalf("reveal: got %d, body %s", rec.Code, rec.Body.String())
	}

	clock.height = 121
	finalizeBody := `{"caller":"0x00000000000000000000000000000000000000c1"}`
	rec := postJSON(t, server, base+"/finalize", finalizeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode score: %v", err)
	}
	if result["score"] != 100 {
		t.Fatalf("expected score 100, got %d", result["score"])
	}

	stateReq := httptest.NewRequest(http.MethodGet, base, nil)
	stateRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(stateRec, stateReq)
	if stateRec.Code != http.StatusOK {
		t.Fatalf("state lookup: got %d", stateRec.Code)
	}
	var state challengeView
	if err := json.Unmarshal(stateRec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.Finalized || state.FinalScore != 100 {
		t.Fatalf("unexpected final state: %+v", state)
	}
	if state.Phase != chain.PhaseFinalized {
		t.Fatalf("unexpected phase: %s", state.Phase)
	}
	if len(state.Commitments) != 1 || !state.Commitments[0].Revealed || state.Commitments[0].Answer != "42" {
		t.Fatalf("unexpected commitments: %+v", state.Commitments)
	}
}

func TestChainRevertsMapToConflict(t *testing.T) {
	server, clock := newChainTestServer(t)
	view := createChallenge(t, server)
	base := "/api/v1/chain/challenges/" + view.ID

	// Commit window closed once the deadline is reached.
	clock.height = 110
	commitBody := `{"agent":"0x00000000000000000000000000000000000000a1","commit_hash":"0x` + strings.Repeat("ab", 32) + `"}`
	if rec := postJSON(t, server, base+"/commit", commitBody); rec.Code != http.StatusConflict {
		t.Fatalf("late commit: got %d, body %s", rec.Code, rec.Body.String())
	}

	// Finalize by a non-creator is rejected even after the reveal deadline.
	clock.height = 121
	if rec := postJSON(t, server, base+"/finalize", `{"caller":"0x00000000000000000000000000000000000000a1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("non-creator finalize: got %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestChainChallengeErrors(t *testing.T) {
	server, _ := newChainTestServer(t)

	t.Run("unknown challenge", func(t *testing.T) {
		path := "/api/v1/chain/challenges/0x" + strings.Repeat("00", 32)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chain/challenges/not-a-hash", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed creator", func(t *testing.T) {
		prompt := crypto.Keccak256Hash([]byte("prompt")).Hex()
		body := fmt.Sprintf(`{"prompt_hash":%q,"creator":"zzz"}`, prompt)
		if rec := postJSON(t, server, "/api/v1/chain/challenges", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("disabled machine", func(t *testing.T) {
		bare := newTestServer(t)
		prompt := crypto.Keccak256Hash([]byte("prompt")).Hex()
		body := fmt.Sprintf(`{"prompt_hash":%q,"creator":"0x00000000000000000000000000000000000000c1"}`, prompt)
		if rec := postJSON(t, bare, "/api/v1/chain/challenges", body); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
		}
	})
}
