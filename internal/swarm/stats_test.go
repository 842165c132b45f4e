package swarm

import (
	"math"
	"testing"
	"time"
)

func respWithLatency(id string, ms int64) ChallengeResponse {
	return ChallengeResponse{
		AgentID: id,
		Text:    "ok",
		Latency: time.Duration(ms) * time.Millisecond,
	}
}

func TestComputeTiming(t *testing.T) {
	responses := []ChallengeResponse{
		respWithLatency("a", 100),
		respWithLatency("b", 200),
		respWithLatency("c", 300),
		{AgentID: "d", Error: "connection refused"},
	}

	stats := ComputeTiming(responses)
	if stats.MinMs != 100 || stats.MaxMs != 300 {
		t.Fatalf("unexpected min/max: %+v", stats)
	}
	if stats.MeanMs != 200 {
		t.Fatalf("unexpected mean: %v", stats.MeanMs)
	}
	want := math.Sqrt(20000.0 / 3.0)
	if math.Abs(stats.StdDevMs-want) > 1e-9 {
		t.Fatalf("unexpected stddev: %v", stats.StdDevMs)
	}
	if math.Abs(stats.CV-want/200) > 1e-9 {
		t.Fatalf("unexpected cv: %v", stats.CV)
	}
}

func TestComputeTimingNoSuccessesIsZero(t *testing.T) {
	responses := []ChallengeResponse{
		{AgentID: "a", Error: "timeout"},
		{AgentID: "b", Error: "status 500"},
	}
	stats := ComputeTiming(responses)
	if stats != (TimingStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	if math.IsNaN(stats.CV) {
		t.Fatal("cv must never be NaN")
	}
}
