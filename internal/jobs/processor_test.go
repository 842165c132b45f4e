package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/internal/observability/alerting"
	"github.com/pvtclawn/swarm-verifier/internal/swarm"
	"github.com/pvtclawn/swarm-verifier/internal/verifier"
)

type fakeVerifier struct {
	processed atomic.Int32
	latency   time.Duration
	failures  atomic.Int32
	failFirst int32
}

func (f *fakeVerifier) Verify(ctx context.Context, req verifier.Request) (*swarm.Verification, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failures.Load() < f.failFirst {
		f.failures.Add(1)
		return nil, xerrors.New(xerrors.CodeDispatchFailure, "代理不可达", xerrors.WithRetryable(true))
	}
	f.processed.Add(1)
	return &swarm.Verification{
		ID:      uuid.NewString(),
		Overall: 92,
		Verdict: swarm.VerdictGenuine,
	}, nil
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	exec := &fakeVerifier{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(exec, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		if _, err := service.Submit(ctx, sampleRequest()); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(exec.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", exec.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	exec := &fakeVerifier{failFirst: 2}

	service := NewService(store, queue, 5)
	processor := NewProcessor(exec, store, queue, queue, WithWorkerCount(2))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("任务应在重试后成功: %+v", final)
	}
	if final.Outcome == nil || final.Outcome.Verdict != swarm.VerdictGenuine {
		t.Fatalf("任务结果不符: %+v", final.Outcome)
	}
	if final.Attempts < 3 {
		t.Fatalf("期望至少三次尝试，实际 %d", final.Attempts)
	}
	cancel()
}

func TestProcessorMarksTerminalFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	exec := &fakeVerifier{failFirst: 100}

	service := NewService(store, queue, 2)
	processor := NewProcessor(exec, store, queue, queue, WithWorkerCount(1))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("任务应以失败告终: %+v", final)
	}
	if final.ErrorCode != string(xerrors.CodeDispatchFailure) {
		t.Fatalf("错误码不符: %s", final.ErrorCode)
	}
	cancel()
}

type captureAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (c *captureAlerter) Notify(_ context.Context, event alerting.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAlerter) snapshot() []alerting.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alerting.Event(nil), c.events...)
}

func TestProcessorAlertsCarrySwarmContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	exec := &fakeVerifier{failFirst: 100}
	alerter := &captureAlerter{}

	service := NewService(store, queue, 2)
	processor := NewProcessor(exec, store, queue, queue,
		WithWorkerCount(1),
		WithAlertDispatcher(alerter),
	)

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	job, err := service.Submit(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	if _, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond); err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}

	// 状态落库先于告警发出，终态告警可能晚到一拍。
	var terminal *alerting.Event
	deadline := time.After(5 * time.Second)
	for terminal == nil {
		for _, event := range alerter.snapshot() {
			if event.Metadata["stage"] == "terminal" {
				captured := event
				terminal = &captured
				break
			}
		}
		if terminal != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("终态失败应触发告警")
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()

	if terminal.JobID != job.ID {
		t.Fatalf("告警任务 ID 不符: %s", terminal.JobID)
	}
	if terminal.AgentCount != len(job.Request.Agents) {
		t.Fatalf("告警应携带集群规模: %+v", terminal)
	}
	if terminal.ChallengeType != string(job.Request.Type) {
		t.Fatalf("告警应携带挑战类型: %+v", terminal)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(4), 3)

	req := verifier.Request{Agents: []swarm.Agent{{ID: "only-one"}}}
	if _, err := service.Submit(ctx, req); err == nil {
		t.Fatal("少于两个代理应被拒绝")
	}
}
