package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pvtclawn/swarm-verifier/internal/swarm"
	"github.com/pvtclawn/swarm-verifier/pkg/logger"
)

// ProtocolVersion 标识下发给智能体的挑战载荷版本。
const ProtocolVersion = "1"

// Payload 是 POST 给每个智能体的挑战载荷。
type Payload struct {
	Version     string    `json:"version"`
	ChallengeID string    `json:"challenge_id"`
	Prompt      string    `json:"prompt"`
	Nonce       string    `json:"nonce"`
	IssuedAt    time.Time `json:"issued_at"`
	Verifier    string    `json:"verifier"`
}

// replyEnvelope 兼容智能体可能使用的多种应答字段名。
type replyEnvelope struct {
	Response     string `json:"response"`
	Answer       string `json:"answer"`
	Text         string `json:"text"`
	Result       string `json:"result"`
	Output       string `json:"output"`
	ProcessingMs int64  `json:"processing_ms"`
	DurationMs   int64  `json:"duration_ms"`
}

// text 取第一个非空的应答字段。
func (e replyEnvelope) text() string {
	for _, candidate := range []string{e.Response, e.Answer, e.Text, e.Result, e.Output} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// selfReported 返回智能体自报的处理耗时，仅作参考。
func (e replyEnvelope) selfReported() time.Duration {
	if e.ProcessingMs > 0 {
		return time.Duration(e.ProcessingMs) * time.Millisecond
	}
	if e.DurationMs > 0 {
		return time.Duration(e.DurationMs) * time.Millisecond
	}
	return 0
}

// Result 汇总一次分发的全部应答与时延统计。
type Result struct {
	Responses []swarm.ChallengeResponse `json:"responses"`
	Responded int                       `json:"responded"`
	Timing    swarm.TimingStats         `json:"timing"`
}

// Dispatcher 并发地把挑战投递给每个智能体。
// 任何失败都转化为带错误描述的应答记录，Dispatch 本身永不失败，
// 且无论成败都为每个请求的智能体返回恰好一条应答。
type Dispatcher struct {
	client   *http.Client
	resolver *Resolver
	identity string
	log      *slog.Logger
}

// Option 定义可选的 Dispatcher 配置。
type Option func(*Dispatcher)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithResolver 替换端点变体解析器。
func WithResolver(resolver *Resolver) Option {
	return func(d *Dispatcher) {
		if resolver != nil {
			d.resolver = resolver
		}
	}
}

// WithIdentity 设置载荷中携带的验证方标识。
func WithIdentity(identity string) Option {
	return func(d *Dispatcher) {
		d.identity = identity
	}
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:   &http.Client{},
		resolver: NewResolver(),
		identity: "swarm-verifier",
		log:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch 把挑战并发投递给全部智能体并等待所有任务落定。
// 每个智能体独占一个协程，截止时间由挑战的过期时刻派生；
// 单个慢节点只会超时自己，不影响其他任务，分发开始后没有全局中止。
func (d *Dispatcher) Dispatch(ctx context.Context, agents []swarm.Agent, ch *swarm.Challenge) *Result {
	responses := make([]swarm.ChallengeResponse, len(agents))

	var wg sync.WaitGroup
	for i, ag := range agents {
		wg.Add(1)
		go func(idx int, agent swarm.Agent) {
			defer wg.Done()
			responses[idx] = d.deliver(ctx, agent, ch)
		}(i, ag)
	}
	wg.Wait()

	responded := 0
	for _, r := range responses {
		if r.Succeeded() {
			responded++
		}
	}

	return &Result{
		Responses: responses,
		Responded: responded,
		Timing:    swarm.ComputeTiming(responses),
	}
}

// deliver 针对单个智能体按顺序尝试端点变体，接受第一个成功应答。
func (d *Dispatcher) deliver(ctx context.Context, agent swarm.Agent, ch *swarm.Challenge) swarm.ChallengeResponse {
	record := swarm.ChallengeResponse{
		ChallengeID: ch.ID,
		AgentID:     agent.ID,
	}

	attemptCtx, cancel := context.WithDeadline(ctx, ch.ExpiresAt)
	defer cancel()

	payload, err := json.Marshal(Payload{
		Version:     ProtocolVersion,
		ChallengeID: ch.ID,
		Prompt:      ch.Prompt,
		Nonce:       ch.Nonce,
		IssuedAt:    ch.CreatedAt,
		Verifier:    d.identity,
	})
	if err != nil {
		record.Error = fmt.Sprintf("encode payload: %v", err)
		record.ReceivedAt = time.Now()
		return record
	}

	start := time.Now()
	var lastErr string
	for _, url := range d.resolver.Candidates(agent.Endpoint) {
		envelope, attemptErr := d.attempt(attemptCtx, url, payload)
		if attemptErr != nil {
			lastErr = attemptErr.Error()
			if attemptCtx.Err() != nil {
				// 截止时间已过，放弃剩余变体。
				break
			}
			continue
		}
		record.Text = envelope.text()
		record.SelfReported = envelope.selfReported()
		record.Latency = time.Since(start)
		record.ReceivedAt = time.Now()
		d.log.Debug("挑战投递成功",
			slog.String("agent_id", agent.ID),
			slog.String("url", url),
			slog.Duration("latency", record.Latency),
		)
		return record
	}

	if lastErr == "" {
		lastErr = "no endpoint candidates"
	}
	record.Error = lastErr
	record.Latency = time.Since(start)
	record.ReceivedAt = time.Now()
	d.log.Debug("挑战投递失败",
		slog.String("agent_id", agent.ID),
		slog.String("error", record.Error),
	)
	return record
}

// attempt 对单个候选地址发起一次请求。
// 非 2xx 状态、网络错误与空应答均视为失败，交由调用方尝试下一个变体。
func (d *Dispatcher) attempt(ctx context.Context, url string, payload []byte) (*replyEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}

	var envelope replyEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}
	if envelope.text() == "" {
		return nil, fmt.Errorf("empty response payload from %s", url)
	}
	return &envelope, nil
}
