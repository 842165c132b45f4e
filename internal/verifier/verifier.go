package verifier

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pvtclawn/swarm-verifier/internal/challenge"
	"github.com/pvtclawn/swarm-verifier/internal/dispatch"
	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/internal/scoring"
	"github.com/pvtclawn/swarm-verifier/internal/swarm"
	"github.com/pvtclawn/swarm-verifier/pkg/logger"
)

// defaultTimeout 是未显式指定时的挑战超时。
const defaultTimeout = 10 * time.Second

// Request 描述一次验证请求。
type Request struct {
	Agents    []swarm.Agent       `json:"agents"`
	Type      swarm.ChallengeType `json:"type,omitempty"`
	TimeoutMs int64               `json:"timeout_ms,omitempty"`
}

// Store 抽象验证记录的持久化接口。核心验证流程不依赖具体存储实现。
type Store interface {
	Save(ctx context.Context, v *swarm.Verification) error
	Get(ctx context.Context, id string) (*swarm.Verification, error)
}

// Dispatcher 定义验证器所需的分发能力。
type Dispatcher interface {
	Dispatch(ctx context.Context, agents []swarm.Agent, ch *swarm.Challenge) *dispatch.Result
}

// Verifier 串联挑战生成、并发分发与统计评分，是系统的业务核心。
type Verifier struct {
	generator  *challenge.Generator
	dispatcher Dispatcher
	engine     *scoring.Engine
	store      Store
	timeout    time.Duration
	identity   string
	now        func() time.Time
}

// Option 定义可选的 Verifier 配置。
type Option func(*Verifier)

// WithStore 配置验证记录仓库。
func WithStore(store Store) Option {
	return func(v *Verifier) {
		v.store = store
	}
}

// WithPolicy 替换评分标定策略。
func WithPolicy(policy scoring.Policy) Option {
	return func(v *Verifier) {
		v.engine = scoring.NewEngine(policy)
	}
}

// WithDispatcher 替换分发实现。
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(v *Verifier) {
		if dispatcher != nil {
			v.dispatcher = dispatcher
		}
	}
}

// WithGenerator 替换挑战生成器。
func WithGenerator(generator *challenge.Generator) Option {
	return func(v *Verifier) {
		if generator != nil {
			v.generator = generator
		}
	}
}

// WithIdentity 设置默认分发器在挑战载荷中携带的验证方标识。
// 通过 WithDispatcher 注入自定义分发器时此选项不生效。
func WithIdentity(identity string) Option {
	return func(v *Verifier) {
		v.identity = identity
	}
}

// WithDefaultTimeout 调整未显式指定时的挑战超时。
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(v *Verifier) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// New 创建一个 Verifier。
func New(opts ...Option) *Verifier {
	v := &Verifier{
		generator: challenge.NewGenerator(),
		engine:    scoring.NewEngine(scoring.DefaultPolicy()),
		timeout:   defaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.dispatcher == nil {
		dispatcherOpts := []dispatch.Option{}
		if v.identity != "" {
			dispatcherOpts = append(dispatcherOpts, dispatch.WithIdentity(v.identity))
		}
		v.dispatcher = dispatch.NewDispatcher(dispatcherOpts...)
	}
	return v
}

// Verify 对一个集群执行一次完整验证。
// 输入校验失败在分发开始前返回；分发永不失败；
// 验证记录在所有任务落定后一次性写入，之后不再修改。
func (v *Verifier) Verify(ctx context.Context, req Request) (*swarm.Verification, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	timeout := v.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	agentIDs := make([]string, len(req.Agents))
	for i, ag := range req.Agents {
		agentIDs[i] = ag.ID
	}

	ch, err := v.generator.Generate(req.Type, agentIDs, timeout)
	if err != nil {
		return nil, err
	}

	result := v.dispatcher.Dispatch(ctx, req.Agents, ch)
	score := v.engine.Evaluate(result.Responses, len(req.Agents), result.Timing)

	verification := &swarm.Verification{
		ID:          uuid.NewString(),
		ChallengeID: ch.ID,
		Agents:      req.Agents,
		Responses:   result.Responses,
		Scores:      score.Scores,
		Overall:     score.Overall,
		Verdict:     score.Verdict,
		Responded:   result.Responded,
		Timing:      result.Timing,
		CreatedAt:   v.now().UTC(),
	}

	if v.store != nil {
		if err := v.store.Save(ctx, verification); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存验证记录失败")
		}
	}

	logger.Audit().Info("验证完成",
		slog.String("verification_id", verification.ID),
		slog.String("challenge_id", ch.ID),
		slog.Int("agents", len(req.Agents)),
		slog.Int("responded", result.Responded),
		slog.Int("overall", score.Overall),
		slog.String("verdict", string(score.Verdict)),
	)
	return verification, nil
}

// Get 按 ID 读取历史验证记录。
func (v *Verifier) Get(ctx context.Context, id string) (*swarm.Verification, error) {
	if v.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置验证记录仓库")
	}
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "验证 ID 不能为空")
	}
	return v.store.Get(ctx, id)
}

// validate 在分发开始前拒绝不合法的请求。
func validate(req Request) error {
	if len(req.Agents) < 2 {
		return xerrors.New(xerrors.CodeInvalidArgument, "至少需要两个智能体才能构成集群")
	}
	seen := make(map[string]bool, len(req.Agents))
	for i, ag := range req.Agents {
		if strings.TrimSpace(ag.ID) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "智能体缺少 ID", xerrors.WithMetadata("index", strconv.Itoa(i)))
		}
		if strings.TrimSpace(ag.Endpoint) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "智能体缺少端点", xerrors.WithMetadata("agent_id", ag.ID))
		}
		if seen[ag.ID] {
			return xerrors.New(xerrors.CodeInvalidArgument, "智能体 ID 重复", xerrors.WithMetadata("agent_id", ag.ID))
		}
		seen[ag.ID] = true
	}
	return nil
}
