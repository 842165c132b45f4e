package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
	"github.com/pvtclawn/swarm-verifier/internal/swarm"
)

// nonceBytes 是一次性随机数的字节长度，128 位足以防御题目缓存与重放。
const nonceBytes = 16

// Source 提供生成挑战所需的全部随机性。
// 显式注入而非依赖全局随机源，测试可以换成固定种子实现。
type Source interface {
	// Intn 返回 [0,n) 内的随机整数，用于题目选取。
	Intn(n int) int
	// Nonce 填充一次性随机数。
	Nonce(b []byte) error
}

// cryptoSource 是默认的密码学强随机源。
type cryptoSource struct{}

func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func (cryptoSource) Nonce(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// Generator 按照题库生成一次性挑战。除随机源外是纯函数，不访问网络与存储。
type Generator struct {
	source Source
	now    func() time.Time
}

// Option 定义可选的 Generator 配置。
type Option func(*Generator)

// WithSource 替换随机源。
func WithSource(source Source) Option {
	return func(g *Generator) {
		if source != nil {
			g.source = source
		}
	}
}

// WithClock 替换时钟，便于测试固定时间。
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator 创建 Generator。
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		source: cryptoSource{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Generate 为目标智能体集合产出一个一次性挑战。
// 未显式指定类型时回落到 parallel；超时必须为正值。
func (g *Generator) Generate(typ swarm.ChallengeType, agentIDs []string, timeout time.Duration) (*swarm.Challenge, error) {
	if len(agentIDs) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "目标智能体集合不能为空")
	}
	if timeout <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "挑战超时必须为正值")
	}
	if typ == "" {
		typ = swarm.TypeParallel
	}

	bank := Prompts(typ)
	prompt := bank[g.source.Intn(len(bank))]

	nonce := make([]byte, nonceBytes)
	if err := g.source.Nonce(nonce); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成一次性随机数失败")
	}

	now := g.now()
	targets := make([]string, len(agentIDs))
	copy(targets, agentIDs)

	return &swarm.Challenge{
		ID:        uuid.NewString(),
		Type:      typ,
		Prompt:    prompt,
		Nonce:     hex.EncodeToString(nonce),
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
		AgentIDs:  targets,
	}, nil
}
