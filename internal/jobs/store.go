package jobs

import (
	"context"

	xerrors "github.com/pvtclawn/swarm-verifier/internal/errors"
)

// ListOptions 控制 List 的返回内容。
type ListOptions struct {
	Limit    int
	Statuses []Status
}

func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
}

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, outcome Outcome) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Close() error
}
