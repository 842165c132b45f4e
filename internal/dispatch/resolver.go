package dispatch

import "strings"

// DefaultVariants 是逐个尝试的端点路径变体，按优先级排列：
// 约定式发现路径、通用 API 路径、通用挑战路径、通用验证路径、裸端点。
var DefaultVariants = []string{
	"/.well-known/swarm/challenge",
	"/api/v1/challenge",
	"/challenge",
	"/verify",
	"",
}

// Resolver 把智能体端点展开为一组有序候选地址。
// 与传输层解耦，便于单独配置与测试。
type Resolver struct {
	variants []string
}

// NewResolver 创建 Resolver，未提供变体时使用默认列表。
func NewResolver(variants ...string) *Resolver {
	if len(variants) == 0 {
		variants = DefaultVariants
	}
	copied := make([]string, len(variants))
	copy(copied, variants)
	return &Resolver{variants: copied}
}

// Candidates 返回按顺序去重后的候选地址。
func (r *Resolver) Candidates(endpoint string) []string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return nil
	}
	seen := make(map[string]bool, len(r.variants))
	out := make([]string, 0, len(r.variants))
	for _, variant := range r.variants {
		candidate := base + variant
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}
