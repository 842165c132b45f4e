package scoring

import (
	"math"
	"strings"

	"github.com/pvtclawn/swarm-verifier/internal/swarm"
)

// Result 是一次评分的输出。
type Result struct {
	Scores  swarm.Scores
	Overall int
	Verdict swarm.Verdict
}

// Engine 把一组应答映射为四个子分、总分与判定。
// 纯函数式：给定相同输入必然产出相同结果，不访问网络、存储与时钟。
type Engine struct {
	policy Policy
}

// NewEngine 创建评分引擎。
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy 返回引擎当前的标定策略。
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate 对一次验证的应答集合评分。
// totalAgents 是本次验证请求的完整目标数量，参与度分母始终使用它。
func (e *Engine) Evaluate(responses []swarm.ChallengeResponse, totalAgents int, timing swarm.TimingStats) Result {
	successes := make([]swarm.ChallengeResponse, 0, len(responses))
	for _, r := range responses {
		if r.Succeeded() {
			successes = append(successes, r)
		}
	}

	scores := swarm.Scores{
		ResponseTime:  e.responseTimeScore(successes, timing),
		TimeVariance:  e.timeVarianceScore(successes, timing),
		Consistency:   e.consistencyScore(successes),
		Participation: e.participationScore(len(successes), totalAgents),
	}
	scores.ResponseTime = clamp(scores.ResponseTime)
	scores.TimeVariance = clamp(scores.TimeVariance)
	scores.Consistency = clamp(scores.Consistency)
	scores.Participation = clamp(scores.Participation)

	overall := int(math.Round((scores.ResponseTime + scores.TimeVariance + scores.Consistency + scores.Participation) / 4))

	return Result{
		Scores:  scores,
		Overall: overall,
		Verdict: e.verdict(overall),
	}
}

// responseTimeScore 依据平均时延打分，时延越高得分单调不增。
func (e *Engine) responseTimeScore(successes []swarm.ChallengeResponse, timing swarm.TimingStats) float64 {
	if len(successes) == 0 {
		return 0
	}
	return evalBands(e.policy.TimeBands, timing.MeanMs)
}

// timeVarianceScore 依据时延变异系数打分。
// 成功应答不足两个时方差无意义，返回固定中性值。
func (e *Engine) timeVarianceScore(successes []swarm.ChallengeResponse, timing swarm.TimingStats) float64 {
	if len(successes) < 2 {
		return e.policy.NeutralScore
	}
	return evalBands(e.policy.CVBands, timing.CV)
}

// consistencyScore 综合长度一致性与两两词面重合度。
func (e *Engine) consistencyScore(successes []swarm.ChallengeResponse) float64 {
	if len(successes) < 2 {
		return e.policy.NeutralScore
	}

	lengths := make([]float64, len(successes))
	for i, r := range successes {
		lengths[i] = float64(len(r.Text))
	}
	lengthScore := math.Max(0, 100*(1-coefficientOfVariation(lengths)))

	var overlapSum float64
	var pairs int
	for i := 0; i < len(successes); i++ {
		for j := i + 1; j < len(successes); j++ {
			overlapSum += jaccard(successes[i].Text, successes[j].Text)
			pairs++
		}
	}
	overlapScore := 0.0
	if pairs > 0 {
		overlapScore = overlapSum / float64(pairs) * 100
	}

	return e.policy.LengthWeight*lengthScore + e.policy.OverlapWeight*overlapScore
}

// participationScore 用完整目标集合做分母，缺席即扣分。
func (e *Engine) participationScore(succeeded, totalAgents int) float64 {
	if totalAgents <= 0 {
		return 0
	}
	return float64(succeeded) / float64(totalAgents) * 100
}

func (e *Engine) verdict(overall int) swarm.Verdict {
	switch {
	case overall >= e.policy.GenuineThreshold:
		return swarm.VerdictGenuine
	case overall >= e.policy.SuspiciousThreshold:
		return swarm.VerdictSuspicious
	default:
		return swarm.VerdictLikelyFake
	}
}

// jaccard 计算两段文本按空白切词、小写化后的词集合交并比。
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = true
	}
	return set
}

// coefficientOfVariation 返回总体标准差除以均值，均值为零时返回零。
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
