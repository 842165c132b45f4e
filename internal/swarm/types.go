package swarm

import "time"

// Agent 描述一个待验证的智能体成员。
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Endpoint string `json:"endpoint"`
	// Identity 可选地引用外部身份（例如链上地址或 DID）。
	Identity string `json:"identity,omitempty"`
}

// ChallengeType 划分提示词题库的类别。
type ChallengeType string

const (
	// TypeParallel 使用答案确定的短题目，用于跨智能体的时延对比。
	TypeParallel ChallengeType = "parallel"
	// TypeStylistic 使用开放式题目，用于风格一致性测试。
	TypeStylistic ChallengeType = "stylistic"
)

// Challenge 是一次性下发给整个集群的挑战。创建后不可变，只使用一次。
type Challenge struct {
	ID        string        `json:"id"`
	Type      ChallengeType `json:"type"`
	Prompt    string        `json:"prompt"`
	Nonce     string        `json:"nonce"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	AgentIDs  []string      `json:"agent_ids"`
}

// ChallengeResponse 记录单个智能体对挑战的应答或失败。
type ChallengeResponse struct {
	ChallengeID string        `json:"challenge_id"`
	AgentID     string        `json:"agent_id"`
	Text        string        `json:"text"`
	Error       string        `json:"error,omitempty"`
	ReceivedAt  time.Time     `json:"received_at"`
	Latency     time.Duration `json:"latency"`
	// SelfReported 是智能体自报的处理耗时，仅作参考；评分始终使用实测时延。
	SelfReported time.Duration `json:"self_reported,omitempty"`
}

// Succeeded 判断应答是否成功。
func (r ChallengeResponse) Succeeded() bool {
	return r.Error == "" && r.Text != ""
}

// TimingStats 汇总成功应答的时延统计。无成功应答时所有字段为零值。
type TimingStats struct {
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"std_dev_ms"`
	// CV 是变异系数（标准差除以均值），与绝对时延无关的离散度量。
	CV float64 `json:"cv"`
}

// Verdict 是基于总分的三档判定结果。
type Verdict string

const (
	VerdictGenuine    Verdict = "genuine"
	VerdictSuspicious Verdict = "suspicious"
	VerdictLikelyFake Verdict = "likely_fake"
)

// Scores 保存四个维度的子分，每项都落在 [0,100]。
type Scores struct {
	ResponseTime  float64 `json:"response_time"`
	TimeVariance  float64 `json:"time_variance"`
	Consistency   float64 `json:"consistency"`
	Participation float64 `json:"participation"`
}

// Verification 是一次完整验证的不可变记录，写入后不再修改。
type Verification struct {
	ID          string              `json:"id"`
	ChallengeID string              `json:"challenge_id"`
	Agents      []Agent             `json:"agents"`
	Responses   []ChallengeResponse `json:"responses"`
	Scores      Scores              `json:"scores"`
	Overall     int                 `json:"overall"`
	Verdict     Verdict             `json:"verdict"`
	Responded   int                 `json:"responded"`
	Timing      TimingStats         `json:"timing"`
	CreatedAt   time.Time           `json:"created_at"`
	// Attestation 可选地引用后续发布的证明记录，由外部协作方填写。
	Attestation string `json:"attestation,omitempty"`
}
