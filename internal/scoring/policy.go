package scoring

// BandPoint 是分段线性曲线上的一个标定点：输入不超过 X 时得分趋向 Score。
// 点按 X 升序排列，得分单调不增；相邻点之间线性插值。
type BandPoint struct {
	X     float64 `json:"x"`
	Score float64 `json:"score"`
}

// Policy 汇总评分引擎的全部标定常量。
// 这些数值是经验性策略而非硬约定，集中暴露以便重新标定；
// 仅保证单调性与固定锚点（如 CV<0.1 得满分）不变。
type Policy struct {
	// TimeBands 把成功应答的平均时延（毫秒）映射为响应时间分。
	TimeBands []BandPoint `json:"time_bands"`
	// CVBands 把时延变异系数映射为时间方差分。
	CVBands []BandPoint `json:"cv_bands"`
	// LengthWeight 与 OverlapWeight 是一致性分中长度一致性与词面重合度的权重。
	LengthWeight  float64 `json:"length_weight"`
	OverlapWeight float64 `json:"overlap_weight"`
	// NeutralScore 在成功应答不足两个时充当方差分与一致性分的固定中性值。
	NeutralScore float64 `json:"neutral_score"`
	// GenuineThreshold 与 SuspiciousThreshold 划定三档判定的总分边界。
	GenuineThreshold    int `json:"genuine_threshold"`
	SuspiciousThreshold int `json:"suspicious_threshold"`
}

// DefaultPolicy 返回经验标定的默认策略。
func DefaultPolicy() Policy {
	return Policy{
		TimeBands: []BandPoint{
			{X: 500, Score: 100},
			{X: 1000, Score: 80},
			{X: 2000, Score: 55},
			{X: 3000, Score: 35},
			{X: 4000, Score: 15},
			{X: 5200, Score: 0},
		},
		CVBands: []BandPoint{
			{X: 0.1, Score: 100},
			{X: 0.2, Score: 80},
			{X: 0.35, Score: 55},
			{X: 0.5, Score: 30},
			{X: 0.8, Score: 10},
			{X: 1.2, Score: 0},
		},
		LengthWeight:        0.4,
		OverlapWeight:       0.6,
		NeutralScore:        50,
		GenuineThreshold:    70,
		SuspiciousThreshold: 40,
	}
}

// evalBands 在标定点之间做线性插值。
// 输入低于首个点时取首个点的分值，高于末点时取末点的分值。
func evalBands(points []BandPoint, x float64) float64 {
	if len(points) == 0 {
		return 0
	}
	if x <= points[0].X {
		return points[0].Score
	}
	for i := 1; i < len(points); i++ {
		if x <= points[i].X {
			prev, cur := points[i-1], points[i]
			span := cur.X - prev.X
			if span <= 0 {
				return cur.Score
			}
			ratio := (x - prev.X) / span
			return prev.Score + (cur.Score-prev.Score)*ratio
		}
	}
	return points[len(points)-1].Score
}
