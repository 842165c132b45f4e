package swarm

import "math"

// ComputeTiming 对成功应答的实测时延做聚合统计。
// 没有任何成功应答时返回全零值，绝不产生 NaN。
func ComputeTiming(responses []ChallengeResponse) TimingStats {
	var latencies []float64
	for _, r := range responses {
		if r.Succeeded() {
			latencies = append(latencies, float64(r.Latency.Milliseconds()))
		}
	}
	if len(latencies) == 0 {
		return TimingStats{}
	}

	stats := TimingStats{MinMs: latencies[0], MaxMs: latencies[0]}
	var sum float64
	for _, v := range latencies {
		if v < stats.MinMs {
			stats.MinMs = v
		}
		if v > stats.MaxMs {
			stats.MaxMs = v
		}
		sum += v
	}
	stats.MeanMs = sum / float64(len(latencies))

	var sq float64
	for _, v := range latencies {
		d := v - stats.MeanMs
		sq += d * d
	}
	stats.StdDevMs = math.Sqrt(sq / float64(len(latencies)))
	if stats.MeanMs > 0 {
		stats.CV = stats.StdDevMs / stats.MeanMs
	}
	return stats
}
