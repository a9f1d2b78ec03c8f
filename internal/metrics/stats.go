package metrics

import (
	"sort"

	"github.com/iaserrat/dnsspeed/internal/probe"
)

// RunStats summarises one speed-test run. Loss covers unreachable candidates
// and those dropped at a batch deadline alike.
type RunStats struct {
	Candidates int
	Reachable  int
	LossPct    float64
	RttMinMs   float64
	RttAvgMs   float64
	RttP95Ms   float64
}

// Compute builds RunStats from the ranked results of a run over candidates
// servers.
func Compute(candidates int, ranked []probe.Result) RunStats {
	stats := RunStats{Candidates: candidates}
	if candidates == 0 {
		return stats
	}

	var rtts []float64
	var rttSum float64
	for _, r := range ranked {
		if !r.Reachable() {
			continue
		}
		ms := float64(r.Millis())
		rtts = append(rtts, ms)
		rttSum += ms
	}

	stats.Reachable = len(rtts)
	stats.LossPct = (1.0 - (float64(stats.Reachable) / float64(candidates))) * 100.0
	if len(rtts) > 0 {
		sort.Float64s(rtts)
		stats.RttMinMs = rtts[0]
		stats.RttAvgMs = rttSum / float64(len(rtts))
		stats.RttP95Ms = rtts[int(float64(len(rtts)-1)*0.95)]
	}

	return stats
}
