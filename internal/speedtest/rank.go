package speedtest

import (
	"sort"

	"github.com/iaserrat/dnsspeed/internal/probe"
)

// Rank drops unreachable results and stable-sorts the rest by RTT.
func Rank(results []probe.Result) []probe.Result {
	ranked := make([]probe.Result, 0, len(results))
	for _, r := range results {
		if r.Reachable() {
			ranked = append(ranked, r)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RTT < ranked[j].RTT
	})

	return ranked
}

func Top(ranked []probe.Result, n int) []probe.Result {
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
