package faults

import (
	"math"
	"math/rand"

	"github.com/fleetsim/fleet-sim/sim/compute"
)

// victimCount returns how many of healthy hosts a fault of the given
// severity takes down.
func victimCount(severity float64, healthy int) int {
	if healthy == 0 {
		return 0
	}
	if math.IsNaN(severity) || severity < 0 {
		severity = 0
	}
	severity = math.Min(severity, 1)
	k := int(math.Round(severity * float64(healthy)))
	return min(max(k, 1), healthy)
}

// chooseVictims picks k hosts uniformly without replacement. The result
// keeps registry order.
func chooseVictims(rng *rand.Rand, healthy []*compute.Host, k int) []*compute.Host {
	idx := make([]int, len(healthy))
	for i := range idx {
		idx[i] = i
	}
	// Partial Fisher-Yates over the first k slots.
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	picked := make([]bool, len(healthy))
	for _, i := range idx[:k] {
		picked[i] = true
	}
	out := make([]*compute.Host, 0, k)
	for i, h := range healthy {
		if picked[i] {
			out = append(out, h)
		}
	}
	return out
}
