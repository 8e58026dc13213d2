package flow

import "sort"

// MaxMinFair divides capacity among demands with max-min fairness.
//
// Consumers are visited in ascending order of demand (ties keep their input
// order). Each receives min(demand, fair share), where the fair share is the
// remaining capacity divided by the consumers not yet served, so capacity a
// small consumer leaves unused flows to the larger ones.
//
// When the demands fit, every consumer gets exactly its demand. Otherwise
// the grants sum to capacity and none exceeds its demand. Zero capacity
// yields all zeros. Negative demands and capacity are treated as zero.
func MaxMinFair(demands []float64, capacity float64) []float64 {
	grants := make([]float64, len(demands))
	if len(demands) == 0 {
		return grants
	}
	if capacity < 0 {
		capacity = 0
	}

	total := 0.0
	for _, d := range demands {
		if d > 0 {
			total += d
		}
	}
	if total <= capacity {
		for i, d := range demands {
			if d > 0 {
				grants[i] = d
			}
		}
		return grants
	}
	if capacity == 0 {
		return grants
	}

	order := make([]int, len(demands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return demands[order[a]] < demands[order[b]]
	})

	remaining := capacity
	for k, idx := range order {
		d := demands[idx]
		if d <= 0 {
			continue
		}
		left := len(order) - k
		if k == len(order)-1 {
			// The largest consumer absorbs the rounding residue so the
			// grants add up to capacity.
			grants[idx] = min(d, remaining)
			break
		}
		share := remaining / float64(left)
		g := min(d, share)
		grants[idx] = g
		remaining -= g
		if remaining < 0 {
			remaining = 0
		}
	}
	return grants
}
