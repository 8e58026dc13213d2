package flow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func TestMaxMinFair_DemandsFit_GrantedExactly(t *testing.T) {
	demands := []float64{100, 250.5, 0, 3}
	assert.Equal(t, demands, MaxMinFair(demands, 1000))
}

func TestMaxMinFair_Overloaded_SumsToCapacity(t *testing.T) {
	tests := []struct {
		name     string
		demands  []float64
		capacity float64
		want     []float64
	}{
		{"equal demands", []float64{3000, 3000}, 4000, []float64{2000, 2000}},
		{"small consumer fully served", []float64{1000, 5000}, 4000, []float64{1000, 3000}},
		{"three-way", []float64{10, 40, 100}, 90, []float64{10, 40, 40}},
		{"input order kept", []float64{100, 10, 40}, 90, []float64{40, 10, 40}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MaxMinFair(tc.demands, tc.capacity)
			assert.InDeltaSlice(t, tc.want, got, 1e-9)
			assert.InDelta(t, tc.capacity, sum(got), 1e-9)
			for i := range got {
				assert.LessOrEqual(t, got[i], tc.demands[i])
			}
		})
	}
}

func TestMaxMinFair_ZeroCapacity_AllZero(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, MaxMinFair([]float64{1, 2, 3}, 0))
}

func TestMaxMinFair_NegativeDemand_TreatedAsZero(t *testing.T) {
	got := MaxMinFair([]float64{-5, 10, 10}, 10)
	assert.InDeltaSlice(t, []float64{0, 5, 5}, got, 1e-9)
}

func TestMaxMinFair_Empty(t *testing.T) {
	assert.Empty(t, MaxMinFair(nil, 10))
}

// No consumer that receives less than its demand gets less than any other
// consumer's grant.
func TestMaxMinFair_NoUnsatisfiedConsumerBelowAnother(t *testing.T) {
	demands := []float64{7, 1, 13, 2, 40, 40, 5}
	got := MaxMinFair(demands, 50)
	for i := range got {
		if got[i] >= demands[i] {
			continue
		}
		for j := range got {
			assert.GreaterOrEqual(t, got[i]+1e-9, got[j], "consumer %d starved relative to %d", i, j)
		}
	}
}

func TestMaxMinFair_RandomDemands_HoldsSharingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(20240611))
	for iter := 0; iter < 2000; iter++ {
		n := 1 + rng.Intn(12)
		demands := make([]float64, n)
		total := 0.0
		for i := range demands {
			if rng.Intn(6) > 0 {
				demands[i] = rng.Float64() * 5000
			}
			total += demands[i]
		}
		capacity := rng.Float64() * 1.5 * total

		got := MaxMinFair(demands, capacity)

		if !assert.Len(t, got, n) {
			return
		}
		for i := range got {
			assert.GreaterOrEqual(t, got[i], 0.0, "iter %d consumer %d", iter, i)
			assert.LessOrEqual(t, got[i], demands[i]+1e-9, "iter %d consumer %d over-granted", iter, i)
		}
		if total <= capacity {
			assert.Equal(t, demands, got, "iter %d: demands fit but were not granted exactly", iter)
			continue
		}
		assert.InDelta(t, capacity, sum(got), 1e-9*max(capacity, 1), "iter %d: grants do not add up to capacity", iter)
		for i := range got {
			if got[i] >= demands[i]-1e-9 {
				continue
			}
			for j := range got {
				assert.GreaterOrEqual(t, got[i]+1e-6, got[j], "iter %d: consumer %d starved relative to %d", iter, i, j)
			}
		}
	}
}
