package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hosts() []HostView {
	return []HostView{
		{Name: "h0", Index: 0, Up: true, Cores: 8, CoreMHz: 2000, MemoryMiB: 16384, UsedCores: 6, UsedMemoryMiB: 4096, Instances: 3},
		{Name: "h1", Index: 1, Up: true, Cores: 8, CoreMHz: 3000, MemoryMiB: 16384, UsedCores: 2, UsedMemoryMiB: 12288, Instances: 1},
		{Name: "h2", Index: 2, Up: false, Cores: 32, CoreMHz: 3000, MemoryMiB: 65536},
		{Name: "h3", Index: 3, Up: true, Cores: 8, CoreMHz: 2000, MemoryMiB: 16384, UsedCores: 4, UsedMemoryMiB: 8192, Instances: 2},
	}
}

func mustPipeline(t *testing.T, filters, weighers string) *Pipeline {
	t.Helper()
	f, err := ParseFilterConfigs(filters)
	require.NoError(t, err)
	w, err := ParseWeigherConfigs(weighers)
	require.NoError(t, err)
	p, err := NewPipeline(f, w)
	require.NoError(t, err)
	return p
}

func TestPipeline_Filters_NarrowCandidates(t *testing.T) {
	tests := []struct {
		name    string
		filters string
		req     Request
		want    []string
	}{
		{"compute drops failed hosts", "compute", Request{}, []string{"h0", "h1", "h3"}},
		{"vcpu needs free cores", "vcpu", Request{Cores: 4}, []string{"h1", "h2", "h3"}},
		{"vcpu overcommit", "vcpu:2", Request{Cores: 8}, []string{"h0", "h1", "h2", "h3"}},
		{"ram needs free memory", "ram", Request{MemoryMiB: 8192}, []string{"h0", "h2", "h3"}},
		{"vcpu-capacity needs fast cores", "vcpu-capacity", Request{CoreMHz: 2500}, []string{"h1", "h2"}},
		{"different-host avoids", "different-host", Request{AvoidHosts: map[string]bool{"h1": true}}, []string{"h0", "h2", "h3"}},
		{"chained", "compute,vcpu,ram", Request{Cores: 2, MemoryMiB: 8192}, []string{"h0", "h3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := mustPipeline(t, tc.filters, "")
			var got []string
			for _, h := range p.Filter(hosts(), tc.req) {
				got = append(got, h.Name)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPipeline_Select_NoSurvivors(t *testing.T) {
	p := mustPipeline(t, "compute,vcpu", "ram:1")
	_, ok := p.Select(hosts(), Request{Cores: 64})
	assert.False(t, ok)
}

func TestPipeline_Select_NoWeighers_FirstSurvivor(t *testing.T) {
	p := mustPipeline(t, "compute,vcpu", "")
	h, ok := p.Select(hosts(), Request{Cores: 4})
	require.True(t, ok)
	assert.Equal(t, "h1", h.Name)
}

func TestPipeline_Select_Weighers(t *testing.T) {
	tests := []struct {
		name     string
		weighers string
		want     string
	}{
		{"most free ram", "ram:1", "h0"},
		{"least free ram packs", "ram:-1", "h1"},
		{"most free cores", "vcpu:1", "h1"},
		{"fewest instances spreads", "instance-count:-1", "h1"},
		{"most instances stacks", "instance-count:1", "h0"},
		{"fastest cores", "vcpu-capacity:1", "h1"},
		{"ram per core", "core-ram:1", "h0"},
		{"summed", "ram:1,instance-count:-10000", "h1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := mustPipeline(t, "compute", tc.weighers)
			h, ok := p.Select(hosts(), Request{Server: "s"})
			require.True(t, ok)
			assert.Equal(t, tc.want, h.Name)
		})
	}
}

func TestPipeline_Select_TieGoesToRegistryOrder(t *testing.T) {
	// GIVEN identical hosts
	cands := []HostView{
		{Name: "a", Index: 0, Up: true, Cores: 4, MemoryMiB: 1024},
		{Name: "b", Index: 1, Up: true, Cores: 4, MemoryMiB: 1024},
		{Name: "c", Index: 2, Up: true, Cores: 4, MemoryMiB: 1024},
	}
	p := mustPipeline(t, "compute", "ram:1,vcpu:1")

	// WHEN selecting
	h, ok := p.Select(cands, Request{})

	// THEN the first registered host wins, and Rank agrees
	require.True(t, ok)
	assert.Equal(t, "a", h.Name)
	ranked := p.Rank(cands, Request{})
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{ranked[0].Host.Name, ranked[1].Host.Name, ranked[2].Host.Name})
}

func TestPipeline_Rank_DescendingScore(t *testing.T) {
	p := mustPipeline(t, "compute", "instance-count:-1")
	ranked := p.Rank(hosts(), Request{})
	require.Len(t, ranked, 3)
	assert.Equal(t, "h1", ranked[0].Host.Name)
	assert.Equal(t, -1.0, ranked[0].Score)
	assert.Equal(t, "h3", ranked[1].Host.Name)
	assert.Equal(t, "h0", ranked[2].Host.Name)
}

type pinned struct{ name string }

func (p pinned) Name() string { return "pinned" }
func (p pinned) Score(h HostView, _ Request) float64 {
	if h.Name == p.name {
		return 1
	}
	return 0
}

func TestNewPipelineFrom_CustomWeigher(t *testing.T) {
	p := NewPipelineFrom([]Filter{NewFilter("compute", 0)}, []Weigher{pinned{name: "h3"}}, []float64{5})
	h, ok := p.Select(hosts(), Request{})
	require.True(t, ok)
	assert.Equal(t, "h3", h.Name)
}
