package scheduler

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Scored is a candidate host with its summed weigher score.
type Scored struct {
	Host  HostView
	Score float64
}

// Pipeline narrows candidates through filters, then picks the highest
// scoring survivor.
type Pipeline struct {
	filters     []Filter
	weighers    []Weigher
	multipliers []float64
}

// NewPipeline builds a pipeline from filter and weigher configs. A filter
// parameter of zero on "ram" or "vcpu" means a ratio of 1.0.
func NewPipeline(filters []FilterConfig, weighers []WeigherConfig) (*Pipeline, error) {
	if err := validateFilterConfigs(filters); err != nil {
		return nil, err
	}
	if err := validateWeigherConfigs(weighers); err != nil {
		return nil, err
	}
	p := &Pipeline{}
	for _, c := range filters {
		param := c.Param
		if param == 0 {
			param = 1.0
		}
		p.filters = append(p.filters, NewFilter(c.Name, param))
	}
	for _, c := range weighers {
		p.weighers = append(p.weighers, NewWeigher(c.Name))
		p.multipliers = append(p.multipliers, c.Multiplier)
	}
	return p, nil
}

// NewPipelineFrom builds a pipeline from already constructed strategies.
// multipliers must have one entry per weigher.
func NewPipelineFrom(filters []Filter, weighers []Weigher, multipliers []float64) *Pipeline {
	if len(weighers) != len(multipliers) {
		panic("scheduler: weighers and multipliers differ in length")
	}
	return &Pipeline{filters: filters, weighers: weighers, multipliers: multipliers}
}

// Filter returns the candidates passing every filter, in input order.
func (p *Pipeline) Filter(candidates []HostView, req Request) []HostView {
	out := make([]HostView, 0, len(candidates))
	for _, h := range candidates {
		ok := true
		for _, f := range p.filters {
			if !f.Test(h, req) {
				logrus.Debugf("scheduler: %s rejected by %s for %s", h.Name, f.Name(), req.Server)
				ok = false
				break
			}
		}
		if ok {
			out = append(out, h)
		}
	}
	return out
}

// Rank returns the surviving candidates sorted by descending score. Equal
// scores keep registry order.
func (p *Pipeline) Rank(candidates []HostView, req Request) []Scored {
	survivors := p.Filter(candidates, req)
	ranked := make([]Scored, len(survivors))
	for i, h := range survivors {
		ranked[i] = Scored{Host: h, Score: p.score(h, req)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Host.Index < ranked[j].Host.Index
	})
	return ranked
}

// Select returns the host the server should be placed on, or false when no
// candidate survives filtering. Without weighers the first survivor wins.
func (p *Pipeline) Select(candidates []HostView, req Request) (HostView, bool) {
	survivors := p.Filter(candidates, req)
	if len(survivors) == 0 {
		return HostView{}, false
	}
	best := 0
	bestScore := p.score(survivors[0], req)
	for i := 1; i < len(survivors); i++ {
		// Strict > keeps the earliest host on ties.
		if s := p.score(survivors[i], req); s > bestScore {
			best, bestScore = i, s
		}
	}
	logrus.Debugf("scheduler: %s -> %s (score=%.3f)", req.Server, survivors[best].Name, bestScore)
	return survivors[best], true
}

func (p *Pipeline) score(h HostView, req Request) float64 {
	total := 0.0
	for i, w := range p.weighers {
		total += w.Score(h, req) * p.multipliers[i]
	}
	return total
}
