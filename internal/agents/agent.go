// Package agents implements the specialty diagnostic agents and the
// orchestrator that fans out across them. Every agent shares one
// hypothesize-measure-recurse-synthesize skeleton; the specialties plug
// in their weighted scorers.
package agents

import (
	"context"
	"math"
	"sync"

	"mediq/internal/model"
)

// Params tunes the recursion behavior shared by all agents.
type Params struct {
	// MaxDepth bounds sub-agent spawning. Depth 0 is the root invocation.
	MaxDepth int
	// ConfidenceThreshold gates recursion: an agent spawns children only
	// while its hypothesis entropy exceeds 1 - threshold. A threshold of
	// 1.0 (or above) disables recursion entirely.
	ConfidenceThreshold float64
}

// DefaultParams mirrors the tuned production values.
func DefaultParams() Params {
	return Params{MaxDepth: 3, ConfidenceThreshold: 0.85}
}

// Agent is a diagnostic specialty. Analyze is a pure function over the
// record: no I/O, safe to run concurrently with its siblings.
type Agent interface {
	Name() string
	Specialty() model.Specialty
	Analyze(ctx context.Context, rec model.PatientRecord) (model.DiagnosisResult, error)
}

// strategy is the per-specialty plug-in consumed by the shared skeleton.
type strategy interface {
	name() string
	specialty() model.Specialty
	// hypotheses returns the ranked candidates from the weighted scorer.
	hypotheses(rec model.PatientRecord, depth int) []model.DiagnosisResult
	// subspecialties maps uncertain hypotheses to child agent tags.
	subspecialties(hyps []model.DiagnosisResult) []string
	// child builds the strategy for a subspecialty tag, nil if unknown.
	child(tag string) strategy
	// fallback is returned when no hypotheses exist at all.
	fallback(rec model.PatientRecord, depth int) model.DiagnosisResult
}

// overrider lets a strategy force a hypothesis regardless of ranking.
// The pulmonary agent uses this to keep PE on top of its differential.
type overrider interface {
	override(hyps []model.DiagnosisResult) *model.DiagnosisResult
}

type fractal struct {
	strat  strategy
	params Params
}

// New wraps a strategy in the shared fractal skeleton.
func newFractal(strat strategy, params Params) *fractal {
	if params.MaxDepth <= 0 {
		params.MaxDepth = DefaultParams().MaxDepth
	}
	if params.ConfidenceThreshold <= 0 {
		params.ConfidenceThreshold = DefaultParams().ConfidenceThreshold
	}
	return &fractal{strat: strat, params: params}
}

func (f *fractal) Name() string               { return f.strat.name() }
func (f *fractal) Specialty() model.Specialty { return f.strat.specialty() }

func (f *fractal) Analyze(ctx context.Context, rec model.PatientRecord) (model.DiagnosisResult, error) {
	if err := ctx.Err(); err != nil {
		return model.DiagnosisResult{}, err
	}
	return f.analyze(ctx, rec, 0), nil
}

func (f *fractal) analyze(ctx context.Context, rec model.PatientRecord, depth int) model.DiagnosisResult {
	hyps := f.strat.hypotheses(rec, depth)

	var children []model.DiagnosisResult
	if f.shouldRecurse(hyps, depth) && ctx.Err() == nil {
		children = f.spawn(ctx, rec, depth, f.strat.subspecialties(hyps))
	}

	return f.synthesize(rec, depth, hyps, children)
}

// shouldRecurse applies the entropy gate: recurse while the confidence
// distribution is too flat to commit to a diagnosis.
func (f *fractal) shouldRecurse(hyps []model.DiagnosisResult, depth int) bool {
	if depth >= f.params.MaxDepth {
		return false
	}
	if f.params.ConfidenceThreshold >= 1 {
		return false
	}
	return Uncertainty(confidences(hyps)) > 1-f.params.ConfidenceThreshold
}

// spawn runs one child agent per subspecialty tag, all concurrently,
// and joins before returning. A panicking child is dropped.
func (f *fractal) spawn(ctx context.Context, rec model.PatientRecord, depth int, tags []string) []model.DiagnosisResult {
	if len(tags) == 0 {
		return nil
	}

	results := make([]*model.DiagnosisResult, len(tags))
	var wg sync.WaitGroup
	for i, tag := range tags {
		childStrat := f.strat.child(tag)
		if childStrat == nil {
			continue
		}
		wg.Add(1)
		go func(i int, strat strategy) {
			defer wg.Done()
			defer func() { _ = recover() }()
			child := newFractal(strat, f.params)
			res := child.analyze(ctx, rec, depth+1)
			results[i] = &res
		}(i, childStrat)
	}
	wg.Wait()

	out := make([]model.DiagnosisResult, 0, len(tags))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// synthesize picks the final result: a confident child wins, then the
// best hypothesis, then the specialty fallback. A winning child never
// reports a lower risk than the parent's own best hypothesis carries.
func (f *fractal) synthesize(rec model.PatientRecord, depth int, hyps, children []model.DiagnosisResult) model.DiagnosisResult {
	bestHyp := best(hyps)

	if bestChild := best(children); bestChild != nil && bestChild.Confidence > 0.8 {
		result := *bestChild
		if bestHyp != nil && bestHyp.Risk.Priority() > result.Risk.Priority() {
			result.Risk = bestHyp.Risk
		}
		result.Children = children
		return result
	}

	if ov, ok := f.strat.(overrider); ok {
		if pick := ov.override(hyps); pick != nil {
			result := *pick
			result.Children = children
			return result
		}
	}

	if bestHyp != nil {
		result := *bestHyp
		result.Children = children
		return result
	}

	return f.strat.fallback(rec, depth)
}

func best(results []model.DiagnosisResult) *model.DiagnosisResult {
	var top *model.DiagnosisResult
	for i := range results {
		if top == nil || results[i].Confidence > top.Confidence {
			top = &results[i]
		}
	}
	return top
}

func confidences(hyps []model.DiagnosisResult) []float64 {
	out := make([]float64, len(hyps))
	for i, h := range hyps {
		out[i] = h.Confidence
	}
	return out
}

// Uncertainty is the normalized Shannon entropy of a confidence
// distribution. Degenerate distributions (zero or one candidate, or all
// zero confidence) are maximally uncertain.
func Uncertainty(confs []float64) float64 {
	if len(confs) <= 1 {
		return 1.0
	}
	sum := 0.0
	for _, c := range confs {
		sum += c
	}
	if sum == 0 {
		return 1.0
	}
	entropy := 0.0
	for _, c := range confs {
		if c <= 0 {
			continue
		}
		p := c / sum
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(float64(len(confs)))
}

// capScore clamps an additive evidence score to a confidence.
func capScore(score float64) float64 {
	return math.Min(score, 1.0)
}
