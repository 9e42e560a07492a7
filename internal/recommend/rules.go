package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/droneworks/pidtune/internal/flight"
)

// ruleResult is what a single rule contributes for one axis: a term delta,
// an advisory, or nothing.
type ruleResult struct {
	term     Term
	pct      float64
	evidence string
	advisory *Advisory
}

// rule evaluates one tuning heuristic against one axis. Rules appear in
// priority order: the first rule that contributes to a term sets that
// term's priority rank.
type rule struct {
	name string
	eval func(m AxisMetrics, cfg Config) *ruleResult
}

var rules = []rule{
	{
		name: "low band oscillation",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSpectrum || m.LowRatio <= cfg.LowBandThreshold {
				return nil
			}
			if m.ErrorRMS <= cfg.GoodTrackingRMS {
				// Low-band energy with good tracking is commanded motion,
				// not oscillation.
				return nil
			}
			excess := m.LowRatio - cfg.LowBandThreshold
			return &ruleResult{
				term: TermI,
				pct:  -excess * cfg.GainPerRatio,
				evidence: fmt.Sprintf("low-band (<10 Hz) energy ratio %.2f exceeds %.2f",
					m.LowRatio, cfg.LowBandThreshold),
			}
		},
	},
	{
		name: "mid band oscillation",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSpectrum || m.MidRatio <= cfg.MidBandThreshold {
				return nil
			}
			if m.ErrorRMS <= cfg.GoodTrackingRMS {
				return nil
			}
			excess := m.MidRatio - cfg.MidBandThreshold
			return &ruleResult{
				term: TermP,
				pct:  -excess * cfg.GainPerRatio,
				evidence: fmt.Sprintf("mid-band (10-30 Hz) energy ratio %.2f exceeds %.2f",
					m.MidRatio, cfg.MidBandThreshold),
			}
		},
	},
	{
		name: "high band oscillation",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSpectrum || m.HighRatio <= cfg.HighBandThreshold {
				return nil
			}
			ev := fmt.Sprintf("high-band (>30 Hz) energy ratio %.2f exceeds %.2f",
				m.HighRatio, cfg.HighBandThreshold)
			if m.HighRatio > cfg.NoiseAdvisoryThreshold {
				// Beyond the noise threshold this is a filtering problem;
				// cutting D would only mask it.
				return &ruleResult{advisory: &Advisory{
					Axis: m.Axis,
					Kind: "filter",
					Message: "high-frequency gyro noise dominates; review gyro and D-term " +
						"lowpass filter settings before changing PID gains",
					Evidence: []string{ev},
				}}
			}
			excess := m.HighRatio - cfg.HighBandThreshold
			return &ruleResult{
				term:     TermD,
				pct:      -excess * cfg.GainPerRatio,
				evidence: ev,
			}
		},
	},
	{
		name: "sluggish response",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSteps || m.RiseMean <= cfg.RiseTimeTarget {
				return nil
			}
			if m.HasSpectrum && (m.LowRatio > cfg.LowBandThreshold ||
				m.MidRatio > cfg.MidBandThreshold ||
				m.HighRatio > cfg.HighBandThreshold) {
				// Never push P into an already oscillating axis.
				return nil
			}
			excess := (m.RiseMean - cfg.RiseTimeTarget) / cfg.RiseTimeTarget
			return &ruleResult{
				term: TermP,
				pct:  math.Min(excess, 1) * cfg.CapP,
				evidence: fmt.Sprintf("mean rise time %.0f ms above %.0f ms target with no oscillation",
					m.RiseMean*1000, cfg.RiseTimeTarget*1000),
			}
		},
	},
	{
		name: "persistent steady-state error",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSteps || m.SteadyErrMean <= cfg.SteadyErrorThreshold {
				return nil
			}
			excess := (m.SteadyErrMean - cfg.SteadyErrorThreshold) / cfg.SteadyErrorThreshold
			return &ruleResult{
				term: TermI,
				pct:  math.Min(excess, 1) * cfg.CapI,
				evidence: fmt.Sprintf("mean steady-state error %.1f deg/s above %.1f deg/s threshold",
					m.SteadyErrMean, cfg.SteadyErrorThreshold),
			}
		},
	},
	{
		name: "mid band with D at ceiling",
		eval: func(m AxisMetrics, cfg Config) *ruleResult {
			if !m.HasSpectrum || m.MidRatio <= cfg.MidBandThreshold ||
				m.ErrorRMS <= cfg.GoodTrackingRMS {
				return nil
			}
			d := cfg.CurrentD[m.Axis]
			if d == 0 || cfg.DTermCeiling <= 0 || d < 0.9*cfg.DTermCeiling {
				return nil
			}
			return &ruleResult{advisory: &Advisory{
				Axis: m.Axis,
				Kind: "mechanical",
				Message: "mid-band oscillation persists with D near its ceiling; check for " +
					"frame resonance, loose hardware or damaged props",
				Evidence: []string{fmt.Sprintf(
					"mid-band ratio %.2f with D gain %.0f of %.0f ceiling",
					m.MidRatio, d, cfg.DTermCeiling)},
			}}
		},
	},
}

// Evaluate runs the rule table over every axis and merges the results.
// Contributions to the same axis and term are summed then clamped to the
// term's cap; a term's priority is the position of the first rule that
// touched it.
func Evaluate(metrics [flight.NumAxes]AxisMetrics, cfg Config) ([]Recommendation, []Advisory) {
	type key struct {
		axis flight.Axis
		term Term
	}
	acc := make(map[key]*Recommendation)
	var advisories []Advisory
	var order []key

	for _, m := range metrics {
		if !m.Valid {
			continue
		}
		for prio, r := range rules {
			res := r.eval(m, cfg)
			if res == nil {
				continue
			}
			if res.advisory != nil {
				advisories = append(advisories, *res.advisory)
				continue
			}

			k := key{axis: m.Axis, term: res.term}
			rec, ok := acc[k]
			if !ok {
				rec = &Recommendation{Axis: m.Axis, Term: res.term, Priority: prio + 1}
				acc[k] = rec
				order = append(order, k)
			}
			rec.AdjustmentPct += res.pct
			rec.Evidence = append(rec.Evidence, res.evidence)
		}
	}

	out := make([]Recommendation, 0, len(order))
	for _, k := range order {
		rec := *acc[k]
		rec.AdjustmentPct = clampAdjustment(rec.Term, rec.AdjustmentPct, cfg)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Axis < out[j].Axis
	})
	return out, advisories
}

func clampAdjustment(term Term, pct float64, cfg Config) float64 {
	var limit float64
	switch term {
	case TermP:
		limit = cfg.CapP
	case TermI:
		limit = cfg.CapI
	default:
		limit = cfg.CapD
	}
	return math.Max(-limit, math.Min(limit, pct))
}
