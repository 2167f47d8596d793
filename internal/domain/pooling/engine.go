package pooling

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/evidence"
)

// MinExtractionConfidence drops noisy estimates before pooling.
const MinExtractionConfidence = 0.5

// Population match multipliers. A cell with a wildcard population dimension
// is population-agnostic, so no penalty applies there.
const (
	popMatchExact = 1.0
	popMatchMixed = 0.6
	popMatchOther = 0.3
)

// Ratio estimates that cannot be converted to odds ratios carry half weight.
const approxPenalty = 0.5

// Log-scale variance assumed for effect estimates reported without an
// interval, by paper grade.
var gradeVariance = map[evidence.Grade]float64{
	evidence.GradeA: 0.5,
	evidence.GradeB: 0.7,
	evidence.GradeC: 1.0,
	evidence.GradeD: 1.5,
}

const (
	adjustedVarFactor   = 0.8
	unadjustedVarFactor = 1.2
)

type member struct {
	row   *evidence.Estimate
	ctx   evidence.Context
	paper *evidence.Paper
}

// Build pools every (outcome, modifier?, context) cell observable from the
// estimate set, materializing each observed context and all of its wildcard
// parents. Baselines are pooled first so ratio effects can be converted
// against them.
func Build(version string, now time.Time, papers []*evidence.Paper, estimates []*evidence.Estimate, log zerolog.Logger) ([]*evidence.PooledBaseline, []*evidence.PooledEffect) {
	paperByPMID := make(map[string]*evidence.Paper, len(papers))
	for _, p := range papers {
		paperByPMID[p.PMID] = p
	}

	baseGroups := map[string][]member{}
	effGroups := map[string]map[string][]member{}
	for _, e := range estimates {
		paper, ok := paperByPMID[e.PMID]
		if !ok {
			log.Warn().Str("pmid", e.PMID).Msg("estimate references unknown paper, skipped")
			continue
		}
		if e.ExtractionConfidence < MinExtractionConfidence {
			continue
		}
		ctx, err := e.Context()
		if err != nil {
			log.Warn().Str("context", e.ContextLabel).Err(err).Msg("unparseable context, skipped")
			continue
		}
		m := member{row: e, ctx: ctx, paper: paper}
		if e.IsBaseline() {
			baseGroups[e.OutcomeToken] = append(baseGroups[e.OutcomeToken], m)
			continue
		}
		mods, ok := effGroups[e.OutcomeToken]
		if !ok {
			mods = map[string][]member{}
			effGroups[e.OutcomeToken] = mods
		}
		mods[*e.ModifierToken] = append(mods[*e.ModifierToken], m)
	}

	var baselineRows []*evidence.PooledBaseline
	baselineByCell := map[string]map[evidence.Context]*evidence.PooledBaseline{}
	for _, outcome := range sortedGroupKeys(baseGroups) {
		group := baseGroups[outcome]
		cells := map[evidence.Context]*evidence.PooledBaseline{}
		for _, cell := range materializeCells(group) {
			studies := baselineStudies(selectMembers(group, cell), cell)
			row := baselineRow(version, now, outcome, cell, studies, log)
			baselineRows = append(baselineRows, row)
			cells[cell] = row
		}
		baselineByCell[outcome] = cells
	}

	var effectRows []*evidence.PooledEffect
	for _, outcome := range sortedEffectKeys(effGroups) {
		mods := effGroups[outcome]
		for _, modifier := range sortedGroupKeys(mods) {
			group := mods[modifier]
			for _, cell := range materializeCells(group) {
				studies, approx := effectStudies(selectMembers(group, cell), cell, baselineByCell[outcome])
				row := effectRow(version, now, outcome, modifier, cell, studies, approx, log)
				effectRows = append(effectRows, row)
			}
		}
	}
	return baselineRows, effectRows
}

// materializeCells returns the sorted union of every member context and its
// wildcard generalizations.
func materializeCells(group []member) []evidence.Context {
	set := map[evidence.Context]bool{}
	for _, m := range group {
		for _, g := range m.ctx.Generalizations() {
			set[g] = true
		}
	}
	cells := make([]evidence.Context, 0, len(set))
	for c := range set {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].String() < cells[j].String() })
	return cells
}

// selectMembers keeps the estimates whose own context is at least as
// specific as the cell, in a deterministic order.
func selectMembers(group []member, cell evidence.Context) []member {
	var out []member
	for _, m := range group {
		if cell.Matches(m.ctx) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].row.PMID != out[j].row.PMID {
			return out[i].row.PMID < out[j].row.PMID
		}
		if out[i].row.ContextLabel != out[j].row.ContextLabel {
			return out[i].row.ContextLabel < out[j].row.ContextLabel
		}
		return out[i].row.Value < out[j].row.Value
	})
	return out
}

func populationMatch(cell evidence.Context, studyPop string) float64 {
	switch {
	case cell.Population == evidence.Wildcard, studyPop == cell.Population:
		return popMatchExact
	case studyPop == evidence.PopMixed:
		return popMatchMixed
	default:
		return popMatchOther
	}
}

func baselineStudies(members []member, cell evidence.Context) []study {
	out := make([]study, 0, len(members))
	for _, m := range members {
		n := float64(m.paper.NTotal)
		if m.row.NTotal != nil {
			n = float64(*m.row.NTotal)
		}
		events := m.row.Value * n
		if m.row.NEvents != nil {
			events = float64(*m.row.NEvents)
		}
		p := clampProb(m.row.Value, n)

		var v float64
		if events <= 5 {
			lo, hi := wilson(events, n)
			se := seFromCI(logit(clampProb(lo, n)), logit(clampProb(hi, n)))
			v = se * se
		} else {
			v = 1 / (n * p * (1 - p))
		}

		pm := populationMatch(cell, m.paper.Population)
		out = append(out, study{
			pmid:     m.row.PMID,
			y:        logit(p),
			v:        v,
			m:        m.row.QualityWeight * pm,
			grade:    m.paper.Grade,
			popMatch: pm,
		})
	}
	return out
}

func baselineRow(version string, now time.Time, outcome string, cell evidence.Context, studies []study, log zerolog.Logger) *evidence.PooledBaseline {
	pool := poolStudies(studies)
	row := &evidence.PooledBaseline{
		ID:           uuid.New(),
		Version:      version,
		OutcomeToken: outcome,
		ContextLabel: cell.String(),
		K:            pool.k,
		Method:       pool.method,
		Grade:        pool.grade,
		Singleton:    pool.singleton,
		PMIDs:        pool.pmids,
		CreatedAt:    now,
	}
	if !finite(pool.mean, pool.variance, pool.lo, pool.hi) {
		row.Unavailable = true
		row.Method = "failed"
		log.Error().Str("outcome", outcome).Str("context", row.ContextLabel).
			Msg("baseline pooling produced non-finite values, cell marked unavailable")
		return row
	}
	row.P0 = expit(pool.mean)
	row.CILow = expit(pool.lo)
	row.CIHigh = expit(pool.hi)
	row.LogitVar = pool.variance
	log.Debug().Str("outcome", outcome).Str("context", row.ContextLabel).
		Int("k", pool.k).Float64("p0", row.P0).Float64("q", pool.q).Float64("het_p", pool.hetP).
		Str("method", pool.method).Msg("baseline pooled")
	return row
}

// lookupBaselineP0 walks the wildcard chain for the baseline nearest to the
// cell being pooled, for ratio conversion.
func lookupBaselineP0(cells map[evidence.Context]*evidence.PooledBaseline, cell evidence.Context) (float64, bool) {
	for _, g := range cell.Generalizations() {
		if row, ok := cells[g]; ok && !row.Unavailable {
			return row.P0, true
		}
	}
	return 0, false
}

// rrToOR converts a risk or hazard ratio to an odds ratio against the
// baseline incidence p0. The conversion degenerates when rr*p0 approaches 1.
func rrToOR(rr, p0 float64) (float64, bool) {
	denom := 1 - rr*p0
	if denom <= 0 {
		return 0, false
	}
	return rr * (1 - p0) / denom, true
}

func effectStudies(members []member, cell evidence.Context, baselines map[evidence.Context]*evidence.PooledBaseline) ([]study, bool) {
	anyApprox := false
	out := make([]study, 0, len(members))
	for _, m := range members {
		or := m.row.Value
		lo, hi := 0.0, 0.0
		hasCI := m.row.CILow != nil
		if hasCI {
			lo, hi = *m.row.CILow, *m.row.CIHigh
		}

		approx := false
		if m.row.Measure != evidence.MeasureOR {
			p0, found := lookupBaselineP0(baselines, cell)
			converted := false
			if found {
				if c, ok := rrToOR(or, p0); ok {
					or = c
					if hasCI {
						cl, okL := rrToOR(lo, p0)
						ch, okH := rrToOR(hi, p0)
						if okL && okH {
							lo, hi = cl, ch
						} else {
							hasCI = false
						}
					}
					converted = true
				}
			}
			if !converted {
				approx = true
				anyApprox = true
			}
		}

		var v float64
		if hasCI && lo > 0 {
			se := seFromCI(math.Log(lo), math.Log(hi))
			v = se * se
		} else {
			v = gradeVariance[m.paper.Grade]
			if m.row.Adjusted {
				v *= adjustedVarFactor
			} else {
				v *= unadjustedVarFactor
			}
		}

		pm := populationMatch(cell, m.paper.Population)
		mult := m.row.QualityWeight * pm
		if approx {
			mult *= approxPenalty
		}
		out = append(out, study{
			pmid:        m.row.PMID,
			y:           math.Log(or),
			v:           v,
			m:           mult,
			grade:       m.paper.Grade,
			popMatch:    pm,
			approximate: approx,
		})
	}
	return out, anyApprox
}

func effectRow(version string, now time.Time, outcome, modifier string, cell evidence.Context, studies []study, approx bool, log zerolog.Logger) *evidence.PooledEffect {
	pool := poolStudies(studies)
	row := &evidence.PooledEffect{
		ID:            uuid.New(),
		Version:       version,
		OutcomeToken:  outcome,
		ModifierToken: modifier,
		ContextLabel:  cell.String(),
		K:             pool.k,
		I2:            pool.i2,
		Method:        pool.method,
		Grade:         pool.grade,
		Singleton:     pool.singleton,
		Approximate:   approx,
		PMIDs:         pool.pmids,
		CreatedAt:     now,
	}
	if !finite(pool.mean, pool.variance, pool.lo, pool.hi) {
		row.Unavailable = true
		row.Method = "failed"
		log.Error().Str("outcome", outcome).Str("modifier", modifier).Str("context", row.ContextLabel).
			Msg("effect pooling produced non-finite values, cell marked unavailable")
		return row
	}
	row.OR = math.Exp(pool.mean)
	row.CILow = math.Exp(pool.lo)
	row.CIHigh = math.Exp(pool.hi)
	row.LogVar = pool.variance
	log.Debug().Str("outcome", outcome).Str("modifier", modifier).Str("context", row.ContextLabel).
		Int("k", pool.k).Float64("or", row.OR).Float64("i2", pool.i2).Float64("het_p", pool.hetP).
		Str("method", pool.method).Msg("effect pooled")
	return row
}

func sortedGroupKeys(m map[string][]member) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedEffectKeys(m map[string]map[string][]member) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
