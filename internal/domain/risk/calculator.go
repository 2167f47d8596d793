// Package risk turns pooled evidence and extracted patient factors into
// per-outcome adjusted risk assessments.
//
// Each outcome starts from the pooled baseline odds for the resolved
// clinical context. Every extracted factor with a pooled effect multiplies
// the odds by OR^confidence, so an uncertain extraction moves the estimate
// less than a certain one. Variances add on the logit scale, which gives
// the interval around the adjusted risk.
package risk

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/domain/extract"
	"github.com/periop/periop/internal/domain/ontology"
	"github.com/periop/periop/internal/domain/pooling"
)

const z95 = 1.959963984540054

// Request carries everything one assessment needs. Outcomes may be empty,
// in which case every outcome known to the ontology is assessed.
type Request struct {
	Demographics    extract.Demographics
	Factors         []extract.Factor
	Outcomes        []string
	ContextOverride string
}

// Calculator scores requests against one evidence snapshot. It is cheap to
// construct and callers build one per request, pinning the snapshot so a
// concurrent republish cannot change the numbers mid-assessment.
type Calculator struct {
	snap *pooling.Snapshot
	idx  *ontology.Index
	log  zerolog.Logger
}

func NewCalculator(snap *pooling.Snapshot, idx *ontology.Index, log zerolog.Logger) *Calculator {
	return &Calculator{
		snap: snap,
		idx:  idx,
		log:  log.With().Str("component", "risk").Logger(),
	}
}

// ResolveContext derives the clinical context tuple for a request. An
// explicit override wins; otherwise each dimension comes from the
// demographics, with unknown dimensions resolving to the wildcard.
func (c *Calculator) ResolveContext(d extract.Demographics, override string) (evidence.Context, error) {
	if override != "" {
		return evidence.ParseContext(override)
	}
	caseType := ""
	if d.Procedure != "" {
		if term, ok := c.idx.Term(d.Procedure); ok {
			caseType = term.CaseType
		}
	}
	return evidence.ContextOf(d.Population(), caseType, d.Urgency), nil
}

// Assess scores each requested outcome in order, checking for cancellation
// between outcomes. On context error it returns the assessments completed
// so far along with ctx.Err(); the caller decides whether partial results
// are worth keeping.
func (c *Calculator) Assess(ctx context.Context, req Request) ([]*Assessment, error) {
	rctx, err := c.ResolveContext(req.Demographics, req.ContextOverride)
	if err != nil {
		return nil, err
	}

	outcomes := req.Outcomes
	if len(outcomes) == 0 {
		outcomes = c.idx.OutcomeTokens()
	}

	out := make([]*Assessment, 0, len(outcomes))
	for _, outcome := range outcomes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, c.assessOutcome(outcome, rctx, req.Factors))
	}
	return out, nil
}

func (c *Calculator) assessOutcome(outcome string, rctx evidence.Context, factors []extract.Factor) *Assessment {
	a := &Assessment{Outcome: outcome}

	base, ok := c.snap.Baseline(outcome, rctx)
	if !ok {
		a.NoEvidence = true
		return a
	}
	a.BaselineRisk = base.P0
	a.ContextLabel = base.ContextLabel
	grades := []evidence.Grade{base.Grade}
	pmids := append([]string(nil), base.PMIDs...)

	odds := base.P0 / (1 - base.P0)
	variance := base.LogitVar
	for _, f := range factors {
		eff, ok := c.snap.Effect(outcome, f.Token, rctx)
		if !ok {
			continue
		}
		odds *= math.Pow(eff.OR, f.Confidence)
		variance += f.Confidence * f.Confidence * eff.LogVar
		grades = append(grades, eff.Grade)
		pmids = append(pmids, eff.PMIDs...)
		a.Contributors = append(a.Contributors, Contributor{
			Factor:      f.Token,
			Confidence:  f.Confidence,
			OR:          eff.OR,
			CILow:       eff.CILow,
			CIHigh:      eff.CIHigh,
			Grade:       eff.Grade,
			Approximate: eff.Approximate,
			PMIDs:       eff.PMIDs,
		})
	}

	p := odds / (1 + odds)
	if limit := base.P0 * MaxRiskRatio; p > limit {
		p = limit
		a.Capped = true
	}
	if p > MaxAdjustedRisk {
		p = MaxAdjustedRisk
		a.Capped = true
	}
	if a.Capped {
		c.log.Warn().
			Str("outcome", outcome).
			Str("context", base.ContextLabel).
			Float64("adjusted_risk", p).
			Msg("adjusted risk capped")
	}

	a.AdjustedRisk = p
	a.RiskRatio = p / base.P0
	se := math.Sqrt(variance)
	center := math.Log(p / (1 - p))
	a.CILow = 1 / (1 + math.Exp(-(center - z95*se)))
	a.CIHigh = 1 / (1 + math.Exp(-(center + z95*se)))
	a.Grade = evidence.WorstGrade(grades...)
	a.Level = levelFor(p, a.RiskRatio)
	a.PMIDs = dedupe(pmids)
	return a
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
