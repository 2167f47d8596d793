// Package meds turns risk assessments and extracted factors into the
// five-bucket medication recommendation set.
//
// Every placement is rule-driven: a base STANDARD set per procedure plus a
// rule table whose predicates read factors, demographics, and per-outcome
// risk. Buckets resolve by fixed priority, so a contraindication suppresses
// the same medication everywhere else, and the output ordering is
// deterministic for identical inputs.
package meds

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/extract"
	"github.com/periop/periop/internal/domain/ontology"
	"github.com/periop/periop/internal/domain/risk"
)

// Decider evaluates the rule table against one request. It is cheap to
// construct per request; the ontology and rules are shared read-only.
type Decider struct {
	idx   *ontology.Index
	rules []Rule
	log   zerolog.Logger
}

func NewDecider(idx *ontology.Index, rules []Rule, log zerolog.Logger) *Decider {
	return &Decider{
		idx:   idx,
		rules: rules,
		log:   log.With().Str("component", "meds").Logger(),
	}
}

// emission is one rule firing for a medication, before conflict resolution.
type emission struct {
	rule    Rule
	factors []string
}

// Decide produces the recommendation set for one patient.
func (d *Decider) Decide(demo extract.Demographics, factors []extract.Factor, assessments []*risk.Assessment) *RecommendationSet {
	factorSet := make(map[string]bool, len(factors))
	for _, f := range factors {
		factorSet[f.Token] = true
	}
	risks := make(map[string]*risk.Assessment, len(assessments))
	for _, a := range assessments {
		risks[a.Outcome] = a
	}

	byToken := make(map[string][]emission)
	for _, tok := range StandardSet(demo.Procedure) {
		byToken[tok] = append(byToken[tok], emission{rule: Rule{
			Name:       "standard-" + strings.ToLower(tok),
			Medication: tok,
			Bucket:     BucketStandard,
			Indication: d.standardIndication(demo.Procedure),
		}})
	}
	for _, r := range d.rules {
		matched, trig := matches(r, demo, factorSet, risks)
		if !matched {
			continue
		}
		byToken[r.Medication] = append(byToken[r.Medication], emission{rule: r, factors: trig})
	}

	tokens := make([]string, 0, len(byToken))
	for tok := range byToken {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	set := &RecommendationSet{}
	for _, tok := range tokens {
		rec, warns := d.resolve(tok, byToken[tok], demo)
		set.add(rec)
		set.Warnings = append(set.Warnings, warns...)
	}
	set.sortBuckets()
	set.Summary = d.summarize(set, assessments)
	return set
}

// summarize sizes the prep work and names the elevated risks driving it.
func (d *Decider) summarize(set *RecommendationSet, assessments []*risk.Assessment) Summary {
	count := len(set.DrawNow) + len(set.Standard)

	elevated := make([]*risk.Assessment, 0, len(assessments))
	for _, a := range assessments {
		if a.NoEvidence || a.Level == risk.LevelLow {
			continue
		}
		elevated = append(elevated, a)
	}
	sort.Slice(elevated, func(i, j int) bool {
		if elevated[i].AdjustedRisk != elevated[j].AdjustedRisk {
			return elevated[i].AdjustedRisk > elevated[j].AdjustedRisk
		}
		return elevated[i].Outcome < elevated[j].Outcome
	})
	if len(elevated) > 3 {
		elevated = elevated[:3]
	}
	parts := make([]string, len(elevated))
	for i, a := range elevated {
		label := a.Outcome
		if term, ok := d.idx.Term(a.Outcome); ok && term.PlainLabel != "" {
			label = term.PlainLabel
		}
		parts[i] = fmt.Sprintf("%s risk %.1f%%", label, a.AdjustedRisk*100)
	}
	rationale := strings.Join(parts, "; ")
	if rationale == "" {
		rationale = "standard anesthetic management"
	}

	return Summary{
		Rationale:       rationale,
		SyringeCount:    count,
		EstPrepTimeMins: math.Min(math.Max(float64(count)*0.5, 2), 10),
	}
}

func (d *Decider) standardIndication(procedure string) string {
	if term, ok := d.idx.Term(procedure); ok {
		return "routine agent for " + term.PlainLabel
	}
	return "routine agent"
}

// matches evaluates a rule's predicates, returning the factor tokens that
// triggered it. Always bypasses every predicate.
func matches(r Rule, demo extract.Demographics, factorSet map[string]bool, risks map[string]*risk.Assessment) (bool, []string) {
	if r.Always {
		return true, nil
	}
	var trig []string
	for _, t := range r.AllOf {
		if !factorSet[t] {
			return false, nil
		}
		trig = append(trig, t)
	}
	if len(r.AnyOf) > 0 {
		hit := false
		for _, t := range r.AnyOf {
			if factorSet[t] {
				hit = true
				trig = append(trig, t)
			}
		}
		if !hit {
			return false, nil
		}
	}
	if len(r.Procedures) > 0 {
		found := false
		for _, p := range r.Procedures {
			if p == demo.Procedure {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	if r.Pediatric {
		if !demo.Pediatric() {
			return false, nil
		}
		if len(trig) == 0 && demo.AgeBand != extract.BandUnknown {
			trig = append(trig, demo.AgeBand)
		}
	}
	if r.Outcome != "" {
		a := risks[r.Outcome]
		if a == nil || a.NoEvidence {
			return false, nil
		}
		if r.MinAdjustedRisk > 0 && a.AdjustedRisk < r.MinAdjustedRisk {
			return false, nil
		}
		if r.MinRiskRatio > 0 && a.RiskRatio < r.MinRiskRatio {
			return false, nil
		}
	}
	return true, trig
}

// resolve collapses every emission for one medication into its final
// recommendation. A contraindication wins outright; otherwise the
// highest-priority bucket does, merging emissions that tied.
func (d *Decider) resolve(token string, emissions []emission, demo extract.Demographics) (Recommendation, []string) {
	var chosen []emission
	for _, e := range emissions {
		if e.rule.Bucket == BucketContraindicated {
			chosen = append(chosen, e)
		}
	}
	bucket := BucketContraindicated
	if len(chosen) == 0 {
		best := len(bucketPriority)
		for _, e := range emissions {
			if p := bucketPriority[e.rule.Bucket]; p < best {
				best = p
			}
		}
		for _, e := range emissions {
			if bucketPriority[e.rule.Bucket] == best {
				chosen = append(chosen, e)
				bucket = e.rule.Bucket
			}
		}
	}

	rec := Recommendation{Token: token, Bucket: bucket}
	term, ok := d.idx.Medication(token)
	if ok {
		rec.GenericName = term.GenericName
	} else {
		d.log.Warn().Str("medication", token).Msg("rule references unknown medication token")
	}

	var justifications []string
	citations := map[string]bool{}
	alternatives := map[string]bool{}
	blockers := map[string]bool{}
	doseRule := ""
	for _, e := range chosen {
		r := e.rule
		if rec.Indication == "" {
			rec.Indication = r.Indication
		}
		if r.Grade.Valid() && (!rec.Grade.Valid() || rec.Grade.WorseThan(r.Grade)) {
			rec.Grade = r.Grade
		}
		if doseRule == "" {
			doseRule = r.DoseRule
		}
		if r.Justification != "" && !containsString(justifications, r.Justification) {
			justifications = append(justifications, r.Justification)
		}
		for _, c := range r.Citations {
			citations[c] = true
		}
		for _, alt := range r.Alternatives {
			alternatives[alt] = true
		}
		for _, f := range e.factors {
			blockers[f] = true
		}
	}
	rec.Citations = sortedSet(citations)
	rec.Alternatives = sortedSet(alternatives)
	rec.PatientFactors = sortedSet(blockers)
	rec.Justification = strings.Join(justifications, "; ")
	if bucket == BucketContraindicated && len(rec.PatientFactors) > 0 {
		rec.Justification += "; blocked by " + strings.Join(d.plainLabels(rec.PatientFactors), ", ")
	}

	if doseRule == "" && term != nil {
		doseRule = formularyDose(term, demo.Pediatric())
	}
	var warns []string
	resolved, missingWeight := resolveDose(doseRule, demo)
	rec.DoseRule = resolved
	rec.ComputedDose = computeDose(doseRule, demo.WeightKg)
	if missingWeight && bucket != BucketContraindicated {
		warns = append(warns, "missing_weight: "+token)
	}

	if bucket != BucketStandard && len(rec.Citations) == 0 {
		rec.Bucket = BucketConsider
		rec.Unsupported = true
	}
	if drawable(rec.Bucket) && term != nil {
		rec.DrawVolume = computeVolume(rec.ComputedDose, term.Concentration)
	}
	return rec, warns
}

// drawable reports whether a bucket's entries end up in a syringe; rescue
// stock and blocked agents do not get a draw volume.
func drawable(bucket string) bool {
	return bucket == BucketDrawNow || bucket == BucketStandard || bucket == BucketConsider
}

func formularyDose(term *ontology.Term, pediatric bool) string {
	if pediatric && term.DoseRulePeds != "" {
		return term.DoseRulePeds
	}
	return term.DoseRuleAdult
}

func (d *Decider) plainLabels(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if term, ok := d.idx.Term(tok); ok && term.PlainLabel != "" {
			out[i] = term.PlainLabel
			continue
		}
		out[i] = tok
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
