package evidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Study designs, ordered roughly by strength.
const (
	DesignMetaAnalysis = "META_ANALYSIS"
	DesignRCT          = "RCT"
	DesignCohort       = "COHORT"
	DesignCaseControl  = "CASE_CONTROL"
	DesignCaseSeries   = "CASE_SERIES"
	DesignOther        = "OTHER"
)

var validDesigns = map[string]bool{
	DesignMetaAnalysis: true,
	DesignRCT:          true,
	DesignCohort:       true,
	DesignCaseControl:  true,
	DesignCaseSeries:   true,
	DesignOther:        true,
}

// Study populations. The wildcard is only legal inside a context label,
// never on a paper.
const (
	PopPediatric = "PEDIATRIC"
	PopAdult     = "ADULT"
	PopObstetric = "OBSTETRIC"
	PopMixed     = "MIXED"
)

var validPopulations = map[string]bool{
	PopPediatric: true,
	PopAdult:     true,
	PopObstetric: true,
	PopMixed:     true,
}

// Estimate measures.
const (
	MeasureIncidence = "INCIDENCE"
	MeasureOR        = "OR"
	MeasureRR        = "RR"
	MeasureHR        = "HR"
)

var ratioMeasures = map[string]bool{
	MeasureOR: true,
	MeasureRR: true,
	MeasureHR: true,
}

// Grade is the A-D evidence quality tier. A is strongest.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

var gradeRank = map[Grade]int{GradeA: 0, GradeB: 1, GradeC: 2, GradeD: 3}

func (g Grade) Valid() bool { return g == GradeA || g == GradeB || g == GradeC || g == GradeD }

// Rank returns the ordinal of the grade, 0 for A through 3 for D. Unknown
// grades rank below D.
func (g Grade) Rank() int {
	if r, ok := gradeRank[g]; ok {
		return r
	}
	return len(gradeRank)
}

// WorseThan reports whether g is a weaker tier than other.
func (g Grade) WorseThan(other Grade) bool { return g.Rank() > other.Rank() }

// Decay drops a grade by one tier, saturating at D.
func (g Grade) Decay() Grade {
	switch g {
	case GradeA:
		return GradeB
	case GradeB:
		return GradeC
	default:
		return GradeD
	}
}

// WorstGrade returns the weakest tier present, or D when the list is empty.
func WorstGrade(grades ...Grade) Grade {
	if len(grades) == 0 {
		return GradeD
	}
	worst := grades[0]
	for _, g := range grades[1:] {
		if g.WorseThan(worst) {
			worst = g
		}
	}
	return worst
}

// DeriveGrade maps a study design and size onto a tier: meta-analyses and
// large RCTs are A, RCTs and large cohorts B, smaller cohorts and
// case-control C, everything else D.
func DeriveGrade(design string, nTotal int) Grade {
	switch design {
	case DesignMetaAnalysis:
		return GradeA
	case DesignRCT:
		if nTotal >= 500 {
			return GradeA
		}
		return GradeB
	case DesignCohort:
		if nTotal >= 200 {
			return GradeB
		}
		return GradeC
	case DesignCaseControl:
		return GradeC
	default:
		return GradeD
	}
}

// Wildcard marks an unconstrained context dimension.
const Wildcard = "*"

// Context is the canonical population by case-type by urgency tuple that
// keys pooled rows. Empty dimensions are stored as the wildcard.
type Context struct {
	Population string `json:"population"`
	CaseType   string `json:"case_type"`
	Urgency    string `json:"urgency"`
}

// ContextOf builds a Context, mapping empty dimensions to the wildcard.
func ContextOf(population, caseType, urgency string) Context {
	return Context{
		Population: dimOrWildcard(population),
		CaseType:   dimOrWildcard(caseType),
		Urgency:    dimOrWildcard(urgency),
	}
}

func dimOrWildcard(d string) string {
	d = strings.ToUpper(strings.TrimSpace(d))
	if d == "" {
		return Wildcard
	}
	return d
}

// ParseContext reads a context label. The canonical separator is the
// multiplication sign; a plain lowercase x between dimensions is accepted so
// hand-written bundles round-trip.
func ParseContext(label string) (Context, error) {
	sep := "×"
	if !strings.Contains(label, sep) {
		sep = "x"
	}
	parts := strings.Split(label, sep)
	if len(parts) != 3 {
		return Context{}, fmt.Errorf("context label %q: want population×case_type×urgency", label)
	}
	return ContextOf(parts[0], parts[1], parts[2]), nil
}

// String renders the canonical label, e.g. "PEDIATRIC×ENT×ELECTIVE".
func (c Context) String() string {
	return dimOrWildcard(c.Population) + "×" + dimOrWildcard(c.CaseType) + "×" + dimOrWildcard(c.Urgency)
}

// Matches reports whether a stored cell covers a request context. A wildcard
// cell dimension covers anything; a concrete cell dimension requires the
// same concrete request value.
func (c Context) Matches(request Context) bool {
	return dimCovers(c.Population, request.Population) &&
		dimCovers(c.CaseType, request.CaseType) &&
		dimCovers(c.Urgency, request.Urgency)
}

func dimCovers(cell, request string) bool {
	return cell == Wildcard || cell == dimOrWildcard(request)
}

// Generalizations lists the fallback chain from the context itself out to
// the fully wildcard cell, most specific first. Population is held longest,
// then case type, then urgency. Duplicates collapse when the context already
// contains wildcards.
func (c Context) Generalizations() []Context {
	p, ct, u := dimOrWildcard(c.Population), dimOrWildcard(c.CaseType), dimOrWildcard(c.Urgency)
	chain := []Context{
		{p, ct, u},
		{p, ct, Wildcard},
		{p, Wildcard, u},
		{Wildcard, ct, u},
		{p, Wildcard, Wildcard},
		{Wildcard, ct, Wildcard},
		{Wildcard, Wildcard, u},
		{Wildcard, Wildcard, Wildcard},
	}
	seen := make(map[Context]bool, len(chain))
	out := make([]Context, 0, len(chain))
	for _, g := range chain {
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

// Paper maps to the papers table. One row per source study, keyed by PMID.
type Paper struct {
	PMID         string    `db:"pmid" json:"pmid" yaml:"pmid"`
	Title        string    `db:"title" json:"title" yaml:"title"`
	Year         int       `db:"year" json:"year" yaml:"year"`
	Design       string    `db:"design" json:"design" yaml:"design"`
	NTotal       int       `db:"n_total" json:"n_total" yaml:"n_total"`
	Population   string    `db:"population" json:"population" yaml:"population"`
	TimeHorizon  string    `db:"time_horizon" json:"time_horizon,omitempty" yaml:"time_horizon,omitempty"`
	Grade        Grade     `db:"evidence_grade" json:"evidence_grade" yaml:"evidence_grade,omitempty"`
	QualityScore float64   `db:"quality_score" json:"quality_score" yaml:"quality_score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// Estimate maps to the estimates table. Rows are append-only. A null
// modifier token marks a baseline incidence row; otherwise the row is an
// effect estimate for (outcome, modifier).
type Estimate struct {
	ID                   uuid.UUID `db:"id" json:"id" yaml:"-"`
	PMID                 string    `db:"pmid" json:"pmid" yaml:"pmid"`
	OutcomeToken         string    `db:"outcome_token" json:"outcome_token" yaml:"outcome_token"`
	ModifierToken        *string   `db:"modifier_token" json:"modifier_token,omitempty" yaml:"modifier_token,omitempty"`
	Measure              string    `db:"measure" json:"measure" yaml:"measure"`
	Value                float64   `db:"estimate" json:"estimate" yaml:"estimate"`
	CILow                *float64  `db:"ci_low" json:"ci_low,omitempty" yaml:"ci_low,omitempty"`
	CIHigh               *float64  `db:"ci_high" json:"ci_high,omitempty" yaml:"ci_high,omitempty"`
	Adjusted             bool      `db:"adjusted" json:"adjusted" yaml:"adjusted"`
	Population           string    `db:"population" json:"population" yaml:"population"`
	ContextLabel         string    `db:"context_label" json:"context_label" yaml:"context_label"`
	NTotal               *int      `db:"n_total" json:"n_total,omitempty" yaml:"n_total,omitempty"`
	NEvents              *int      `db:"n_events" json:"n_events,omitempty" yaml:"n_events,omitempty"`
	QualityWeight        float64   `db:"quality_weight" json:"quality_weight" yaml:"quality_weight"`
	ExtractionConfidence float64   `db:"extraction_confidence" json:"extraction_confidence" yaml:"extraction_confidence"`
	CreatedAt            time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// IsBaseline reports whether the row is a baseline incidence.
func (e *Estimate) IsBaseline() bool { return e.ModifierToken == nil || *e.ModifierToken == "" }

// Context parses the row's context label.
func (e *Estimate) Context() (Context, error) { return ParseContext(e.ContextLabel) }

// PooledBaseline maps to the pooled_baselines table. Rows are immutable once
// written under an evidence version.
type PooledBaseline struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Version      string    `db:"evidence_version" json:"evidence_version"`
	OutcomeToken string    `db:"outcome_token" json:"outcome_token"`
	ContextLabel string    `db:"context_label" json:"context_label"`
	K            int       `db:"k" json:"k"`
	P0           float64   `db:"p0" json:"p0"`
	CILow        float64   `db:"ci_low" json:"ci_low"`
	CIHigh       float64   `db:"ci_high" json:"ci_high"`
	LogitVar     float64   `db:"logit_var" json:"logit_var"`
	Method       string    `db:"method" json:"method"`
	Grade        Grade     `db:"evidence_grade" json:"evidence_grade"`
	Singleton    bool      `db:"singleton" json:"singleton"`
	Unavailable  bool      `db:"unavailable" json:"unavailable"`
	PMIDs        []string  `db:"pmids" json:"pmids"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PooledEffect maps to the pooled_effects table. Rows are immutable once
// written under an evidence version.
type PooledEffect struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Version       string    `db:"evidence_version" json:"evidence_version"`
	OutcomeToken  string    `db:"outcome_token" json:"outcome_token"`
	ModifierToken string    `db:"modifier_token" json:"modifier_token"`
	ContextLabel  string    `db:"context_label" json:"context_label"`
	K             int       `db:"k" json:"k"`
	OR            float64   `db:"or_mean" json:"or_mean"`
	CILow         float64   `db:"ci_low" json:"ci_low"`
	CIHigh        float64   `db:"ci_high" json:"ci_high"`
	LogVar        float64   `db:"log_var" json:"log_var"`
	I2            float64   `db:"i2" json:"i2"`
	Method        string    `db:"method" json:"method"`
	Grade         Grade     `db:"evidence_grade" json:"evidence_grade"`
	Singleton     bool      `db:"singleton" json:"singleton"`
	Approximate   bool      `db:"approximate" json:"approximate"`
	Unavailable   bool      `db:"unavailable" json:"unavailable"`
	PMIDs         []string  `db:"pmids" json:"pmids"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
