package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Service owns paper and estimate curation: validation, bundle import, and
// the coverage report curators read before cutting a new evidence version.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "evidence").Logger()}
}

// Default quality scores per grade, used when a paper does not carry an
// explicit score.
var gradeQualityScore = map[Grade]float64{
	GradeA: 0.9,
	GradeB: 0.75,
	GradeC: 0.6,
	GradeD: 0.4,
}

// CreatePaper validates and upserts one study record. A missing grade is
// derived from design and size; a missing quality score defaults by grade.
func (s *Service) CreatePaper(ctx context.Context, p *Paper) error {
	if p.PMID == "" {
		return fmt.Errorf("pmid is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Year < 1900 || p.Year > 2100 {
		return fmt.Errorf("year %d out of range", p.Year)
	}
	if !validDesigns[p.Design] {
		return fmt.Errorf("unknown design %q", p.Design)
	}
	if p.NTotal < 1 {
		return fmt.Errorf("n_total must be positive")
	}
	if !validPopulations[p.Population] {
		return fmt.Errorf("unknown population %q", p.Population)
	}
	if p.Grade == "" {
		p.Grade = DeriveGrade(p.Design, p.NTotal)
	} else if !p.Grade.Valid() {
		return fmt.Errorf("unknown evidence_grade %q", p.Grade)
	}
	if p.QualityScore == 0 {
		p.QualityScore = gradeQualityScore[p.Grade]
	}
	if p.QualityScore < 0 || p.QualityScore > 1 {
		return fmt.Errorf("quality_score %v out of [0,1]", p.QualityScore)
	}
	return s.repo.UpsertPaper(ctx, p)
}

func (s *Service) GetPaper(ctx context.Context, pmid string) (*Paper, error) {
	return s.repo.GetPaper(ctx, pmid)
}

func (s *Service) ListPapers(ctx context.Context, limit, offset int) ([]*Paper, int, error) {
	return s.repo.ListPapers(ctx, limit, offset)
}

// CreateEstimate validates and appends one extracted finding. Baseline rows
// (no modifier) must be incidences in [0,1]; effect rows must be positive
// ratio measures. Confidence intervals, when present, must bracket the point.
func (s *Service) CreateEstimate(ctx context.Context, e *Estimate) error {
	if e.PMID == "" {
		return fmt.Errorf("pmid is required")
	}
	if e.OutcomeToken == "" {
		return fmt.Errorf("outcome_token is required")
	}
	e.OutcomeToken = strings.ToUpper(e.OutcomeToken)
	if e.ModifierToken != nil {
		if *e.ModifierToken == "" {
			e.ModifierToken = nil
		} else {
			up := strings.ToUpper(*e.ModifierToken)
			e.ModifierToken = &up
		}
	}

	if e.IsBaseline() {
		if e.Measure == "" {
			e.Measure = MeasureIncidence
		}
		if e.Measure != MeasureIncidence {
			return fmt.Errorf("baseline estimate must use measure INCIDENCE, got %q", e.Measure)
		}
		if e.Value < 0 || e.Value > 1 {
			return fmt.Errorf("baseline incidence %v out of [0,1]", e.Value)
		}
	} else {
		if !ratioMeasures[e.Measure] {
			return fmt.Errorf("effect estimate must use measure OR, RR or HR, got %q", e.Measure)
		}
		if e.Value <= 0 {
			return fmt.Errorf("ratio estimate must be positive, got %v", e.Value)
		}
	}

	if (e.CILow == nil) != (e.CIHigh == nil) {
		return fmt.Errorf("ci_low and ci_high must be set together")
	}
	if e.CILow != nil {
		lo, hi := *e.CILow, *e.CIHigh
		if lo > e.Value || hi < e.Value {
			return fmt.Errorf("confidence interval [%v, %v] does not bracket %v", lo, hi, e.Value)
		}
		if ratioMeasures[e.Measure] && lo <= 0 {
			return fmt.Errorf("ratio ci_low must be positive, got %v", lo)
		}
		if e.Measure == MeasureIncidence && (lo < 0 || hi > 1) {
			return fmt.Errorf("incidence confidence interval [%v, %v] out of [0,1]", lo, hi)
		}
	}

	if !validPopulations[e.Population] {
		return fmt.Errorf("unknown population %q", e.Population)
	}
	cctx, err := ParseContext(e.ContextLabel)
	if err != nil {
		return err
	}
	e.ContextLabel = cctx.String()

	if e.QualityWeight == 0 {
		e.QualityWeight = 1.0
	}
	if e.QualityWeight <= 0 || e.QualityWeight > 1 {
		return fmt.Errorf("quality_weight %v out of (0,1]", e.QualityWeight)
	}
	if e.ExtractionConfidence == 0 {
		e.ExtractionConfidence = 1.0
	}
	if e.ExtractionConfidence <= 0 || e.ExtractionConfidence > 1 {
		return fmt.Errorf("extraction_confidence %v out of (0,1]", e.ExtractionConfidence)
	}
	if e.NEvents != nil && e.NTotal != nil && *e.NEvents > *e.NTotal {
		return fmt.Errorf("n_events %d exceeds n_total %d", *e.NEvents, *e.NTotal)
	}

	if _, err := s.repo.GetPaper(ctx, e.PMID); err != nil {
		return fmt.Errorf("estimate references unknown paper %s: %w", e.PMID, err)
	}
	return s.repo.InsertEstimate(ctx, e)
}

func (s *Service) ListEstimates(ctx context.Context, f EstimateFilter, limit, offset int) ([]*Estimate, int, error) {
	return s.repo.ListEstimates(ctx, f, limit, offset)
}

// Bundle is the import wire format: papers first, then the estimates that
// reference them.
type Bundle struct {
	Papers    []Paper    `json:"papers"`
	Estimates []Estimate `json:"estimates"`
}

// ImportReport summarizes one bundle import. Row errors do not abort the
// rest of the bundle.
type ImportReport struct {
	Papers    int      `json:"papers"`
	Estimates int      `json:"estimates"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
}

// ImportBundle validates a JSON bundle against the schema, then loads papers
// and estimates row by row. Schema violations reject the whole bundle;
// semantic violations reject only the offending row.
func (s *Service) ImportBundle(ctx context.Context, data []byte) (*ImportReport, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(bundleSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("bundle is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("bundle failed schema validation: %s", strings.Join(msgs, "; "))
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}

	report := &ImportReport{}
	for i := range b.Papers {
		if err := s.CreatePaper(ctx, &b.Papers[i]); err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("papers[%d]: %v", i, err))
			continue
		}
		report.Papers++
	}
	for i := range b.Estimates {
		if err := s.CreateEstimate(ctx, &b.Estimates[i]); err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("estimates[%d]: %v", i, err))
			continue
		}
		report.Estimates++
	}

	s.log.Info().
		Int("papers", report.Papers).
		Int("estimates", report.Estimates).
		Int("rejected", report.Rejected).
		Msg("evidence bundle imported")
	return report, nil
}

// OutcomeCoverage describes the evidence available for one outcome.
type OutcomeCoverage struct {
	OutcomeToken   string        `json:"outcome_token"`
	Estimates      int           `json:"estimates"`
	Baselines      int           `json:"baselines"`
	Effects        int           `json:"effects"`
	Modifiers      []string      `json:"modifiers"`
	Contexts       []string      `json:"contexts"`
	MeanConfidence float64       `json:"mean_confidence"`
	GradeCounts    map[Grade]int `json:"grade_counts"`
}

// CoverageReport is the curator's view of store density per outcome.
type CoverageReport struct {
	Papers           int               `json:"papers"`
	Estimates        int               `json:"estimates"`
	MeanConfidence   float64           `json:"mean_confidence"`
	MedianConfidence float64           `json:"median_confidence"`
	Outcomes         []OutcomeCoverage `json:"outcomes"`
}

// Coverage aggregates the whole store into per-outcome counts and
// confidence summaries.
func (s *Service) Coverage(ctx context.Context) (*CoverageReport, error) {
	papers, err := s.repo.ListAllPapers(ctx)
	if err != nil {
		return nil, err
	}
	grades := make(map[string]Grade, len(papers))
	for _, p := range papers {
		grades[p.PMID] = p.Grade
	}

	estimates, err := s.repo.ListAllEstimates(ctx)
	if err != nil {
		return nil, err
	}

	type acc struct {
		cov       OutcomeCoverage
		conf      []float64
		modifiers map[string]bool
		contexts  map[string]bool
	}
	byOutcome := map[string]*acc{}
	var allConf []float64

	for _, e := range estimates {
		a, ok := byOutcome[e.OutcomeToken]
		if !ok {
			a = &acc{
				cov:       OutcomeCoverage{OutcomeToken: e.OutcomeToken, GradeCounts: map[Grade]int{}},
				modifiers: map[string]bool{},
				contexts:  map[string]bool{},
			}
			byOutcome[e.OutcomeToken] = a
		}
		a.cov.Estimates++
		if e.IsBaseline() {
			a.cov.Baselines++
		} else {
			a.cov.Effects++
			a.modifiers[*e.ModifierToken] = true
		}
		a.contexts[e.ContextLabel] = true
		a.conf = append(a.conf, e.ExtractionConfidence)
		allConf = append(allConf, e.ExtractionConfidence)
		if g, ok := grades[e.PMID]; ok {
			a.cov.GradeCounts[g]++
		}
	}

	report := &CoverageReport{Papers: len(papers), Estimates: len(estimates)}
	if len(allConf) > 0 {
		if m, err := stats.Mean(allConf); err == nil {
			report.MeanConfidence = m
		}
		if m, err := stats.Median(allConf); err == nil {
			report.MedianConfidence = m
		}
	}
	for _, a := range byOutcome {
		if m, err := stats.Mean(a.conf); err == nil {
			a.cov.MeanConfidence = m
		}
		a.cov.Modifiers = sortedKeys(a.modifiers)
		a.cov.Contexts = sortedKeys(a.contexts)
		report.Outcomes = append(report.Outcomes, a.cov)
	}
	sort.Slice(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].OutcomeToken < report.Outcomes[j].OutcomeToken
	})
	return report, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
