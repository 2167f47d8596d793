package evidence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ── Mock Repositories ──

var errNotFound = errors.New("not found")

type mockRepo struct {
	papers    map[string]*Paper
	estimates []*Estimate
}

func newMockRepo() *mockRepo {
	return &mockRepo{papers: map[string]*Paper{}}
}

func (m *mockRepo) UpsertPaper(_ context.Context, p *Paper) error {
	cp := *p
	m.papers[p.PMID] = &cp
	return nil
}

func (m *mockRepo) GetPaper(_ context.Context, pmid string) (*Paper, error) {
	p, ok := m.papers[pmid]
	if !ok {
		return nil, errNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ListPapers(_ context.Context, limit, offset int) ([]*Paper, int, error) {
	all, _ := m.ListAllPapers(context.Background())
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockRepo) ListAllPapers(_ context.Context) ([]*Paper, error) {
	out := make([]*Paper, 0, len(m.papers))
	for _, p := range m.papers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepo) InsertEstimate(_ context.Context, e *Estimate) error {
	e.ID = uuid.New()
	cp := *e
	m.estimates = append(m.estimates, &cp)
	return nil
}

func (m *mockRepo) ListEstimates(_ context.Context, f EstimateFilter, limit, offset int) ([]*Estimate, int, error) {
	var out []*Estimate
	for _, e := range m.estimates {
		if f.OutcomeToken != "" && e.OutcomeToken != f.OutcomeToken {
			continue
		}
		if f.ModifierToken != "" && (e.ModifierToken == nil || *e.ModifierToken != f.ModifierToken) {
			continue
		}
		if f.ContextLabel != "" && e.ContextLabel != f.ContextLabel {
			continue
		}
		if f.PMID != "" && e.PMID != f.PMID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) ListAllEstimates(_ context.Context) ([]*Estimate, error) {
	out := make([]*Estimate, 0, len(m.estimates))
	for _, e := range m.estimates {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// ── Tests ──

func testService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func TestCreatePaperDerivesGradeAndScore(t *testing.T) {
	svc, repo := testService()
	p := &Paper{PMID: "100", Title: "t", Year: 2015, Design: DesignCohort, NTotal: 9297, Population: PopPediatric}
	if err := svc.CreatePaper(context.Background(), p); err != nil {
		t.Fatalf("CreatePaper: %v", err)
	}
	if p.Grade != GradeB {
		t.Errorf("grade = %s, want derived B", p.Grade)
	}
	if p.QualityScore != 0.75 {
		t.Errorf("quality_score = %v, want default 0.75", p.QualityScore)
	}
	if _, ok := repo.papers["100"]; !ok {
		t.Error("paper not stored")
	}
}

func TestCreatePaperValidation(t *testing.T) {
	svc, _ := testService()
	cases := []struct {
		name  string
		paper Paper
	}{
		{"missing pmid", Paper{Title: "t", Year: 2015, Design: DesignRCT, NTotal: 10, Population: PopAdult}},
		{"missing title", Paper{PMID: "1", Year: 2015, Design: DesignRCT, NTotal: 10, Population: PopAdult}},
		{"year out of range", Paper{PMID: "1", Title: "t", Year: 1850, Design: DesignRCT, NTotal: 10, Population: PopAdult}},
		{"unknown design", Paper{PMID: "1", Title: "t", Year: 2015, Design: "ANECDOTE", NTotal: 10, Population: PopAdult}},
		{"zero n", Paper{PMID: "1", Title: "t", Year: 2015, Design: DesignRCT, NTotal: 0, Population: PopAdult}},
		{"unknown population", Paper{PMID: "1", Title: "t", Year: 2015, Design: DesignRCT, NTotal: 10, Population: "MARTIAN"}},
		{"unknown grade", Paper{PMID: "1", Title: "t", Year: 2015, Design: DesignRCT, NTotal: 10, Population: PopAdult, Grade: "E"}},
	}
	for _, tc := range cases {
		p := tc.paper
		if err := svc.CreatePaper(context.Background(), &p); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func seedPaper(t *testing.T, svc *Service, pmid string) {
	t.Helper()
	p := &Paper{PMID: pmid, Title: "t", Year: 2015, Design: DesignCohort, NTotal: 1000, Population: PopPediatric}
	if err := svc.CreatePaper(context.Background(), p); err != nil {
		t.Fatalf("seed paper: %v", err)
	}
}

func TestCreateEstimateValidation(t *testing.T) {
	svc, _ := testService()
	seedPaper(t, svc, "100")
	mod := "ASTHMA"
	lo, hi := 1.2, 2.7

	cases := []struct {
		name string
		est  Estimate
	}{
		{"baseline out of range", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Value: 1.2, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"baseline with ratio measure", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Measure: MeasureOR, Value: 0.02, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"effect with incidence measure", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", ModifierToken: &mod, Measure: MeasureIncidence, Value: 1.9, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"effect non-positive", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", ModifierToken: &mod, Measure: MeasureOR, Value: 0, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"one-sided ci", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", ModifierToken: &mod, Measure: MeasureOR, Value: 1.9, CILow: &lo, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"ci does not bracket", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", ModifierToken: &mod, Measure: MeasureOR, Value: 3.5, CILow: &lo, CIHigh: &hi, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
		{"unknown population", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Value: 0.02, Population: "MARTIAN", ContextLabel: "PEDIATRIC×*×*"}},
		{"bad context", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Value: 0.02, Population: PopPediatric, ContextLabel: "PEDIATRIC"}},
		{"quality weight out of range", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Value: 0.02, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.5}},
		{"events exceed total", Estimate{PMID: "100", OutcomeToken: "LARYNGOSPASM", Value: 0.02, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", NTotal: iptr(10), NEvents: iptr(11)}},
		{"unknown paper", Estimate{PMID: "999", OutcomeToken: "LARYNGOSPASM", Value: 0.02, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*"}},
	}
	for _, tc := range cases {
		e := tc.est
		if err := svc.CreateEstimate(context.Background(), &e); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestCreateEstimateNormalizes(t *testing.T) {
	svc, repo := testService()
	seedPaper(t, svc, "100")
	empty := ""
	e := &Estimate{
		PMID:          "100",
		OutcomeToken:  "laryngospasm",
		ModifierToken: &empty,
		Value:         0.02,
		Population:    PopPediatric,
		ContextLabel:  "pediatric x ent x elective",
	}
	if err := svc.CreateEstimate(context.Background(), e); err != nil {
		t.Fatalf("CreateEstimate: %v", err)
	}
	got := repo.estimates[0]
	if got.OutcomeToken != "LARYNGOSPASM" {
		t.Errorf("outcome = %s", got.OutcomeToken)
	}
	if got.ModifierToken != nil {
		t.Error("empty modifier must normalize to nil")
	}
	if got.Measure != MeasureIncidence {
		t.Errorf("measure = %s, want defaulted INCIDENCE", got.Measure)
	}
	if got.ContextLabel != "PEDIATRIC×ENT×ELECTIVE" {
		t.Errorf("context = %s", got.ContextLabel)
	}
	if got.QualityWeight != 1.0 || got.ExtractionConfidence != 1.0 {
		t.Errorf("defaults not applied: qw=%v ec=%v", got.QualityWeight, got.ExtractionConfidence)
	}
}

const validBundle = `{
  "papers": [
    {"pmid": "200", "title": "demo cohort", "year": 2016, "design": "COHORT", "n_total": 4000, "population": "PEDIATRIC"}
  ],
  "estimates": [
    {"pmid": "200", "outcome_token": "LARYNGOSPASM", "measure": "INCIDENCE", "estimate": 0.02, "population": "PEDIATRIC", "context_label": "PEDIATRIC x ENT x ELECTIVE", "n_total": 4000, "n_events": 80},
    {"pmid": "200", "outcome_token": "LARYNGOSPASM", "modifier_token": "ASTHMA", "measure": "OR", "estimate": 1.9, "ci_low": 1.3, "ci_high": 2.8, "adjusted": true, "population": "PEDIATRIC", "context_label": "PEDIATRIC x * x *"}
  ]
}`

func TestImportBundle(t *testing.T) {
	svc, repo := testService()
	report, err := svc.ImportBundle(context.Background(), []byte(validBundle))
	if err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}
	if report.Papers != 1 || report.Estimates != 2 || report.Rejected != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(repo.estimates) != 2 {
		t.Fatalf("stored %d estimates", len(repo.estimates))
	}
	if repo.papers["200"].Grade != GradeB {
		t.Errorf("imported paper grade = %s, want derived B", repo.papers["200"].Grade)
	}
}

func TestImportBundleSchemaRejection(t *testing.T) {
	svc, repo := testService()
	bad := `{"papers": [{"pmid": "1", "year": 2016, "design": "COHORT", "n_total": 10, "population": "ADULT"}], "estimates": []}`
	_, err := svc.ImportBundle(context.Background(), []byte(bad))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "title") {
		t.Errorf("error should name the missing field: %v", err)
	}
	if len(repo.papers) != 0 {
		t.Error("nothing may be stored when the schema rejects the bundle")
	}
}

func TestImportBundleRowErrors(t *testing.T) {
	svc, _ := testService()
	bundle := `{
  "papers": [
    {"pmid": "300", "title": "t", "year": 2016, "design": "RCT", "n_total": 700, "population": "ADULT"}
  ],
  "estimates": [
    {"pmid": "301", "outcome_token": "PONV", "measure": "INCIDENCE", "estimate": 0.3, "population": "ADULT", "context_label": "ADULT x * x *"}
  ]
}`
	report, err := svc.ImportBundle(context.Background(), []byte(bundle))
	if err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}
	if report.Papers != 1 || report.Estimates != 0 || report.Rejected != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "301") {
		t.Errorf("row error should name the unknown paper: %v", report.Errors)
	}
}

func TestSeedSetLoadsCleanly(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	for _, p := range SeedPapers() {
		paper := p
		if err := svc.CreatePaper(ctx, &paper); err != nil {
			t.Fatalf("seed paper %s: %v", p.PMID, err)
		}
	}
	for i, e := range SeedEstimates() {
		est := e
		if err := svc.CreateEstimate(ctx, &est); err != nil {
			t.Fatalf("seed estimate %d (%s/%s): %v", i, e.OutcomeToken, e.ContextLabel, err)
		}
	}

	report, err := svc.Coverage(ctx)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if report.Papers != len(SeedPapers()) || report.Estimates != len(SeedEstimates()) {
		t.Fatalf("coverage totals = %d papers, %d estimates", report.Papers, report.Estimates)
	}
	want := []string{"ACUTE_KIDNEY_INJURY", "BRONCHOSPASM", "DIFFICULT_INTUBATION", "EMERGENCE_DELIRIUM", "LARYNGOSPASM", "MYOCARDIAL_INJURY", "PONV"}
	if len(report.Outcomes) != len(want) {
		t.Fatalf("coverage outcomes = %d, want %d", len(report.Outcomes), len(want))
	}
	for i, o := range report.Outcomes {
		if o.OutcomeToken != want[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, o.OutcomeToken, want[i])
		}
		if o.Baselines == 0 {
			t.Errorf("outcome %s has no baseline rows", o.OutcomeToken)
		}
		if o.MeanConfidence <= 0 || o.MeanConfidence > 1 {
			t.Errorf("outcome %s mean confidence = %v", o.OutcomeToken, o.MeanConfidence)
		}
	}
	ls := report.Outcomes[4]
	if ls.OutcomeToken != "LARYNGOSPASM" || ls.Baselines != 5 || ls.Effects != 7 {
		t.Errorf("laryngospasm coverage = %+v", ls)
	}
}
