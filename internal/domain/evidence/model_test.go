package evidence

import "testing"

func TestParseContext(t *testing.T) {
	cases := []struct {
		label   string
		want    Context
		wantErr bool
	}{
		{label: "PEDIATRIC×ENT×ELECTIVE", want: Context{"PEDIATRIC", "ENT", "ELECTIVE"}},
		{label: "adult x cardiac x *", want: Context{"ADULT", "CARDIAC", "*"}},
		{label: "PEDIATRIC××", want: Context{"PEDIATRIC", "*", "*"}},
		{label: "××", want: Context{"*", "*", "*"}},
		{label: "PEDIATRIC×ENT", wantErr: true},
		{label: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseContext(tc.label)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseContext(%q): expected error, got %v", tc.label, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseContext(%q): %v", tc.label, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseContext(%q) = %v, want %v", tc.label, got, tc.want)
		}
	}
}

func TestContextStringRoundTrip(t *testing.T) {
	c := ContextOf("pediatric", "", "elective")
	if c.String() != "PEDIATRIC×*×ELECTIVE" {
		t.Fatalf("String() = %q", c.String())
	}
	back, err := ParseContext(c.String())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back != c {
		t.Fatalf("round trip = %v, want %v", back, c)
	}
}

func TestContextMatches(t *testing.T) {
	request := Context{"PEDIATRIC", "ENT", "ELECTIVE"}
	cases := []struct {
		cell Context
		want bool
	}{
		{Context{"PEDIATRIC", "ENT", "ELECTIVE"}, true},
		{Context{"PEDIATRIC", "ENT", "*"}, true},
		{Context{"PEDIATRIC", "*", "*"}, true},
		{Context{"*", "*", "*"}, true},
		{Context{"ADULT", "ENT", "ELECTIVE"}, false},
		{Context{"PEDIATRIC", "CARDIAC", "*"}, false},
		{Context{"PEDIATRIC", "ENT", "EMERGENT"}, false},
	}
	for _, tc := range cases {
		if got := tc.cell.Matches(request); got != tc.want {
			t.Errorf("%v.Matches(%v) = %v, want %v", tc.cell, request, got, tc.want)
		}
	}

	// A concrete cell never covers an unknown request dimension.
	unknown := Context{"*", "ENT", "ELECTIVE"}
	if (Context{"PEDIATRIC", "ENT", "ELECTIVE"}).Matches(unknown) {
		t.Error("concrete population cell must not cover a wildcard request")
	}
	if !(Context{"*", "ENT", "ELECTIVE"}).Matches(unknown) {
		t.Error("wildcard population cell must cover a wildcard request")
	}
}

func TestGeneralizations(t *testing.T) {
	full := Context{"PEDIATRIC", "ENT", "ELECTIVE"}
	chain := full.Generalizations()
	if len(chain) != 8 {
		t.Fatalf("len = %d, want 8", len(chain))
	}
	if chain[0] != full {
		t.Errorf("chain[0] = %v, want the context itself", chain[0])
	}
	if chain[1] != (Context{"PEDIATRIC", "ENT", "*"}) {
		t.Errorf("chain[1] = %v, population and case type must be held first", chain[1])
	}
	last := chain[len(chain)-1]
	if last != (Context{"*", "*", "*"}) {
		t.Errorf("chain must end at the fully wildcard cell, got %v", last)
	}

	partial := Context{"PEDIATRIC", "*", "*"}
	got := partial.Generalizations()
	if len(got) != 2 || got[0] != partial || got[1] != (Context{"*", "*", "*"}) {
		t.Errorf("partial chain = %v", got)
	}
}

func TestDeriveGrade(t *testing.T) {
	cases := []struct {
		design string
		n      int
		want   Grade
	}{
		{DesignMetaAnalysis, 100, GradeA},
		{DesignRCT, 500, GradeA},
		{DesignRCT, 120, GradeB},
		{DesignCohort, 5000, GradeB},
		{DesignCohort, 150, GradeC},
		{DesignCaseControl, 9000, GradeC},
		{DesignCaseSeries, 40, GradeD},
		{DesignOther, 40, GradeD},
	}
	for _, tc := range cases {
		if got := DeriveGrade(tc.design, tc.n); got != tc.want {
			t.Errorf("DeriveGrade(%s, %d) = %s, want %s", tc.design, tc.n, got, tc.want)
		}
	}
}

func TestGradeOrdering(t *testing.T) {
	if !GradeD.WorseThan(GradeA) || GradeA.WorseThan(GradeA) {
		t.Error("grade ordering broken")
	}
	if got := WorstGrade(GradeA, GradeC, GradeB); got != GradeC {
		t.Errorf("WorstGrade = %s, want C", got)
	}
	if got := WorstGrade(); got != GradeD {
		t.Errorf("WorstGrade() = %s, want D", got)
	}
	if GradeA.Decay() != GradeB || GradeC.Decay() != GradeD || GradeD.Decay() != GradeD {
		t.Error("Decay must step one tier and saturate at D")
	}
	if !Grade("X").WorseThan(GradeD) {
		t.Error("unknown grades must rank below D")
	}
}

func TestEstimateIsBaseline(t *testing.T) {
	e := Estimate{OutcomeToken: "LARYNGOSPASM"}
	if !e.IsBaseline() {
		t.Error("nil modifier must be a baseline")
	}
	empty := ""
	e.ModifierToken = &empty
	if !e.IsBaseline() {
		t.Error("empty modifier must be a baseline")
	}
	mod := "ASTHMA"
	e.ModifierToken = &mod
	if e.IsBaseline() {
		t.Error("set modifier must not be a baseline")
	}
}
