package extract

import (
	"strings"
	"testing"

	"github.com/periop/periop/internal/domain/ontology"
)

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	idx, err := ontology.NewIndex(ontology.SeedTerms())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	return NewExtractor(idx)
}

func factorSet(factors []Factor) map[string]Factor {
	out := make(map[string]Factor, len(factors))
	for _, f := range factors {
		out[f.Token] = f
	}
	return out
}

func TestExtractPediatricURIAsthma(t *testing.T) {
	ex := testExtractor(t)
	demo, factors := ex.Extract("5-year-old male presenting for tonsillectomy. History significant for asthma and recent URI 2 weeks ago.")

	if demo.AgeYears == nil || *demo.AgeYears != 5 {
		t.Fatalf("age = %v, want 5", demo.AgeYears)
	}
	if demo.AgeBand != Band1To5 {
		t.Errorf("band = %s, want %s", demo.AgeBand, Band1To5)
	}
	if demo.Sex != "MALE" {
		t.Errorf("sex = %s", demo.Sex)
	}
	if demo.Procedure != "TONSILLECTOMY" {
		t.Errorf("procedure = %s", demo.Procedure)
	}
	if demo.Urgency != UrgencyElective {
		t.Errorf("urgency = %s", demo.Urgency)
	}
	if !demo.Pediatric() {
		t.Error("5-year-old should be pediatric")
	}

	set := factorSet(factors)
	for _, want := range []string{"ASTHMA", "RECENT_URI_2W", "AGE_1_5", "SEX_MALE"} {
		if _, ok := set[want]; !ok {
			t.Errorf("missing factor %s (have %v)", want, tokens(factors))
		}
	}
	if f := set["ASTHMA"]; f.Confidence != ontology.ConfidenceCanonical {
		t.Errorf("ASTHMA confidence = %v", f.Confidence)
	}
	// "recent URI 2 weeks ago" carries an in-window temporal cue.
	if f := set["RECENT_URI_2W"]; f.Confidence < 0.85 {
		t.Errorf("RECENT_URI_2W confidence = %v, want no temporal penalty", f.Confidence)
	}
	if f := set["AGE_1_5"]; f.Confidence != 1.0 || !f.Derived {
		t.Errorf("derived AGE_1_5 = %+v", f)
	}
}

func TestExtractAdultCardiac(t *testing.T) {
	ex := testExtractor(t)
	demo, factors := ex.Extract("68-year-old male with CAD, diabetes, hypertension, CKD stage 4 for CABG.")

	if demo.AgeBand != BandGE65 {
		t.Errorf("band = %s, want %s", demo.AgeBand, BandGE65)
	}
	if demo.Urgency != UrgencyElective {
		t.Errorf("urgency = %s", demo.Urgency)
	}
	if demo.Procedure != "CABG" {
		t.Errorf("procedure = %s", demo.Procedure)
	}
	set := factorSet(factors)
	for _, want := range []string{"CAD", "DIABETES", "HYPERTENSION", "CKD", "AGE_GE_65", "SEX_MALE"} {
		if _, ok := set[want]; !ok {
			t.Errorf("missing factor %s (have %v)", want, tokens(factors))
		}
	}
}

func TestExtractNegationSuppression(t *testing.T) {
	ex := testExtractor(t)
	_, factors := ex.Extract("Patient denies asthma, no history of smoking.")
	set := factorSet(factors)
	if _, ok := set["ASTHMA"]; ok {
		t.Error("negated ASTHMA must not be emitted")
	}
	if _, ok := set["SMOKING_HISTORY"]; ok {
		t.Error("negated SMOKING_HISTORY must not be emitted")
	}
}

// Every matchable phrase of a factor must be suppressed when negated.
func TestNegationSuppressionAllSynonyms(t *testing.T) {
	idx, err := ontology.NewIndex(ontology.SeedTerms())
	if err != nil {
		t.Fatalf("building index: %v", err)
	}
	ex := NewExtractor(idx)
	for _, entry := range idx.FactorEntries() {
		phrase := strings.Join(entry.Phrase, " ")
		_, factors := ex.Extract("patient denies " + phrase)
		for _, f := range factors {
			if f.Token == entry.Term.Token && !f.Derived && f.Confidence > MinConfidence {
				t.Errorf("negated %q still emitted %s at %v", phrase, f.Token, f.Confidence)
			}
		}
	}
}

func TestExtractUnknownAgeAdultCue(t *testing.T) {
	ex := testExtractor(t)
	demo, factors := ex.Extract("Adult for elective hernia repair, otherwise healthy.")
	if demo.AgeBand != Band18To64 {
		t.Errorf("band = %s, want %s from textual cue", demo.AgeBand, Band18To64)
	}
	if demo.AgeYears != nil {
		t.Errorf("age years should stay unset, got %v", *demo.AgeYears)
	}
	if demo.Procedure != "HERNIA_REPAIR" {
		t.Errorf("procedure = %s", demo.Procedure)
	}
	if demo.Pediatric() {
		t.Error("textual adult must not be pediatric")
	}
	set := factorSet(factors)
	if _, ok := set["AGE_18_64"]; !ok {
		t.Error("derived AGE_18_64 missing")
	}
}

func TestExtractTemporalExclusion(t *testing.T) {
	ex := testExtractor(t)
	_, factors := ex.Extract("had URI 3 months ago")
	if _, ok := factorSet(factors)["RECENT_URI_2W"]; ok {
		t.Error("URI outside the 2-week window must not emit RECENT_URI_2W")
	}
}

func TestExtractTemporalPenaltyWithoutCue(t *testing.T) {
	ex := testExtractor(t)
	_, factors := ex.Extract("history of upper respiratory infection prior to visit")
	f, ok := factorSet(factors)["RECENT_URI_2W"]
	if !ok {
		t.Fatal("uncued match should still be emitted with a penalty")
	}
	want := ontology.ConfidenceSynonym * noTemporalCue
	if diff := f.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", f.Confidence, want)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	ex := testExtractor(t)
	demo, factors := ex.Extract("   ")
	if demo.AgeBand != BandUnknown {
		t.Errorf("band = %s, want UNKNOWN", demo.AgeBand)
	}
	if demo.Urgency != UrgencyElective {
		t.Errorf("urgency = %s", demo.Urgency)
	}
	if len(factors) != 0 {
		t.Errorf("factors = %v, want none", tokens(factors))
	}
}

func TestExtractMonthsAge(t *testing.T) {
	ex := testExtractor(t)
	demo, _ := ex.Extract("6 month old girl for myringotomy")
	if demo.AgeBand != BandLT1 {
		t.Errorf("band = %s, want %s", demo.AgeBand, BandLT1)
	}
	if demo.Sex != "FEMALE" {
		t.Errorf("sex = %s", demo.Sex)
	}
	if demo.Procedure != "MYRINGOTOMY" {
		t.Errorf("procedure = %s", demo.Procedure)
	}
}

func TestExtractUrgency(t *testing.T) {
	ex := testExtractor(t)
	cases := []struct {
		text string
		want string
	}{
		{"emergent appendectomy", UrgencyEmergent},
		{"to OR stat for bleeding", UrgencyEmergent},
		{"urgent hernia repair", UrgencyUrgent},
		{"routine dental surgery", UrgencyElective},
	}
	for _, tc := range cases {
		demo, _ := ex.Extract(tc.text)
		if demo.Urgency != tc.want {
			t.Errorf("%q urgency = %s, want %s", tc.text, demo.Urgency, tc.want)
		}
	}
}

func TestExtractWeight(t *testing.T) {
	ex := testExtractor(t)
	demo, _ := ex.Extract("4-year-old, 18 kg, for T&A")
	if demo.WeightKg == nil || *demo.WeightKg != 18 {
		t.Fatalf("weight = %v, want 18", demo.WeightKg)
	}
	if demo.Procedure != "TONSILLECTOMY" {
		t.Errorf("T&A should expand to tonsillectomy, got %s", demo.Procedure)
	}
}

func TestExtractSpansIndexRawText(t *testing.T) {
	ex := testExtractor(t)
	text := "Patient with ASTHMA and prior smoking."
	_, factors := ex.Extract(text)
	set := factorSet(factors)
	f, ok := set["ASTHMA"]
	if !ok {
		t.Fatal("ASTHMA not extracted")
	}
	if len(f.Spans) == 0 || text[f.Spans[0].Start:f.Spans[0].End] != "ASTHMA" {
		t.Errorf("span does not index the raw input: %+v", f.Spans)
	}
}

func TestExtractDeterministicOrder(t *testing.T) {
	ex := testExtractor(t)
	text := "5-year-old male with asthma, OSA, obesity and GERD for T&A"
	_, first := ex.Extract(text)
	for i := 0; i < 5; i++ {
		_, again := ex.Extract(text)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d factors vs %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].Token != first[j].Token || again[j].Confidence != first[j].Confidence {
				t.Fatalf("run %d: factor %d differs: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].Token >= first[i].Token {
			t.Fatalf("factors not sorted by token: %v", tokens(first))
		}
	}
}

func tokens(factors []Factor) []string {
	out := make([]string, len(factors))
	for i, f := range factors {
		out[i] = f.Token
	}
	return out
}
