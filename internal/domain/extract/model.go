package extract

// Age bands. UNKNOWN is deliberate: a missing or ambiguous age never
// defaults to a concrete band.
const (
	BandLT1     = "AGE_LT_1"
	Band1To5    = "AGE_1_5"
	Band6To12   = "AGE_6_12"
	Band13To17  = "AGE_13_17"
	Band18To64  = "AGE_18_64"
	BandGE65    = "AGE_GE_65"
	BandUnknown = "UNKNOWN"
)

// Urgency classes.
const (
	UrgencyElective = "ELECTIVE"
	UrgencyUrgent   = "URGENT"
	UrgencyEmergent = "EMERGENT"
)

// Sex tokens as emitted into the factor set.
const (
	SexMale   = "SEX_MALE"
	SexFemale = "SEX_FEMALE"
)

// Demographics is what the extractor learned about the patient from the HPI.
type Demographics struct {
	AgeYears  *float64 `json:"age_years,omitempty"`
	AgeBand   string   `json:"age_band"`
	Sex       string   `json:"sex,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	Procedure string   `json:"procedure,omitempty"`
	Urgency   string   `json:"urgency"`
}

// Population maps the age band onto the population dimension of the evidence
// context tuple. UNKNOWN age yields an empty population, which resolves to
// the wildcard dimension downstream.
func (d Demographics) Population() string {
	switch d.AgeBand {
	case BandLT1, Band1To5, Band6To12, Band13To17:
		return "PEDIATRIC"
	case Band18To64, BandGE65:
		return "ADULT"
	default:
		return ""
	}
}

// Pediatric reports whether the patient is under 18. Unknown age is not
// pediatric: pediatric-only medication rules must not fire on it.
func (d Demographics) Pediatric() bool {
	if d.AgeYears != nil {
		return *d.AgeYears < 18
	}
	switch d.AgeBand {
	case BandLT1, Band1To5, Band6To12, Band13To17:
		return true
	}
	return false
}

// Span is one evidence_text span, indexing into the raw HPI input.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Factor is one extracted risk factor. Confidence is
// base synonym confidence × negation penalty × temporal modifier;
// factors below the emission threshold are dropped before output.
type Factor struct {
	Token          string  `json:"token"`
	PlainLabel     string  `json:"plain_label"`
	Confidence     float64 `json:"confidence"`
	Spans          []Span  `json:"evidence_spans,omitempty"`
	Category       string  `json:"category,omitempty"`
	SeverityWeight float64 `json:"severity_weight"`
	Derived        bool    `json:"derived,omitempty"`
}
