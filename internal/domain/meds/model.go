package meds

import (
	"sort"

	"github.com/periop/periop/internal/domain/evidence"
)

// Recommendation buckets, strongest claim first.
const (
	BucketContraindicated = "CONTRAINDICATED"
	BucketDrawNow         = "DRAW_NOW"
	BucketConsider        = "CONSIDER"
	BucketEnsureAvailable = "ENSURE_AVAILABLE"
	BucketStandard        = "STANDARD"
)

// bucketPriority orders conflict resolution. A medication matching rules in
// several buckets lands in the highest-priority one; CONTRAINDICATED always
// wins and suppresses every other placement.
var bucketPriority = map[string]int{
	BucketContraindicated: 0,
	BucketDrawNow:         1,
	BucketConsider:        2,
	BucketEnsureAvailable: 3,
	BucketStandard:        4,
}

func validBucket(b string) bool {
	_, ok := bucketPriority[b]
	return ok
}

// Recommendation is one medication placed in one bucket. DoseRule is the
// resolved dose string; unresolved placeholders survive when demographics
// are missing the substituted value. ComputedDose is the absolute dose
// derived from a per-kg rule when the weight is known.
type Recommendation struct {
	Token          string         `json:"token"`
	GenericName    string         `json:"generic_name,omitempty"`
	Bucket         string         `json:"bucket"`
	Indication     string         `json:"indication,omitempty"`
	DoseRule       string         `json:"dose_rule,omitempty"`
	ComputedDose   string         `json:"computed_dose,omitempty"`
	DrawVolume     string         `json:"draw_volume,omitempty"`
	Grade          evidence.Grade `json:"evidence_grade,omitempty"`
	PatientFactors []string       `json:"patient_factors,omitempty"`
	Citations      []string       `json:"citations,omitempty"`
	Alternatives   []string       `json:"alternatives,omitempty"`
	Justification  string         `json:"justification,omitempty"`
	Unsupported    bool           `json:"unsupported,omitempty"`
}

// Summary sizes the prep work: one syringe per DRAW_NOW or STANDARD entry,
// half a minute each with a 2-10 minute clamp.
type Summary struct {
	Rationale       string  `json:"rationale"`
	SyringeCount    int     `json:"syringe_count"`
	EstPrepTimeMins float64 `json:"estimated_prep_time_min"`
}

// RecommendationSet is the five-bucket output. Warnings carry dose
// resolution problems (currently only missing_weight).
type RecommendationSet struct {
	Standard        []Recommendation `json:"standard"`
	DrawNow         []Recommendation `json:"draw_now"`
	Consider        []Recommendation `json:"consider"`
	EnsureAvailable []Recommendation `json:"ensure_available"`
	Contraindicated []Recommendation `json:"contraindicated"`
	Summary         Summary          `json:"summary"`
	Warnings        []string         `json:"warnings,omitempty"`
}

func (s *RecommendationSet) add(rec Recommendation) {
	switch rec.Bucket {
	case BucketContraindicated:
		s.Contraindicated = append(s.Contraindicated, rec)
	case BucketDrawNow:
		s.DrawNow = append(s.DrawNow, rec)
	case BucketConsider:
		s.Consider = append(s.Consider, rec)
	case BucketEnsureAvailable:
		s.EnsureAvailable = append(s.EnsureAvailable, rec)
	default:
		s.Standard = append(s.Standard, rec)
	}
}

// sortBuckets fixes the in-bucket ordering: strongest grade first, ties
// alphabetical by token.
func (s *RecommendationSet) sortBuckets() {
	for _, bucket := range [][]Recommendation{
		s.Standard, s.DrawNow, s.Consider, s.EnsureAvailable, s.Contraindicated,
	} {
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].Grade.Rank() != bucket[j].Grade.Rank() {
				return bucket[i].Grade.Rank() < bucket[j].Grade.Rank()
			}
			return bucket[i].Token < bucket[j].Token
		})
	}
	sort.Strings(s.Warnings)
}

// All returns every recommendation across buckets, contraindicated last.
func (s *RecommendationSet) All() []Recommendation {
	out := make([]Recommendation, 0,
		len(s.Standard)+len(s.DrawNow)+len(s.Consider)+len(s.EnsureAvailable)+len(s.Contraindicated))
	out = append(out, s.Standard...)
	out = append(out, s.DrawNow...)
	out = append(out, s.Consider...)
	out = append(out, s.EnsureAvailable...)
	out = append(out, s.Contraindicated...)
	return out
}
