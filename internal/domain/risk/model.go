package risk

import (
	"github.com/periop/periop/internal/domain/evidence"
)

// Risk level labels.
const (
	LevelHigh     = "HIGH"
	LevelModerate = "MODERATE"
	LevelLow      = "LOW"
)

// Clinical plausibility caps on the combined estimate.
const (
	MaxAdjustedRisk = 0.95
	MaxRiskRatio    = 25.0
)

const (
	highRiskFloor      = 0.10
	highRatioFloor     = 3.0
	moderateRiskFloor  = 0.05
	moderateRatioFloor = 1.5
)

// Contributor is one extracted factor whose pooled effect entered an
// outcome's combined odds.
type Contributor struct {
	Factor      string         `json:"factor"`
	Confidence  float64        `json:"confidence"`
	OR          float64        `json:"or"`
	CILow       float64        `json:"ci_low"`
	CIHigh      float64        `json:"ci_high"`
	Grade       evidence.Grade `json:"evidence_grade"`
	Approximate bool           `json:"approximate,omitempty"`
	PMIDs       []string       `json:"pmids"`
}

// Assessment is the adjusted risk for one outcome. NoEvidence marks an
// outcome with no pooled baseline at any context level; the numeric fields
// are meaningless in that case and omitted from JSON.
type Assessment struct {
	Outcome      string         `json:"outcome"`
	NoEvidence   bool           `json:"no_evidence,omitempty"`
	ContextLabel string         `json:"context_label,omitempty"`
	BaselineRisk float64        `json:"baseline_risk,omitempty"`
	AdjustedRisk float64        `json:"adjusted_risk,omitempty"`
	CILow        float64        `json:"ci_low,omitempty"`
	CIHigh       float64        `json:"ci_high,omitempty"`
	RiskRatio    float64        `json:"risk_ratio,omitempty"`
	Level        string         `json:"risk_level,omitempty"`
	Grade        evidence.Grade `json:"evidence_grade,omitempty"`
	Capped       bool           `json:"capped,omitempty"`
	PMIDs        []string       `json:"pmids,omitempty"`
	Contributors []Contributor  `json:"contributing_factors,omitempty"`
}

func levelFor(p, riskRatio float64) string {
	switch {
	case p >= highRiskFloor || riskRatio >= highRatioFloor:
		return LevelHigh
	case p >= moderateRiskFloor || riskRatio >= moderateRatioFloor:
		return LevelModerate
	default:
		return LevelLow
	}
}

// OverallLevel is the worst level across assessed outcomes. Outcomes
// without evidence do not contribute.
func OverallLevel(assessments []*Assessment) string {
	level := LevelLow
	for _, a := range assessments {
		if a.NoEvidence {
			continue
		}
		switch a.Level {
		case LevelHigh:
			return LevelHigh
		case LevelModerate:
			level = LevelModerate
		}
	}
	return level
}
