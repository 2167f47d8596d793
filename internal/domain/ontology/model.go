package ontology

import (
	"time"
)

// Term types. Every term belongs to exactly one type.
const (
	TypeOutcome     = "OUTCOME"
	TypeRiskFactor  = "RISK_FACTOR"
	TypeMedication  = "MEDICATION"
	TypeProcedure   = "PROCEDURE"
	TypeDemographic = "DEMOGRAPHIC"
)

var validTermTypes = map[string]bool{
	TypeOutcome:     true,
	TypeRiskFactor:  true,
	TypeMedication:  true,
	TypeProcedure:   true,
	TypeDemographic: true,
}

// Term maps to the ontology_terms table. Token is the stable uppercase
// identifier used everywhere else in the system; synonyms are stored
// lowercase and matched against lowercased HPI text.
type Term struct {
	Token          string   `db:"token" json:"token" yaml:"token"`
	Type           string   `db:"type" json:"type" yaml:"type"`
	PlainLabel     string   `db:"plain_label" json:"plain_label" yaml:"plain_label"`
	Synonyms       []string `db:"synonyms" json:"synonyms" yaml:"synonyms"`
	WeakSynonyms   []string `db:"weak_synonyms" json:"weak_synonyms,omitempty" yaml:"weak_synonyms"`
	Category       string   `db:"category" json:"category" yaml:"category"`
	SeverityWeight float64  `db:"severity_weight" json:"severity_weight" yaml:"severity_weight"`
	Parent         *string  `db:"parent" json:"parent,omitempty" yaml:"parent"`

	// CaseType is set on PROCEDURE terms and names the case_type dimension
	// of the evidence context tuple (ENT, CARDIAC, GENERAL, DENTAL, ORTHO).
	CaseType string `db:"case_type" json:"case_type,omitempty" yaml:"case_type"`

	// TimeWindowDays is set on time-windowed RISK_FACTOR terms
	// (RECENT_URI_2W = 14). Zero means the factor is not time-windowed.
	TimeWindowDays int `db:"time_window_days" json:"time_window_days,omitempty" yaml:"time_window_days"`

	// Formulary fields, set on MEDICATION terms.
	GenericName   string `db:"generic_name" json:"generic_name,omitempty" yaml:"generic_name"`
	Concentration string `db:"concentration" json:"concentration,omitempty" yaml:"concentration"`
	DoseRuleAdult string `db:"dose_rule_adult" json:"dose_rule_adult,omitempty" yaml:"dose_rule_adult"`
	DoseRulePeds  string `db:"dose_rule_peds" json:"dose_rule_peds,omitempty" yaml:"dose_rule_peds"`

	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// TimeWindowed reports whether matches of this term require a temporal cue.
func (t *Term) TimeWindowed() bool { return t.TimeWindowDays > 0 }
