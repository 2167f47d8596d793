package meds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/periop/periop/internal/domain/evidence"
)

// Rule is one row of the recommendation table. A rule fires when every
// populated predicate holds: all AllOf factors present, at least one AnyOf
// factor present, the procedure listed, the patient pediatric, and the named
// outcome's assessment above the configured thresholds. Always short-circuits
// the predicates entirely.
type Rule struct {
	Name            string         `yaml:"name" json:"name"`
	Medication      string         `yaml:"medication" json:"medication"`
	Bucket          string         `yaml:"bucket" json:"bucket"`
	AllOf           []string       `yaml:"all_of,omitempty" json:"all_of,omitempty"`
	AnyOf           []string       `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	Procedures      []string       `yaml:"procedures,omitempty" json:"procedures,omitempty"`
	Pediatric       bool           `yaml:"pediatric,omitempty" json:"pediatric,omitempty"`
	Always          bool           `yaml:"always,omitempty" json:"always,omitempty"`
	Outcome         string         `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	MinAdjustedRisk float64        `yaml:"min_adjusted_risk,omitempty" json:"min_adjusted_risk,omitempty"`
	MinRiskRatio    float64        `yaml:"min_risk_ratio,omitempty" json:"min_risk_ratio,omitempty"`
	Indication      string         `yaml:"indication,omitempty" json:"indication,omitempty"`
	DoseRule        string         `yaml:"dose_rule,omitempty" json:"dose_rule,omitempty"`
	Grade           evidence.Grade `yaml:"evidence_grade,omitempty" json:"evidence_grade,omitempty"`
	Citations       []string       `yaml:"citations,omitempty" json:"citations,omitempty"`
	Alternatives    []string       `yaml:"alternatives,omitempty" json:"alternatives,omitempty"`
	Justification   string         `yaml:"justification,omitempty" json:"justification,omitempty"`
}

// Validate rejects rules that cannot fire deterministically.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule: name is required")
	}
	if r.Medication == "" {
		return fmt.Errorf("rule %s: medication is required", r.Name)
	}
	if !validBucket(r.Bucket) {
		return fmt.Errorf("rule %s: unknown bucket %q", r.Name, r.Bucket)
	}
	if !r.Always && len(r.AllOf) == 0 && len(r.AnyOf) == 0 && len(r.Procedures) == 0 &&
		!r.Pediatric && r.Outcome == "" {
		return fmt.Errorf("rule %s: no trigger predicate", r.Name)
	}
	if r.Outcome == "" && (r.MinAdjustedRisk > 0 || r.MinRiskRatio > 0) {
		return fmt.Errorf("rule %s: risk threshold without outcome", r.Name)
	}
	return nil
}

// baseStandard is the routine agent set per procedure. Procedures not
// listed fall back to defaultStandard.
var baseStandard = map[string][]string{
	"TONSILLECTOMY":      {"PROPOFOL", "SEVOFLURANE", "FENTANYL", "DEXAMETHASONE", "ONDANSETRON"},
	"ADENOIDECTOMY":      {"PROPOFOL", "SEVOFLURANE", "FENTANYL", "DEXAMETHASONE", "ONDANSETRON"},
	"MYRINGOTOMY":        {"SEVOFLURANE", "FENTANYL"},
	"CABG":               {"ETOMIDATE", "FENTANYL", "ROCURONIUM", "ISOFLURANE"},
	"HERNIA_REPAIR":      {"PROPOFOL", "SEVOFLURANE", "FENTANYL", "ONDANSETRON"},
	"APPENDECTOMY":       {"PROPOFOL", "SEVOFLURANE", "FENTANYL", "ROCURONIUM", "ONDANSETRON"},
	"DENTAL_RESTORATION": {"PROPOFOL", "SEVOFLURANE", "FENTANYL"},
}

var defaultStandard = []string{"PROPOFOL", "SEVOFLURANE", "FENTANYL"}

// StandardSet returns the base STANDARD medication tokens for a procedure.
func StandardSet(procedure string) []string {
	if set, ok := baseStandard[procedure]; ok {
		return set
	}
	return defaultStandard
}

// DefaultRules is the built-in recommendation table. Citations are PMIDs
// from the evidence store or guideline identifiers.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "asthma-albuterol", Medication: "ALBUTEROL", Bucket: BucketDrawNow,
			AnyOf: []string{"ASTHMA"}, Grade: evidence.GradeB, Citations: []string{"15048656"},
			Indication:    "bronchospasm rescue",
			Justification: "asthma raises the odds of perioperative bronchospasm; nebulized albuterol should be drawn up before induction",
		},
		{
			Name: "uri-albuterol", Medication: "ALBUTEROL", Bucket: BucketDrawNow,
			AnyOf: []string{"RECENT_URI_2W"}, Grade: evidence.GradeA, Citations: []string{"19224786"},
			Indication:    "bronchospasm rescue",
			Justification: "a recent upper respiratory infection leaves the airway hyperreactive for several weeks",
		},
		{
			Name: "reactive-airway-desflurane", Medication: "DESFLURANE", Bucket: BucketContraindicated,
			AnyOf: []string{"ASTHMA", "RECENT_URI_2W"}, Grade: evidence.GradeB, Citations: []string{"15048656"},
			Alternatives:  []string{"SEVOFLURANE"},
			Indication:    "volatile maintenance",
			Justification: "desflurane is a pungent airway irritant and provokes bronchospasm in reactive airway disease",
		},
		{
			Name: "pediatric-succinylcholine", Medication: "SUCCINYLCHOLINE", Bucket: BucketContraindicated,
			Pediatric: true, Grade: evidence.GradeB, Citations: []string{"FDA-SCH-BOXED-WARNING"},
			Alternatives:  []string{"ROCURONIUM"},
			Indication:    "neuromuscular blockade",
			Justification: "routine succinylcholine is contraindicated in children; undiagnosed myopathy risks hyperkalemic arrest",
		},
		{
			Name: "ckd-succinylcholine", Medication: "SUCCINYLCHOLINE", Bucket: BucketContraindicated,
			AnyOf: []string{"CKD"}, Grade: evidence.GradeB, Citations: []string{"23392233"},
			Alternatives:  []string{"CISATRACURIUM", "ROCURONIUM"},
			Indication:    "neuromuscular blockade",
			Justification: "succinylcholine raises serum potassium and is unsafe in chronic kidney disease",
		},
		{
			Name: "ckd-nsaids", Medication: "NSAIDS", Bucket: BucketContraindicated,
			AnyOf: []string{"CKD"}, Grade: evidence.GradeB, Citations: []string{"23392233"},
			Alternatives:  []string{"FENTANYL"},
			Indication:    "postoperative analgesia",
			Justification: "NSAIDs reduce renal perfusion and worsen chronic kidney disease",
		},
		{
			Name: "ckd-cisatracurium", Medication: "CISATRACURIUM", Bucket: BucketStandard,
			AnyOf: []string{"CKD"}, Grade: evidence.GradeB, Citations: []string{"25091545"},
			Indication:    "neuromuscular blockade",
			Justification: "cisatracurium clears by Hofmann elimination, independent of renal function",
		},
		{
			Name: "mh-succinylcholine", Medication: "SUCCINYLCHOLINE", Bucket: BucketContraindicated,
			AnyOf: []string{"MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE"}, Grade: evidence.GradeA, Citations: []string{"MHAUS-2018"},
			Alternatives:  []string{"ROCURONIUM", "CISATRACURIUM"},
			Indication:    "neuromuscular blockade",
			Justification: "succinylcholine triggers malignant hyperthermia",
		},
		{
			Name: "mh-sevoflurane", Medication: "SEVOFLURANE", Bucket: BucketContraindicated,
			AnyOf: []string{"MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE"}, Grade: evidence.GradeA, Citations: []string{"MHAUS-2018"},
			Alternatives:  []string{"PROPOFOL"},
			Indication:    "maintenance",
			Justification: "volatile anaesthetics trigger malignant hyperthermia",
		},
		{
			Name: "mh-desflurane", Medication: "DESFLURANE", Bucket: BucketContraindicated,
			AnyOf: []string{"MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE"}, Grade: evidence.GradeA, Citations: []string{"MHAUS-2018"},
			Alternatives:  []string{"PROPOFOL"},
			Indication:    "maintenance",
			Justification: "volatile anaesthetics trigger malignant hyperthermia",
		},
		{
			Name: "mh-isoflurane", Medication: "ISOFLURANE", Bucket: BucketContraindicated,
			AnyOf: []string{"MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE"}, Grade: evidence.GradeA, Citations: []string{"MHAUS-2018"},
			Alternatives:  []string{"PROPOFOL"},
			Indication:    "maintenance",
			Justification: "volatile anaesthetics trigger malignant hyperthermia",
		},
		{
			Name: "mh-dantrolene", Medication: "DANTROLENE", Bucket: BucketEnsureAvailable,
			AnyOf: []string{"MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE"}, Grade: evidence.GradeA, Citations: []string{"MHAUS-2018"},
			Indication:    "malignant hyperthermia rescue",
			Justification: "dantrolene must be immediately available whenever an MH-susceptible patient receives anaesthesia",
		},
		{
			Name: "egg-soy-propofol", Medication: "PROPOFOL", Bucket: BucketContraindicated,
			AnyOf: []string{"EGG_SOY_ALLERGY"}, Grade: evidence.GradeC, Citations: []string{"ASA-ALLERGY-ADVISORY"},
			Alternatives:  []string{"ETOMIDATE", "KETAMINE"},
			Indication:    "induction",
			Justification: "propofol emulsion contains egg lecithin and soybean oil",
		},
		{
			Name: "high-ponv-ondansetron", Medication: "ONDANSETRON", Bucket: BucketConsider,
			Outcome: "PONV", MinAdjustedRisk: 0.35, Grade: evidence.GradeA, Citations: []string{"22401880"},
			Indication:    "PONV prophylaxis",
			Justification: "predicted PONV risk is well above the population base rate",
		},
		{
			Name: "high-ponv-dexamethasone", Medication: "DEXAMETHASONE", Bucket: BucketConsider,
			Outcome: "PONV", MinAdjustedRisk: 0.35, Grade: evidence.GradeA, Citations: []string{"22401880"},
			Indication:    "PONV prophylaxis",
			Justification: "predicted PONV risk is well above the population base rate",
		},
		{
			Name: "laryngospasm-rescue-succinylcholine", Medication: "SUCCINYLCHOLINE", Bucket: BucketEnsureAvailable,
			Outcome: "LARYNGOSPASM", MinRiskRatio: 3.0, Grade: evidence.GradeB, Citations: []string{"20816546"},
			Indication:    "laryngospasm rescue",
			Justification: "laryngospasm risk is several times baseline; a rescue paralytic should be at hand",
		},
	}
}

// LoadRulesFile reads a YAML rule overlay. The file is a list of Rule
// documents; names that collide with built-ins replace them wholesale.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading med rules overlay: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing med rules overlay: %w", err)
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// MergeRules overlays extra rules onto base, replacing by name.
func MergeRules(base, overlay []Rule) []Rule {
	byName := make(map[string]int, len(base))
	merged := make([]Rule, len(base))
	copy(merged, base)
	for i, r := range merged {
		byName[r.Name] = i
	}
	for _, r := range overlay {
		if i, ok := byName[r.Name]; ok {
			merged[i] = r
			continue
		}
		byName[r.Name] = len(merged)
		merged = append(merged, r)
	}
	return merged
}
