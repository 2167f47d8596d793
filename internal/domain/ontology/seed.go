package ontology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedTerms returns the built-in clinical vocabulary. Deployments can extend
// or override it with a YAML overlay (see LoadTermsFile); tokens are the
// merge key.
func SeedTerms() []Term {
	return []Term{
		// -- Outcomes --
		{Token: "LARYNGOSPASM", Type: TypeOutcome, PlainLabel: "laryngospasm", Category: "airway", SeverityWeight: 0.9,
			Synonyms: []string{"laryngeal spasm"}},
		{Token: "BRONCHOSPASM", Type: TypeOutcome, PlainLabel: "bronchospasm", Category: "respiratory", SeverityWeight: 0.8,
			Synonyms: []string{"bronchial spasm", "wheezing episode"}},
		{Token: "DIFFICULT_INTUBATION", Type: TypeOutcome, PlainLabel: "difficult intubation", Category: "airway", SeverityWeight: 0.8,
			Synonyms: []string{"difficult airway", "failed intubation"}},
		{Token: "PONV", Type: TypeOutcome, PlainLabel: "postoperative nausea and vomiting", Category: "gastrointestinal", SeverityWeight: 0.4,
			Synonyms: []string{"postop nausea", "postoperative vomiting"}},
		{Token: "MYOCARDIAL_INJURY", Type: TypeOutcome, PlainLabel: "perioperative myocardial injury", Category: "cardiac", SeverityWeight: 1.0,
			Synonyms: []string{"perioperative mi", "cardiac injury"}},
		{Token: "ACUTE_KIDNEY_INJURY", Type: TypeOutcome, PlainLabel: "acute kidney injury", Category: "renal", SeverityWeight: 0.8,
			Synonyms: []string{"postoperative renal failure"}},
		{Token: "EMERGENCE_DELIRIUM", Type: TypeOutcome, PlainLabel: "emergence delirium", Category: "neurologic", SeverityWeight: 0.5,
			Synonyms: []string{"emergence agitation"}},
		{Token: "ASPIRATION", Type: TypeOutcome, PlainLabel: "pulmonary aspiration", Category: "airway", SeverityWeight: 0.9,
			Synonyms: []string{"aspiration pneumonitis"}},

		// -- Risk factors --
		{Token: "ASTHMA", Type: TypeRiskFactor, PlainLabel: "asthma", Category: "respiratory", SeverityWeight: 0.7,
			Synonyms:     []string{"reactive airway disease", "asthmatic"},
			WeakSynonyms: []string{"rad"}},
		{Token: "RECENT_URI_2W", Type: TypeRiskFactor, PlainLabel: "recent upper respiratory infection", Category: "respiratory",
			SeverityWeight: 0.6, TimeWindowDays: 14,
			Synonyms:     []string{"upper respiratory infection", "runny nose and cough"},
			WeakSynonyms: []string{"cold"}},
		{Token: "SMOKING_HISTORY", Type: TypeRiskFactor, PlainLabel: "smoking", Category: "social", SeverityWeight: 0.5,
			Synonyms: []string{"smoker", "tobacco use", "history of smoking", "cigarette use"}},
		{Token: "SMOKING_HEAVY", Type: TypeRiskFactor, PlainLabel: "heavy smoking", Category: "social", SeverityWeight: 0.7,
			Parent:   ptr("SMOKING_HISTORY"),
			Synonyms: []string{"heavy smoker", "pack a day", "two packs a day"}},
		{Token: "OSA", Type: TypeRiskFactor, PlainLabel: "obstructive sleep apnea", Category: "airway", SeverityWeight: 0.7,
			Synonyms: []string{"sleep apnea", "snoring with apnea"}},
		{Token: "OBESITY", Type: TypeRiskFactor, PlainLabel: "obesity", Category: "metabolic", SeverityWeight: 0.5,
			Synonyms: []string{"obese", "morbid obesity"}},
		{Token: "GERD", Type: TypeRiskFactor, PlainLabel: "gastroesophageal reflux disease", Category: "gastrointestinal", SeverityWeight: 0.4,
			Synonyms: []string{"reflux", "heartburn"}},
		{Token: "CAD", Type: TypeRiskFactor, PlainLabel: "coronary artery disease", Category: "cardiac", SeverityWeight: 0.9,
			Synonyms: []string{"ischemic heart disease", "coronary disease", "prior coronary stent"}},
		{Token: "DIABETES", Type: TypeRiskFactor, PlainLabel: "diabetes mellitus", Category: "endocrine", SeverityWeight: 0.6,
			Synonyms:     []string{"diabetes", "diabetic", "type 2 diabetes", "type 1 diabetes"},
			WeakSynonyms: []string{"iddm"}},
		{Token: "HYPERTENSION", Type: TypeRiskFactor, PlainLabel: "hypertension", Category: "cardiac", SeverityWeight: 0.5,
			Synonyms: []string{"high blood pressure", "hypertensive"}},
		{Token: "CKD", Type: TypeRiskFactor, PlainLabel: "chronic kidney disease", Category: "renal", SeverityWeight: 0.8,
			Synonyms: []string{"renal insufficiency", "kidney disease", "end stage renal disease"}},
		{Token: "CHF", Type: TypeRiskFactor, PlainLabel: "congestive heart failure", Category: "cardiac", SeverityWeight: 0.9,
			Synonyms: []string{"heart failure", "reduced ejection fraction"}},
		{Token: "MALIGNANT_HYPERTHERMIA_SUSCEPTIBLE", Type: TypeRiskFactor, PlainLabel: "malignant hyperthermia", Category: "anesthetic", SeverityWeight: 1.0,
			Synonyms: []string{"family history of malignant hyperthermia", "mh susceptible"}},
		{Token: "EGG_SOY_ALLERGY", Type: TypeRiskFactor, PlainLabel: "egg or soy allergy", Category: "allergy", SeverityWeight: 0.6,
			Synonyms: []string{"egg allergy", "soy allergy"}},
		{Token: "INCREASED_ICP", Type: TypeRiskFactor, PlainLabel: "increased intracranial pressure", Category: "neurologic", SeverityWeight: 0.9,
			Synonyms: []string{"intracranial hypertension", "elevated icp"}},
		{Token: "ANEMIA", Type: TypeRiskFactor, PlainLabel: "anemia", Category: "hematologic", SeverityWeight: 0.4,
			Synonyms: []string{"low hemoglobin", "anemic"}},
		{Token: "PREMATURITY", Type: TypeRiskFactor, PlainLabel: "prematurity", Category: "neonatal", SeverityWeight: 0.7,
			Synonyms: []string{"premature birth", "born premature", "ex-premature infant"}},

		// -- Demographic-derived factors (never matched from text) --
		{Token: "AGE_LT_1", Type: TypeDemographic, PlainLabel: "age under 1 year", Category: "age", SeverityWeight: 0.8},
		{Token: "AGE_1_5", Type: TypeDemographic, PlainLabel: "age 1 to 5 years", Category: "age", SeverityWeight: 0.6},
		{Token: "AGE_6_12", Type: TypeDemographic, PlainLabel: "age 6 to 12 years", Category: "age", SeverityWeight: 0.4},
		{Token: "AGE_13_17", Type: TypeDemographic, PlainLabel: "age 13 to 17 years", Category: "age", SeverityWeight: 0.3},
		{Token: "AGE_18_64", Type: TypeDemographic, PlainLabel: "age 18 to 64 years", Category: "age", SeverityWeight: 0.2},
		{Token: "AGE_GE_65", Type: TypeDemographic, PlainLabel: "age 65 years or older", Category: "age", SeverityWeight: 0.6},
		{Token: "SEX_MALE", Type: TypeDemographic, PlainLabel: "male sex", Category: "sex", SeverityWeight: 0.1},
		{Token: "SEX_FEMALE", Type: TypeDemographic, PlainLabel: "female sex", Category: "sex", SeverityWeight: 0.1},

		// -- Procedures --
		{Token: "TONSILLECTOMY", Type: TypeProcedure, PlainLabel: "tonsillectomy", Category: "airway", CaseType: "ENT", SeverityWeight: 0.6,
			Synonyms: []string{"tonsillectomy and adenoidectomy", "adenotonsillectomy"}},
		{Token: "ADENOIDECTOMY", Type: TypeProcedure, PlainLabel: "adenoidectomy", Category: "airway", CaseType: "ENT", SeverityWeight: 0.5,
			Synonyms: []string{"adenoid removal"}},
		{Token: "MYRINGOTOMY", Type: TypeProcedure, PlainLabel: "myringotomy", Category: "otologic", CaseType: "ENT", SeverityWeight: 0.3,
			Synonyms: []string{"ear tubes", "tympanostomy tubes"}},
		{Token: "CABG", Type: TypeProcedure, PlainLabel: "coronary artery bypass graft", Category: "cardiac", CaseType: "CARDIAC", SeverityWeight: 1.0,
			Synonyms: []string{"coronary bypass", "bypass surgery"}},
		{Token: "HERNIA_REPAIR", Type: TypeProcedure, PlainLabel: "hernia repair", Category: "abdominal", CaseType: "GENERAL", SeverityWeight: 0.4,
			Synonyms: []string{"inguinal hernia repair", "umbilical hernia repair", "herniorrhaphy"}},
		{Token: "APPENDECTOMY", Type: TypeProcedure, PlainLabel: "appendectomy", Category: "abdominal", CaseType: "GENERAL", SeverityWeight: 0.5,
			Synonyms: []string{"appendix removal"}},
		{Token: "DENTAL_RESTORATION", Type: TypeProcedure, PlainLabel: "dental restoration", Category: "dental", CaseType: "DENTAL", SeverityWeight: 0.3,
			Synonyms: []string{"dental rehabilitation", "dental surgery", "dental extraction"}},

		// -- Medications (formulary fields drive dose resolution) --
		{Token: "PROPOFOL", Type: TypeMedication, PlainLabel: "propofol", Category: "induction", GenericName: "propofol",
			Concentration: "10 mg/mL", DoseRuleAdult: "1.5-2.5 mg/kg IV induction", DoseRulePeds: "2.5-3.5 mg/kg IV induction ({weight_kg} kg)"},
		{Token: "ETOMIDATE", Type: TypeMedication, PlainLabel: "etomidate", Category: "induction", GenericName: "etomidate",
			Concentration: "2 mg/mL", DoseRuleAdult: "0.2-0.3 mg/kg IV induction", DoseRulePeds: "0.2-0.3 mg/kg IV induction ({weight_kg} kg)"},
		{Token: "KETAMINE", Type: TypeMedication, PlainLabel: "ketamine", Category: "induction", GenericName: "ketamine",
			Concentration: "10 mg/mL", DoseRuleAdult: "1-2 mg/kg IV induction", DoseRulePeds: "1-2 mg/kg IV induction ({weight_kg} kg)"},
		{Token: "SEVOFLURANE", Type: TypeMedication, PlainLabel: "sevoflurane", Category: "volatile", GenericName: "sevoflurane",
			DoseRuleAdult: "2-3% inhaled maintenance", DoseRulePeds: "2-3% inhaled maintenance"},
		{Token: "DESFLURANE", Type: TypeMedication, PlainLabel: "desflurane", Category: "volatile", GenericName: "desflurane",
			DoseRuleAdult: "6-8% inhaled maintenance", DoseRulePeds: "6-8% inhaled maintenance"},
		{Token: "ISOFLURANE", Type: TypeMedication, PlainLabel: "isoflurane", Category: "volatile", GenericName: "isoflurane",
			DoseRuleAdult: "1-2% inhaled maintenance", DoseRulePeds: "1-2% inhaled maintenance"},
		{Token: "FENTANYL", Type: TypeMedication, PlainLabel: "fentanyl", Category: "opioid", GenericName: "fentanyl",
			Concentration: "50 mcg/mL", DoseRuleAdult: "1-2 mcg/kg IV", DoseRulePeds: "1-2 mcg/kg IV ({weight_kg} kg)"},
		{Token: "ROCURONIUM", Type: TypeMedication, PlainLabel: "rocuronium", Category: "paralytic", GenericName: "rocuronium",
			Concentration: "10 mg/mL", DoseRuleAdult: "0.6-1.2 mg/kg IV", DoseRulePeds: "0.6-1.2 mg/kg IV ({weight_kg} kg)"},
		{Token: "SUCCINYLCHOLINE", Type: TypeMedication, PlainLabel: "succinylcholine", Category: "paralytic", GenericName: "succinylcholine",
			Concentration: "20 mg/mL", DoseRuleAdult: "1-1.5 mg/kg IV", DoseRulePeds: "1-2 mg/kg IV ({weight_kg} kg)"},
		{Token: "CISATRACURIUM", Type: TypeMedication, PlainLabel: "cisatracurium", Category: "paralytic", GenericName: "cisatracurium",
			Concentration: "2 mg/mL", DoseRuleAdult: "0.1-0.15 mg/kg IV", DoseRulePeds: "0.1-0.15 mg/kg IV ({weight_kg} kg)"},
		{Token: "ALBUTEROL", Type: TypeMedication, PlainLabel: "albuterol", Category: "bronchodilator", GenericName: "albuterol",
			Concentration: "2.5 mg/3 mL", DoseRuleAdult: "2.5-5 mg nebulized", DoseRulePeds: "0.15 mg/kg nebulized, minimum 2.5 mg ({weight_kg} kg)"},
		{Token: "DEXAMETHASONE", Type: TypeMedication, PlainLabel: "dexamethasone", Category: "steroid", GenericName: "dexamethasone",
			Concentration: "4 mg/mL", DoseRuleAdult: "4-8 mg IV", DoseRulePeds: "0.15 mg/kg IV, maximum 8 mg ({weight_kg} kg)"},
		{Token: "ONDANSETRON", Type: TypeMedication, PlainLabel: "ondansetron", Category: "antiemetic", GenericName: "ondansetron",
			Concentration: "2 mg/mL", DoseRuleAdult: "4 mg IV", DoseRulePeds: "0.1-0.15 mg/kg IV, maximum 4 mg ({weight_kg} kg)"},
		{Token: "INTRALIPID_20", Type: TypeMedication, PlainLabel: "intralipid 20%", Category: "rescue", GenericName: "lipid emulsion 20%",
			DoseRuleAdult: "1.5 mL/kg IV bolus ({weight_kg} kg)", DoseRulePeds: "1.5 mL/kg IV bolus ({weight_kg} kg)"},
		{Token: "DANTROLENE", Type: TypeMedication, PlainLabel: "dantrolene", Category: "rescue", GenericName: "dantrolene sodium",
			DoseRuleAdult: "2.5 mg/kg IV rapid bolus ({weight_kg} kg)", DoseRulePeds: "2.5 mg/kg IV rapid bolus ({weight_kg} kg)"},
		{Token: "NSAIDS", Type: TypeMedication, PlainLabel: "nsaids", Category: "analgesic", GenericName: "ketorolac",
			Concentration: "30 mg/mL", DoseRuleAdult: "15-30 mg IV", DoseRulePeds: "0.5 mg/kg IV, maximum 30 mg ({weight_kg} kg)"},
		{Token: "EPINEPHRINE", Type: TypeMedication, PlainLabel: "epinephrine", Category: "vasopressor", GenericName: "epinephrine",
			Concentration: "100 mcg/mL", DoseRuleAdult: "10-100 mcg IV titrated", DoseRulePeds: "1 mcg/kg IV ({weight_kg} kg)"},
	}
}

// LoadTermsFile reads a YAML term overlay. The file is a list of Term
// documents; tokens that collide with built-ins replace them wholesale.
func LoadTermsFile(path string) ([]Term, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ontology overlay: %w", err)
	}
	var terms []Term
	if err := yaml.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("parsing ontology overlay: %w", err)
	}
	return terms, nil
}

// MergeTerms overlays extra terms onto base, replacing by token.
func MergeTerms(base, overlay []Term) []Term {
	byToken := make(map[string]int, len(base))
	merged := make([]Term, len(base))
	copy(merged, base)
	for i, t := range merged {
		byToken[t.Token] = i
	}
	for _, t := range overlay {
		if i, ok := byToken[t.Token]; ok {
			merged[i] = t
			continue
		}
		byToken[t.Token] = len(merged)
		merged = append(merged, t)
	}
	return merged
}

func ptr(s string) *string { return &s }
