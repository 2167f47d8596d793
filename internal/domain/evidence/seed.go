package evidence

// SeedPapers returns the demo study set loaded by the seed command. PMIDs
// are stable so med rules and tests can cite them.
func SeedPapers() []Paper {
	return []Paper{
		{PMID: "20816546", Title: "Risk assessment for respiratory complications in paediatric anaesthesia: a prospective cohort study", Year: 2010, Design: DesignCohort, NTotal: 9297, Population: PopPediatric, TimeHorizon: "perioperative", Grade: GradeB},
		{PMID: "15318208", Title: "Perioperative laryngospasm in children undergoing elective ENT surgery", Year: 2004, Design: DesignCohort, NTotal: 5316, Population: PopPediatric, TimeHorizon: "24h", Grade: GradeB},
		{PMID: "19224786", Title: "Upper respiratory infection and perioperative respiratory adverse events in children: systematic review and meta-analysis", Year: 2009, Design: DesignMetaAnalysis, NTotal: 4800, Population: PopPediatric, TimeHorizon: "perioperative", Grade: GradeA},
		{PMID: "11575340", Title: "Risk factors for laryngospasm in children: a case-control study", Year: 2001, Design: DesignCaseControl, NTotal: 1232, Population: PopPediatric, TimeHorizon: "24h", Grade: GradeC},
		{PMID: "15048656", Title: "Bronchial hyperreactivity and perioperative bronchospasm in asthmatic children", Year: 2004, Design: DesignCohort, NTotal: 890, Population: PopPediatric, TimeHorizon: "24h", Grade: GradeB},
		{PMID: "22401880", Title: "Risk factors for postoperative nausea and vomiting: pooled analysis of prospective cohorts", Year: 2012, Design: DesignMetaAnalysis, NTotal: 22000, Population: PopMixed, TimeHorizon: "24h", Grade: GradeA},
		{PMID: "24257388", Title: "Myocardial injury after noncardiac surgery: a large international prospective cohort", Year: 2014, Design: DesignCohort, NTotal: 15065, Population: PopAdult, TimeHorizon: "30d", Grade: GradeB},
		{PMID: "25091545", Title: "Acute kidney injury after cardiac surgery: incidence and risk factors", Year: 2015, Design: DesignCohort, NTotal: 3500, Population: PopAdult, TimeHorizon: "inhospital", Grade: GradeB},
		{PMID: "18211990", Title: "Predictors of difficult tracheal intubation: updated meta-analysis", Year: 2008, Design: DesignMetaAnalysis, NTotal: 50760, Population: PopMixed, TimeHorizon: "intraoperative", Grade: GradeA},
		{PMID: "26301477", Title: "Anaesthetic management of children with recent upper respiratory infection: a randomized trial", Year: 2015, Design: DesignRCT, NTotal: 300, Population: PopPediatric, TimeHorizon: "perioperative", Grade: GradeB},
		{PMID: "16492904", Title: "Smoking and perioperative bronchospasm in adults: a prospective cohort", Year: 2006, Design: DesignCohort, NTotal: 410, Population: PopAdult, TimeHorizon: "24h", Grade: GradeB},
		{PMID: "28358617", Title: "Emergence delirium in children after sevoflurane anaesthesia: a prospective observational study", Year: 2017, Design: DesignCohort, NTotal: 521, Population: PopPediatric, TimeHorizon: "PACU", Grade: GradeB},
		{PMID: "19638907", Title: "Obstructive sleep apnea and difficult airway: a case-control study", Year: 2009, Design: DesignCaseControl, NTotal: 812, Population: PopMixed, TimeHorizon: "intraoperative", Grade: GradeC},
		{PMID: "23392233", Title: "Chronic kidney disease and perioperative cardiovascular events in noncardiac surgery", Year: 2013, Design: DesignCohort, NTotal: 2964, Population: PopAdult, TimeHorizon: "30d", Grade: GradeB},
		{PMID: "30128324", Title: "Perioperative respiratory adverse events across anaesthesia practice: registry analysis", Year: 2018, Design: DesignCohort, NTotal: 102929, Population: PopMixed, TimeHorizon: "perioperative", Grade: GradeB},
	}
}

// SeedEstimates returns the demo estimate set. Context labels are already
// canonical. Baselines carry event counts so small cells exercise the
// Wilson fallback.
func SeedEstimates() []Estimate {
	return []Estimate{
		// LARYNGOSPASM baselines, pediatric ENT elective.
		{PMID: "20816546", OutcomeToken: "LARYNGOSPASM", Measure: MeasureIncidence, Value: 0.021, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE", NTotal: iptr(1362), NEvents: iptr(29), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "15318208", OutcomeToken: "LARYNGOSPASM", Measure: MeasureIncidence, Value: 0.019, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE", NTotal: iptr(5316), NEvents: iptr(101), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "26301477", OutcomeToken: "LARYNGOSPASM", Measure: MeasureIncidence, Value: 0.023, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×ENT×ELECTIVE", NTotal: iptr(150), NEvents: iptr(3), QualityWeight: 0.9, ExtractionConfidence: 0.9},
		// LARYNGOSPASM baselines, wider contexts.
		{PMID: "20816546", OutcomeToken: "LARYNGOSPASM", Measure: MeasureIncidence, Value: 0.017, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", NTotal: iptr(9297), NEvents: iptr(158), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "30128324", OutcomeToken: "LARYNGOSPASM", Measure: MeasureIncidence, Value: 0.0087, Adjusted: false, Population: PopMixed, ContextLabel: "*×*×*", NTotal: iptr(102929), NEvents: iptr(895), QualityWeight: 1.0, ExtractionConfidence: 0.95},

		// LARYNGOSPASM effects.
		{PMID: "19224786", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("RECENT_URI_2W"), Measure: MeasureOR, Value: 2.05, CILow: fptr(1.68), CIHigh: fptr(2.50), Adjusted: true, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "20816546", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("RECENT_URI_2W"), Measure: MeasureRR, Value: 2.9, CILow: fptr(2.0), CIHigh: fptr(4.2), Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.9},
		{PMID: "26301477", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("RECENT_URI_2W"), Measure: MeasureOR, Value: 2.6, CILow: fptr(1.1), CIHigh: fptr(6.3), Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 0.9, ExtractionConfidence: 0.85},
		{PMID: "15048656", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("ASTHMA"), Measure: MeasureOR, Value: 1.94, CILow: fptr(1.32), CIHigh: fptr(2.85), Adjusted: true, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "11575340", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("ASTHMA"), Measure: MeasureOR, Value: 1.8, CILow: fptr(1.2), CIHigh: fptr(2.7), Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 0.8, ExtractionConfidence: 0.9},
		{PMID: "30128324", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("AGE_1_5"), Measure: MeasureOR, Value: 1.9, CILow: fptr(1.5), CIHigh: fptr(2.4), Adjusted: true, Population: PopMixed, ContextLabel: "*×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "20816546", OutcomeToken: "LARYNGOSPASM", ModifierToken: sptr("SMOKING_HISTORY"), Measure: MeasureOR, Value: 1.3, CILow: fptr(0.9), CIHigh: fptr(1.9), Adjusted: false, Population: PopPediatric, ContextLabel: "*×*×*", QualityWeight: 0.7, ExtractionConfidence: 0.8},

		// BRONCHOSPASM.
		{PMID: "20816546", OutcomeToken: "BRONCHOSPASM", Measure: MeasureIncidence, Value: 0.013, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", NTotal: iptr(9297), NEvents: iptr(121), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "16492904", OutcomeToken: "BRONCHOSPASM", Measure: MeasureIncidence, Value: 0.004, Adjusted: false, Population: PopAdult, ContextLabel: "ADULT×*×*", NTotal: iptr(410), NEvents: iptr(2), QualityWeight: 1.0, ExtractionConfidence: 0.9},
		{PMID: "30128324", OutcomeToken: "BRONCHOSPASM", Measure: MeasureIncidence, Value: 0.006, Adjusted: false, Population: PopMixed, ContextLabel: "*×*×*", NTotal: iptr(102929), NEvents: iptr(618), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "15048656", OutcomeToken: "BRONCHOSPASM", ModifierToken: sptr("ASTHMA"), Measure: MeasureOR, Value: 2.8, CILow: fptr(1.9), CIHigh: fptr(4.1), Adjusted: true, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "19224786", OutcomeToken: "BRONCHOSPASM", ModifierToken: sptr("ASTHMA"), Measure: MeasureOR, Value: 2.4, CILow: fptr(1.6), CIHigh: fptr(3.6), Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 0.9, ExtractionConfidence: 0.9},
		{PMID: "19224786", OutcomeToken: "BRONCHOSPASM", ModifierToken: sptr("RECENT_URI_2W"), Measure: MeasureOR, Value: 2.2, CILow: fptr(1.5), CIHigh: fptr(3.2), Adjusted: true, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "16492904", OutcomeToken: "BRONCHOSPASM", ModifierToken: sptr("SMOKING_HISTORY"), Measure: MeasureOR, Value: 1.8, CILow: fptr(1.1), CIHigh: fptr(2.9), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.9},

		// DIFFICULT_INTUBATION.
		{PMID: "18211990", OutcomeToken: "DIFFICULT_INTUBATION", Measure: MeasureIncidence, Value: 0.058, Adjusted: false, Population: PopMixed, ContextLabel: "*×*×*", NTotal: iptr(50760), NEvents: iptr(2944), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "30128324", OutcomeToken: "DIFFICULT_INTUBATION", Measure: MeasureIncidence, Value: 0.049, Adjusted: false, Population: PopMixed, ContextLabel: "*×*×*", NTotal: iptr(102929), NEvents: iptr(5044), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "19638907", OutcomeToken: "DIFFICULT_INTUBATION", ModifierToken: sptr("OSA"), Measure: MeasureOR, Value: 2.1, CILow: fptr(1.4), CIHigh: fptr(3.1), Adjusted: true, Population: PopMixed, ContextLabel: "*×*×*", QualityWeight: 0.9, ExtractionConfidence: 0.9},
		{PMID: "18211990", OutcomeToken: "DIFFICULT_INTUBATION", ModifierToken: sptr("OBESITY"), Measure: MeasureOR, Value: 1.7, CILow: fptr(1.4), CIHigh: fptr(2.1), Adjusted: true, Population: PopMixed, ContextLabel: "*×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},

		// PONV.
		{PMID: "22401880", OutcomeToken: "PONV", Measure: MeasureIncidence, Value: 0.28, Adjusted: false, Population: PopMixed, ContextLabel: "*×*×*", NTotal: iptr(22000), NEvents: iptr(6160), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "22401880", OutcomeToken: "PONV", ModifierToken: sptr("SEX_FEMALE"), Measure: MeasureOR, Value: 2.6, CILow: fptr(2.2), CIHigh: fptr(3.0), Adjusted: true, Population: PopMixed, ContextLabel: "*×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "22401880", OutcomeToken: "PONV", ModifierToken: sptr("SMOKING_HISTORY"), Measure: MeasureOR, Value: 0.62, CILow: fptr(0.53), CIHigh: fptr(0.73), Adjusted: true, Population: PopMixed, ContextLabel: "*×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},

		// MYOCARDIAL_INJURY.
		{PMID: "24257388", OutcomeToken: "MYOCARDIAL_INJURY", Measure: MeasureIncidence, Value: 0.08, Adjusted: false, Population: PopAdult, ContextLabel: "ADULT×*×*", NTotal: iptr(15065), NEvents: iptr(1205), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "25091545", OutcomeToken: "MYOCARDIAL_INJURY", Measure: MeasureIncidence, Value: 0.12, Adjusted: false, Population: PopAdult, ContextLabel: "ADULT×CARDIAC×*", NTotal: iptr(3100), NEvents: iptr(372), QualityWeight: 1.0, ExtractionConfidence: 0.9},
		{PMID: "24257388", OutcomeToken: "MYOCARDIAL_INJURY", ModifierToken: sptr("CAD"), Measure: MeasureOR, Value: 2.2, CILow: fptr(1.8), CIHigh: fptr(2.7), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "23392233", OutcomeToken: "MYOCARDIAL_INJURY", ModifierToken: sptr("CKD"), Measure: MeasureOR, Value: 1.9, CILow: fptr(1.4), CIHigh: fptr(2.6), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "24257388", OutcomeToken: "MYOCARDIAL_INJURY", ModifierToken: sptr("DIABETES"), Measure: MeasureOR, Value: 1.5, CILow: fptr(1.3), CIHigh: fptr(1.8), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "24257388", OutcomeToken: "MYOCARDIAL_INJURY", ModifierToken: sptr("HYPERTENSION"), Measure: MeasureOR, Value: 1.3, CILow: fptr(1.1), CIHigh: fptr(1.5), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.9},

		// ACUTE_KIDNEY_INJURY.
		{PMID: "25091545", OutcomeToken: "ACUTE_KIDNEY_INJURY", Measure: MeasureIncidence, Value: 0.18, Adjusted: false, Population: PopAdult, ContextLabel: "ADULT×CARDIAC×*", NTotal: iptr(3500), NEvents: iptr(630), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "23392233", OutcomeToken: "ACUTE_KIDNEY_INJURY", Measure: MeasureIncidence, Value: 0.065, Adjusted: false, Population: PopAdult, ContextLabel: "ADULT×*×*", NTotal: iptr(2964), NEvents: iptr(193), QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "25091545", OutcomeToken: "ACUTE_KIDNEY_INJURY", ModifierToken: sptr("CKD"), Measure: MeasureOR, Value: 3.1, CILow: fptr(2.3), CIHigh: fptr(4.2), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×CARDIAC×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "23392233", OutcomeToken: "ACUTE_KIDNEY_INJURY", ModifierToken: sptr("CKD"), Measure: MeasureOR, Value: 2.8, CILow: fptr(2.0), CIHigh: fptr(3.9), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.95},
		{PMID: "25091545", OutcomeToken: "ACUTE_KIDNEY_INJURY", ModifierToken: sptr("DIABETES"), Measure: MeasureOR, Value: 1.6, CILow: fptr(1.2), CIHigh: fptr(2.1), Adjusted: true, Population: PopAdult, ContextLabel: "ADULT×CARDIAC×*", QualityWeight: 1.0, ExtractionConfidence: 0.9},

		// EMERGENCE_DELIRIUM, single pediatric sevoflurane cohort.
		{PMID: "28358617", OutcomeToken: "EMERGENCE_DELIRIUM", Measure: MeasureIncidence, Value: 0.12, Adjusted: false, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", NTotal: iptr(521), NEvents: iptr(63), QualityWeight: 1.0, ExtractionConfidence: 0.9},
		{PMID: "28358617", OutcomeToken: "EMERGENCE_DELIRIUM", ModifierToken: sptr("AGE_1_5"), Measure: MeasureOR, Value: 1.6, CILow: fptr(1.1), CIHigh: fptr(2.3), Adjusted: true, Population: PopPediatric, ContextLabel: "PEDIATRIC×*×*", QualityWeight: 1.0, ExtractionConfidence: 0.9},
	}
}

func sptr(s string) *string   { return &s }
func fptr(f float64) *float64 { return &f }
func iptr(i int) *int         { return &i }
