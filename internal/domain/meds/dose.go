package meds

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/periop/periop/internal/domain/extract"
)

// Dose rule placeholders.
const (
	placeholderWeight = "{weight_kg}"
	placeholderAge    = "{age_years}"
)

var (
	perKgRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(?:\s*-\s*(\d+(?:\.\d+)?))?\s*(mg|mcg|mL)/kg`)
	limitRe = regexp.MustCompile(`(maximum|minimum)\s+(\d+(?:\.\d+)?)\s*(mg|mcg|mL)`)
	doseRe  = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:-(\d+(?:\.\d+)?))? (mg|mcg)$`)
	concRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mg|mcg)/(?:(\d+(?:\.\d+)?)\s*)?mL`)
)

// resolveDose substitutes demographic placeholders into a dose rule. When
// the rule needs a weight that is unknown, the placeholder survives and
// missingWeight is set so the caller can attach a warning.
func resolveDose(rule string, demo extract.Demographics) (resolved string, missingWeight bool) {
	resolved = rule
	if strings.Contains(resolved, placeholderWeight) {
		if demo.WeightKg == nil {
			missingWeight = true
		} else {
			resolved = strings.ReplaceAll(resolved, placeholderWeight, formatNum(*demo.WeightKg))
		}
	}
	if strings.Contains(resolved, placeholderAge) && demo.AgeYears != nil {
		resolved = strings.ReplaceAll(resolved, placeholderAge, formatNum(*demo.AgeYears))
	}
	return resolved, missingWeight
}

// computeDose derives the absolute dose from the first per-kg expression in
// a rule, honoring maximum/minimum clauses in the same unit. It returns ""
// when the rule has no per-kg expression or the weight is unknown.
func computeDose(rule string, weightKg *float64) string {
	if weightKg == nil {
		return ""
	}
	m := perKgRe.FindStringSubmatch(rule)
	if m == nil {
		return ""
	}
	unit := m[3]
	lo, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ""
	}
	lo *= *weightKg
	hi := lo
	if m[2] != "" {
		h, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return ""
		}
		hi = h * *weightKg
	}

	for _, lim := range limitRe.FindAllStringSubmatch(rule, -1) {
		if lim[3] != unit {
			continue
		}
		bound, err := strconv.ParseFloat(lim[2], 64)
		if err != nil {
			continue
		}
		switch lim[1] {
		case "maximum":
			if lo > bound {
				lo = bound
			}
			if hi > bound {
				hi = bound
			}
		case "minimum":
			if lo < bound {
				lo = bound
			}
			if hi < bound {
				hi = bound
			}
		}
	}

	lo, hi = round2(lo), round2(hi)
	if lo == hi {
		return fmt.Sprintf("%s %s", formatNum(lo), unit)
	}
	return fmt.Sprintf("%s-%s %s", formatNum(lo), formatNum(hi), unit)
}

// computeVolume converts a computed mg/mcg dose into the millilitres to
// draw from the given vial concentration, rounded to the 0.1 mL a syringe
// can measure. It returns "" when either string does not parse.
func computeVolume(computedDose, concentration string) string {
	dm := doseRe.FindStringSubmatch(computedDose)
	cm := concRe.FindStringSubmatch(concentration)
	if dm == nil || cm == nil {
		return ""
	}
	amount, err := strconv.ParseFloat(cm[1], 64)
	if err != nil || amount <= 0 {
		return ""
	}
	perML := amount
	if cm[3] != "" {
		vial, err := strconv.ParseFloat(cm[3], 64)
		if err != nil || vial <= 0 {
			return ""
		}
		perML = amount / vial
	}

	scale := 1.0
	switch {
	case dm[3] == "mcg" && cm[2] == "mg":
		scale = 1.0 / 1000
	case dm[3] == "mg" && cm[2] == "mcg":
		scale = 1000
	}

	lo, err := strconv.ParseFloat(dm[1], 64)
	if err != nil {
		return ""
	}
	lo = roundTenth(lo * scale / perML)
	hi := lo
	if dm[2] != "" {
		h, err := strconv.ParseFloat(dm[2], 64)
		if err != nil {
			return ""
		}
		hi = roundTenth(h * scale / perML)
	}
	if lo == hi {
		return fmt.Sprintf("%s mL", formatNum(lo))
	}
	return fmt.Sprintf("%s-%s mL", formatNum(lo), formatNum(hi))
}

// round2 keeps computed doses to centesimal precision so binary float
// artifacts never reach the output.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
