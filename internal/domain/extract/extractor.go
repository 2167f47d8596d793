package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/periop/periop/internal/domain/ontology"
)

// MinConfidence is the emission threshold: factors scoring below it (after
// negation and temporal penalties) are not reported at all.
const MinConfidence = 0.5

const (
	negationPenalty = 0.1
	noTemporalCue   = 0.6
	negationWindow  = 5
	temporalWindow  = 10
)

// abbreviations expands common HPI shorthand token-wise. Expanded tokens
// keep the source token's span so evidence_text always points at the raw
// input.
var abbreviations = map[string][]string{
	"htn":  {"hypertension"},
	"dm":   {"diabetes", "mellitus"},
	"sob":  {"dyspnea"},
	"osa":  {"obstructive", "sleep", "apnea"},
	"uri":  {"upper", "respiratory", "infection"},
	"cad":  {"coronary", "artery", "disease"},
	"ckd":  {"chronic", "kidney", "disease"},
	"chf":  {"congestive", "heart", "failure"},
	"mh":   {"malignant", "hyperthermia"},
	"gerd": {"gastroesophageal", "reflux", "disease"},
	"cabg": {"coronary", "artery", "bypass", "graft"},
	"t&a":  {"tonsillectomy", "and", "adenoidectomy"},
	"hx":   {"history"},
	"sx":   {"surgery"},
}

var negationCues = map[string]bool{
	"no": true, "denies": true, "denied": true, "without": true,
}

var temporalUnitDays = map[string]float64{
	"day": 1, "days": 1,
	"week": 7, "weeks": 7,
	"month": 30, "months": 30,
	"year": 365, "years": 365,
}

var (
	ageRe      = regexp.MustCompile(`(\d+)\s*(years?|yrs?|y/?o|months?|mos?)\b`)
	weightRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kg|kilograms?)\b`)
	emergentRe = regexp.MustCompile(`\b(emergent|emergency|stat)\b`)
	urgentRe   = regexp.MustCompile(`\b(urgent|asap)\b`)
)

// Extractor maps free HPI text onto demographics and a confidence-weighted
// factor set. It holds only the shared read-only ontology index and is safe
// for concurrent use.
type Extractor struct {
	idx *ontology.Index
}

func NewExtractor(idx *ontology.Index) *Extractor { return &Extractor{idx: idx} }

// Extract runs the extraction passes over one HPI string. Empty input is
// not an error: it yields UNKNOWN demographics and no factors.
func (e *Extractor) Extract(text string) (Demographics, []Factor) {
	demo := Demographics{AgeBand: BandUnknown, Urgency: UrgencyElective}
	if strings.TrimSpace(text) == "" {
		return demo, nil
	}

	toks := expandTokens(tokenize(text))
	working := workingCopy(text)

	e.fillDemographics(&demo, working, toks)

	factors := e.collapse(text, toks, e.matchFactors(toks))
	factors = append(factors, e.derivedFactors(demo)...)
	sort.Slice(factors, func(i, j int) bool { return factors[i].Token < factors[j].Token })
	return demo, factors
}

// ── Tokenization ──

type token struct {
	text  string
	start int
	end   int
}

// tokenize splits raw text into lowercase tokens with byte spans into the
// original input. Letters, digits and '&' stay inside tokens ("t&a");
// a '.' survives only between digits ("2.5"); everything else separates.
func tokenize(text string) []token {
	var toks []token
	var b strings.Builder
	start := -1
	lastDigit := false

	flush := func(end int) {
		if start >= 0 {
			toks = append(toks, token{text: b.String(), start: start, end: end})
			b.Reset()
			start = -1
		}
	}
	for i, r := range text {
		keep := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&'
		if r == '.' && lastDigit && nextRuneIsDigit(text, i) {
			keep = true
		}
		if keep {
			if start < 0 {
				start = i
			}
			b.WriteRune(unicode.ToLower(r))
			lastDigit = unicode.IsDigit(r)
		} else {
			flush(i)
			lastDigit = false
		}
	}
	flush(len(text))
	return toks
}

func nextRuneIsDigit(text string, dotIndex int) bool {
	r, _ := utf8.DecodeRuneInString(text[dotIndex+1:])
	return unicode.IsDigit(r)
}

func expandTokens(toks []token) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if exp, ok := abbreviations[t.text]; ok {
			for _, w := range exp {
				out = append(out, token{text: w, start: t.start, end: t.end})
			}
			continue
		}
		out = append(out, t)
	}
	return out
}

// workingCopy is the lowercased string the demographic regexes run against.
// Hyphens become spaces so "68-year-old" parses; slashes stay so "y/o" does.
func workingCopy(text string) string {
	s := strings.ToLower(text)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ── Demographics ──

func (e *Extractor) fillDemographics(d *Demographics, working string, toks []token) {
	if m := ageRe.FindStringSubmatch(working); m != nil {
		n, err := strconv.Atoi(m[1])
		years := float64(n)
		if strings.HasPrefix(m[2], "mo") {
			years = float64(n) / 12.0
		}
		if err == nil && years > 0 && years <= 120 {
			d.AgeYears = &years
			d.AgeBand = bandFor(years)
		}
	} else {
		// Textual fallback when no numeric age is present.
		for _, t := range toks {
			if t.text == "adult" {
				d.AgeBand = Band18To64
				break
			}
			if t.text == "elderly" {
				d.AgeBand = BandGE65
				break
			}
		}
	}

	if m := weightRe.FindStringSubmatch(working); m != nil {
		if w, err := strconv.ParseFloat(m[1], 64); err == nil && w > 0 && w < 500 {
			d.WeightKg = &w
		}
	}

	d.Sex = sexOf(toks)

	if proc := e.firstProcedure(toks); proc != "" {
		d.Procedure = proc
	}

	switch {
	case emergentRe.MatchString(working):
		d.Urgency = UrgencyEmergent
	case urgentRe.MatchString(working):
		d.Urgency = UrgencyUrgent
	default:
		d.Urgency = UrgencyElective
	}
}

func bandFor(years float64) string {
	switch {
	case years < 1:
		return BandLT1
	case years < 6:
		return Band1To5
	case years < 13:
		return Band6To12
	case years < 18:
		return Band13To17
	case years < 65:
		return Band18To64
	default:
		return BandGE65
	}
}

func sexOf(toks []token) string {
	for i, t := range toks {
		switch t.text {
		case "male", "man", "boy":
			return "MALE"
		case "female", "woman", "girl":
			return "FEMALE"
		case "m":
			if i+1 < len(toks) && toks[i+1].text == "o" {
				return "MALE"
			}
		case "f":
			if i+1 < len(toks) && toks[i+1].text == "o" {
				return "FEMALE"
			}
		}
	}
	return ""
}

// firstProcedure returns the leftmost PROCEDURE match; at equal positions
// the longest phrase wins because entries are sorted longest first.
func (e *Extractor) firstProcedure(toks []token) string {
	entries := e.idx.ProcedureEntries()
	for i := range toks {
		for _, en := range entries {
			if phraseAt(toks, i, en.Phrase) {
				return en.Term.Token
			}
		}
	}
	return ""
}

// ── Factor extraction ──

type factorMatch struct {
	entry ontology.MatchEntry
	pos   int
	n     int
}

func (e *Extractor) matchFactors(toks []token) []factorMatch {
	var out []factorMatch
	entries := e.idx.FactorEntries()
	for i := range toks {
		for _, en := range entries {
			if phraseAt(toks, i, en.Phrase) {
				out = append(out, factorMatch{entry: en, pos: i, n: len(en.Phrase)})
			}
		}
	}
	return out
}

func phraseAt(toks []token, i int, phrase []string) bool {
	if i+len(phrase) > len(toks) {
		return false
	}
	for j, w := range phrase {
		if toks[i+j].text != w {
			return false
		}
	}
	return true
}

// collapse scores every match and deduplicates by token, keeping the
// highest confidence and all spans. Factors below MinConfidence drop out.
func (e *Extractor) collapse(text string, toks []token, matches []factorMatch) []Factor {
	byToken := map[string]*Factor{}
	for _, m := range matches {
		conf, ok := e.score(toks, m)
		if !ok {
			continue
		}
		term := m.entry.Term
		span := Span{
			Start: toks[m.pos].start,
			End:   toks[m.pos+m.n-1].end,
			Text:  text[toks[m.pos].start:toks[m.pos+m.n-1].end],
		}
		f, seen := byToken[term.Token]
		if !seen {
			byToken[term.Token] = &Factor{
				Token:          term.Token,
				PlainLabel:     term.PlainLabel,
				Confidence:     conf,
				Spans:          []Span{span},
				Category:       term.Category,
				SeverityWeight: term.SeverityWeight,
			}
			continue
		}
		if conf > f.Confidence {
			f.Confidence = conf
		}
		f.Spans = append(f.Spans, span)
	}

	var out []Factor
	for _, f := range byToken {
		if f.Confidence < MinConfidence {
			continue
		}
		sort.Slice(f.Spans, func(i, j int) bool { return f.Spans[i].Start < f.Spans[j].Start })
		out = append(out, *f)
	}
	return out
}

// score applies the negation and temporal passes to one match. The second
// return is false when the factor must be dropped outright (explicit timing
// outside the term's window).
func (e *Extractor) score(toks []token, m factorMatch) (float64, bool) {
	conf := m.entry.Confidence
	if negatedBefore(toks, m.pos) {
		conf *= negationPenalty
	}
	if m.entry.Term.TimeWindowed() {
		mod, drop := temporalModifier(toks, m.pos, m.n, float64(m.entry.Term.TimeWindowDays))
		if drop {
			return 0, false
		}
		conf *= mod
	}
	return conf, true
}

func negatedBefore(toks []token, pos int) bool {
	lo := pos - negationWindow
	if lo < 0 {
		lo = 0
	}
	for j := lo; j < pos; j++ {
		if negationCues[toks[j].text] {
			return true
		}
		if toks[j].text == "ruled" && j+1 < pos && toks[j+1].text == "out" {
			return true
		}
	}
	return false
}

// temporalModifier inspects the tokens around a time-windowed match. An
// explicit interval beyond the window drops the factor; a cue inside the
// window keeps full confidence; no cue at all costs the noTemporalCue
// penalty.
func temporalModifier(toks []token, pos, n int, windowDays float64) (float64, bool) {
	lo := pos - temporalWindow
	if lo < 0 {
		lo = 0
	}
	hi := pos + n - 1 + temporalWindow
	if hi > len(toks)-1 {
		hi = len(toks) - 1
	}

	cueFound := false
	for j := lo; j <= hi; j++ {
		if j >= pos && j < pos+n {
			continue
		}
		switch toks[j].text {
		case "recent", "recently", "today":
			cueFound = true
			continue
		case "yesterday":
			if 1 > windowDays {
				return 0, true
			}
			cueFound = true
			continue
		case "last":
			if j+1 <= hi {
				if d, ok := temporalUnitDays[toks[j+1].text]; ok {
					if d > windowDays {
						return 0, true
					}
					cueFound = true
				}
			}
			continue
		}
		// Numeric interval: "<N> <unit> ago|prior".
		nVal, err := strconv.Atoi(toks[j].text)
		if err != nil || j+2 > hi {
			continue
		}
		unit, ok := temporalUnitDays[toks[j+1].text]
		if !ok {
			continue
		}
		if toks[j+2].text != "ago" && toks[j+2].text != "prior" {
			continue
		}
		if float64(nVal)*unit > windowDays {
			return 0, true
		}
		cueFound = true
	}

	if cueFound {
		return 1.0, false
	}
	return noTemporalCue, false
}

// ── Derived factors ──

func (e *Extractor) derivedFactors(d Demographics) []Factor {
	var out []Factor
	if d.AgeBand != BandUnknown {
		out = append(out, e.demographicFactor(d.AgeBand))
	}
	switch d.Sex {
	case "MALE":
		out = append(out, e.demographicFactor(SexMale))
	case "FEMALE":
		out = append(out, e.demographicFactor(SexFemale))
	}
	return out
}

func (e *Extractor) demographicFactor(tok string) Factor {
	f := Factor{Token: tok, PlainLabel: strings.ToLower(tok), Confidence: 1.0, Derived: true}
	if term, ok := e.idx.Term(tok); ok {
		f.PlainLabel = term.PlainLabel
		f.Category = term.Category
		f.SeverityWeight = term.SeverityWeight
	}
	return f
}
