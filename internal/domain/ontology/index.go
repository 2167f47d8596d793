package ontology

import (
	"fmt"
	"sort"
	"strings"
)

// Base synonym confidences. A match on the canonical plain label is worth
// more than a listed synonym, which is worth more than a weak synonym
// (short abbreviations and low-precision phrases).
const (
	ConfidenceCanonical = 0.95
	ConfidenceSynonym   = 0.85
	ConfidenceWeak      = 0.70
)

// MatchEntry is one matchable phrase: the owning term, the phrase split
// into lowercase tokens, and the base confidence of a match.
type MatchEntry struct {
	Term       *Term
	Phrase     []string
	Confidence float64
}

// Index is the read-only lookup structure built once per ontology load and
// shared by all requests. It is never mutated after construction.
type Index struct {
	terms       map[string]*Term
	factors     []MatchEntry
	procedures  []MatchEntry
	medications map[string]*Term
	outcomes    []string
}

// NewIndex validates the term set and builds the synonym index. Tokens must
// be unique and every term must carry a known type; synonyms are lowercased
// here so matching never depends on input casing.
func NewIndex(terms []Term) (*Index, error) {
	idx := &Index{
		terms:       make(map[string]*Term, len(terms)),
		medications: make(map[string]*Term),
	}
	for i := range terms {
		t := terms[i]
		if t.Token == "" {
			return nil, fmt.Errorf("ontology term %d: token is required", i)
		}
		if !validTermTypes[t.Type] {
			return nil, fmt.Errorf("ontology term %s: unknown type %q", t.Token, t.Type)
		}
		if _, dup := idx.terms[t.Token]; dup {
			return nil, fmt.Errorf("ontology term %s: duplicate token", t.Token)
		}
		t.PlainLabel = strings.ToLower(t.PlainLabel)
		for j, s := range t.Synonyms {
			t.Synonyms[j] = strings.ToLower(s)
		}
		for j, s := range t.WeakSynonyms {
			t.WeakSynonyms[j] = strings.ToLower(s)
		}
		idx.terms[t.Token] = &t

		switch t.Type {
		case TypeRiskFactor:
			idx.factors = append(idx.factors, entriesFor(idx.terms[t.Token])...)
		case TypeProcedure:
			idx.procedures = append(idx.procedures, entriesFor(idx.terms[t.Token])...)
		case TypeMedication:
			idx.medications[t.Token] = idx.terms[t.Token]
		case TypeOutcome:
			idx.outcomes = append(idx.outcomes, t.Token)
		}
	}
	for _, t := range idx.terms {
		if t.Parent != nil {
			if _, ok := idx.terms[*t.Parent]; !ok {
				return nil, fmt.Errorf("ontology term %s: unknown parent %q", t.Token, *t.Parent)
			}
		}
	}
	sortEntries(idx.factors)
	sortEntries(idx.procedures)
	sort.Strings(idx.outcomes)
	return idx, nil
}

func entriesFor(t *Term) []MatchEntry {
	var out []MatchEntry
	if t.PlainLabel != "" {
		out = append(out, MatchEntry{Term: t, Phrase: strings.Fields(t.PlainLabel), Confidence: ConfidenceCanonical})
	}
	for _, s := range t.Synonyms {
		out = append(out, MatchEntry{Term: t, Phrase: strings.Fields(s), Confidence: ConfidenceSynonym})
	}
	for _, s := range t.WeakSynonyms {
		out = append(out, MatchEntry{Term: t, Phrase: strings.Fields(s), Confidence: ConfidenceWeak})
	}
	return out
}

// sortEntries orders longest phrase first so multiword synonyms win over
// their single-word prefixes at the same position; ties are lexical so
// extraction order is stable run to run.
func sortEntries(entries []MatchEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Phrase) != len(entries[j].Phrase) {
			return len(entries[i].Phrase) > len(entries[j].Phrase)
		}
		pi, pj := strings.Join(entries[i].Phrase, " "), strings.Join(entries[j].Phrase, " ")
		if pi != pj {
			return pi < pj
		}
		return entries[i].Term.Token < entries[j].Term.Token
	})
}

// Term returns the term for a token.
func (idx *Index) Term(token string) (*Term, bool) {
	t, ok := idx.terms[token]
	return t, ok
}

// FactorEntries returns the matchable RISK_FACTOR phrases.
func (idx *Index) FactorEntries() []MatchEntry { return idx.factors }

// ProcedureEntries returns the matchable PROCEDURE phrases.
func (idx *Index) ProcedureEntries() []MatchEntry { return idx.procedures }

// Medication returns the MEDICATION term for a token.
func (idx *Index) Medication(token string) (*Term, bool) {
	t, ok := idx.medications[token]
	return t, ok
}

// OutcomeTokens returns all OUTCOME tokens in sorted order.
func (idx *Index) OutcomeTokens() []string {
	out := make([]string, len(idx.outcomes))
	copy(out, idx.outcomes)
	return out
}

// Len returns the number of indexed terms.
func (idx *Index) Len() int { return len(idx.terms) }
