package analysis

import (
	"errors"
	"time"

	"github.com/periop/periop/internal/domain/extract"
	"github.com/periop/periop/internal/domain/meds"
	"github.com/periop/periop/internal/domain/risk"
)

// Analysis modes. MODEL_BASED scores against the pooled evidence snapshot;
// LITERATURE_LIVE is reserved for a live literature source and rejected
// until one exists.
const (
	ModeModelBased     = "MODEL_BASED"
	ModeLiteratureLive = "LITERATURE_LIVE"
)

// Result statuses. Both are HTTP 200 at the boundary; PARTIAL_SUCCESS means
// at least one requested outcome lacked pooled evidence or the budget
// truncated the calculation.
const (
	StatusOK             = "OK"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
)

var (
	ErrInvalidInput    = errors.New("invalid analysis input")
	ErrVersionNotFound = errors.New("evidence version not found")
)

// Options tune one analyze call. Zero values mean: current evidence
// version, context from demographics, MODEL_BASED, medications included,
// all ontology outcomes.
type Options struct {
	EvidenceVersion    string   `json:"evidence_version,omitempty"`
	ContextOverride    string   `json:"context_override,omitempty"`
	Mode               string   `json:"mode,omitempty"`
	IncludeMedications *bool    `json:"include_medications,omitempty"`
	Outcomes           []string `json:"outcomes,omitempty"`
}

func (o Options) includeMedications() bool {
	return o.IncludeMedications == nil || *o.IncludeMedications
}

// Result is the full output of one analysis session.
type Result struct {
	SessionID       string                  `json:"session_id"`
	Demographics    extract.Demographics    `json:"demographics"`
	Factors         []extract.Factor        `json:"factors"`
	Risks           []*risk.Assessment      `json:"risks"`
	Medications     *meds.RecommendationSet `json:"medications,omitempty"`
	EvidenceVersion string                  `json:"evidence_version"`
	Status          string                  `json:"status"`
	Warnings        []string                `json:"warnings,omitempty"`
}

// Session is the append-only audit record of one analyze call. Warnings
// double as the request-scoped degradation list.
type Session struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	HPIText         string    `json:"hpi_text"`
	EvidenceVersion string    `json:"evidence_version"`
	Status          string    `json:"status"`
	Warnings        []string  `json:"warnings,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	Result          *Result   `json:"result,omitempty"`
}
