// Package analysis orchestrates one analyze call: extract the HPI, score
// every requested outcome against a pinned evidence snapshot, derive the
// medication plan, and append the session to the audit log.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/domain/extract"
	"github.com/periop/periop/internal/domain/meds"
	"github.com/periop/periop/internal/domain/ontology"
	"github.com/periop/periop/internal/domain/pooling"
	"github.com/periop/periop/internal/domain/risk"
)

// DefaultBudget bounds extraction + risk + medications per request.
const DefaultBudget = 5 * time.Second

// SnapshotSource resolves an evidence version label to its immutable
// snapshot. *pooling.Service satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, version string) (*pooling.Snapshot, error)
}

// SessionStore appends analysis sessions to the audit log. Appends must
// never mutate earlier records.
type SessionStore interface {
	Append(ctx context.Context, session *Session) error
	Recent(ctx context.Context, limit int) ([]*Session, error)
}

// Service wires the subsystems behind analyze(). It owns no state beyond
// its collaborators; every call resolves its own snapshot reference, so a
// version flip mid-request never affects in-flight work.
type Service struct {
	idx       *ontology.Index
	extractor *extract.Extractor
	snapshots SnapshotSource
	rules     []meds.Rule
	sessions  SessionStore
	budget    time.Duration
	newID     func() string
	clock     func() time.Time
	log       zerolog.Logger
}

func NewService(idx *ontology.Index, snapshots SnapshotSource, rules []meds.Rule, sessions SessionStore, budget time.Duration, log zerolog.Logger) *Service {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Service{
		idx:       idx,
		extractor: extract.NewExtractor(idx),
		snapshots: snapshots,
		rules:     rules,
		sessions:  sessions,
		budget:    budget,
		newID:     uuid.NewString,
		clock:     time.Now,
		log:       log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze runs the full pipeline for one HPI. INVALID_INPUT and
// VERSION_NOT_FOUND are the only error returns; every other degradation is
// carried in-band on the result.
func (s *Service) Analyze(ctx context.Context, hpiText string, opts Options) (*Result, error) {
	start := s.clock()

	if strings.TrimSpace(hpiText) == "" {
		return nil, fmt.Errorf("%w: hpi_text is empty", ErrInvalidInput)
	}
	if err := s.validateOptions(opts); err != nil {
		return nil, err
	}

	version := opts.EvidenceVersion
	if version == "" {
		version = "current"
	}
	snap, err := s.snapshots.Snapshot(ctx, version)
	if err != nil {
		if errors.Is(err, pooling.ErrVersionNotFound) || errors.Is(err, pooling.ErrNoCurrentVersion) {
			return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
		}
		return nil, fmt.Errorf("resolve evidence version %s: %w", version, err)
	}

	demo, factors := s.extractor.Extract(hpiText)
	var warnings []string
	if len(factors) == 0 {
		warnings = append(warnings, "EXTRACTION_DEGRADED: no factors extracted")
	}

	calc := risk.NewCalculator(snap, s.idx, s.log)
	riskCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	assessments, err := calc.Assess(riskCtx, risk.Request{
		Demographics:    demo,
		Factors:         factors,
		Outcomes:        opts.Outcomes,
		ContextOverride: opts.ContextOverride,
	})
	timedOut := false
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; partial results are discarded.
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("risk assessment: %w", err)
		}
		timedOut = true
		warnings = append(warnings, "TIMEOUT: analysis budget exceeded, results truncated")
		s.log.Warn().Str("version", snap.Version).Dur("budget", s.budget).
			Int("completed_outcomes", len(assessments)).Msg("analysis budget exceeded")
	}

	var recommendations *meds.RecommendationSet
	if opts.includeMedications() && !timedOut {
		recommendations = meds.NewDecider(s.idx, s.rules, s.log).Decide(demo, factors, assessments)
	}

	status := StatusOK
	if timedOut {
		status = StatusPartialSuccess
	}
	for _, a := range assessments {
		if a.NoEvidence {
			status = StatusPartialSuccess
			break
		}
	}

	result := &Result{
		SessionID:       s.newID(),
		Demographics:    demo,
		Factors:         factors,
		Risks:           assessments,
		Medications:     recommendations,
		EvidenceVersion: snap.Version,
		Status:          status,
		Warnings:        warnings,
	}
	s.audit(ctx, hpiText, result, s.clock().Sub(start))
	return result, nil
}

// validateOptions rejects malformed options up front so the taxonomy's
// INVALID_INPUT covers them; a well-formed outcome that simply lacks
// evidence stays in-band as no_evidence.
func (s *Service) validateOptions(opts Options) error {
	switch opts.Mode {
	case "", ModeModelBased:
	case ModeLiteratureLive:
		return fmt.Errorf("%w: mode LITERATURE_LIVE is not supported", ErrInvalidInput)
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, opts.Mode)
	}
	if opts.ContextOverride != "" {
		if _, err := evidence.ParseContext(opts.ContextOverride); err != nil {
			return fmt.Errorf("%w: context_override: %v", ErrInvalidInput, err)
		}
	}
	for _, tok := range opts.Outcomes {
		term, ok := s.idx.Term(tok)
		if !ok || term.Type != ontology.TypeOutcome {
			return fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, tok)
		}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, hpiText string, result *Result, took time.Duration) {
	if s.sessions == nil {
		return
	}
	session := &Session{
		ID:              result.SessionID,
		CreatedAt:       s.clock().UTC(),
		HPIText:         hpiText,
		EvidenceVersion: result.EvidenceVersion,
		Status:          result.Status,
		Warnings:        result.Warnings,
		DurationMS:      took.Milliseconds(),
		Result:          result,
	}
	if err := s.sessions.Append(ctx, session); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("audit append failed")
		return
	}
	s.log.Info().Str("session_id", session.ID).Str("status", result.Status).
		Str("version", result.EvidenceVersion).Int64("duration_ms", session.DurationMS).
		Msg("analysis session recorded")
}

// Sessions returns the latest audit records, newest first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	if s.sessions == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	sessions, err := s.sessions.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}
