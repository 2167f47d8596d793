package ontology

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Service owns the ontology: persistence plus the shared in-memory index.
// The index is rebuilt wholesale and swapped atomically, so readers never
// observe a partially loaded vocabulary.
type Service struct {
	repo Repository
	log  zerolog.Logger
	idx  atomic.Pointer[Index]
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "ontology").Logger()}
}

// Load builds the index from persisted terms, falling back to the built-in
// seed when the store is empty (first boot, tests).
func (s *Service) Load(ctx context.Context) (*Index, error) {
	terms, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ontology terms: %w", err)
	}
	if len(terms) == 0 {
		terms = SeedTerms()
		s.log.Info().Int("terms", len(terms)).Msg("ontology store empty, using built-in seed")
	}
	idx, err := NewIndex(terms)
	if err != nil {
		return nil, err
	}
	s.idx.Store(idx)
	s.log.Info().Int("terms", idx.Len()).Msg("ontology index loaded")
	return idx, nil
}

// Index returns the current index. Callers keep the reference for the
// duration of a request; a concurrent Load never invalidates it.
func (s *Service) Index() *Index {
	return s.idx.Load()
}

// Seed writes the built-in vocabulary (plus an optional YAML overlay) to the
// store and reloads the index.
func (s *Service) Seed(ctx context.Context, overlayPath string) (int, error) {
	terms := SeedTerms()
	if overlayPath != "" {
		overlay, err := LoadTermsFile(overlayPath)
		if err != nil {
			return 0, err
		}
		terms = MergeTerms(terms, overlay)
		s.log.Info().Str("path", overlayPath).Int("overlay_terms", len(overlay)).Msg("applied ontology overlay")
	}
	if _, err := NewIndex(terms); err != nil {
		return 0, fmt.Errorf("validating seed terms: %w", err)
	}
	if err := s.repo.ReplaceAll(ctx, terms); err != nil {
		return 0, fmt.Errorf("seeding ontology: %w", err)
	}
	if _, err := s.Load(ctx); err != nil {
		return 0, err
	}
	return len(terms), nil
}

// CreateTerm validates and stores a single term, then reloads the index.
func (s *Service) CreateTerm(ctx context.Context, term *Term) error {
	if term.Token == "" {
		return fmt.Errorf("token is required")
	}
	if !validTermTypes[term.Type] {
		return fmt.Errorf("invalid term type %q", term.Type)
	}
	if term.PlainLabel == "" {
		return fmt.Errorf("plain_label is required")
	}
	if term.SeverityWeight < 0 {
		return fmt.Errorf("severity_weight must be >= 0")
	}
	if err := s.repo.Upsert(ctx, term); err != nil {
		return err
	}
	_, err := s.Load(ctx)
	return err
}

func (s *Service) GetTerm(ctx context.Context, token string) (*Term, error) {
	return s.repo.GetByToken(ctx, token)
}

func (s *Service) ListTerms(ctx context.Context, termType string, limit, offset int) ([]*Term, int, error) {
	if termType != "" && !validTermTypes[termType] {
		return nil, 0, fmt.Errorf("invalid term type %q", termType)
	}
	return s.repo.List(ctx, termType, limit, offset)
}
