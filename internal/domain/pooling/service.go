package pooling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/evidence"
)

var (
	ErrNoCurrentVersion = errors.New("no evidence version has been published")
	ErrVersionNotFound  = errors.New("evidence version not found")
)

// Service runs pooling passes and serves pinned snapshots. The registry it
// owns is the single source for "current" across the process.
type Service struct {
	evidence evidence.Repository
	repo     Repository
	registry *Registry
	clock    func() time.Time
	log      zerolog.Logger
}

func NewService(evRepo evidence.Repository, repo Repository, log zerolog.Logger) *Service {
	return &Service{
		evidence: evRepo,
		repo:     repo,
		registry: NewRegistry(),
		clock:    time.Now,
		log:      log.With().Str("component", "pooling").Logger(),
	}
}

// Run executes a full pooling pass over the evidence base, persists the new
// version and publishes its snapshot as current. In-flight requests keep the
// snapshot they already resolved.
func (s *Service) Run(ctx context.Context) (*VersionInfo, error) {
	papers, err := s.evidence.ListAllPapers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	estimates, err := s.evidence.ListAllEstimates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load estimates: %w", err)
	}
	existing, err := s.repo.ListVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	labels := make([]string, len(existing))
	for i, v := range existing {
		labels[i] = v.Version
	}

	now := s.clock().UTC()
	version := NextVersion(now, labels)
	baselines, effects := Build(version, now, papers, estimates, s.log)

	info := &VersionInfo{
		Version:      version,
		CreatedAt:    now,
		BaselineRows: len(baselines),
		EffectRows:   len(effects),
	}
	if err := s.repo.SaveVersion(ctx, info, baselines, effects); err != nil {
		return nil, fmt.Errorf("save version %s: %w", version, err)
	}
	snap, err := NewSnapshot(version, now, baselines, effects)
	if err != nil {
		return nil, fmt.Errorf("index version %s: %w", version, err)
	}
	s.registry.Publish(snap)
	s.log.Info().Str("version", version).
		Int("papers", len(papers)).Int("estimates", len(estimates)).
		Int("baselines", len(baselines)).Int("effects", len(effects)).
		Msg("pooling run published")
	return info, nil
}

// LoadLatest restores the most recent stored version into the registry at
// boot. It reports false when no pooling run has been stored yet.
func (s *Service) LoadLatest(ctx context.Context) (bool, error) {
	latest, err := s.repo.LatestVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("latest version: %w", err)
	}
	if latest == nil {
		return false, nil
	}
	_, baselines, effects, err := s.repo.LoadVersion(ctx, latest.Version)
	if err != nil {
		return false, fmt.Errorf("load version %s: %w", latest.Version, err)
	}
	snap, err := NewSnapshot(latest.Version, latest.CreatedAt, baselines, effects)
	if err != nil {
		return false, fmt.Errorf("index version %s: %w", latest.Version, err)
	}
	s.registry.Publish(snap)
	s.log.Info().Str("version", latest.Version).Msg("evidence version restored")
	return true, nil
}

// Snapshot resolves a version label for a request. Empty and "current"
// resolve to the published snapshot; a pinned label is served from memory or
// lazily loaded from storage.
func (s *Service) Snapshot(ctx context.Context, version string) (*Snapshot, error) {
	if snap, ok := s.registry.Get(version); ok {
		return snap, nil
	}
	if version == "" || version == "current" {
		return nil, ErrNoCurrentVersion
	}
	info, baselines, effects, err := s.repo.LoadVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(version, info.CreatedAt, baselines, effects)
	if err != nil {
		return nil, fmt.Errorf("index version %s: %w", version, err)
	}
	s.registry.Add(snap)
	return snap, nil
}

// Current returns the published snapshot, or nil before the first run.
func (s *Service) Current() *Snapshot { return s.registry.Current() }

// Versions lists stored pooling runs, newest first.
func (s *Service) Versions(ctx context.Context) ([]*VersionInfo, error) {
	return s.repo.ListVersions(ctx)
}
