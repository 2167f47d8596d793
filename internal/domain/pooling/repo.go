package pooling

import (
	"context"
	"time"

	"github.com/periop/periop/internal/domain/evidence"
)

// VersionInfo summarizes one pooling run as stored in evidence_versions.
type VersionInfo struct {
	Version      string    `db:"version" json:"version"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	BaselineRows int       `db:"baseline_rows" json:"baseline_rows"`
	EffectRows   int       `db:"effect_rows" json:"effect_rows"`
}

// Repository persists pooled tables. A version and all of its rows are
// written in one transaction; rows are immutable once the version exists.
// LatestVersion returns (nil, nil) before the first pooling run.
type Repository interface {
	SaveVersion(ctx context.Context, info *VersionInfo, baselines []*evidence.PooledBaseline, effects []*evidence.PooledEffect) error
	ListVersions(ctx context.Context) ([]*VersionInfo, error)
	LoadVersion(ctx context.Context, version string) (*VersionInfo, []*evidence.PooledBaseline, []*evidence.PooledEffect, error)
	LatestVersion(ctx context.Context) (*VersionInfo, error)
}
