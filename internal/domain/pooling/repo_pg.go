package pooling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) SaveVersion(ctx context.Context, info *VersionInfo, baselines []*evidence.PooledBaseline, effects []*evidence.PooledEffect) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		c := r.conn(ctx)
		_, err := c.Exec(ctx, `
			INSERT INTO evidence_versions (version, baseline_rows, effect_rows, created_at)
			VALUES ($1,$2,$3,$4)`,
			info.Version, len(baselines), len(effects), info.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert version %s: %w", info.Version, err)
		}
		for _, b := range baselines {
			_, err := c.Exec(ctx, `
				INSERT INTO pooled_baselines (id, evidence_version, outcome_token, context_label,
					k, p0, ci_low, ci_high, logit_var, method, evidence_grade, singleton,
					unavailable, pmids, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
				b.ID, b.Version, b.OutcomeToken, b.ContextLabel,
				b.K, b.P0, b.CILow, b.CIHigh, b.LogitVar, b.Method, b.Grade, b.Singleton,
				b.Unavailable, b.PMIDs, b.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert baseline %s/%s: %w", b.OutcomeToken, b.ContextLabel, err)
			}
		}
		for _, e := range effects {
			_, err := c.Exec(ctx, `
				INSERT INTO pooled_effects (id, evidence_version, outcome_token, modifier_token,
					context_label, k, or_mean, ci_low, ci_high, log_var, i2, method,
					evidence_grade, singleton, approximate, unavailable, pmids, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
				e.ID, e.Version, e.OutcomeToken, e.ModifierToken,
				e.ContextLabel, e.K, e.OR, e.CILow, e.CIHigh, e.LogVar, e.I2, e.Method,
				e.Grade, e.Singleton, e.Approximate, e.Unavailable, e.PMIDs, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert effect %s/%s/%s: %w", e.OutcomeToken, e.ModifierToken, e.ContextLabel, err)
			}
		}
		return nil
	})
}

const versionCols = `version, created_at, baseline_rows, effect_rows`

func scanVersion(row pgx.Row) (*VersionInfo, error) {
	var v VersionInfo
	err := row.Scan(&v.Version, &v.CreatedAt, &v.BaselineRows, &v.EffectRows)
	return &v, err
}

func (r *repoPG) ListVersions(ctx context.Context) ([]*VersionInfo, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+versionCols+` FROM evidence_versions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*VersionInfo
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *repoPG) LatestVersion(ctx context.Context) (*VersionInfo, error) {
	v, err := scanVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+versionCols+` FROM evidence_versions ORDER BY created_at DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

const baselineCols = `id, evidence_version, outcome_token, context_label, k, p0,
	ci_low, ci_high, logit_var, method, evidence_grade, singleton, unavailable,
	pmids, created_at`

const effectCols = `id, evidence_version, outcome_token, modifier_token, context_label,
	k, or_mean, ci_low, ci_high, log_var, i2, method, evidence_grade, singleton,
	approximate, unavailable, pmids, created_at`

func (r *repoPG) LoadVersion(ctx context.Context, version string) (*VersionInfo, []*evidence.PooledBaseline, []*evidence.PooledEffect, error) {
	info, err := scanVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+versionCols+` FROM evidence_versions WHERE version = $1`, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, fmt.Errorf("%s: %w", version, ErrVersionNotFound)
		}
		return nil, nil, nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+baselineCols+`
		FROM pooled_baselines WHERE evidence_version = $1
		ORDER BY outcome_token, context_label`, version)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()
	var baselines []*evidence.PooledBaseline
	for rows.Next() {
		var b evidence.PooledBaseline
		if err := rows.Scan(&b.ID, &b.Version, &b.OutcomeToken, &b.ContextLabel, &b.K, &b.P0,
			&b.CILow, &b.CIHigh, &b.LogitVar, &b.Method, &b.Grade, &b.Singleton, &b.Unavailable,
			&b.PMIDs, &b.CreatedAt); err != nil {
			return nil, nil, nil, err
		}
		baselines = append(baselines, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	erows, err := r.conn(ctx).Query(ctx, `SELECT `+effectCols+`
		FROM pooled_effects WHERE evidence_version = $1
		ORDER BY outcome_token, modifier_token, context_label`, version)
	if err != nil {
		return nil, nil, nil, err
	}
	defer erows.Close()
	var effects []*evidence.PooledEffect
	for erows.Next() {
		var e evidence.PooledEffect
		if err := erows.Scan(&e.ID, &e.Version, &e.OutcomeToken, &e.ModifierToken, &e.ContextLabel,
			&e.K, &e.OR, &e.CILow, &e.CIHigh, &e.LogVar, &e.I2, &e.Method, &e.Grade, &e.Singleton,
			&e.Approximate, &e.Unavailable, &e.PMIDs, &e.CreatedAt); err != nil {
			return nil, nil, nil, err
		}
		effects = append(effects, &e)
	}
	return info, baselines, effects, erows.Err()
}
