package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/periop/periop/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

// conn routes statements through the ambient transaction when one is
// open, so an import bundle commits or rolls back as a unit.
func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// collect drains rows through scan and closes them.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const paperCols = `pmid, title, year, design, n_total, population, time_horizon,
	evidence_grade, quality_score, created_at`

func scanPaper(row pgx.Row) (*Paper, error) {
	var p Paper
	err := row.Scan(&p.PMID, &p.Title, &p.Year, &p.Design, &p.NTotal, &p.Population,
		&p.TimeHorizon, &p.Grade, &p.QualityScore, &p.CreatedAt)
	return &p, err
}

func (r *repoPG) UpsertPaper(ctx context.Context, p *Paper) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO papers (pmid, title, year, design, n_total, population, time_horizon,
			evidence_grade, quality_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (pmid) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			design = EXCLUDED.design,
			n_total = EXCLUDED.n_total,
			population = EXCLUDED.population,
			time_horizon = EXCLUDED.time_horizon,
			evidence_grade = EXCLUDED.evidence_grade,
			quality_score = EXCLUDED.quality_score`,
		p.PMID, p.Title, p.Year, p.Design, p.NTotal, p.Population, p.TimeHorizon,
		p.Grade, p.QualityScore)
	return err
}

func (r *repoPG) GetPaper(ctx context.Context, pmid string) (*Paper, error) {
	return scanPaper(r.conn(ctx).QueryRow(ctx, `SELECT `+paperCols+` FROM papers WHERE pmid = $1`, pmid))
}

func (r *repoPG) ListPapers(ctx context.Context, limit, offset int) ([]*Paper, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM papers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paperCols+` FROM papers ORDER BY year DESC, pmid LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanPaper)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListAllPapers(ctx context.Context) ([]*Paper, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paperCols+` FROM papers ORDER BY pmid`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPaper)
}

const estimateCols = `id, pmid, outcome_token, modifier_token, measure, estimate,
	ci_low, ci_high, adjusted, population, context_label, n_total, n_events,
	quality_weight, extraction_confidence, created_at`

func scanEstimate(row pgx.Row) (*Estimate, error) {
	var e Estimate
	err := row.Scan(&e.ID, &e.PMID, &e.OutcomeToken, &e.ModifierToken, &e.Measure, &e.Value,
		&e.CILow, &e.CIHigh, &e.Adjusted, &e.Population, &e.ContextLabel, &e.NTotal, &e.NEvents,
		&e.QualityWeight, &e.ExtractionConfidence, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) InsertEstimate(ctx context.Context, e *Estimate) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO estimates (id, pmid, outcome_token, modifier_token, measure, estimate,
			ci_low, ci_high, adjusted, population, context_label, n_total, n_events,
			quality_weight, extraction_confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.PMID, e.OutcomeToken, e.ModifierToken, e.Measure, e.Value,
		e.CILow, e.CIHigh, e.Adjusted, e.Population, e.ContextLabel, e.NTotal, e.NEvents,
		e.QualityWeight, e.ExtractionConfidence)
	return err
}

// where renders the filter as a WHERE clause with positional args, or
// an empty string when no field is set.
func (f EstimateFilter) where() (string, []any) {
	var clauses []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("outcome_token", f.OutcomeToken)
	add("modifier_token", f.ModifierToken)
	add("context_label", f.ContextLabel)
	add("pmid", f.PMID)
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) ListEstimates(ctx context.Context, f EstimateFilter, limit, offset int) ([]*Estimate, int, error) {
	where, args := f.where()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM estimates`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM estimates%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		estimateCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanEstimate)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListAllEstimates(ctx context.Context) ([]*Estimate, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+estimateCols+` FROM estimates ORDER BY outcome_token, modifier_token, context_label, pmid`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEstimate)
}
