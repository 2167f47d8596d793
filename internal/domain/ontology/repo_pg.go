package ontology

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/periop/periop/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const termCols = `token, type, plain_label, synonyms, weak_synonyms, category, severity_weight,
	parent, case_type, time_window_days, generic_name, concentration,
	dose_rule_adult, dose_rule_peds, created_at`

func scanTerm(row pgx.Row) (*Term, error) {
	var t Term
	err := row.Scan(&t.Token, &t.Type, &t.PlainLabel, &t.Synonyms, &t.WeakSynonyms, &t.Category, &t.SeverityWeight,
		&t.Parent, &t.CaseType, &t.TimeWindowDays, &t.GenericName, &t.Concentration,
		&t.DoseRuleAdult, &t.DoseRulePeds, &t.CreatedAt)
	return &t, err
}

func (r *repoPG) Upsert(ctx context.Context, term *Term) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ontology_terms (token, type, plain_label, synonyms, weak_synonyms, category, severity_weight,
			parent, case_type, time_window_days, generic_name, concentration, dose_rule_adult, dose_rule_peds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (token) DO UPDATE SET
			type=EXCLUDED.type, plain_label=EXCLUDED.plain_label, synonyms=EXCLUDED.synonyms,
			weak_synonyms=EXCLUDED.weak_synonyms, category=EXCLUDED.category,
			severity_weight=EXCLUDED.severity_weight, parent=EXCLUDED.parent,
			case_type=EXCLUDED.case_type, time_window_days=EXCLUDED.time_window_days,
			generic_name=EXCLUDED.generic_name, concentration=EXCLUDED.concentration,
			dose_rule_adult=EXCLUDED.dose_rule_adult, dose_rule_peds=EXCLUDED.dose_rule_peds`,
		term.Token, term.Type, term.PlainLabel, term.Synonyms, term.WeakSynonyms, term.Category, term.SeverityWeight,
		term.Parent, term.CaseType, term.TimeWindowDays, term.GenericName, term.Concentration,
		term.DoseRuleAdult, term.DoseRulePeds)
	if err != nil {
		return err
	}
	return r.syncSynonyms(ctx, term)
}

// syncSynonyms maintains the ontology_synonyms lookup table (synonym → token).
func (r *repoPG) syncSynonyms(ctx context.Context, term *Term) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM ontology_synonyms WHERE token = $1`, term.Token); err != nil {
		return err
	}
	insert := func(syn string, weak bool) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO ontology_synonyms (synonym, token, weak)
			VALUES ($1,$2,$3)
			ON CONFLICT (synonym, token) DO NOTHING`, syn, term.Token, weak)
		return err
	}
	if term.PlainLabel != "" {
		if err := insert(term.PlainLabel, false); err != nil {
			return err
		}
	}
	for _, s := range term.Synonyms {
		if err := insert(s, false); err != nil {
			return err
		}
	}
	for _, s := range term.WeakSynonyms {
		if err := insert(s, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*Term, error) {
	return scanTerm(r.conn(ctx).QueryRow(ctx, `SELECT `+termCols+` FROM ontology_terms WHERE token = $1`, token))
}

func (r *repoPG) List(ctx context.Context, termType string, limit, offset int) ([]*Term, int, error) {
	where, args := "", []interface{}{}
	if termType != "" {
		where = ` WHERE type = $1`
		args = append(args, termType)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ontology_terms`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+termCols+` FROM ontology_terms`+where+
			` ORDER BY token LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]Term, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+termCols+` FROM ontology_terms ORDER BY token`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	return items, nil
}

func (r *repoPG) ReplaceAll(ctx context.Context, terms []Term) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM ontology_synonyms`); err != nil {
			return err
		}
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM ontology_terms`); err != nil {
			return err
		}
		for i := range terms {
			if err := r.Upsert(ctx, &terms[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
