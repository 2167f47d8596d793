package evidence

import "context"

// EstimateFilter narrows estimate listings. Zero values mean "any".
type EstimateFilter struct {
	OutcomeToken  string
	ModifierToken string
	ContextLabel  string
	PMID          string
}

// Repository is the persistence port for papers and estimates. Estimates are
// append-only; papers upsert by PMID.
type Repository interface {
	UpsertPaper(ctx context.Context, p *Paper) error
	GetPaper(ctx context.Context, pmid string) (*Paper, error)
	ListPapers(ctx context.Context, limit, offset int) ([]*Paper, int, error)
	ListAllPapers(ctx context.Context) ([]*Paper, error)

	InsertEstimate(ctx context.Context, e *Estimate) error
	ListEstimates(ctx context.Context, f EstimateFilter, limit, offset int) ([]*Estimate, int, error)
	ListAllEstimates(ctx context.Context) ([]*Estimate, error)
}
