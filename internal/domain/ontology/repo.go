package ontology

import "context"

// Repository is the persistence port for ontology terms. Terms are written
// at seed/overlay time and read-only afterwards; the extractor works off an
// in-memory Index built from ListAll.
type Repository interface {
	Upsert(ctx context.Context, term *Term) error
	GetByToken(ctx context.Context, token string) (*Term, error)
	List(ctx context.Context, termType string, limit, offset int) ([]*Term, int, error)
	ListAll(ctx context.Context) ([]Term, error)
	ReplaceAll(ctx context.Context, terms []Term) error
}
