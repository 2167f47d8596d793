package pooling

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/periop/periop/internal/domain/evidence"
)

// Snapshot is the immutable pooled view for one evidence version. Lookups
// walk the wildcard chain from the request context to the most specific
// populated cell, skipping cells whose pooling failed.
type Snapshot struct {
	Version   string
	CreatedAt time.Time

	baselineRows []*evidence.PooledBaseline
	effectRows   []*evidence.PooledEffect
	baselines    map[string]map[evidence.Context]*evidence.PooledBaseline
	effects      map[string]map[evidence.Context]*evidence.PooledEffect
}

func effectKey(outcome, modifier string) string { return outcome + "|" + modifier }

// NewSnapshot indexes pooled rows for context-walk lookup.
func NewSnapshot(version string, createdAt time.Time, baselines []*evidence.PooledBaseline, effects []*evidence.PooledEffect) (*Snapshot, error) {
	s := &Snapshot{
		Version:      version,
		CreatedAt:    createdAt,
		baselineRows: baselines,
		effectRows:   effects,
		baselines:    map[string]map[evidence.Context]*evidence.PooledBaseline{},
		effects:      map[string]map[evidence.Context]*evidence.PooledEffect{},
	}
	for _, row := range baselines {
		ctx, err := evidence.ParseContext(row.ContextLabel)
		if err != nil {
			return nil, fmt.Errorf("baseline %s/%s: %w", row.OutcomeToken, row.ContextLabel, err)
		}
		cells, ok := s.baselines[row.OutcomeToken]
		if !ok {
			cells = map[evidence.Context]*evidence.PooledBaseline{}
			s.baselines[row.OutcomeToken] = cells
		}
		cells[ctx] = row
	}
	for _, row := range effects {
		ctx, err := evidence.ParseContext(row.ContextLabel)
		if err != nil {
			return nil, fmt.Errorf("effect %s/%s/%s: %w", row.OutcomeToken, row.ModifierToken, row.ContextLabel, err)
		}
		key := effectKey(row.OutcomeToken, row.ModifierToken)
		cells, ok := s.effects[key]
		if !ok {
			cells = map[evidence.Context]*evidence.PooledEffect{}
			s.effects[key] = cells
		}
		cells[ctx] = row
	}
	return s, nil
}

// Baseline resolves the pooled baseline for the outcome nearest to the
// request context. The second return is false when no populated cell exists
// at any level, which consumers must treat as no evidence rather than zero.
func (s *Snapshot) Baseline(outcome string, ctx evidence.Context) (*evidence.PooledBaseline, bool) {
	cells, ok := s.baselines[outcome]
	if !ok {
		return nil, false
	}
	for _, g := range ctx.Generalizations() {
		if row, ok := cells[g]; ok && !row.Unavailable {
			return row, true
		}
	}
	return nil, false
}

// Effect resolves the pooled effect for (outcome, modifier) nearest to the
// request context.
func (s *Snapshot) Effect(outcome, modifier string, ctx evidence.Context) (*evidence.PooledEffect, bool) {
	cells, ok := s.effects[effectKey(outcome, modifier)]
	if !ok {
		return nil, false
	}
	for _, g := range ctx.Generalizations() {
		if row, ok := cells[g]; ok && !row.Unavailable {
			return row, true
		}
	}
	return nil, false
}

// Outcomes lists every outcome with at least one pooled row, sorted.
func (s *Snapshot) Outcomes() []string {
	set := map[string]bool{}
	for outcome := range s.baselines {
		set[outcome] = true
	}
	for key := range s.effects {
		set[strings.SplitN(key, "|", 2)[0]] = true
	}
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Baselines returns all pooled baseline rows in build order.
func (s *Snapshot) Baselines() []*evidence.PooledBaseline { return s.baselineRows }

// Effects returns all pooled effect rows in build order.
func (s *Snapshot) Effects() []*evidence.PooledEffect { return s.effectRows }

// Registry holds every loaded snapshot by version and publishes the current
// one behind an atomic pointer. Readers never lock; in-flight requests keep
// the snapshot they resolved.
type Registry struct {
	current atomic.Pointer[Snapshot]

	mu    sync.RWMutex
	byVer map[string]*Snapshot
}

func NewRegistry() *Registry {
	return &Registry{byVer: map[string]*Snapshot{}}
}

// Publish registers the snapshot and flips the current pointer to it.
func (r *Registry) Publish(s *Snapshot) {
	r.mu.Lock()
	r.byVer[s.Version] = s
	r.mu.Unlock()
	r.current.Store(s)
}

// Add registers a snapshot without changing the current pointer.
func (r *Registry) Add(s *Snapshot) {
	r.mu.Lock()
	r.byVer[s.Version] = s
	r.mu.Unlock()
}

// Current returns the published snapshot, or nil before the first publish.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// Get resolves a version label. Empty string and "current" resolve to the
// published snapshot.
func (r *Registry) Get(version string) (*Snapshot, bool) {
	if version == "" || version == "current" {
		s := r.Current()
		return s, s != nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byVer[version]
	return s, ok
}

// Versions lists loaded version labels, newest first.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byVer))
	for v := range r.byVer {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return compareVersions(out[i], out[j]) > 0 })
	return out
}

// NextVersion produces the next monotonic vYYYY.MM[.N] label. The first run
// in a month gets the bare label, repeat runs get .2, .3 and so on.
func NextVersion(now time.Time, existing []string) string {
	base := fmt.Sprintf("v%04d.%02d", now.Year(), int(now.Month()))
	max := 0
	for _, v := range existing {
		if v == base {
			if max < 1 {
				max = 1
			}
			continue
		}
		if rest, ok := strings.CutPrefix(v, base+"."); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > max {
				max = n
			}
		}
	}
	if max == 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, max+1)
}

func parseVersion(label string) (year, month, n int, ok bool) {
	if !strings.HasPrefix(label, "v") {
		return 0, 0, 0, false
	}
	parts := strings.Split(label[1:], ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	var err error
	if year, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if month, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	n = 1
	if len(parts) == 3 {
		if n, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, false
		}
	}
	return year, month, n, true
}

func compareVersions(a, b string) int {
	ay, am, an, aok := parseVersion(a)
	by, bm, bn, bok := parseVersion(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	switch {
	case ay != by:
		return ay - by
	case am != bm:
		return am - bm
	default:
		return an - bn
	}
}
