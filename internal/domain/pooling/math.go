package pooling

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/periop/periop/internal/domain/evidence"
)

const (
	z95 = 1.959963984540054

	// Singleton cells keep their single estimate with the interval widened.
	singletonInflation = 1.5

	// Paule-Mandel search bounds on tau squared.
	pmUpper      = 10.0
	pmIterations = 60
)

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func expit(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// clampProb keeps a proportion usable on the logit scale, applying a half
// continuity correction against the sample size at the boundaries.
func clampProb(p float64, n float64) float64 {
	if n < 1 {
		n = 1
	}
	eps := 0.5 / n
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// wilson returns the 95% Wilson score interval for e events in n trials.
// It is the small-count fallback for baseline variance.
func wilson(events, n float64) (lo, hi float64) {
	if n <= 0 {
		return 0, 1
	}
	p := events / n
	z2 := z95 * z95
	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	half := z95 * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom
	lo = center - half
	hi = center + half
	if lo < 0 {
		lo = 0
	}
	if hi > 1 {
		hi = 1
	}
	return lo, hi
}

// seFromCI recovers a standard error from a symmetric 95% interval on the
// transformed scale.
func seFromCI(lo, hi float64) float64 { return (hi - lo) / (2 * z95) }

// study is one estimate prepared for pooling: y and v live on the pooled
// scale (logit for baselines, log odds ratio for effects); m is the weight
// multiplier from quality, population match and the approximation penalty.
type study struct {
	pmid        string
	y           float64
	v           float64
	m           float64
	grade       evidence.Grade
	popMatch    float64
	approximate bool
}

// pooled is the outcome of pooling one cell, still on the transformed scale.
type pooled struct {
	k         int
	mean      float64
	variance  float64
	lo        float64
	hi        float64
	method    string
	q         float64
	i2        float64
	hetP      float64
	grade     evidence.Grade
	singleton bool
	pmids     []string
}

// poolStudies runs the random-effects pipeline over one cell. Callers
// back-transform mean and interval to their natural scale.
func poolStudies(studies []study) pooled {
	out := pooled{k: len(studies), pmids: studyPMIDs(studies)}
	if len(studies) == 0 {
		return out
	}
	if len(studies) == 1 {
		s := studies[0]
		se := math.Sqrt(s.v) * singletonInflation
		out.mean = s.y
		out.variance = se * se
		out.lo = s.y - z95*se
		out.hi = s.y + z95*se
		out.method = "singleton"
		out.singleton = true
		out.grade = decayed(s.grade, s.popMatch)
		return out
	}

	k := len(studies)
	ys := make([]float64, k)
	fw := make([]float64, k)
	for i, s := range studies {
		ys[i] = s.y
		fw[i] = s.m / s.v
	}

	feMean := stat.Mean(ys, fw)
	q := 0.0
	for i := range studies {
		d := ys[i] - feMean
		q += fw[i] * d * d
	}
	out.q = q
	df := float64(k - 1)
	if q > df {
		out.i2 = (q - df) / q
	}
	out.hetP = distuv.ChiSquared{K: df}.Survival(q)

	tau2 := tau2DL(studies, q)
	out.method = "DL"
	if k >= 5 {
		tau2 = tau2PM(studies)
		out.method = "PM"
	}

	rw := make([]float64, k)
	for i, s := range studies {
		rw[i] = s.m / (s.v + tau2)
	}
	sumW := floats.Sum(rw)
	mean := stat.Mean(ys, rw)
	se := math.Sqrt(1 / sumW)
	crit := z95

	if k >= 3 && k <= 10 {
		// Hartung-Knapp: variance from the weighted residuals, t critical
		// value on k-1 degrees of freedom.
		s2 := 0.0
		for i := range studies {
			d := ys[i] - mean
			s2 += rw[i] * d * d
		}
		s2 /= df * sumW
		se = math.Sqrt(s2)
		crit = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(0.975)
		out.method += "+HK"
	}

	out.mean = mean
	out.variance = se * se
	out.lo = mean - crit*se
	out.hi = mean + crit*se
	out.grade = pooledGrade(studies, rw, sumW)
	return out
}

// tau2DL is the DerSimonian-Laird between-study variance estimate.
func tau2DL(studies []study, q float64) float64 {
	df := float64(len(studies) - 1)
	if q <= df {
		return 0
	}
	var s1, s2 float64
	for _, s := range studies {
		w := s.m / s.v
		s1 += w
		s2 += w * w
	}
	denom := s1 - s2/s1
	if denom <= 0 {
		return 0
	}
	return (q - df) / denom
}

// tau2PM solves the Paule-Mandel estimating equation by bisection. The
// generalized Q statistic is decreasing in tau squared, so the root is
// bracketed on [0, pmUpper].
func tau2PM(studies []study) float64 {
	df := float64(len(studies) - 1)
	gen := func(tau2 float64) float64 {
		w := make([]float64, len(studies))
		ys := make([]float64, len(studies))
		for i, s := range studies {
			w[i] = s.m / (s.v + tau2)
			ys[i] = s.y
		}
		mean := stat.Mean(ys, w)
		q := 0.0
		for i := range studies {
			d := ys[i] - mean
			q += w[i] * d * d
		}
		return q - df
	}
	if gen(0) <= 0 {
		return 0
	}
	lo, hi := 0.0, pmUpper
	if gen(hi) > 0 {
		return hi
	}
	for i := 0; i < pmIterations; i++ {
		mid := (lo + hi) / 2
		if gen(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// pooledGrade picks the tier for a pooled cell: the best grade among studies
// carrying at least a quarter of the total weight, or the worst contributing
// grade when the weight is spread too thin. A grade taken from a study with
// an imperfect population match decays one tier.
func pooledGrade(studies []study, weights []float64, sumW float64) evidence.Grade {
	best := -1
	for i, s := range studies {
		if weights[i]/sumW < 0.25 {
			continue
		}
		if best == -1 || better(s, studies[best], weights[i], weights[best]) {
			best = i
		}
	}
	if best >= 0 {
		return decayed(studies[best].grade, studies[best].popMatch)
	}
	worst := studies[0].grade
	decay := studies[0].popMatch < 1
	for _, s := range studies[1:] {
		if s.grade.WorseThan(worst) {
			worst = s.grade
			decay = s.popMatch < 1
		}
	}
	if decay {
		return worst.Decay()
	}
	return worst
}

func better(a, b study, wa, wb float64) bool {
	if a.grade.Rank() != b.grade.Rank() {
		return a.grade.Rank() < b.grade.Rank()
	}
	if wa != wb {
		return wa > wb
	}
	return a.pmid < b.pmid
}

func decayed(g evidence.Grade, popMatch float64) evidence.Grade {
	if popMatch < 1 {
		return g.Decay()
	}
	return g
}

func studyPMIDs(studies []study) []string {
	seen := make(map[string]bool, len(studies))
	var out []string
	for _, s := range studies {
		if seen[s.pmid] {
			continue
		}
		seen[s.pmid] = true
		out = append(out, s.pmid)
	}
	sort.Strings(out)
	return out
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
