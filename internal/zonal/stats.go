package zonal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sample is the subset of a feature's rows that built-in reductions use:
// rows whose value is a number.
type sample struct {
	values   []float64
	weights  []float64 // effective: coverage * weight
	coverage []float64
	area     []float64
}

func newSample(r *Rows) sample {
	s := sample{
		values:   make([]float64, 0, r.Len()),
		weights:  make([]float64, 0, r.Len()),
		coverage: make([]float64, 0, r.Len()),
	}
	for i, v := range r.Values {
		if math.IsNaN(v) {
			continue
		}
		s.values = append(s.values, v)
		s.weights = append(s.weights, r.weight(i))
		s.coverage = append(s.coverage, r.Coverage[i])
		if r.Area != nil {
			s.area = append(s.area, r.Area[i])
		}
	}
	return s
}

// empty is the result of s over a feature with no covered cells.
func empty(s Stat) float64 {
	switch s {
	case StatCount, StatSum, StatVariety, StatWeightedSum, StatCoverageArea:
		return 0
	}
	return math.NaN()
}

// reduce computes a scalar built-in over rows.
func reduce(st Stat, q float64, rows *Rows) float64 {
	s := newSample(rows)
	if len(s.values) == 0 {
		return empty(st)
	}

	switch st {
	case StatCount:
		return floats.Sum(s.coverage)
	case StatSum, StatWeightedSum:
		return floats.Dot(s.values, s.weights)
	case StatMean, StatWeightedMean:
		return stat.Mean(s.values, s.weights)
	case StatMin:
		return floats.Min(s.values)
	case StatMax:
		return floats.Max(s.values)
	case StatMode:
		return mode(s.values, s.weights)
	case StatMinority:
		return minority(s.values, s.weights)
	case StatVariety:
		return float64(len(totals(s.values, nil)))
	case StatVariance:
		_, v := stat.PopMeanVariance(s.values, s.weights)
		return v
	case StatStdev:
		_, v := stat.PopMeanVariance(s.values, s.weights)
		return math.Sqrt(v)
	case StatCoV:
		m, v := stat.PopMeanVariance(s.values, s.weights)
		return math.Sqrt(v) / m
	case StatQuantile:
		return quantile(q, s.values, s.weights)
	case StatCoverageArea:
		if s.area == nil {
			return math.NaN()
		}
		return floats.Dot(s.coverage, s.area)
	}
	return math.NaN()
}

// totals sums weights per distinct value. With nil weights every value
// counts once.
func totals(values, weights []float64) map[float64]float64 {
	m := make(map[float64]float64)
	for i, v := range values {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		m[v] += w
	}
	return m
}

// sortedValues returns the keys of m in ascending order.
func sortedValues(m map[float64]float64) []float64 {
	keys := make([]float64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}

// tieTolerance is the relative difference below which two total weights are
// considered equal when choosing mode and minority.
const tieTolerance = 1e-9

// heavier reports whether a exceeds b by more than rounding error.
func heavier(a, b float64) bool {
	return a-b > tieTolerance*math.Max(math.Abs(a), math.Abs(b))
}

// mode returns the value with the greatest total weight. Ties go to the
// lowest value.
func mode(values, weights []float64) float64 {
	t := totals(values, weights)
	best, bestW := math.NaN(), 0.0
	for _, v := range sortedValues(t) {
		if w := t[v]; w > 0 && (math.IsNaN(best) || heavier(w, bestW)) {
			best, bestW = v, w
		}
	}
	return best
}

// minority returns the value with the smallest positive total weight. Ties
// go to the lowest value.
func minority(values, weights []float64) float64 {
	t := totals(values, weights)
	best, bestW := math.NaN(), 0.0
	for _, v := range sortedValues(t) {
		if w := t[v]; w > 0 && (math.IsNaN(best) || heavier(bestW, w)) {
			best, bestW = v, w
		}
	}
	return best
}

// quantile is the weighted empirical quantile: the smallest value whose
// cumulative weight reaches q of the total. The total is the same running
// sum the scan compares against, so q close to 1 always finds a value.
func quantile(q float64, values, weights []float64) float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	cum := make([]float64, len(idx))
	var total float64
	for i, j := range idx {
		total += weights[j]
		cum[i] = total
	}
	if total <= 0 {
		return math.NaN()
	}

	target := q * total
	for i, j := range idx {
		if cum[i] > 0 && cum[i] >= target {
			return values[j]
		}
	}
	return values[idx[len(idx)-1]]
}

// fractions builds the frac table: one row per distinct value, ascending,
// with the share of total coverage (or effective weight) it holds.
func fractions(rows *Rows, weighted bool) *Table {
	t := NewTable(ColValue, string(StatFrac))
	if weighted {
		t = NewTable(ColValue, string(StatWeightedFrac))
	}

	s := newSample(rows)
	w := s.coverage
	if weighted {
		w = s.weights
	}
	sums := totals(s.values, w)
	total := floats.Sum(w)
	if total <= 0 {
		return t
	}
	for _, v := range sortedValues(sums) {
		t.Rows = append(t.Rows, []any{v, sums[v] / total})
	}
	return t
}
