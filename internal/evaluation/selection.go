package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	SelectionNone     = "none"
	SelectionBackward = "backward"
)

// Select returns the feature columns to keep for strategy, learned on the
// training matrix only
func Select(strategy string, x [][]float64, y []bool) ([]int, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("feature selection: empty training set")
	}
	d := len(x[0])
	switch strategy {
	case SelectionNone:
		return allColumns(d), nil
	case SelectionBackward:
		return backwardCFS(x, y), nil
	default:
		return nil, fmt.Errorf("unknown feature selection %q", strategy)
	}
}

func allColumns(d int) []int {
	cols := make([]int, d)
	for j := range cols {
		cols[j] = j
	}
	return cols
}

// correlations caches |Pearson r| between every pair of features and
// between each feature and the class
type correlations struct {
	class   []float64
	feature [][]float64
}

func newCorrelations(x [][]float64, y []bool) correlations {
	d := len(x[0])
	cols := make([][]float64, d)
	for j := range cols {
		cols[j] = make([]float64, len(x))
		for i, row := range x {
			cols[j][i] = row[j]
		}
	}
	labels := make([]float64, len(y))
	for i, label := range y {
		labels[i] = float64(class(label))
	}

	c := correlations{class: make([]float64, d), feature: make([][]float64, d)}
	for j := 0; j < d; j++ {
		c.class[j] = absCorrelation(cols[j], labels)
		c.feature[j] = make([]float64, d)
	}
	for a := 0; a < d; a++ {
		for b := a + 1; b < d; b++ {
			r := absCorrelation(cols[a], cols[b])
			c.feature[a][b], c.feature[b][a] = r, r
		}
	}
	return c
}

// absCorrelation treats an undefined correlation (constant column) as none
func absCorrelation(a, b []float64) float64 {
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Abs(r)
}

// merit is the CFS heuristic: subsets whose features correlate with the class
// but not with each other score higher
func (c correlations) merit(subset []int) float64 {
	k := float64(len(subset))
	if k == 0 {
		return 0
	}
	var rcf, rff float64
	for i, a := range subset {
		rcf += c.class[a]
		for _, b := range subset[i+1:] {
			rff += c.feature[a][b]
		}
	}
	denom := math.Sqrt(k + 2*rff)
	if denom == 0 {
		return 0
	}
	return rcf / denom
}

// backwardCFS starts from every feature and greedily drops the one whose
// removal gives the best merit, while that merit does not decrease
func backwardCFS(x [][]float64, y []bool) []int {
	c := newCorrelations(x, y)
	current := allColumns(len(x[0]))
	best := c.merit(current)

	for len(current) > 1 {
		drop, dropMerit := -1, math.Inf(-1)
		for i := range current {
			candidate := without(current, i)
			if m := c.merit(candidate); m > dropMerit {
				drop, dropMerit = i, m
			}
		}
		if dropMerit < best {
			break
		}
		current, best = without(current, drop), dropMerit
	}
	return current
}

func without(cols []int, i int) []int {
	out := make([]int, 0, len(cols)-1)
	out = append(out, cols[:i]...)
	return append(out, cols[i+1:]...)
}

// project keeps the given columns of every row
func project(x [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		p := make([]float64, len(cols))
		for k, j := range cols {
			p[k] = row[j]
		}
		out[i] = p
	}
	return out
}
