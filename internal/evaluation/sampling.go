package evaluation

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

const (
	SamplingNone        = "none"
	SamplingOversample  = "oversample"
	SamplingUndersample = "undersample"
	SamplingSMOTE       = "smote"

	smoteNeighbours = 5
)

// Sample rebalances a training matrix. Testing data is never sampled.
func Sample(strategy string, x [][]float64, y []bool, rng *rand.Rand) ([][]float64, []bool, error) {
	switch strategy {
	case SamplingNone:
		return x, y, nil
	case SamplingOversample:
		ox, oy := oversample(x, y, rng)
		return ox, oy, nil
	case SamplingUndersample:
		ux, uy := undersample(x, y, rng)
		return ux, uy, nil
	case SamplingSMOTE:
		sx, sy := smote(x, y, smoteNeighbours, rng)
		return sx, sy, nil
	default:
		return nil, nil, fmt.Errorf("unknown sampling %q", strategy)
	}
}

func knownSampling(name string) bool {
	switch name {
	case SamplingNone, SamplingOversample, SamplingUndersample, SamplingSMOTE:
		return true
	}
	return false
}

// split returns the row indexes of each class
func split(y []bool) (pos, neg []int) {
	for i, label := range y {
		if label {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	return pos, neg
}

// oversample draws every class with replacement up to the majority class size
func oversample(x [][]float64, y []bool, rng *rand.Rand) ([][]float64, []bool) {
	pos, neg := split(y)
	if len(pos) == 0 || len(neg) == 0 {
		return x, y
	}
	target := max(len(pos), len(neg))

	var ox [][]float64
	var oy []bool
	for _, group := range [][]int{neg, pos} {
		for k := 0; k < target; k++ {
			i := group[rng.IntN(len(group))]
			ox = append(ox, x[i])
			oy = append(oy, y[i])
		}
	}
	return ox, oy
}

// undersample keeps a random subset of the majority class the size of the minority class
func undersample(x [][]float64, y []bool, rng *rand.Rand) ([][]float64, []bool) {
	pos, neg := split(y)
	if len(pos) == 0 || len(neg) == 0 {
		return x, y
	}
	minority, majority := pos, neg
	if len(neg) < len(pos) {
		minority, majority = neg, pos
	}

	keep := append([]int(nil), minority...)
	perm := rng.Perm(len(majority))
	for _, p := range perm[:len(minority)] {
		keep = append(keep, majority[p])
	}
	sort.Ints(keep)

	ux := make([][]float64, len(keep))
	uy := make([]bool, len(keep))
	for k, i := range keep {
		ux[k], uy[k] = x[i], y[i]
	}
	return ux, uy
}

// smote adds one synthetic minority row per minority row, interpolated toward
// one of its k nearest minority neighbours
func smote(x [][]float64, y []bool, k int, rng *rand.Rand) ([][]float64, []bool) {
	pos, neg := split(y)
	minority, label := pos, true
	if len(neg) < len(pos) {
		minority, label = neg, false
	}
	if len(minority) < 2 || len(pos) == 0 || len(neg) == 0 {
		return x, y
	}
	if k > len(minority)-1 {
		k = len(minority) - 1
	}

	sx := append([][]float64(nil), x...)
	sy := append([]bool(nil), y...)
	for _, i := range minority {
		neighbours := nearest(x, minority, i, k)
		nn := x[neighbours[rng.IntN(len(neighbours))]]
		synthetic := make([]float64, len(x[i]))
		for j := range synthetic {
			gap := rng.Float64()
			synthetic[j] = x[i][j] + gap*(nn[j]-x[i][j])
		}
		sx = append(sx, synthetic)
		sy = append(sy, label)
	}
	return sx, sy
}

// nearest returns the k candidates closest to row i, excluding i itself
func nearest(x [][]float64, candidates []int, i, k int) []int {
	type neighbour struct {
		index int
		dist  float64
	}
	ns := make([]neighbour, 0, len(candidates)-1)
	for _, c := range candidates {
		if c == i {
			continue
		}
		var dist float64
		for j := range x[i] {
			diff := x[i][j] - x[c][j]
			dist += diff * diff
		}
		ns = append(ns, neighbour{c, dist})
	}
	sort.SliceStable(ns, func(a, b int) bool { return ns[a].dist < ns[b].dist })

	out := make([]int, k)
	for n := range out {
		out[n] = ns[n].index
	}
	return out
}
