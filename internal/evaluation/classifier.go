package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	ClassifierNaiveBayes   = "naive-bayes"
	ClassifierIBk          = "ibk"
	ClassifierRandomForest = "random-forest"
)

// Classifier learns from a labeled feature matrix and scores new rows
type Classifier interface {
	Fit(x [][]float64, y []bool) error
	// Score is the estimated probability that row is buggy
	Score(row []float64) float64
}

// NewClassifier builds an untrained classifier by name
func NewClassifier(name string, seed int64, trees int) (Classifier, error) {
	switch name {
	case ClassifierNaiveBayes:
		return &NaiveBayes{}, nil
	case ClassifierIBk:
		return &IBk{}, nil
	case ClassifierRandomForest:
		return &RandomForest{Trees: trees, Seed: seed}, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", name)
	}
}

// minStdDev keeps a constant integer feature from producing a zero-width
// normal density
const minStdDev = 1.0 / 6

// NaiveBayes is a Gaussian naive Bayes classifier
type NaiveBayes struct {
	logPrior [2]float64
	mean     [2][]float64
	std      [2][]float64
	present  [2]bool
}

func (nb *NaiveBayes) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return fmt.Errorf("naive bayes: empty training set")
	}
	d := len(x[0])
	var counts [2]int
	for _, label := range y {
		counts[class(label)]++
	}

	for c := 0; c < 2; c++ {
		// Laplace-smoothed prior
		nb.logPrior[c] = math.Log(float64(counts[c]+1) / float64(len(y)+2))
		nb.present[c] = counts[c] > 0
		nb.mean[c] = make([]float64, d)
		nb.std[c] = make([]float64, d)
		if counts[c] == 0 {
			continue
		}
		col := make([]float64, 0, counts[c])
		for j := 0; j < d; j++ {
			col = col[:0]
			for i, row := range x {
				if class(y[i]) == c {
					col = append(col, row[j])
				}
			}
			mean, variance := stat.MeanVariance(col, nil)
			if len(col) < 2 {
				variance = 0
			}
			nb.mean[c][j] = mean
			nb.std[c][j] = math.Max(math.Sqrt(variance), minStdDev)
		}
	}
	return nil
}

func (nb *NaiveBayes) Score(row []float64) float64 {
	switch {
	case !nb.present[0] && !nb.present[1]:
		return 0.5
	case !nb.present[1]:
		return 0
	case !nb.present[0]:
		return 1
	}

	var logp [2]float64
	for c := 0; c < 2; c++ {
		logp[c] = nb.logPrior[c]
		for j, v := range row {
			z := (v - nb.mean[c][j]) / nb.std[c][j]
			logp[c] += -0.5*z*z - math.Log(nb.std[c][j])
		}
	}
	// P(yes) = 1 / (1 + exp(logp[no] - logp[yes]))
	return 1 / (1 + math.Exp(logp[0]-logp[1]))
}

// IBk is a 1-nearest-neighbour classifier over min-max normalised features
type IBk struct {
	x        [][]float64
	y        []bool
	min, max []float64
}

func (k *IBk) Fit(x [][]float64, y []bool) error {
	if len(x) == 0 {
		return fmt.Errorf("ibk: empty training set")
	}
	d := len(x[0])
	k.min = make([]float64, d)
	k.max = make([]float64, d)
	for j := 0; j < d; j++ {
		k.min[j], k.max[j] = math.Inf(1), math.Inf(-1)
		for _, row := range x {
			k.min[j] = math.Min(k.min[j], row[j])
			k.max[j] = math.Max(k.max[j], row[j])
		}
	}
	k.x = make([][]float64, len(x))
	for i, row := range x {
		k.x[i] = k.normalise(row)
	}
	k.y = y
	return nil
}

func (k *IBk) normalise(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		span := k.max[j] - k.min[j]
		if span == 0 {
			continue
		}
		out[j] = (v - k.min[j]) / span
	}
	return out
}

// Score is 1 when the nearest training row is buggy, else 0. Ties keep the
// earliest training row.
func (k *IBk) Score(row []float64) float64 {
	q := k.normalise(row)
	best, bestDist := -1, math.Inf(1)
	for i, p := range k.x {
		var dist float64
		for j := range q {
			diff := q[j] - p[j]
			dist += diff * diff
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 && k.y[best] {
		return 1
	}
	return 0
}

// class maps a label to its slot: 1 for buggy, 0 otherwise
func class(buggy bool) int {
	if buggy {
		return 1
	}
	return 0
}
