package evaluation

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Confusion counts predictions with Buggy=Yes as the positive class
type Confusion struct {
	TP, FP, TN, FN int
}

// NewConfusion tallies predicted against actual labels
func NewConfusion(actual, predicted []bool) Confusion {
	var c Confusion
	for i := range actual {
		switch {
		case actual[i] && predicted[i]:
			c.TP++
		case !actual[i] && predicted[i]:
			c.FP++
		case !actual[i] && !predicted[i]:
			c.TN++
		default:
			c.FN++
		}
	}
	return c
}

// Total is the number of tallied predictions
func (c Confusion) Total() int {
	return c.TP + c.FP + c.TN + c.FN
}

// Precision is TP/(TP+FP), zero when nothing was predicted positive
func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall is TP/(TP+FN), zero when there are no positives
func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// Kappa is Cohen's kappa. Complete chance agreement (every prediction and
// every label in one class) counts as perfect agreement.
func (c Confusion) Kappa() float64 {
	n := float64(c.Total())
	if n == 0 {
		return 0
	}
	observed := float64(c.TP+c.TN) / n
	chance := (float64(c.TP+c.FP)*float64(c.TP+c.FN) + float64(c.FN+c.TN)*float64(c.FP+c.TN)) / (n * n)
	if chance >= 1 {
		return 1
	}
	return (observed - chance) / (1 - chance)
}

// AUC is the area under the ROC curve of scores (probability of Yes).
// It is NaN when the labels hold only one class.
func AUC(scores []float64, actual []bool) float64 {
	positives := 0
	for _, a := range actual {
		if a {
			positives++
		}
	}
	if positives == 0 || positives == len(actual) {
		return math.NaN()
	}

	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), actual...)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
