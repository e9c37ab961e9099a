// Package evaluation trains and scores classifiers on walk-forward steps.
package evaluation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/walkforward"
)

// Result is one row of the evaluation report
type Result struct {
	Dataset           string  `json:"dataset" db:"dataset"`
	TrainingReleases  int     `json:"training_releases" db:"training_releases"`
	PctTraining       float64 `json:"pct_training" db:"pct_training"`
	PctTrainDefective float64 `json:"pct_train_defective" db:"pct_train_defective"`
	PctTestDefective  float64 `json:"pct_test_defective" db:"pct_test_defective"`
	Classifier        string  `json:"classifier" db:"classifier"`
	Sampling          string  `json:"sampling" db:"sampling"`
	Selection         string  `json:"selection" db:"selection"`
	TP                int     `json:"tp" db:"tp"`
	FP                int     `json:"fp" db:"fp"`
	TN                int     `json:"tn" db:"tn"`
	FN                int     `json:"fn" db:"fn"`
	Precision         float64 `json:"precision" db:"precision"`
	Recall            float64 `json:"recall" db:"recall"`
	AUC               float64 `json:"auc" db:"auc"` // NaN when the test set holds one class
	Kappa             float64 `json:"kappa" db:"kappa"`
}

// Options selects the configurations evaluated at every step
type Options struct {
	Dataset     string
	Classifiers []string
	Samplings   []string
	Selections  []string
	Seed        int64
	Trees       int
	Workers     int
}

// Combo is one (classifier, sampling, selection) configuration
type Combo struct {
	Classifier string
	Sampling   string
	Selection  string
}

// Evaluator runs every configured combo on every walk-forward step
type Evaluator struct {
	opts   Options
	combos []Combo
	logger *logrus.Entry
}

// NewEvaluator validates the configured names up front so a typo fails
// before any training starts
func NewEvaluator(opts Options, logger *logrus.Entry) (*Evaluator, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	var combos []Combo
	for _, c := range opts.Classifiers {
		if _, err := NewClassifier(c, opts.Seed, opts.Trees); err != nil {
			return nil, err
		}
		for _, s := range opts.Samplings {
			if !knownSampling(s) {
				return nil, fmt.Errorf("unknown sampling %q", s)
			}
			for _, f := range opts.Selections {
				if f != SelectionNone && f != SelectionBackward {
					return nil, fmt.Errorf("unknown feature selection %q", f)
				}
				combos = append(combos, Combo{Classifier: c, Sampling: s, Selection: f})
			}
		}
	}
	if len(combos) == 0 {
		return nil, fmt.Errorf("no evaluation combos configured")
	}
	return &Evaluator{
		opts:   opts,
		combos: combos,
		logger: logging.OrDiscard(logger).WithField("component", "evaluation"),
	}, nil
}

// Combos returns the configurations in report order
func (e *Evaluator) Combos() []Combo {
	return e.combos
}

// Run evaluates every step of the walk. total is the row count of the whole
// dataset, the denominator of %Training. onStep, when set, is called after
// each step completes.
func (e *Evaluator) Run(ctx context.Context, walk *walkforward.Builder, total int, onStep func(walkforward.Step)) ([]Result, error) {
	var results []Result
	err := walk.Walk(func(step walkforward.Step) error {
		stepResults, err := e.Step(ctx, step, total)
		if err != nil {
			return err
		}
		results = append(results, stepResults...)
		if onStep != nil {
			onStep(step)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Step evaluates every combo on one step, concurrently. Results come back in
// combo order whatever the completion order.
func (e *Evaluator) Step(ctx context.Context, step walkforward.Step, total int) ([]Result, error) {
	if len(step.Training) == 0 || len(step.Testing) == 0 {
		e.logger.WithField("training_releases", step.TrainingReleases).Warn("skipping step with an empty table")
		return nil, nil
	}

	trainX, trainY := step.Training.Matrix()
	testX, testY := step.Testing.Matrix()
	base := Result{
		Dataset:           e.opts.Dataset,
		TrainingReleases:  step.TrainingReleases,
		PctTraining:       ratio(len(step.Training), total),
		PctTrainDefective: ratio(step.Training.Buggy(), len(step.Training)),
		// measured against the training size, as the historical reports do
		PctTestDefective: ratio(step.Testing.Buggy(), len(step.Training)),
	}

	results := make([]Result, len(e.combos))
	p := pool.New().WithMaxGoroutines(e.opts.Workers).WithContext(ctx).WithCancelOnError()
	for i, combo := range e.combos {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.evaluate(combo, step.TrainingReleases, trainX, trainY, testX, testY)
			if err != nil {
				return fmt.Errorf("%s/%s/%s at release %d: %w",
					combo.Classifier, combo.Sampling, combo.Selection, step.TrainingReleases, err)
			}
			r.Dataset = base.Dataset
			r.TrainingReleases = base.TrainingReleases
			r.PctTraining = base.PctTraining
			r.PctTrainDefective = base.PctTrainDefective
			r.PctTestDefective = base.PctTestDefective
			results[i] = r
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"training_releases": step.TrainingReleases,
		"training_rows":     len(step.Training),
		"testing_rows":      len(step.Testing),
		"combos":            len(results),
	}).Debug("step evaluated")
	return results, nil
}

// evaluate samples, selects, trains and scores one combo. Each combo gets its
// own random stream derived from the seed, the step and the combo, so results
// do not depend on scheduling.
func (e *Evaluator) evaluate(combo Combo, step int, trainX [][]float64, trainY []bool, testX [][]float64, testY []bool) (Result, error) {
	rng := rand.New(rand.NewPCG(uint64(e.opts.Seed), comboStream(combo, step)))

	x, y, err := Sample(combo.Sampling, trainX, trainY, rng)
	if err != nil {
		return Result{}, err
	}

	cols, err := Select(combo.Selection, x, y)
	if err != nil {
		return Result{}, err
	}
	x = project(x, cols)
	tx := project(testX, cols)

	clf, err := NewClassifier(combo.Classifier, int64(comboStream(combo, step)^uint64(e.opts.Seed)), e.opts.Trees)
	if err != nil {
		return Result{}, err
	}
	if err := clf.Fit(x, y); err != nil {
		return Result{}, err
	}

	scores := make([]float64, len(tx))
	predicted := make([]bool, len(tx))
	for i, row := range tx {
		scores[i] = clf.Score(row)
		predicted[i] = scores[i] >= 0.5
	}

	conf := NewConfusion(testY, predicted)
	return Result{
		Classifier: combo.Classifier,
		Sampling:   combo.Sampling,
		Selection:  combo.Selection,
		TP:         conf.TP,
		FP:         conf.FP,
		TN:         conf.TN,
		FN:         conf.FN,
		Precision:  conf.Precision(),
		Recall:     conf.Recall(),
		AUC:        AUC(scores, testY),
		Kappa:      conf.Kappa(),
	}, nil
}

func comboStream(c Combo, step int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d", c.Classifier, c.Sampling, c.Selection, step)
	return h.Sum64()
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Summary is the mean of each metric for one combo across all steps
type Summary struct {
	Combo
	Steps     int
	Precision float64
	Recall    float64
	AUC       float64 // mean over steps with a defined AUC
	Kappa     float64
}

// Summarize averages results per combo, in first-seen order
func Summarize(results []Result) []Summary {
	index := make(map[Combo]int)
	var out []Summary
	aucSteps := make(map[Combo]int)
	for _, r := range results {
		c := Combo{Classifier: r.Classifier, Sampling: r.Sampling, Selection: r.Selection}
		i, ok := index[c]
		if !ok {
			i = len(out)
			index[c] = i
			out = append(out, Summary{Combo: c})
		}
		s := &out[i]
		s.Steps++
		s.Precision += r.Precision
		s.Recall += r.Recall
		s.Kappa += r.Kappa
		if !math.IsNaN(r.AUC) {
			s.AUC += r.AUC
			aucSteps[c]++
		}
	}
	for i := range out {
		s := &out[i]
		n := float64(s.Steps)
		s.Precision /= n
		s.Recall /= n
		s.Kappa /= n
		if k := aucSteps[s.Combo]; k > 0 {
			s.AUC /= float64(k)
		} else {
			s.AUC = math.NaN()
		}
	}
	return out
}
