// Package report writes walk-forward evaluation results as CSV and renders
// per-configuration summaries for the terminal.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rohankatakam/defectset/internal/evaluation"
)

// Columns is the header of the evaluation CSV
var Columns = []string{
	"Dataset", "#TrainingRelease", "%Training", "%TrainDefective", "%TestDefective",
	"Classifier", "Sampling", "Feature Selection",
	"TP", "FP", "TN", "FN", "Precision", "Recall", "AUC", "Kappa",
}

var displayNames = map[string]string{
	evaluation.ClassifierNaiveBayes:   "Naive Bayes",
	evaluation.ClassifierIBk:          "IBk",
	evaluation.ClassifierRandomForest: "Random Forest",
	evaluation.SamplingNone:           "No Sampling",
	evaluation.SamplingOversample:     "Oversampling",
	evaluation.SamplingUndersample:    "Undersampling",
	evaluation.SamplingSMOTE:          "SMOTE",
}

var selectionNames = map[string]string{
	evaluation.SelectionNone:     "No Selection",
	evaluation.SelectionBackward: "Backward Selection",
}

// DisplayName is the report label of a classifier or sampling name
func DisplayName(name string) string {
	if d, ok := displayNames[name]; ok {
		return d
	}
	return name
}

// SelectionName is the report label of a feature selection name.
// "none" is shared with sampling, so selections get their own table.
func SelectionName(name string) string {
	if d, ok := selectionNames[name]; ok {
		return d
	}
	return name
}

// FormatFloat renders a metric with three decimals. An undefined value prints as NaN.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Record is the CSV row of one result
func Record(r evaluation.Result) []string {
	return []string{
		r.Dataset,
		strconv.Itoa(r.TrainingReleases),
		FormatFloat(r.PctTraining),
		FormatFloat(r.PctTrainDefective),
		FormatFloat(r.PctTestDefective),
		DisplayName(r.Classifier),
		DisplayName(r.Sampling),
		SelectionName(r.Selection),
		strconv.Itoa(r.TP),
		strconv.Itoa(r.FP),
		strconv.Itoa(r.TN),
		strconv.Itoa(r.FN),
		FormatFloat(r.Precision),
		FormatFloat(r.Recall),
		FormatFloat(r.AUC),
		FormatFloat(r.Kappa),
	}
}

// WriteCSV writes the header and one row per result, in the given order
func WriteCSV(w io.Writer, results []evaluation.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(Record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Sink places the evaluation report of a project under Dir
type Sink struct {
	Dir     string
	Project string
}

// Path is where Write puts the report
func (s Sink) Path() string {
	return filepath.Join(s.Dir, s.Project+"_Models.csv")
}

// Write replaces the report atomically: a failed write leaves the previous
// report in place.
func (s Sink) Write(results []evaluation.Result) (string, error) {
	path := s.Path()
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, results); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replace report: %w", err)
	}
	return path, nil
}
