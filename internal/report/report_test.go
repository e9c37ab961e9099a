package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/evaluation"
)

func sampleResults() []evaluation.Result {
	return []evaluation.Result{
		{
			Dataset: "avro", TrainingReleases: 1, PctTraining: 0.2, PctTrainDefective: 0.125,
			PctTestDefective: 0.07, Classifier: evaluation.ClassifierNaiveBayes,
			Sampling: evaluation.SamplingNone, Selection: evaluation.SelectionBackward,
			TP: 3, FP: 2, TN: 40, FN: 5, Precision: 0.6, Recall: 0.375, AUC: 0.81234, Kappa: 0.4,
		},
		{
			Dataset: "avro", TrainingReleases: 2, PctTraining: 0.4, Classifier: evaluation.ClassifierIBk,
			Sampling: evaluation.SamplingSMOTE, Selection: evaluation.SelectionNone,
			TN: 50, AUC: math.NaN(),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, []string{
		"avro", "1", "0.200", "0.125", "0.070", "Naive Bayes", "No Sampling", "Backward Selection",
		"3", "2", "40", "5", "0.600", "0.375", "0.812", "0.400",
	}, records[1])
	assert.Equal(t, "IBk", records[2][5])
	assert.Equal(t, "SMOTE", records[2][6])
	assert.Equal(t, "No Selection", records[2][7])
	assert.Equal(t, "NaN", records[2][14])
}

func TestDisplayNamesFallBack(t *testing.T) {
	assert.Equal(t, "Random Forest", DisplayName(evaluation.ClassifierRandomForest))
	assert.Equal(t, "Oversampling", DisplayName(evaluation.SamplingOversample))
	assert.Equal(t, "custom", DisplayName("custom"))
	assert.Equal(t, "No Selection", SelectionName("none"))
}

func TestSinkWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "evaluation")
	sink := Sink{Dir: dir, Project: "avro"}

	path, err := sink.Write(sampleResults())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "avro_Models.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Dataset,#TrainingRelease,%Training"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestRenderSummary(t *testing.T) {
	summaries := evaluation.Summarize(sampleResults())

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, "avro", summaries, FormatText, false))
		out := buf.String()
		assert.Contains(t, out, "avro\n====")
		assert.Contains(t, out, "Naive Bayes")
		assert.Contains(t, out, "0.812")
		assert.Contains(t, out, "NaN")
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, "", nil, FormatText, false))
		assert.Contains(t, buf.String(), "no evaluation steps")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, "avro", summaries, FormatMarkdown, false))
		assert.Contains(t, buf.String(), "## avro")
		assert.Contains(t, buf.String(), "| IBk | SMOTE | No Selection | 1 |")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, "avro", summaries, FormatJSON, false))
		var decoded struct {
			Dataset   string `json:"dataset"`
			Summaries []struct {
				Classifier string   `json:"classifier"`
				AUC        *float64 `json:"auc"`
			} `json:"summaries"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "avro", decoded.Dataset)
		require.Len(t, decoded.Summaries, 2)
		require.NotNil(t, decoded.Summaries[0].AUC)
		assert.InDelta(t, 0.81234, *decoded.Summaries[0].AUC, 1e-9)
		assert.Nil(t, decoded.Summaries[1].AUC)
	})
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatMarkdown, ParseFormat("md"))
	assert.Equal(t, FormatText, ParseFormat("anything"))
}
