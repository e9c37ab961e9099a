package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/rohankatakam/defectset/internal/evaluation"
)

// Format represents a summary output format
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat converts a string to Format, defaulting to text
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	default:
		return FormatText
	}
}

var summaryHeaders = []string{
	"Classifier", "Sampling", "Feature Selection", "Steps", "Precision", "Recall", "AUC", "Kappa",
}

func summaryRow(s evaluation.Summary) []string {
	return []string{
		DisplayName(s.Classifier),
		DisplayName(s.Sampling),
		SelectionName(s.Selection),
		strconv.Itoa(s.Steps),
		FormatFloat(s.Precision),
		FormatFloat(s.Recall),
		FormatFloat(s.AUC),
		FormatFloat(s.Kappa),
	}
}

// RenderSummary writes the mean metrics of every configuration
func RenderSummary(w io.Writer, title string, summaries []evaluation.Summary, format Format, colored bool) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, title, summaries)
	case FormatMarkdown:
		return renderMarkdown(w, title, summaries)
	default:
		return renderText(w, title, summaries, colored)
	}
}

func renderText(w io.Writer, title string, summaries []evaluation.Summary, colored bool) error {
	if title != "" {
		if colored {
			color.New(color.Bold).Fprintln(w, title)
		} else {
			fmt.Fprintln(w, title)
		}
		fmt.Fprintln(w, strings.Repeat("=", len(title)))
		fmt.Fprintln(w)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "no evaluation steps: at least two valid releases are needed")
		return nil
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		}),
	)

	table.Header(summaryHeaders)
	for _, s := range summaries {
		row := summaryRow(s)
		if colored {
			row[len(row)-1] = kappaColor(s.Kappa).Sprint(row[len(row)-1])
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

// kappaColor grades agreement beyond chance
func kappaColor(k float64) *color.Color {
	switch {
	case math.IsNaN(k) || k < 0.2:
		return color.New(color.FgRed)
	case k < 0.4:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func renderMarkdown(w io.Writer, title string, summaries []evaluation.Summary) error {
	if title != "" {
		fmt.Fprintf(w, "## %s\n\n", title)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(summaryHeaders, " | "))
	seps := make([]string, len(summaryHeaders))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s |\n", strings.Join(summaryRow(s), " | "))
	}
	fmt.Fprintln(w)
	return nil
}

type jsonSummary struct {
	Classifier string   `json:"classifier"`
	Sampling   string   `json:"sampling"`
	Selection  string   `json:"selection"`
	Steps      int      `json:"steps"`
	Precision  float64  `json:"precision"`
	Recall     float64  `json:"recall"`
	AUC        *float64 `json:"auc"` // null when no step had both classes
	Kappa      float64  `json:"kappa"`
}

func renderJSON(w io.Writer, title string, summaries []evaluation.Summary) error {
	out := struct {
		Dataset   string        `json:"dataset"`
		Summaries []jsonSummary `json:"summaries"`
	}{Dataset: title, Summaries: make([]jsonSummary, 0, len(summaries))}

	for _, s := range summaries {
		js := jsonSummary{
			Classifier: s.Classifier,
			Sampling:   s.Sampling,
			Selection:  s.Selection,
			Steps:      s.Steps,
			Precision:  s.Precision,
			Recall:     s.Recall,
			Kappa:      s.Kappa,
		}
		if !math.IsNaN(s.AUC) {
			auc := s.AUC
			js.AUC = &auc
		}
		out.Summaries = append(out.Summaries, js)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
