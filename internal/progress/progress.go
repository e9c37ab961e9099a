// Package progress draws per-stage progress bars for long pipeline stages.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Reporter creates one tracker per pipeline stage. A disabled reporter hands
// out trackers that draw nothing, which is what quiet and CI runs use.
type Reporter struct {
	out     io.Writer
	enabled bool
}

// NewReporter writes bars to out, or to stderr when out is nil
func NewReporter(out io.Writer, enabled bool) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	return &Reporter{out: out, enabled: enabled}
}

// Disabled returns a reporter that never draws
func Disabled() *Reporter {
	return &Reporter{out: io.Discard}
}

// Tracker wraps a progress bar for one stage
type Tracker struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	label string
	count atomic.Int64
}

// Stage starts a bar for a stage of total units. A negative total draws a spinner.
func (r *Reporter) Stage(label string, total int) *Tracker {
	if r == nil || !r.enabled {
		return &Tracker{out: io.Discard, label: label}
	}
	if total < 0 {
		return &Tracker{
			bar: progressbar.NewOptions(-1,
				progressbar.OptionSetWriter(r.out),
				progressbar.OptionSetWidth(20),
				progressbar.OptionSetDescription(label),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionClearOnFinish(),
			),
			out:   r.out,
			label: label,
		}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, out: r.out, label: label}
}

// Tick advances the bar by one unit. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.count.Add(1)
	if t.bar != nil {
		t.bar.Add(1)
	}
}

// Count is the number of ticks so far
func (t *Tracker) Count() int64 {
	return t.count.Load()
}

// Done clears the bar
func (t *Tracker) Done() {
	if t.bar == nil {
		return
	}
	t.bar.Finish()
	t.bar.Clear()
}

// Fail clears the bar and reports err under the stage label
func (t *Tracker) Fail(err error) {
	if t.bar == nil {
		return
	}
	t.bar.Finish()
	t.bar.Clear()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}
