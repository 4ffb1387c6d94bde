package campaign

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"faultline/internal/model"
)

// Reporter receives campaign progress. Implementations must not block the
// trial loop.
type Reporter interface {
	TrialDone(id int64, params []float64, cls model.Classification)
	Warn(format string, args ...any)
	Summary(trials int64, elapsed time.Duration)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) TrialDone(int64, []float64, model.Classification) {}
func (NopReporter) Warn(string, ...any)                              {}
func (NopReporter) Summary(int64, time.Duration)                     {}

// ansi color per outcome tag
var categoryColors = map[model.Category]string{
	model.CategoryExpected:   "\033[32m", // green
	model.CategoryOK:         "\033[36m", // cyan
	model.CategoryError:      "\033[34m", // blue
	model.CategoryTimeout:    "\033[33m", // yellow
	model.CategoryWarning:    "\033[35m", // magenta
	model.CategorySuccess:    "\033[31m", // red
	model.CategoryCorruption: "\033[31;1m",
}

const colorReset = "\033[0m"

// CLIReporter prints one line per trial, colorized per outcome when the
// output is a terminal.
type CLIReporter struct {
	w     io.Writer
	color bool
}

func NewCLIReporter(w io.Writer) *CLIReporter {
	r := &CLIReporter{w: w}
	if f, ok := w.(*os.File); ok {
		r.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return r
}

func (r *CLIReporter) TrialDone(id int64, params []float64, cls model.Classification) {
	line := fmt.Sprintf("[%s] #%s params=%v weight=%v",
		cls.Category, humanize.Comma(id), params, cls.Weight)
	if r.color {
		if c, ok := categoryColors[cls.Category]; ok {
			line = c + line + colorReset
		}
	}
	fmt.Fprintln(r.w, line)
}

func (r *CLIReporter) Warn(format string, args ...any) {
	fmt.Fprintf(r.w, "[!] "+format+"\n", args...)
}

func (r *CLIReporter) Summary(trials int64, elapsed time.Duration) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(trials) / elapsed.Seconds()
	}
	fmt.Fprintf(r.w, "[+] %s experiments in %s (%s/s)\n",
		humanize.Comma(trials),
		elapsed.Round(time.Second),
		humanize.CommafWithDigits(rate, 1))
}
