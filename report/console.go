package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/selection"
)

// Console prints a human-readable progress line per event.
type Console struct {
	out    io.Writer
	green  func(a ...interface{}) string
	red    func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	bold   func(a ...interface{}) string
}

// NewConsole writes to out. With plain set, no escape codes are emitted.
func NewConsole(out io.Writer, plain bool) *Console {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if plain {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c.SprintFunc()
	}
	return &Console{
		out:    out,
		green:  mk(color.FgGreen),
		red:    mk(color.FgRed),
		yellow: mk(color.FgYellow),
		cyan:   mk(color.FgCyan),
		bold:   mk(color.Bold),
	}
}

func (c *Console) OnPrefilter(_ string, res *selection.PrefilterResult) error {
	_, err := fmt.Fprintf(c.out, "%s kept %d features (C=%.4g, CV AUC=%.4f)\n",
		c.cyan("prefilter"), len(res.Selected), res.C, res.CVAUC)
	return err
}

func (c *Console) OnRound(ev selection.RoundEvent) error {
	r := ev.Round
	line := fmt.Sprintf("top-%-3d AUC %.4f  Recall %.4f  CV AUC %.4f", r.K, r.AUC, r.Recall, r.CVAUC)
	if ev.IsBest {
		line = c.green(line + "  best")
	}
	if r.Truncated {
		line += c.yellow(fmt.Sprintf("  (only %d features profiled)", len(r.Features)))
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

func (c *Console) OnFailure(_ string, f *errors.RoundFailure) error {
	_, err := fmt.Fprintf(c.out, "%s\n", c.red(fmt.Sprintf("top-%-3d failed during %s: %v", f.K, f.Stage, f.Err)))
	return err
}

func (c *Console) OnComplete(h *selection.History) error {
	best, ok := h.Best()
	if !ok {
		_, err := fmt.Fprintf(c.out, "%s\n", c.red("no round succeeded"))
		return err
	}
	_, err := fmt.Fprintf(c.out, "\n%s\n  features: %d\n  AUC:      %.4f\n  subset:   %s\n  params:   %s\n",
		c.bold("best result"), len(best.Features), best.AUC,
		strings.Join(best.Features, ", "), best.Params.String())
	return err
}
