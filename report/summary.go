package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/YuminosukeSato/mindepth/selection"
)

// Summary is the end-of-run digest written as JSON, Markdown and HTML.
type Summary struct {
	RunID        string                 `json:"run_id"`
	Succeeded    bool                   `json:"succeeded"`
	BestK        int                    `json:"best_k"`
	BestAUC      float64                `json:"best_auc"`
	BestRecall   float64                `json:"best_recall"`
	BestCVAUC    float64                `json:"best_cv_auc"`
	BestFeatures []string               `json:"best_features"`
	BestParams   map[string]interface{} `json:"best_params"`
	Prefilter    *PrefilterSummary      `json:"prefilter,omitempty"`
	Rounds       []RoundSummary         `json:"rounds"`
	Failures     []FailureSummary       `json:"failures"`
}

// PrefilterSummary describes the L1 stage.
type PrefilterSummary struct {
	Selected int     `json:"selected"`
	C        float64 `json:"c"`
	CVAUC    float64 `json:"cv_auc"`
}

// RoundSummary is one successful round.
type RoundSummary struct {
	K         int     `json:"k"`
	Features  int     `json:"num_features"`
	AUC       float64 `json:"auc"`
	Recall    float64 `json:"recall"`
	Accuracy  float64 `json:"accuracy"`
	LogLoss   float64 `json:"log_loss"`
	CVAUC     float64 `json:"cv_auc"`
	Truncated bool    `json:"truncated,omitempty"`
	Params    string  `json:"params"`
}

// FailureSummary is one failed round.
type FailureSummary struct {
	K          int    `json:"k"`
	Candidates int    `json:"candidates"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// NewSummary digests a history.
func NewSummary(h *selection.History) *Summary {
	s := &Summary{
		RunID:        h.RunID,
		BestFeatures: []string{},
		BestParams:   map[string]interface{}{},
		Rounds:       make([]RoundSummary, 0, len(h.Rounds)),
		Failures:     make([]FailureSummary, 0, len(h.Failures)),
	}
	if best, ok := h.Best(); ok {
		s.Succeeded = true
		s.BestK = best.K
		s.BestAUC = best.AUC
		s.BestRecall = best.Recall
		s.BestCVAUC = best.CVAUC
		s.BestFeatures = append(s.BestFeatures, best.Features...)
		for k, v := range best.Params {
			s.BestParams[k] = v
		}
	}
	if h.Prefilter != nil {
		s.Prefilter = &PrefilterSummary{
			Selected: len(h.Prefilter.Selected),
			C:        h.Prefilter.C,
			CVAUC:    h.Prefilter.CVAUC,
		}
	}
	for _, r := range h.Rounds {
		s.Rounds = append(s.Rounds, RoundSummary{
			K:         r.K,
			Features:  len(r.Features),
			AUC:       r.AUC,
			Recall:    r.Recall,
			Accuracy:  r.Accuracy,
			LogLoss:   r.LogLoss,
			CVAUC:     r.CVAUC,
			Truncated: r.Truncated,
			Params:    r.Params.String(),
		})
	}
	for _, f := range h.Failures {
		s.Failures = append(s.Failures, FailureSummary{
			K:          f.K,
			Candidates: f.Candidates,
			Stage:      f.Stage,
			Error:      fmt.Sprint(f.Err),
		})
	}
	return s
}

// JSON returns the indented JSON document.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Markdown renders the summary as a Markdown report.
func (s *Summary) Markdown() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Minimal-depth feature selection\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", s.RunID)
	if s.Prefilter != nil {
		fmt.Fprintf(&b, "- Prefilter: %d features kept (C = %.4g, CV AUC = %.4f)\n",
			s.Prefilter.Selected, s.Prefilter.C, s.Prefilter.CVAUC)
	}
	fmt.Fprintf(&b, "- Rounds: %d succeeded, %d failed\n\n", len(s.Rounds), len(s.Failures))

	if !s.Succeeded {
		b.WriteString("No round succeeded.\n")
	} else {
		fmt.Fprintf(&b, "## Best subset (k = %d)\n\n", s.BestK)
		fmt.Fprintf(&b, "Test AUC **%.4f**, recall %.4f, CV AUC %.4f.\n\n", s.BestAUC, s.BestRecall, s.BestCVAUC)
		for i, f := range s.BestFeatures {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}
		b.WriteString("\n### Hyperparameters\n\n| Parameter | Value |\n| --- | --- |\n")
		names := make([]string, 0, len(s.BestParams))
		for name := range s.BestParams {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := s.BestParams[name]
			if v == nil {
				v = "None"
			}
			fmt.Fprintf(&b, "| %s | %v |\n", name, v)
		}
		b.WriteString("\n")
	}

	if len(s.Rounds) > 0 {
		b.WriteString("## Rounds\n\n| k | Features | AUC | Recall | Accuracy | Log loss | CV AUC |\n| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, r := range s.Rounds {
			fmt.Fprintf(&b, "| %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f |\n", r.K, r.Features, r.AUC, r.Recall, r.Accuracy, r.LogLoss, r.CVAUC)
		}
		b.WriteString("\n")
	}
	if len(s.Failures) > 0 {
		b.WriteString("## Failures\n\n| k | Candidates | Stage | Error |\n| --- | --- | --- | --- |\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "| %d | %d | %s | %s |\n", f.K, f.Candidates, f.Stage, escapeCell(f.Error))
		}
	}
	return b.Bytes()
}

// HTML renders Markdown() into a standalone page.
func (s *Summary) HTML() []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{
		Title: "mindepth run " + s.RunID,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(s.Markdown(), p, r)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func escapeCell(s string) string {
	return cellEscaper.Replace(s)
}
