package selection

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// Round is the immutable record of one successful round.
type Round struct {
	K          int
	Candidates int // pool size at the start of the round
	Features   []string
	Params     model_selection.ParamSet
	AUC        float64
	Recall     float64
	Accuracy   float64
	LogLoss    float64
	CVAUC      float64
	Truncated  bool
	Ranking    []MinimalDepth
	Duration   time.Duration
}

// History is the ordered outcome of a run.
type History struct {
	RunID     string
	Prefilter *PrefilterResult
	Rounds    []Round
	Failures  []*errors.RoundFailure
	// BestIndex points into Rounds; -1 while no round succeeded.
	BestIndex int
}

func newHistory(runID string) *History {
	return &History{RunID: runID, BestIndex: -1}
}

// record appends a round and reports whether it became the best. Only a
// strictly greater AUC replaces the incumbent.
func (h *History) record(r Round) bool {
	h.Rounds = append(h.Rounds, r)
	if h.BestIndex < 0 || r.AUC > h.Rounds[h.BestIndex].AUC {
		h.BestIndex = len(h.Rounds) - 1
		return true
	}
	return false
}

// Best returns the best round, if any.
func (h *History) Best() (Round, bool) {
	if h == nil || h.BestIndex < 0 {
		return Round{}, false
	}
	return h.Rounds[h.BestIndex], true
}

// RoundEvent is passed to observers after each successful round.
type RoundEvent struct {
	RunID  string
	Round  Round
	Result *TuningResult
	// XTest is the Test cohort restricted to Round.Features.
	XTest  mat.Matrix
	YTest  []float64
	IsBest bool
}

// Observer receives progress from the loop. The loop never prints; every
// sink (console, files) is an Observer. An error returned by an observer
// stops the run.
type Observer interface {
	OnPrefilter(runID string, res *PrefilterResult) error
	OnRound(ev RoundEvent) error
	OnFailure(runID string, f *errors.RoundFailure) error
	OnComplete(h *History) error
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnPrefilter(string, *PrefilterResult) error { return nil }
func (NopObserver) OnRound(RoundEvent) error { return nil }
func (NopObserver) OnFailure(string, *errors.RoundFailure) error { return nil }
func (NopObserver) OnComplete(*History) error { return nil }

// Observers fans every event out to each observer in order.
type Observers []Observer

func (obs Observers) OnPrefilter(runID string, res *PrefilterResult) error {
	for _, o := range obs {
		if err := o.OnPrefilter(runID, res); err != nil {
			return err
		}
	}
	return nil
}

func (obs Observers) OnRound(ev RoundEvent) error {
	for _, o := range obs {
		if err := o.OnRound(ev); err != nil {
			return err
		}
	}
	return nil
}

func (obs Observers) OnFailure(runID string, f *errors.RoundFailure) error {
	for _, o := range obs {
		if err := o.OnFailure(runID, f); err != nil {
			return err
		}
	}
	return nil
}

func (obs Observers) OnComplete(h *History) error {
	for _, o := range obs {
		if err := o.OnComplete(h); err != nil {
			return err
		}
	}
	return nil
}
