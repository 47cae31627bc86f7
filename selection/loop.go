package selection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/dataset"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// Round stages named in RoundFailure.
const (
	StageDepthForest  = "depth_forest"
	StageDepthProfile = "depth_profile"
	StageTuning       = "tuning"
)

// Selector drives the stepwise minimal-depth elimination.
type Selector struct {
	opts      Options
	prefilter *Prefilter
	analyzer  *DepthAnalyzer
	tuner     *Tuner
	observer  Observer
	logger    log.Logger
}

// NewSelector validates opts and wires the components. A nil observer is
// replaced by NopObserver.
func NewSelector(opts Options, observer Observer) (*Selector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.FailurePolicy, _ = ParseFailurePolicy(string(opts.FailurePolicy))
	if observer == nil {
		observer = NopObserver{}
	}
	return &Selector{
		opts:      opts,
		prefilter: NewPrefilter(opts),
		analyzer:  NewDepthAnalyzer(opts),
		tuner:     NewTuner(opts),
		observer:  observer,
		logger:    log.GetLoggerWithName("selection"),
	}, nil
}

// Run prefilters the Train cohort of ds and then runs the elimination loop
// from the selected features. ds should already be scaled.
func (s *Selector) Run(ctx context.Context, ds *dataset.Dataset) (*History, error) {
	runID := s.runID()
	pre, err := s.prefilter.Run(ctx, ds.Train.X, ds.Train.Y, ds.Features)
	if err != nil {
		return nil, err
	}
	if err := s.observer.OnPrefilter(runID, pre); err != nil {
		return nil, errors.Wrap(err, "prefilter observer")
	}
	h, err := s.loop(ctx, ds, pre.Selected, runID)
	if h != nil {
		h.Prefilter = pre
	}
	return h, err
}

// RunFrom runs the elimination loop from an explicit candidate pool,
// skipping the prefilter.
func (s *Selector) RunFrom(ctx context.Context, ds *dataset.Dataset, candidates []string) (*History, error) {
	return s.loop(ctx, ds, candidates, s.runID())
}

func (s *Selector) runID() string {
	if s.opts.RunID != "" {
		return s.opts.RunID
	}
	return uuid.NewString()
}

func (s *Selector) loop(ctx context.Context, ds *dataset.Dataset, candidates []string, runID string) (*History, error) {
	if len(candidates) < s.opts.Floor {
		return nil, errors.NewSelectionExhaustedError("loop", len(candidates), s.opts.Floor,
			"candidate pool is smaller than the floor")
	}
	if _, err := ds.Indices(candidates); err != nil {
		return nil, err
	}

	h := newHistory(runID)
	logger := s.logger.With(log.RunIDKey, runID, log.PolicyKey, string(s.opts.FailurePolicy))
	pool := append([]string(nil), candidates...)

	for k := len(pool); k >= s.opts.Floor; k-- {
		if err := ctx.Err(); err != nil {
			return h, errors.Wrapf(err, "cancelled before round k=%d", k)
		}

		ev, err := s.round(ctx, ds, k, pool)
		if err != nil {
			var rf *errors.RoundFailure
			if !errors.As(err, &rf) {
				rf = &errors.RoundFailure{K: k, Candidates: len(pool), Stage: "round", Err: err}
			}
			h.Failures = append(h.Failures, rf)
			logger.Error("round failed", err,
				log.RoundKey, k,
				log.CandidatesKey, len(pool),
				log.StageKey, rf.Stage,
			)
			if oerr := s.observer.OnFailure(runID, rf); oerr != nil {
				return h, errors.Wrap(oerr, "failure observer")
			}
			if ctx.Err() != nil {
				return h, errors.Wrapf(err, "cancelled during round k=%d", k)
			}
			if s.opts.FailurePolicy == FailAbort {
				return h, err
			}
			continue
		}

		ev.RunID = runID
		ev.IsBest = h.record(ev.Round)
		logger.Info("round completed",
			log.RoundKey, k,
			log.CandidatesKey, len(pool),
			log.SelectedKey, len(ev.Round.Features),
			log.TruncatedKey, ev.Round.Truncated,
			log.AUCKey, ev.Round.AUC,
			log.RecallKey, ev.Round.Recall,
			log.AccuracyKey, ev.Round.Accuracy,
			log.CVAUCKey, ev.Round.CVAUC,
			log.HyperParamsKey, ev.Round.Params.String(),
		)
		if err := s.observer.OnRound(ev); err != nil {
			return h, errors.Wrapf(err, "round observer at k=%d", k)
		}
		pool = ev.Round.Features
	}

	if best, ok := h.Best(); ok {
		logger.Info("selection finished",
			"rounds", len(h.Rounds),
			"failures", len(h.Failures),
			"best_k", best.K,
			log.AUCKey, best.AUC,
		)
	} else {
		logger.Warn("selection finished without a successful round", "failures", len(h.Failures))
	}
	if err := s.observer.OnComplete(h); err != nil {
		return h, errors.Wrap(err, "completion observer")
	}
	return h, nil
}

// round evaluates one subset size. Any error or panic comes back as a
// RoundFailure naming the stage it happened in.
func (s *Selector) round(ctx context.Context, ds *dataset.Dataset, k int, pool []string) (ev RoundEvent, err error) {
	stage := StageDepthForest
	start := time.Now()
	defer func() {
		if err != nil {
			err = errors.NewRoundFailure(k, len(pool), stage, err)
		}
	}()
	err = errors.SafeExecute("selection round", func() error {
		idx, err := ds.Indices(pool)
		if err != nil {
			return err
		}
		xPool := model_selection.TakeColumns(ds.Train.X, idx)
		forest, err := s.analyzer.Fit(ctx, xPool, ds.Train.Y)
		if err != nil {
			return err
		}

		stage = StageDepthProfile
		ranked, err := s.analyzer.Rank(forest, pool)
		if err != nil {
			return err
		}
		features, truncated := TopK(ranked, k)
		if truncated {
			s.logger.Warn("fewer profiled features than k",
				log.RoundKey, k,
				log.SelectedKey, len(features),
			)
		}

		stage = StageTuning
		sub, err := ds.Subset(features)
		if err != nil {
			return err
		}
		res, err := s.tuner.Tune(ctx, features, sub.Train.X, sub.Train.Y, sub.Test.X, sub.Test.Y)
		if err != nil {
			return err
		}

		ev = RoundEvent{
			Round: Round{
				K:          k,
				Candidates: len(pool),
				Features:   features,
				Params:     res.Params,
				AUC:        res.AUC,
				Recall:     res.Recall,
				Accuracy:   res.Accuracy,
				LogLoss:    res.LogLoss,
				CVAUC:      res.CVAUC,
				Truncated:  truncated,
				Ranking:    ranked,
				Duration:   time.Since(start),
			},
			Result: res,
			XTest:  mat.DenseCopyOf(sub.Test.X),
			YTest:  sub.Test.Y,
		}
		return nil
	})
	return ev, err
}
