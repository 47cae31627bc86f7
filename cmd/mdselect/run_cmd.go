package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mindepth/config"
	"github.com/YuminosukeSato/mindepth/dataset"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/report"
	"github.com/YuminosukeSato/mindepth/selection"
)

type runCmdConfig struct {
	envFile     string
	train       string
	test        string
	label       string
	out         string
	searchSpace string
	logLevel    string
	onFailure   string
	floor       int
	iterations  int
	cv          int
	workers     int
	depthTrees  int
	seed        uint64
	plain       bool
}

func runCmd() *cobra.Command {
	flags := &runCmdConfig{}
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the prefilter and the elimination loop",
		Long:  `Loads the Train and Test cohorts, scales them per cohort, prefilters with an L1 logistic model and evaluates every subset size from the prefilter's selection down to the floor. Artifacts are written into --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.LoadEnv(flags.envFile); err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.LoadSearchSpace(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := log.SetupLogger(cfg.LogLevel, true); err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, cmd.OutOrStdout(), flags.plain)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.envFile, "env-file", ".env", "dotenv file with MDSELECT_* settings (ignored when missing)")
	fs.StringVar(&flags.train, "train", "", "path to the Train cohort (.csv or .xlsx, required)")
	fs.StringVar(&flags.test, "test", "", "path to the Test cohort (.csv or .xlsx, required)")
	fs.StringVar(&flags.label, "label", defaults.Label, "name of the binary label column")
	fs.StringVarP(&flags.out, "out", "o", defaults.OutDir, "directory receiving every artifact")
	fs.StringVar(&flags.searchSpace, "search-space", "", "YAML file with the forest search space (defaults to the built-in space)")
	fs.StringVar(&flags.logLevel, "log-level", defaults.LogLevel, "debug, info, warn or error")
	fs.StringVar(&flags.onFailure, "on-failure", string(defaults.Selection.FailurePolicy), "what to do when a round fails: skip or abort")
	fs.IntVar(&flags.floor, "floor", defaults.Selection.Floor, "smallest subset size evaluated")
	fs.IntVar(&flags.iterations, "iterations", defaults.Selection.NIter, "sampled configurations per tuning search")
	fs.IntVar(&flags.cv, "cv", defaults.Selection.CV, "stratified folds of the tuning search")
	fs.IntVar(&flags.workers, "workers", defaults.Selection.Workers, "concurrent tasks (0 uses every CPU)")
	fs.IntVar(&flags.depthTrees, "depth-trees", defaults.Selection.DepthTrees, "trees of the minimal-depth forest")
	fs.Uint64Var(&flags.seed, "seed", defaults.Selection.Seed, "seed of every random stream")
	fs.BoolVar(&flags.plain, "plain", false, "disable colored console output")
	return cmd
}

// apply copies only the flags set on the command line, so that .env and
// environment values survive unset flags.
func (f *runCmdConfig) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	setInt := func(name string, dst *int, v int) {
		if changed(name) {
			*dst = v
		}
	}
	setString("train", &cfg.TrainPath, f.train)
	setString("test", &cfg.TestPath, f.test)
	setString("label", &cfg.Label, f.label)
	setString("out", &cfg.OutDir, f.out)
	setString("search-space", &cfg.SearchSpacePath, f.searchSpace)
	setString("log-level", &cfg.LogLevel, f.logLevel)
	if changed("on-failure") {
		cfg.Selection.FailurePolicy = selection.FailurePolicy(f.onFailure)
	}
	setInt("floor", &cfg.Selection.Floor, f.floor)
	setInt("iterations", &cfg.Selection.NIter, f.iterations)
	setInt("cv", &cfg.Selection.CV, f.cv)
	setInt("workers", &cfg.Selection.Workers, f.workers)
	setInt("depth-trees", &cfg.Selection.DepthTrees, f.depthTrees)
	if changed("seed") {
		cfg.Selection.Seed = f.seed
	}
}

func execute(ctx context.Context, cfg *config.Config, out io.Writer, plain bool) error {
	logger := log.GetLoggerWithName("mdselect")

	ds, err := dataset.Load(cfg.TrainPath, cfg.TestPath, cfg.Label)
	if err != nil {
		return err
	}
	scaled, err := ds.Scale()
	if err != nil {
		return err
	}
	logger.Info("dataset loaded",
		log.FeaturesKey, len(ds.Features),
		log.SamplesKey, ds.Train.Rows()+ds.Test.Rows(),
		log.RandomSeedKey, cfg.Selection.Seed,
	)

	writer, err := report.NewWriter(cfg.OutDir)
	if err != nil {
		return err
	}
	sel, err := selection.NewSelector(cfg.Selection, selection.Observers{report.NewConsole(out, plain), writer})
	if err != nil {
		return err
	}
	if _, err := sel.Run(ctx, scaled); err != nil {
		var rf *errors.RoundFailure
		if errors.As(err, &rf) {
			return errors.Wrapf(err, "aborted at round k=%d with %d candidates", rf.K, rf.Candidates)
		}
		return err
	}
	return nil
}
