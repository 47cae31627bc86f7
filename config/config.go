// Package config resolves the settings of a selection run.
//
// 優先順位: デフォルト値 → .env ファイル → MDSELECT_* 環境変数 → CLIフラグ。
// フラグの適用は cmd 側で行い、ここでは前の三段と検証を受け持つ。
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/YuminosukeSato/mindepth/dataset"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/selection"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// EnvPrefix prefixes every environment variable read by Config.
const EnvPrefix = "MDSELECT_"

// Environment variable names (without EnvPrefix).
const (
	EnvTrain       = "TRAIN"
	EnvTest        = "TEST"
	EnvLabel       = "LABEL"
	EnvOut         = "OUT"
	EnvSearchSpace = "SEARCH_SPACE"
	EnvLogLevel    = "LOG_LEVEL"
	EnvFloor       = "FLOOR"
	EnvIterations  = "ITERATIONS"
	EnvCV          = "CV"
	EnvSeed        = "SEED"
	EnvWorkers     = "WORKERS"
	EnvOnFailure   = "ON_FAILURE"
	EnvDepthTrees  = "DEPTH_TREES"
)

// Config is everything the CLI needs for one run.
type Config struct {
	TrainPath       string
	TestPath        string
	Label           string
	OutDir          string
	SearchSpacePath string
	LogLevel        string
	Selection       selection.Options
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Label:     dataset.DefaultLabel,
		OutDir:    "output",
		LogLevel:  "info",
		Selection: selection.DefaultOptions(),
	}
}

// LoadEnv applies envFile (when it exists) and then the process
// environment. Process variables win over the file.
func (c *Config) LoadEnv(envFile string) error {
	fileValues := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileValues = m
		case os.IsNotExist(err):
		default:
			return errors.Wrapf(err, "reading %s", envFile)
		}
	}
	return c.ApplyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	})
}

// ApplyEnv overrides fields from lookup, which receives full variable
// names such as MDSELECT_FLOOR.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) { return lookup(EnvPrefix + name) }

	for name, dst := range map[string]*string{
		EnvTrain:       &c.TrainPath,
		EnvTest:        &c.TestPath,
		EnvLabel:       &c.Label,
		EnvOut:         &c.OutDir,
		EnvSearchSpace: &c.SearchSpacePath,
		EnvLogLevel:    &c.LogLevel,
	} {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	for name, dst := range map[string]*int{
		EnvFloor:      &c.Selection.Floor,
		EnvIterations: &c.Selection.NIter,
		EnvCV:         &c.Selection.CV,
		EnvWorkers:    &c.Selection.Workers,
		EnvDepthTrees: &c.Selection.DepthTrees,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewConfigurationError(EnvPrefix+name, "must be an integer", v)
		}
		*dst = n
	}

	if v, ok := get(EnvSeed); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.NewConfigurationError(EnvPrefix+EnvSeed, "must be a non-negative integer", v)
		}
		c.Selection.Seed = seed
	}
	if v, ok := get(EnvOnFailure); ok {
		p, err := selection.ParseFailurePolicy(v)
		if err != nil {
			return err
		}
		c.Selection.FailurePolicy = p
	}
	return nil
}

// LoadSearchSpace replaces the default search space with the YAML file at
// SearchSpacePath, if set.
func (c *Config) LoadSearchSpace() error {
	if c.SearchSpacePath == "" {
		return nil
	}
	data, err := os.ReadFile(c.SearchSpacePath)
	if err != nil {
		return errors.Wrapf(err, "reading search space %s", c.SearchSpacePath)
	}
	space, err := model_selection.ParseSearchSpace(data)
	if err != nil {
		return errors.Wrapf(err, "parsing search space %s", c.SearchSpacePath)
	}
	c.Selection.SearchSpace = space
	return nil
}

// Validate checks the run inputs and every selection option.
func (c *Config) Validate() error {
	if c.TrainPath == "" {
		return errors.NewConfigurationError("train", "path is required", c.TrainPath)
	}
	if c.TestPath == "" {
		return errors.NewConfigurationError("test", "path is required", c.TestPath)
	}
	if c.Label == "" {
		return errors.NewConfigurationError("label", "must not be empty", c.Label)
	}
	if c.OutDir == "" {
		return errors.NewConfigurationError("out", "must not be empty", c.OutDir)
	}
	if c.Selection.Workers < 0 {
		return errors.NewConfigurationError("workers", "must not be negative", c.Selection.Workers)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.Selection.Validate()
}

// EffectiveWorkers resolves Workers == 0 to the CPU count.
func (c *Config) EffectiveWorkers() int {
	if c.Selection.Workers > 0 {
		return c.Selection.Workers
	}
	return runtime.NumCPU()
}
