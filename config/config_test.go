package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/selection"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "Group", c.Label)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 5, c.Selection.Floor)
	assert.Equal(t, 30, c.Selection.NIter)
	assert.Equal(t, 5, c.Selection.CV)
	assert.Equal(t, uint64(42), c.Selection.Seed)
	assert.Equal(t, selection.FailSkip, c.Selection.FailurePolicy)

	// paths are required
	var ce *errors.ConfigurationError
	require.True(t, errors.As(c.Validate(), &ce))
	assert.Equal(t, "train", ce.Param)
}

func TestLoadEnv_Precedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"MDSELECT_TRAIN=train.csv\n"+
			"MDSELECT_TEST=test.csv\n"+
			"MDSELECT_FLOOR=3\n"+
			"MDSELECT_SEED=7\n"+
			"MDSELECT_ON_FAILURE=abort\n"), 0o600))
	t.Setenv("MDSELECT_FLOOR", "4")
	t.Setenv("MDSELECT_ITERATIONS", "12")

	c := Default()
	require.NoError(t, c.LoadEnv(envFile))
	assert.Equal(t, "train.csv", c.TrainPath)
	assert.Equal(t, "test.csv", c.TestPath)
	assert.Equal(t, 4, c.Selection.Floor, "process environment wins over .env")
	assert.Equal(t, 12, c.Selection.NIter)
	assert.Equal(t, uint64(7), c.Selection.Seed)
	assert.Equal(t, selection.FailAbort, c.Selection.FailurePolicy)
	assert.NoError(t, c.Validate())
}

func TestLoadEnv_MissingFile(t *testing.T) {
	c := Default()
	assert.NoError(t, c.LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, 5, c.Selection.Floor)
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"MDSELECT_FLOOR":      "five",
		"MDSELECT_SEED":       "-1",
		"MDSELECT_ON_FAILURE": "retry",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			c := Default()
			err := c.ApplyEnv(func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			})
			var ce *errors.ConfigurationError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestLoadSearchSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"n_estimators: {randint: [10, 50]}\n"+
			"max_depth: {choice: [none, 4, 8]}\n"+
			"criterion: [gini, entropy]\n"), 0o600))

	c := Default()
	c.SearchSpacePath = path
	require.NoError(t, c.LoadSearchSpace())
	assert.Equal(t, []string{"n_estimators", "max_depth", "criterion"}, c.Selection.SearchSpace.Names())
	assert.Equal(t, model_selection.RandInt{Low: 10, High: 50}, c.Selection.SearchSpace.Params[0].Dist)

	c.TrainPath, c.TestPath = "a.csv", "b.csv"
	assert.NoError(t, c.Validate())
}

func TestValidate_RejectsBadSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte("learning_rate: [0.1, 0.01]\n"), 0o600))

	c := Default()
	c.TrainPath, c.TestPath = "a.csv", "b.csv"
	c.SearchSpacePath = path
	require.NoError(t, c.LoadSearchSpace())

	var ce *errors.ConfigurationError
	require.True(t, errors.As(c.Validate(), &ce))
	assert.Equal(t, "search_space.learning_rate", ce.Param)
}

func TestValidate_Fields(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.TrainPath, c.TestPath = "a.csv", "b.csv"
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"label", func(c *Config) { c.Label = "" }, "label"},
		{"out", func(c *Config) { c.OutDir = "" }, "out"},
		{"workers", func(c *Config) { c.Selection.Workers = -1 }, "workers"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"floor", func(c *Config) { c.Selection.Floor = 0 }, "floor"},
		{"cv", func(c *Config) { c.Selection.CV = 1 }, "cv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			var ce *errors.ConfigurationError
			require.True(t, errors.As(c.Validate(), &ce))
			assert.Equal(t, tt.param, ce.Param)
		})
	}
}

func TestEffectiveWorkers(t *testing.T) {
	c := Default()
	assert.Positive(t, c.EffectiveWorkers())
	c.Selection.Workers = 3
	assert.Equal(t, 3, c.EffectiveWorkers())
}
