package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/open-loop/stateflow/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestFromYAML(t *testing.T) {
	doc := `
scheduler:
  shutdown_timeout: 2s
logging:
  level: debug
`
	cfg, err := config.FromYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFromYAML_PartialDocumentKeepsDefaults(t *testing.T) {
	doc := `
logging:
  level: warn
`
	cfg, err := config.FromYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestFromYAML_InvalidLevel(t *testing.T) {
	doc := `
logging:
  level: shouting
`
	_, err := config.FromYAML(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Config{
		Scheduler: config.SchedulerConfig{ShutdownTimeout: -1},
		Logging:   config.LoggingConfig{Level: "shouting"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestBuildLogger(t *testing.T) {
	logger, err := config.Default().Logging.BuildLogger()
	require.NoError(t, err)
	logger.Info("config smoke")

	_, err = config.LoggingConfig{Level: "nope"}.BuildLogger()
	assert.Error(t, err)
}
