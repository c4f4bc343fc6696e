package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

const minimalYAML = `
name: "market-terminal"
host: "0.0.0.0"
port: 8000
gateway:
  host: "127.0.0.1"
  port: 7497
  client_id: 1
storage:
  db_type: "sqlite"
  db_path: "test.db"
`

// -----------------------------------------------------------------------------

func TestConfig_LoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.Pacing.MaxRequests)
	assert.Equal(t, 1, cfg.Pacing.WindowSeconds)
	assert.Equal(t, 512, cfg.Pacing.QueueDepth)
	assert.Equal(t, 1000, cfg.Streaming.BufferCapacity)
	assert.Equal(t, []int{5, 10, 20}, cfg.Analytics.MAPeriods)
	assert.Equal(t, 0.02, cfg.Analytics.VolatilityHighThreshold)
	assert.Equal(t, 0.005, cfg.Analytics.VolatilityLowThreshold)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)

	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout())
	assert.Equal(t, 10*time.Second, cfg.DataTimeout())
	assert.Equal(t, 10*time.Second, cfg.StreamTimeout())
	assert.Equal(t, 30*time.Second, cfg.NewsTimeout())
	assert.Equal(t, time.Second, cfg.SweepInterval())
}

func TestConfig_ExplicitValuesSurviveDefaults(t *testing.T) {
	yaml := minimalYAML + `
pacing:
  max_requests: 10
  window_seconds: 2
analytics:
  ma_periods: [3]
`
	cfg, err := NewConfig(writeConfigFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pacing.MaxRequests)
	assert.Equal(t, 2*time.Second, cfg.PacingWindow())
	assert.Equal(t, []int{3}, cfg.Analytics.MAPeriods)
}

func TestConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestConfig_ValidationFailures(t *testing.T) {
	base := `
name: "market-terminal"
host: "0.0.0.0"
gateway:
  host: "%s"
  port: 7497
storage:
  db_type: "sqlite"
  db_path: "test.db"
port: %d
%s`

	cases := []struct {
		name        string
		gatewayHost string
		port        int
		extra       string
	}{
		{"reserved port", "127.0.0.1", 80, ""},
		{"missing gateway host", "", 8000, ""},
		{"inverted volatility thresholds", "127.0.0.1", 8000,
			"analytics:\n  volatility_high_threshold: 0.005\n  volatility_low_threshold: 0.02"},
		{"publisher enabled without url", "127.0.0.1", 8000,
			"publisher:\n  enabled: true"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := fmt.Sprintf(base, tc.gatewayHost, tc.port, tc.extra)
			_, err := NewConfig(writeConfigFile(t, yaml))
			assert.Error(t, err)
		})
	}
}

// -----------------------------------------------------------------------------

func TestConfig_SaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Port = 9000

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Port)
	assert.Equal(t, cfg.Gateway.Host, loaded.Gateway.Host)
}
