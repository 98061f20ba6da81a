package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.Layout.GripperMargin)
	assert.Equal(t, 0.5, cfg.Layout.SideMargin)
	assert.Equal(t, 0.3, cfg.Layout.DefaultGap)
	assert.Len(t, cfg.Layout.Formats, 4)
	assert.Equal(t, "70x100", cfg.Layout.Formats[0].Name)
	assert.Equal(t, 10*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, []string{"cutting", "printing", "gluing", "packaging"}, cfg.Scheduling.DefaultRouting)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_YAMLOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serviceName: planner-test
layout:
  gripperMargin: 2
  formats:
    - name: 50x70
      width: 50
      height: 70
scheduling:
  workdayStart: "08:00"
  workdayEnd: "17:00"
  timezone: UTC
  defaultStepMinutes: 45
  downtimeDefault: 90m
  defaultRouting: [printing]
lock:
  ttl: 2m
`), 0o600))

	t.Setenv("SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "planner-test", cfg.ServiceName)
	assert.Equal(t, 2.0, cfg.Layout.GripperMargin)
	assert.Equal(t, 0.5, cfg.Layout.SideMargin)
	require.Len(t, cfg.Layout.Formats, 1)
	assert.Equal(t, "50x70", cfg.Layout.Formats[0].Name)
	assert.Equal(t, 90*time.Minute, cfg.Scheduling.DowntimeDefault)
	assert.Equal(t, 2*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, "9191", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown lock backend", mutate: func(c *Config) { c.Lock.Backend = "zookeeper" }},
		{name: "no formats", mutate: func(c *Config) { c.Layout.Formats = nil }},
		{name: "negative format", mutate: func(c *Config) { c.Layout.Formats[0].Width = -1 }},
		{name: "bad clock", mutate: func(c *Config) { c.Scheduling.WorkdayStart = "9am" }},
		{name: "empty workday", mutate: func(c *Config) { c.Scheduling.WorkdayEnd = c.Scheduling.WorkdayStart }},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduling.Timezone = "Mars/Olympus" }},
		{name: "http calendar without url", mutate: func(c *Config) { c.Calendar.Mode = CalendarHTTP }},
		{name: "mongo lock on memory storage", mutate: func(c *Config) { c.Lock.Backend = BackendMongoDB }},
		{name: "redis lock without redis", mutate: func(c *Config) { c.Lock.Backend = BackendRedis }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}
