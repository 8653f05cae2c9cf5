package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/filter"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8765", cfg.Server.Addr)
	assert.Equal(t, time.Second, time.Duration(cfg.Server.PingTimeout))
	assert.Equal(t, 640, cfg.Capture.Width)
	assert.Equal(t, 480, cfg.Capture.Height)
	assert.True(t, cfg.Capture.Mirror)
	assert.Equal(t, 3, cfg.Filter.WindowSize)
	assert.Equal(t, 1e-4, cfg.Filter.ProcessNoise)
	assert.Equal(t, 0.01, cfg.Filter.MeasurementNoise)
	assert.Equal(t, 500.0, cfg.Filter.InitialCovariance)
	assert.Equal(t, "freeze", cfg.Filter.AbsentPolicy)
	assert.True(t, cfg.Filter.Enabled)
	assert.Equal(t, 33*time.Millisecond, time.Duration(cfg.Loop.FrameInterval))
	assert.Equal(t, 0.05, cfg.Loop.PinchThreshold)
	assert.Equal(t, 70, cfg.Render.JPEGQuality)
	assert.Equal(t, "~/.mudra/mudra.db", cfg.Store.Path)
	assert.False(t, cfg.Tray.Enabled)
}

func TestLoad_OverridesKeepDefaults(t *testing.T) {
	path := writeConfig(t, "mudra.yaml", `
server:
  addr: "127.0.0.1:9000"
filter:
  window_size: 5
  absent_policy: predict
loop:
  frame_interval: 16ms
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, time.Second, time.Duration(cfg.Server.PingTimeout), "unset field keeps default")
	assert.Equal(t, 5, cfg.Filter.WindowSize)
	assert.Equal(t, 0.01, cfg.Filter.MeasurementNoise, "unset field keeps default")
	assert.Equal(t, filter.AbsentPredict, cfg.FilterConfig().AbsentPolicy)
	assert.Equal(t, 16*time.Millisecond, cfg.LoopConfig().FrameInterval)
	assert.True(t, cfg.LoopConfig().Mirror)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "mudra.json", `{}`, "must be .yaml"},
		{"bad yaml", "mudra.yaml", "server: [", "parse"},
		{"bad duration", "mudra.yml", "loop:\n  frame_interval: soon\n", "parse"},
		{"invalid window", "mudra.yaml", "filter:\n  window_size: 0\n", "window size"},
		{"invalid policy", "mudra.yaml", "filter:\n  absent_policy: guess\n", "absent policy"},
		{"invalid log format", "mudra.yaml", "log:\n  format: xml\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_TooLarge(t *testing.T) {
	body := "# " + strings.Repeat("x", MaxFileSize) + "\n"
	_, err := Load(writeConfig(t, "big.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero ping timeout", func(c *Config) { c.Server.PingTimeout = 0 }},
		{"zero width", func(c *Config) { c.Capture.Width = 0 }},
		{"no hands", func(c *Config) { c.Detector.MaxHands = 0 }},
		{"confidence above one", func(c *Config) { c.Detector.MinConfidence = 1.5 }},
		{"negative interval", func(c *Config) { c.Loop.FrameInterval = Duration(-time.Millisecond) }},
		{"zero pinch threshold", func(c *Config) { c.Loop.PinchThreshold = 0 }},
		{"jpeg quality", func(c *Config) { c.Render.JPEGQuality = 0 }},
		{"zero measurement noise", func(c *Config) { c.Filter.MeasurementNoise = 0 }},
		{"frozen filter", func(c *Config) {
			c.Filter.ProcessNoise = 0
			c.Filter.InitialCovariance = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Capture.DeviceID = 2
	cfg.Detector.MinTrackingConfidence = 0.7
	cfg.Render.DrawSkeleton = true

	assert.Equal(t, 2, cfg.CaptureConfig().DeviceID)
	assert.Equal(t, 30, cfg.CaptureConfig().FPS)
	assert.Equal(t, 0.7, cfg.DetectorConfig().MinTrackingConf)
	assert.True(t, cfg.RenderConfig().DrawSkeleton)
	assert.Equal(t, filter.DefaultConfig(), cfg.FilterConfig())
}

func TestCaptureConfig_FPSFollowsInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     int
	}{
		{33 * time.Millisecond, 30},
		{16 * time.Millisecond, 63},
		{100 * time.Millisecond, 10},
		{5 * time.Second, 1},
		{0, capture.DefaultFPS},
	}

	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			cfg := Default()
			cfg.Loop.FrameInterval = Duration(tt.interval)
			assert.Equal(t, tt.want, cfg.CaptureConfig().FPS)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.mudra/mudra.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".mudra", "mudra.db"), got)

	got, err = ExpandHome("/var/lib/mudra.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mudra.db", got)

	got, err = ExpandHome("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame_interval: 33ms")

	path := writeConfig(t, "dump.yaml", string(data))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
