// Package config loads the mudra configuration file.
//
// Values are resolved in order: built-in defaults, then the YAML file, then
// command-line flags. Fields missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/render"
	"github.com/ayusman/mudra/internal/session"
)

// MaxFileSize caps how much of a config file is read.
const MaxFileSize = 1 << 20

// ErrUnsupportedFormat is returned for config files that are not YAML.
var ErrUnsupportedFormat = errors.New("config file must be .yaml or .yml")

// Duration is a time.Duration that reads and writes as "33ms" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Filter   FilterConfig   `yaml:"filter"`
	Loop     LoopConfig     `yaml:"loop"`
	Render   RenderConfig   `yaml:"render"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Tray     TrayConfig     `yaml:"tray"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	StaticDir   string   `yaml:"static_dir"`
	PingTimeout Duration `yaml:"ping_timeout"`
}

type CaptureConfig struct {
	DeviceID int  `yaml:"device_id"`
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Mirror   bool `yaml:"mirror"`
}

type DetectorConfig struct {
	MaxHands              int     `yaml:"max_hands"`
	MinConfidence         float64 `yaml:"min_confidence"`
	MinTrackingConfidence float64 `yaml:"min_tracking_confidence"`
	ScriptPath            string  `yaml:"script_path"`
	PythonPath            string  `yaml:"python_path"`
}

type FilterConfig struct {
	WindowSize        int     `yaml:"window_size"`
	Dt                float64 `yaml:"dt"`
	ProcessNoise      float64 `yaml:"process_noise"`
	MeasurementNoise  float64 `yaml:"measurement_noise"`
	InitialCovariance float64 `yaml:"initial_covariance"`
	AbsentPolicy      string  `yaml:"absent_policy"`
	Enabled           bool    `yaml:"enabled"`
}

type LoopConfig struct {
	FrameInterval  Duration `yaml:"frame_interval"`
	PinchThreshold float64  `yaml:"pinch_threshold"`
}

type RenderConfig struct {
	Width        int  `yaml:"width"`
	Height       int  `yaml:"height"`
	JPEGQuality  int  `yaml:"jpeg_quality"`
	DrawSkeleton bool `yaml:"draw_skeleton"`
}

// StoreConfig locates the session history database. An empty path disables
// history.
type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	fc := filter.DefaultConfig()
	dc := detector.DefaultConfig()
	rc := render.DefaultConfig()
	cc := capture.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:        ":8765",
			PingTimeout: Duration(time.Second),
		},
		Capture: CaptureConfig{
			DeviceID: cc.DeviceID,
			Width:    cc.Width,
			Height:   cc.Height,
			Mirror:   true,
		},
		Detector: DetectorConfig{
			MaxHands:              dc.MaxHands,
			MinConfidence:         dc.MinConfidence,
			MinTrackingConfidence: dc.MinTrackingConf,
		},
		Filter: FilterConfig{
			WindowSize:        fc.WindowSize,
			Dt:                fc.Dt,
			ProcessNoise:      fc.ProcessNoise,
			MeasurementNoise:  fc.MeasurementNoise,
			InitialCovariance: fc.InitialCovariance,
			AbsentPolicy:      string(fc.AbsentPolicy),
			Enabled:           true,
		},
		Loop: LoopConfig{
			FrameInterval:  Duration(session.DefaultFrameInterval),
			PinchThreshold: session.DefaultPinchThreshold,
		},
		Render: RenderConfig{
			Width:       rc.Width,
			Height:      rc.Height,
			JPEGQuality: rc.JPEGQuality,
		},
		Store: StoreConfig{Path: "~/.mudra/mudra.db"},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. The result is validated.
func Load(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxFileSize)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.PingTimeout <= 0 {
		return fmt.Errorf("server.ping_timeout must be positive, got %s", time.Duration(c.Server.PingTimeout))
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("capture size must be positive, got %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if c.Detector.MaxHands < 1 {
		return fmt.Errorf("detector.max_hands must be at least 1, got %d", c.Detector.MaxHands)
	}
	if !unitInterval(c.Detector.MinConfidence) || !unitInterval(c.Detector.MinTrackingConfidence) {
		return errors.New("detector confidences must be in [0, 1]")
	}
	if err := c.FilterConfig().Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if c.Loop.FrameInterval < 0 {
		return fmt.Errorf("loop.frame_interval must not be negative, got %s", time.Duration(c.Loop.FrameInterval))
	}
	if c.Loop.PinchThreshold <= 0 {
		return fmt.Errorf("loop.pinch_threshold must be positive, got %f", c.Loop.PinchThreshold)
	}
	if err := c.RenderConfig().Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// FilterConfig converts the filter section.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		WindowSize:        c.Filter.WindowSize,
		Dt:                c.Filter.Dt,
		ProcessNoise:      c.Filter.ProcessNoise,
		MeasurementNoise:  c.Filter.MeasurementNoise,
		InitialCovariance: c.Filter.InitialCovariance,
		AbsentPolicy:      filter.AbsentPolicy(c.Filter.AbsentPolicy),
	}
}

// CaptureConfig converts the capture section. The device frame rate follows
// the loop interval; an unpaced loop keeps the camera default.
func (c *Config) CaptureConfig() capture.Config {
	cc := capture.DefaultConfig()
	cc.DeviceID = c.Capture.DeviceID
	cc.Width = c.Capture.Width
	cc.Height = c.Capture.Height
	if interval := time.Duration(c.Loop.FrameInterval); interval > 0 {
		cc.FPS = max(1, int(math.Round(float64(time.Second)/float64(interval))))
	}
	return cc
}

// DetectorConfig converts the detector section.
func (c *Config) DetectorConfig() detector.Config {
	dc := detector.DefaultConfig()
	dc.MaxHands = c.Detector.MaxHands
	dc.MinConfidence = c.Detector.MinConfidence
	dc.MinTrackingConf = c.Detector.MinTrackingConfidence
	dc.ScriptPath = c.Detector.ScriptPath
	dc.PythonPath = c.Detector.PythonPath
	return dc
}

// RenderConfig converts the render section.
func (c *Config) RenderConfig() render.Config {
	return render.Config{
		Width:        c.Render.Width,
		Height:       c.Render.Height,
		JPEGQuality:  c.Render.JPEGQuality,
		DrawSkeleton: c.Render.DrawSkeleton,
	}
}

// LoopConfig converts the loop section.
func (c *Config) LoopConfig() session.LoopConfig {
	return session.LoopConfig{
		FrameInterval:  time.Duration(c.Loop.FrameInterval),
		PinchThreshold: c.Loop.PinchThreshold,
		Mirror:         c.Capture.Mirror,
	}
}

// StorePath returns the database path with a leading ~ expanded.
func (c *Config) StorePath() (string, error) {
	return ExpandHome(c.Store.Path)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
