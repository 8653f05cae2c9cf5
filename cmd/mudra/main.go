// Package main provides the mudra CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mudra",
		Short: "Mudra - webcam fingertip tracking for browser games",
		Long: `Mudra tracks your index fingertip through the webcam and streams a
smoothed position, a pinch flag and a preview image to websocket clients
about 30 times per second.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", getEnvStr("MUDRA_CONFIG", ""), "Path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mudra v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tracking server",
		RunE:  runServe,
	}
	addOverrideFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}
	addOverrideFlags(configCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addOverrideFlags registers the flags that override config file values.
func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("addr", getEnvStr("MUDRA_ADDR", ":8765"), "Listen address")
	f.String("static-dir", getEnvStr("MUDRA_STATIC_DIR", ""), "Directory of static files to serve")
	f.Int("device", getEnvInt("MUDRA_DEVICE", 0), "Webcam device ID")
	f.Bool("no-mirror", getEnvBool("MUDRA_NO_MIRROR", false), "Do not mirror frames horizontally")
	f.String("store", getEnvStr("MUDRA_STORE", "~/.mudra/mudra.db"), "Session history database (empty disables)")
	f.String("absent-policy", getEnvStr("MUDRA_ABSENT_POLICY", "freeze"), "Filter behavior without a detection: freeze or predict")
	f.Bool("no-smoothing", getEnvBool("MUDRA_NO_SMOOTHING", false), "Start sessions with smoothing off")
	f.String("log-level", getEnvStr("MUDRA_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	f.String("log-format", getEnvStr("MUDRA_LOG_FORMAT", "console"), "Log format: console or json")
	f.Bool("tray", getEnvBool("MUDRA_TRAY", false), "Show the system tray menu")
}

// loadConfig reads the config file, if any, then applies flags that were
// set on the command line or through their environment variables.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	f := cmd.Flags()
	set := func(flag, env string) bool {
		return f.Changed(flag) || os.Getenv(env) != ""
	}

	if set("addr", "MUDRA_ADDR") {
		cfg.Server.Addr, _ = f.GetString("addr")
	}
	if set("static-dir", "MUDRA_STATIC_DIR") {
		cfg.Server.StaticDir, _ = f.GetString("static-dir")
	}
	if set("device", "MUDRA_DEVICE") {
		cfg.Capture.DeviceID, _ = f.GetInt("device")
	}
	if set("no-mirror", "MUDRA_NO_MIRROR") {
		noMirror, _ := f.GetBool("no-mirror")
		cfg.Capture.Mirror = !noMirror
	}
	if f.Changed("store") {
		cfg.Store.Path, _ = f.GetString("store")
	} else if v, ok := os.LookupEnv("MUDRA_STORE"); ok {
		cfg.Store.Path = v
	}
	if set("absent-policy", "MUDRA_ABSENT_POLICY") {
		cfg.Filter.AbsentPolicy, _ = f.GetString("absent-policy")
	}
	if set("no-smoothing", "MUDRA_NO_SMOOTHING") {
		noSmoothing, _ := f.GetBool("no-smoothing")
		cfg.Filter.Enabled = !noSmoothing
	}
	if set("log-level", "MUDRA_LOG_LEVEL") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if set("log-format", "MUDRA_LOG_FORMAT") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	if set("tray", "MUDRA_TRAY") {
		cfg.Tray.Enabled, _ = f.GetBool("tray")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New("mudra", cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(app.Config{Settings: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("starting mudra", "version", version, "addr", cfg.Server.Addr, "url", a.URL())
	if err := a.Run(ctx); err != nil {
		logger.Errorw("server failed", "error", err)
		return err
	}
	logger.Info("shut down")
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// getEnvStr returns environment variable or default
func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}
