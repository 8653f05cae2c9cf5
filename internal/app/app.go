// Package app assembles the tracking service from its configuration: the
// session history store, the live session registry, the HTTP server and the
// optional system tray.
package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/render"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

// trayRefresh is how often the tray's client count is updated.
const trayRefresh = time.Second

// Config holds what New needs beyond the file configuration. The factories
// default to the real camera and MediaPipe detector.
type Config struct {
	Settings *config.Config
	Logger   *zap.SugaredLogger
	Clock    clock.Clock

	OpenCamera   server.CameraFactory
	OpenDetector server.DetectorFactory
}

// App is the running service.
type App struct {
	settings *config.Config
	logger   *zap.SugaredLogger
	clock    clock.Clock

	store    *store.Store
	registry *session.Registry
	server   *server.Server
	tray     *tray.Tray
}

// New builds the service. The store is opened here; Close releases it.
func New(c Config) (*App, error) {
	if c.Settings == nil {
		c.Settings = config.Default()
	}
	if err := c.Settings.Validate(); err != nil {
		return nil, err
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	cfg := c.Settings

	a := &App{
		settings: cfg,
		logger:   c.Logger,
		clock:    c.Clock,
		registry: session.NewRegistry(cfg.FilterConfig(), c.Clock),
	}

	smoothing := cfg.Filter.Enabled
	dbPath, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		a.store, err = store.New(dbPath, c.Logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		smoothing, err = a.store.Settings().GetBool(store.SettingSmoothingDefault, smoothing)
		if err != nil {
			a.store.Close()
			return nil, fmt.Errorf("load settings: %w", err)
		}
		c.Logger.Infow("session history enabled", "path", dbPath)
	}
	a.registry.SetSmoothingDefault(smoothing)

	if c.OpenCamera == nil {
		c.OpenCamera = a.openCamera
	}
	if c.OpenDetector == nil {
		c.OpenDetector = a.openDetector
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	} else if staticDir, err = config.ExpandHome(staticDir); err != nil {
		a.Close()
		return nil, err
	}
	if staticDir != "" {
		c.Logger.Infow("serving static files", "dir", staticDir)
	}

	a.server = server.New(server.Config{
		StaticDir:    staticDir,
		PingTimeout:  time.Duration(cfg.Server.PingTimeout),
		Store:               a.store,
		Registry:            a.registry,
		SetSmoothingDefault: a.SetSmoothingDefault,
		OpenCamera:          c.OpenCamera,
		OpenDetector:        c.OpenDetector,
		Renderer:            render.New(cfg.RenderConfig()),
		Loop:                cfg.LoopConfig(),
		Clock:               c.Clock,
		Logger:              c.Logger,
	})

	if cfg.Tray.Enabled {
		a.tray = tray.New(smoothing)
		a.tray.OnToggle(func(enabled bool) {
			if err := a.SetSmoothingDefault(enabled); err != nil {
				a.logger.Warnw("save smoothing default", "error", err)
			}
		})
		a.tray.OnOpen(func() {
			if err := openBrowser(a.URL()); err != nil {
				a.logger.Warnw("open browser", "error", err)
			}
		})
	}

	return a, nil
}

// openCamera opens the configured webcam for one session.
func (a *App) openCamera() (session.FrameSource, error) {
	cam := capture.NewCamera(a.settings.CaptureConfig())
	if err := cam.Open(); err != nil {
		return nil, err
	}
	return cam, nil
}

// openDetector starts a MediaPipe detector for one session.
func (a *App) openDetector() (detector.Detector, error) {
	return detector.NewMediaPipeDetector(a.settings.DetectorConfig(), a.logger.Named("detector"))
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Registry returns the live session registry.
func (a *App) Registry() *session.Registry {
	return a.registry
}

// SetSmoothingDefault changes whether new sessions start with smoothing on.
// The choice is persisted when history is enabled and shown in the tray.
// Both the tray toggle and PUT /api/settings come through here.
func (a *App) SetSmoothingDefault(enabled bool) error {
	if err := api.PersistSmoothing(a.registry, a.store)(enabled); err != nil {
		return err
	}
	if a.tray != nil {
		a.tray.SetSmoothing(enabled)
	}
	return nil
}

// URL returns the local address of the tracking page.
func (a *App) URL() string {
	host, port, err := net.SplitHostPort(a.settings.Server.Addr)
	if err != nil {
		return "http://" + a.settings.Server.Addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Run serves until ctx is cancelled or the tray's Quit is clicked. With the
// tray enabled Run must be called from the main goroutine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(gctx, a.settings.Server.Addr)
	})

	if a.tray == nil {
		return g.Wait()
	}

	g.Go(func() error {
		a.watchSessions(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.tray.Quit()
		return nil
	})

	a.tray.OnQuit(cancel)
	a.tray.Run()
	cancel()
	return g.Wait()
}

// watchSessions keeps the tray's client count current.
func (a *App) watchSessions(ctx context.Context) {
	ticker := a.clock.Ticker(trayRefresh)
	defer ticker.Stop()

	for {
		a.tray.SetSessionCount(a.registry.Len())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops all sessions and closes the store.
func (a *App) Close() error {
	if a.server != nil {
		a.server.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
