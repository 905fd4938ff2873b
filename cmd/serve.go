package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/logsearch/pkg/api"
	"github.com/rubiojr/logsearch/pkg/config"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/metrics"
	"github.com/rubiojr/logsearch/pkg/realtime"
	"github.com/rubiojr/logsearch/pkg/warehouse"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the log search API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on (overrides the config file)",
			},
			&cli.BoolFlag{
				Name:  "poll-follow",
				Usage: "Let every follow connection poll the index instead of sharing one follower",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	configPath := c.String("config")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	logger := log.ForService("serve")

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warnf("Failed to close index: %v", err)
		}
	}()

	m := metrics.New()
	service, audit := newEngines(m.Instrument(b.client), cfg)
	registry := service.Registry()
	m.RegisterGauge("active_scans", "Number of cancellable scans in progress.", func() float64 {
		return float64(registry.Len())
	})

	opts := api.Options{
		DefaultRows:    cfg.Search.DefaultRows,
		FollowInterval: cfg.Search.FollowInterval.Duration,
		Metrics:        m,
	}
	var follower *realtime.Follower
	if !c.Bool("poll-follow") {
		hub := realtime.NewHub(0)
		follower = realtime.NewFollower(service, hub, cfg.Search.FollowInterval.Duration)
		opts.Hub = hub
		m.RegisterGauge("followers", "Number of connected live followers.", func() float64 {
			return float64(hub.Size())
		})
	}
	server := api.NewServer(service, audit, opts)

	var maintainer warehouse.Maintainer
	if b.index != nil {
		maintainer = b.index
	}
	wh := warehouse.NewWarehouse(warehouse.Config{OptimizeInterval: cfg.Search.OptimizeInterval.Duration}, maintainer, follower)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := wh.Start(serveCtx); err != nil {
		return fmt.Errorf("starting warehouse: %w", err)
	}
	defer wh.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on http://%s (index backend: %s)", cfg.Listen, cfg.Index.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	reload := func() {
		if err := reloadConfiguration(configPath, c.Bool("debug"), server, wh); err != nil {
			logger.Errorf("Failed to reload configuration: %v", err)
		} else {
			logger.Infof("Configuration reloaded")
		}
	}

	// Set up filesystem watcher for config file
	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("Failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("Failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("Watching config file for changes: %s", configPath)
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	for {
		select {
		case err, ok := <-errCh:
			if ok && err != nil {
				return fmt.Errorf("serving http: %w", err)
			}
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Infof("Received SIGHUP, reloading configuration...")
				reload()
				continue
			}
			fmt.Println("\nShutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Editors often replace the file with an atomic rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			logger.Debugf("Config file changed: %s (event: %s)", event.Name, event.Op.String())
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("Config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("Failed to re-add config file to watcher after rename/remove: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload()
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Warnf("Config file watcher error: %v", err)
		}
	}
}

// reloadConfiguration applies the settings that can change while serving:
// logging, the default page size and the maintenance interval. Index and
// listen settings need a restart.
func reloadConfiguration(configPath string, forceDebug bool, server *api.Server, wh *warehouse.Warehouse) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}
	log.Configure(cfg.Debug || forceDebug, cfg.DebugServices)
	server.SetDefaultRows(cfg.Search.DefaultRows)
	wh.SetOptimizeInterval(cfg.Search.OptimizeInterval.Duration)
	return nil
}
