// Package main provides the qrpost automation service: an HTTP API that
// drives one automated browser session against a configured site for
// QR-code login and text posting. All site work funnels through a FIFO
// task queue over a single lazily-created browser session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	appconfig "github.com/driftlab/qrpost/pkg/config"

	"github.com/driftlab/qrpost/pkg/browser"
	"github.com/driftlab/qrpost/pkg/queue"
	"github.com/driftlab/qrpost/pkg/server"
	"github.com/driftlab/qrpost/pkg/site"
	"github.com/driftlab/qrpost/pkg/statestore"
)

const version = "0.1.0" // Version of the qrpost service

// Config holds the command line configuration
type Config struct {
	ConfigPath  string
	SiteConfig  string
	ListenAddr  string
	ShowVersion bool
}

func main() {
	// Parse command line flags
	config := parseFlags()

	// Show version if requested
	if config.ShowVersion {
		fmt.Printf("qrpost v%s\n", version)
		return
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Create context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	// Run the application
	if runErr := run(ctx, config); runErr != nil {
		cancel()
		log.Fatalf("Application error: %v", runErr)
	}
}

// parseFlags parses command line flags
func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ConfigPath, "config", "", "Path to configuration file (default: ~/.qrpost/config.json)")
	flag.StringVar(&config.SiteConfig, "site", "", "Path to site definition file (YAML, required)")
	flag.StringVar(&config.ListenAddr, "listen", "", "Listen address override (default from config)")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "qrpost - QR-login posting service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: qrpost [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  qrpost -site site.yaml\n")
		fmt.Fprintf(os.Stderr, "  qrpost -site site.yaml -listen 127.0.0.1:9000\n")
		fmt.Fprintf(os.Stderr, "  qrpost -site site.yaml -config /etc/qrpost/config.json\n")
	}

	flag.Parse()
	return config
}

// validate checks the command line configuration
func (c *Config) validate() error {
	if c.SiteConfig == "" {
		return fmt.Errorf("a site definition file is required (use -site flag)")
	}
	return nil
}

// run wires the components together and serves until ctx is cancelled
func run(ctx context.Context, config *Config) error {
	// Load application configuration
	if err := appconfig.Initialize(config.ConfigPath); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	// Load and validate the site definition
	siteConfig, err := site.LoadConfig(config.SiteConfig)
	if err != nil {
		return fmt.Errorf("failed to load site definition: %w", err)
	}
	if validationErr := siteConfig.Validate(); validationErr != nil {
		return fmt.Errorf("invalid site definition: %w", validationErr)
	}

	lifecycle := appconfig.GetLifecycle()
	browserCfg := appconfig.GetBrowser()
	serverCfg := appconfig.GetServer()

	// Pick the session state backend
	store, closeStore, err := buildStateStore(lifecycle)
	if err != nil {
		return fmt.Errorf("failed to open session state store: %w", err)
	}
	defer closeStore()

	// Automation driver
	driver := browser.NewPlaywrightDriver(browser.DriverOptions{
		Headless: browserCfg.Headless,
		Viewport: &browser.Viewport{
			Width:  browserCfg.ViewportWidth,
			Height: browserCfg.ViewportHeight,
		},
		Timeout:     browserCfg.OperationTimeout,
		SkipInstall: !browserCfg.InstallBrowsers,
	})

	// Session lifecycle manager
	manager := browser.NewManager(driver, store, browser.Options{
		Policy:               browser.Policy(lifecycle.EvictionPolicy),
		IdleTimeout:          lifecycle.IdleTimeout,
		SweepInterval:        lifecycle.SweepInterval,
		AutoSaveInterval:     lifecycle.AutoSaveInterval,
		AssumeValidOnRestore: lifecycle.AssumeValidOnRestore,
	})

	// Task queue: every task gets a ready session first, and draining the
	// backlog hands the manager its chance to destroy the resource under
	// the drain-and-destroy policy
	q := queue.New(queue.Hooks{
		Ensure: func(ctx context.Context) error {
			_, ensureErr := manager.EnsureReady(ctx)
			return ensureErr
		},
		// Best-effort snapshot after every task, so a crash between
		// tasks loses nothing the last task changed
		AfterTask: func(ctx context.Context) {
			manager.SnapshotNow(ctx)
		},
		OnDrain: manager.HandleDrain,
	})

	// Sweeps must never evict mid-task
	manager.SetBusyCheck(func() bool {
		return q.Status().Processing
	})
	manager.Start()

	// Site operations and HTTP API
	ops := site.NewOperations(manager, siteConfig)

	listenAddr, authToken, requestTimeout := serverCfg.Settings()
	if config.ListenAddr != "" {
		listenAddr = config.ListenAddr
	}

	srv := server.New(server.Config{
		ListenAddr:     listenAddr,
		AuthToken:      authToken,
		RequestTimeout: requestTimeout,
	}, q, ops, manager)

	log.Printf("qrpost v%s serving on %s (policy=%s, store=%s)",
		version, listenAddr, lifecycle.EvictionPolicy, lifecycle.StateStore)

	serveErr := srv.Start(ctx)

	// Shutdown order: the server has stopped accepting requests; give the
	// queue a grace period to finish the in-flight task, then tear down
	// the session with a final snapshot
	graceCtx, cancel := context.WithTimeout(context.Background(), lifecycle.ShutdownGrace)
	defer cancel()

	if closeErr := q.Close(graceCtx); closeErr != nil {
		log.Printf("Queue shutdown incomplete: %v", closeErr)
	}
	manager.Close(graceCtx)

	return serveErr
}

// buildStateStore opens the configured session state backend. The returned
// closer is a no-op for backends without one.
func buildStateStore(lifecycle *appconfig.LifecycleSection) (statestore.Store, func(), error) {
	switch lifecycle.StateStore {
	case appconfig.StateStoreSQLite:
		path := lifecycle.StatePath
		if path == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			path = filepath.Join(homeDir, ".qrpost", "session-state.db")
		}
		sqliteStore, err := statestore.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return sqliteStore, func() {
			if closeErr := sqliteStore.Close(); closeErr != nil {
				log.Printf("Failed to close state store: %v", closeErr)
			}
		}, nil

	default:
		fileStore, err := statestore.NewFileStore(lifecycle.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, func() {}, nil
	}
}
