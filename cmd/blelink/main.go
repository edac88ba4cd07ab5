// Command blelink keeps BLE switch peripherals reachable and exposes them
// over HTTP.
//
// The daemon scans for advertisements through BlueZ, tracks the
// availability of every configured device, opens a GATT session on demand
// when a switch is written, and closes it again after the linger delay.
//
// Usage:
//
//	blelink [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML or TOML)
//	-listen string        HTTP listen address (overrides config)
//	-log-level string     Log level: debug, info, warn, error (overrides config)
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-state string         Switch state file (.json, or .db for SQLite)
//	-adapter string       Bluetooth adapter name, e.g. hci0
//	-interactive          Start the interactive console
//
// Examples:
//
//	# Run with a YAML config
//	blelink -config /etc/blelink/blelink.yaml
//
//	# Debug a single device from the console
//	blelink -config blelink.toml -log-level debug -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/blelink/blelink-go/cmd/blelink/interactive"
	"github.com/blelink/blelink-go/pkg/api"
	"github.com/blelink/blelink-go/pkg/bluez"
	"github.com/blelink/blelink-go/pkg/config"
	"github.com/blelink/blelink-go/pkg/device"
	"github.com/blelink/blelink-go/pkg/discovery"
	"github.com/blelink/blelink-go/pkg/eventbus"
	blelog "github.com/blelink/blelink-go/pkg/log"
	"github.com/blelink/blelink-go/pkg/metrics"
	"github.com/blelink/blelink-go/pkg/persistence"
	"github.com/blelink/blelink-go/pkg/registry"
	"github.com/blelink/blelink-go/pkg/sighting"
)

const (
	pruneInterval   = time.Minute
	retryInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

var (
	configFile  = flag.String("config", "blelink.yaml", "Configuration file path (YAML or TOML)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	stateFile   = flag.String("state", "", "Switch state file (.json, or .db for SQLite)")
	adapter     = flag.String("adapter", "", "Bluetooth adapter name, e.g. hci0")
	interact    = flag.Bool("interactive", false, "Start the interactive console")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *protocolLog != "" {
		cfg.ProtocolLog = *protocolLog
	}
	if *stateFile != "" {
		cfg.State = *stateFile
	}
	if *adapter != "" {
		cfg.Adapter = *adapter
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if *interact {
		console, err = interactive.New()
		if err != nil {
			return err
		}
		out = console.Stderr()
	}

	logger, err := newLogger(out, cfg)
	if err != nil {
		return err
	}
	logger.Info("starting blelink", "config", *configFile, "devices", len(cfg.Devices), "adapter", cfg.Adapter)

	var events blelog.Logger
	if cfg.ProtocolLog != "" {
		fl, err := blelog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to create protocol logger: %w", err)
		}
		defer func() {
			written, dropped := fl.Stats()
			logger.Info("protocol log closed", "path", fl.Path(), "written", written, "dropped", dropped)
			fl.Close()
		}()
		events = fl
		logger.Info("protocol logging", "path", cfg.ProtocolLog)
	}

	store, err := openStore(cfg.State)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(promReg)

	reg, err := registry.New(registry.Config{StaleAfter: cfg.RegistryStaleAfter.D()})
	if err != nil {
		return err
	}

	transport := bluez.NewTransport(conn, bluez.Config{Adapter: cfg.Adapter, Logger: logger})
	defer transport.Close()
	bus := eventbus.New(eventbus.DefaultBuffer)

	var proxies *discovery.Directory
	if cfg.DiscoverProxies {
		proxies = discovery.NewDirectory()
		proxies.OnChange(func(p discovery.Proxy, present bool) {
			bus.Publish(eventbus.Event{
				Type:      eventbus.TypeProxy,
				Timestamp: time.Now(),
				Address:   p.MAC,
				Data:      map[string]any{"name": p.DisplayName(), "present": present},
			})
		})
	}

	opts := device.Options{
		Resolver:  reg,
		Registry:  reg,
		Transport: transport,
		Metrics:   recorder,
		Bus:       bus,
		Logger:    logger,
	}
	// Interface fields stay nil unless set; a typed nil would look present.
	if cfg.FastPath {
		opts.FastPath = bluez.NewFastPath(transport)
	}
	if store != nil {
		opts.Store = store
	}
	if proxies != nil {
		opts.Names = proxies
	}
	if events != nil {
		opts.Events = events
	}

	hub := device.NewHub(logger)
	var uuids []string
	for _, dc := range cfg.Devices {
		d, err := device.New(device.ConfigFrom(dc), opts)
		if err != nil {
			return err
		}
		if err := hub.Add(d); err != nil {
			return err
		}
		if dc.ServiceUUID != "" {
			uuids = append(uuids, dc.ServiceUUID)
		}
	}

	apiCfg := api.Config{
		Devices:  hub,
		Bus:      bus,
		Gatherer: promReg,
		Metrics:  recorder,
		Logger:   logger,
	}
	if proxies != nil {
		apiCfg.Proxies = proxies
	}
	srv := api.NewServer(cfg.Listen, apiCfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		reg.Run(gctx, pruneInterval)
		return nil
	})

	scanner := bluez.NewScanner(conn, bluez.ScannerConfig{
		Adapter:      cfg.Adapter,
		ServiceUUIDs: uuids,
		Logger:       logger,
	})
	g.Go(func() error {
		err := scanner.Run(gctx, func(s sighting.Sighting) { hub.HandleSighting(s) })
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scanner: %w", err)
		}
		return nil
	})

	if proxies != nil {
		browser := discovery.NewBrowser(discovery.BrowserConfig{Logger: logger})
		g.Go(func() error {
			if err := browser.Run(gctx, proxies); err != nil {
				logger.Warn("proxy discovery stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		setupDevices(gctx, hub, logger)
		return nil
	})

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("closing devices", "error", err)
		}
		return nil
	})

	if console != nil {
		console.Bind(hub, proxies)
		go console.Run(ctx, cancel)
	}

	err = g.Wait()
	logger.Info("goodbye")
	return err
}

// setupDevices runs device setup and retries devices that have not
// advertised yet until all are ready or ctx ends.
func setupDevices(ctx context.Context, hub *device.Hub, logger *slog.Logger) {
	if err := hub.Setup(ctx); err == nil {
		logger.Info("all devices ready")
		return
	}
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		pending := 0
		for _, d := range hub.Devices() {
			if hub.Ready(d.Address()) {
				continue
			}
			pending++
		}
		if pending == 0 {
			logger.Info("all devices ready")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, d := range hub.Devices() {
			if hub.Ready(d.Address()) {
				continue
			}
			if err := hub.SetupDevice(ctx, d.Address()); err != nil && !errors.Is(err, device.ErrNotReady) {
				return
			}
		}
	}
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if level == slog.LevelDebug {
		opts.AddSource = true
	}
	switch cfg.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}

func openStore(path string) (persistence.Store, error) {
	if path == "" {
		return nil, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return persistence.NewSQLiteStore(path)
	default:
		return persistence.NewFileStore(path), nil
	}
}
