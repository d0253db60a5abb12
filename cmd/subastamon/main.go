package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jholdgaard/subastamon/internal/clock"
	"github.com/jholdgaard/subastamon/internal/collector"
	"github.com/jholdgaard/subastamon/internal/collector/browser"
	"github.com/jholdgaard/subastamon/internal/collector/directhttp"
	"github.com/jholdgaard/subastamon/internal/collector/mock"
	"github.com/jholdgaard/subastamon/internal/config"
	"github.com/jholdgaard/subastamon/internal/engine"
	"github.com/jholdgaard/subastamon/internal/event"
	"github.com/jholdgaard/subastamon/internal/health"
	"github.com/jholdgaard/subastamon/internal/opctl"
	"github.com/jholdgaard/subastamon/internal/runtime"
	"github.com/jholdgaard/subastamon/internal/store"
	"github.com/jholdgaard/subastamon/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jholdgaard/subastamon/internal/store/memstore"
	_ "github.com/jholdgaard/subastamon/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	healthHandler := health.NewHandler(clk,
		health.Checker{Name: "store", Check: repos.Ping},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	in := make(chan event.Event, 256)
	out := make(chan event.Event, 256)
	control := make(chan engine.ControlAction, 16)

	secCfg := runtime.SecurityConfigFrom(cfg.Security)
	engCfg := runtime.EngineConfigFrom(cfg)
	eng := engine.New(repos, in, out, control, engCfg, secCfg, logger, clk)

	rt := runtime.New(eng, in, control, logger)
	rt.Start(ctx)

	// The processed event stream (out) is what an operator surface
	// (GUI, Excel export, alerting) would subscribe to; spec.md scopes
	// that surface out of this repo, so this process only logs it.
	go drainProcessedEvents(ctx, out, logger)

	build := newCollectorFactory(cfg, clk, logger)
	ctl := opctl.New(rt, repos, build, logger, clk)

	switch cfg.Mode {
	case "browser", "direct-http", "mock":
		mode := opctl.CollectorMode(cfg.Mode)
		if startErr := ctl.StartCollector(ctx, mode); startErr != nil {
			return fmt.Errorf("starting %s collector: %w", mode, startErr)
		}
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "subastamon is running", slog.String("version", version), slog.String("mode", cfg.Mode))

	<-ctx.Done()
	logger.Info("shutting down...")

	healthHandler.SetReady(false)
	if stopErr := rt.Stop(); stopErr != nil {
		logger.Error("runtime shutdown error", slog.Any("error", stopErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

func drainProcessedEvents(ctx context.Context, out <-chan event.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				return
			}
			logger.DebugContext(ctx, "processed event", slog.String("kind", string(ev.Kind)), slog.String("message", ev.Message))
		}
	}
}

// newCollectorFactory builds the opctl.Factory closure. It is the one
// place that imports browser, directhttp, and mock concretely, keeping
// opctl itself ignorant of any specific collector backend. It retains
// the last browser capture so a switch to direct-http mode can hand
// off the operator's session without re-navigating Chromium.
func newCollectorFactory(cfg *config.Config, clk clock.Clock, logger *slog.Logger) opctl.Factory {
	var lastBrowser *browser.Collector

	return func(ctx context.Context, mode opctl.CollectorMode) (collector.Collector, error) {
		switch mode {
		case opctl.ModeMock:
			return mock.New(nil, time.Duration(cfg.Collector.BaseCadenceSeconds*float64(time.Second)), clk, logger), nil

		case opctl.ModeBrowser:
			col := browser.New(cfg.Collector, false, clk, logger)
			lastBrowser = col
			return col, nil

		case opctl.ModeDirectHTTP:
			if lastBrowser == nil {
				return nil, fmt.Errorf("direct-http mode requires a prior browser capture")
			}
			session, ok := lastBrowser.CapturedSession()
			if !ok {
				return nil, fmt.Errorf("direct-http mode requires a completed browser capture")
			}
			return directhttp.New(session, cfg.Collector, clk, logger)

		default:
			return nil, fmt.Errorf("unknown collector mode %q", mode)
		}
	}
}
