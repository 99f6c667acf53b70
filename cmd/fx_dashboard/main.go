package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/api"
	"github.com/dgnsrekt/MaudeViewFX/internal/browser"
	"github.com/dgnsrekt/MaudeViewFX/internal/cdpcontrol"
	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/config"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
	"github.com/dgnsrekt/MaudeViewFX/internal/events"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
	"github.com/dgnsrekt/MaudeViewFX/internal/netutil"
	"github.com/dgnsrekt/MaudeViewFX/internal/notify"
	"github.com/dgnsrekt/MaudeViewFX/internal/ui"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load dashboard config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("fx_dashboard config loaded",
		"backend_url", cfg.BackendURL,
		"bind_addr", cfg.BindAddr,
		"chart_backend", cfg.ChartBackend,
		"page_filter", cfg.PageFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"ntfy", cfg.NtfyEndpoint != "",
		"presets", cfg.PresetsPath,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	baseURL := netutil.HostURL(ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := events.NewBroker()
	opts := ui.Options{
		NoticeTTL:  cfg.NoticeTTL,
		Timeframes: cfg.Presets.Timeframes,
		Location:   time.Local,
		ForwardMin: ui.ParseLevel(cfg.NtfyMinLevel),
	}
	if cfg.NtfyEndpoint != "" {
		opts.Forwarder = notify.NewForwarder(cfg.NtfyEndpoint, &http.Client{Timeout: 10 * time.Second})
	}
	controls := ui.NewController(broker, opts)
	defer controls.Close()

	// The server starts before the chart page exists since the browser loads
	// the page from it. The dashboard is bound once the page is attached.
	deps := api.Deps{
		Controls: controls,
		Stream:   events.SSEHandler(broker),
		Socket:   events.WSHandler(broker),
		Presets:  cfg.Presets,
	}
	dash := &lateDashboard{}
	deps.Dashboard = dash
	screens := &lateScreens{}
	deps.Screenshots = screens

	srv := &http.Server{Handler: api.NewServer(deps)}
	go func() {
		slog.Info("fx_dashboard listening", "addr", ln.Addr().String(), "docs", baseURL+"/docs", "chart", baseURL+"/chart")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("fx_dashboard server failed", "error", err)
			os.Exit(1)
		}
	}()

	backend, cleanup := openChartBackend(ctx, cfg, baseURL+"/chart", screens)
	defer cleanup()

	surface := chart.NewSurface(backend, cfg.Presets.Chart.Width, cfg.Presets.Chart.Height)
	md := marketdata.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.BackendTimeout})
	orch := dashboard.New(md, surface, controls)
	dash.set(orch)
	controls.Attach(orch)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("dashboard loop failed", "error", err)
		}
	}()

	startup(controls, orch, cfg.Presets)

	<-ctx.Done()
	slog.Info("fx_dashboard shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("fx_dashboard shutdown failed", "error", err)
	}
	<-loopDone
}

// startup selects the preset series and fills the side views.
func startup(controls *ui.Controller, orch *dashboard.Orchestrator, presets *config.Presets) {
	d := presets.Defaults
	if err := controls.LoadChart(d.Symbol, d.Timeframe); err != nil {
		slog.Warn("initial chart load failed", "symbol", d.Symbol, "timeframe", d.Timeframe, "error", err)
	}
	if err := controls.RefreshTimeframes(d.Symbol); err != nil {
		slog.Warn("initial timeframe listing failed", "symbol", d.Symbol, "error", err)
	}
	if err := orch.RefreshOpportunities(); err != nil {
		slog.Warn("initial opportunities load failed", "error", err)
	}
}

// openChartBackend attaches to the chart page over CDP, launching a browser
// when configured. Any failure falls back to the in-memory backend so the
// dashboard still serves state and rendered PNGs.
func openChartBackend(ctx context.Context, cfg *config.Config, chartURL string, screens *lateScreens) (chart.Backend, func()) {
	if cfg.ChartBackend == "memory" {
		slog.Info("chart drawing to memory backend")
		return chart.NewMemoryBackend(), func() {}
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fallback := func(reason string, err error) (chart.Backend, func()) {
		slog.Warn("chart browser unavailable, drawing to memory backend", "reason", reason, "error", err)
		cleanup()
		return chart.NewMemoryBackend(), func() {}
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ChartURL:   chartURL,
			ProfileDir: cfg.ProfileDir,
			Width:      cfg.Presets.Chart.Width,
			Height:     cfg.Presets.Chart.Height + 100,
		})
		if err := launcher.Launch(ctx); err != nil {
			return fallback("launch", err)
		}
		if launcher.Running() {
			cleanups = append(cleanups, launcher.Stop)
		}
	}

	page, err := browser.OpenPage(ctx, cfg.CDPURL(), chartURL, cfg.Presets.Chart.Width, cfg.Presets.Chart.Height)
	if err != nil {
		return fallback("open page", err)
	}
	cleanups = append(cleanups, page.Close)

	client := cdpcontrol.NewClient(cfg.CDPURL(), cfg.PageFilter, cfg.EvalTimeout())
	if err := client.Connect(ctx); err != nil {
		return fallback("connect", err)
	}
	cleanups = append(cleanups, func() {
		if err := client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	})
	info, err := client.Page(ctx)
	if err != nil {
		return fallback("page lookup", err)
	}
	screens.set(client)
	slog.Info("chart attached over CDP", "cdp_url", cfg.CDPURL(), "target_id", info.TargetID, "page_url", info.URL)
	return cdpcontrol.NewBackend(client), cleanup
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
