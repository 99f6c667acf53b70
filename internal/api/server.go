package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/MaudeViewFX/internal/cdpcontrol"
	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/config"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
	"github.com/dgnsrekt/MaudeViewFX/internal/ui"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Controls is the trigger surface exposed to users.
type Controls interface {
	LoadChart(symbol, timeframe string) error
	AnalyzePriceAction(symbol string, timeframes []string, pivot string) error
	AnalyzeFVG(symbol, timeframe string) error
	AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error
	Upload(symbol, timeframe, filename string, data []byte) error
	LinkTimeframes(symbol string) error
	RefreshTimeframes(symbol string) error
	DismissNotice(id string) error
	State() ui.State
}

// Dashboard is the loop-owned side: chart geometry and diagnostics.
type Dashboard interface {
	Resize(ctx context.Context, width, height int) error
	Snapshot(ctx context.Context) (dashboard.Snapshot, error)
}

// Screenshotter captures the live chart page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Deps wires the server to the running dashboard.
type Deps struct {
	Controls  Controls
	Dashboard Dashboard
	// Screenshots is optional. Without it chart.png is rendered server side.
	Screenshots Screenshotter
	Stream      http.Handler
	Socket      http.Handler
	Presets     *config.Presets
}

func NewServer(deps Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("FX Dashboard API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/chart", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(chartPageHTML)); err != nil {
			slog.Debug("chart page response write failed", "error", err)
		}
	})
	if deps.Stream != nil {
		router.Get("/api/v1/dashboard/events", deps.Stream.ServeHTTP)
	}
	if deps.Socket != nil {
		router.Get("/api/v1/dashboard/ws", deps.Socket.ServeHTTP)
	}

	registerMiscHandlers(api)
	registerDashboardHandlers(api, deps.Controls)
	registerChartHandlers(api, deps)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dashboard.ErrStopped) {
		return huma.Error503ServiceUnavailable(err.Error())
	}

	var uiErr *ui.CodedError
	if errors.As(err, &uiErr) {
		switch uiErr.Code {
		case ui.CodeValidation:
			return huma.Error400BadRequest(uiErr.Message)
		case ui.CodeBusy:
			return huma.Error409Conflict(uiErr.Message)
		case ui.CodeNoticeUnknown:
			return huma.Error404NotFound(uiErr.Message)
		}
	}

	var chartErr *chart.CodedError
	if errors.As(err, &chartErr) && chartErr.Code == chart.CodeValidation {
		return huma.Error400BadRequest(chartErr.Message)
	}

	var mdErr *marketdata.CodedError
	if errors.As(err, &mdErr) && mdErr.Code == marketdata.CodeValidation {
		return huma.Error400BadRequest(mdErr.Message)
	}

	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodePageNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeAPIUnavailable, cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
