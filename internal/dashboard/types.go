package dashboard

import (
	"context"
	"errors"
	"io"

	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

// ErrStopped is returned by commands issued after the event loop exited.
var ErrStopped = errors.New("dashboard event loop stopped")

// Class names a kind of request. At most one result per class is ever applied:
// the one from the most recently issued request.
type Class string

const (
	ClassLoadCandles          Class = "load-candles"
	ClassPriceAction          Class = "price-action-analysis"
	ClassFVG                  Class = "fvg-analysis"
	ClassOpportunity          Class = "opportunity-analysis"
	ClassUpload               Class = "upload"
	ClassLinkTimeframes       Class = "link-timeframes"
	ClassTimeframes           Class = "timeframes"
	ClassOpportunitiesRefresh Class = "opportunities-refresh"

	// Follow-up fetches issued after an analysis succeeds.
	ClassPatternOverlays Class = "pattern-overlays"
	ClassFVGOverlays     Class = "fvg-overlays"
	ClassStatistics      Class = "statistics"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseInFlight  Phase = "in-flight"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// MarketData is the backend surface the orchestrator drives.
type MarketData interface {
	FetchCandles(ctx context.Context, key marketdata.SeriesKey) ([]marketdata.Candle, error)
	FetchPatterns(ctx context.Context, key marketdata.SeriesKey) ([]marketdata.Pattern, error)
	FetchFVGs(ctx context.Context, key marketdata.SeriesKey) ([]marketdata.FVG, error)
	FetchOpportunities(ctx context.Context) ([]marketdata.TradeOpportunity, error)
	FetchTradeStatistics(ctx context.Context) (marketdata.TradeStatistics, error)
	FetchTimeframes(ctx context.Context, symbol string) ([]marketdata.TimeframeInfo, error)
	LinkTimeframes(ctx context.Context, symbol string) (marketdata.LinkResult, error)
	RequestPriceActionAnalysis(ctx context.Context, symbol string, timeframes []string, pivot string) (marketdata.PriceActionSummary, error)
	RequestFVGAnalysis(ctx context.Context, symbol, timeframe string) (marketdata.AnalysisSummary, error)
	RequestOpportunityAnalysis(ctx context.Context, symbol, chochTimeframe, fvgTimeframe string) (marketdata.AnalysisSummary, error)
	UploadCandleFile(ctx context.Context, symbol, filename string, file io.Reader) (marketdata.UploadResult, error)
}

// Presenter receives every user-visible outcome. All calls are made from the
// event loop goroutine.
type Presenter interface {
	// Release marks the class settled so its control can be used again.
	Release(class Class)
	Failed(class Class, err error)

	PriceActionDone(summary marketdata.PriceActionSummary)
	AnalysisDone(class Class, summary marketdata.AnalysisSummary)
	OpportunitiesLoaded(opps []marketdata.TradeOpportunity)
	StatisticsLoaded(stats marketdata.TradeStatistics)
	TimeframesLoaded(symbol string, infos []marketdata.TimeframeInfo)
	LinksDone(result marketdata.LinkResult)
	UploadDone(result marketdata.UploadResult)

	SelectionChanged(key marketdata.SeriesKey)
	ChartUpdated(snap chart.SurfaceSnapshot)
}

// ClassStatus reports a request class for diagnostics.
type ClassStatus struct {
	Phase       Phase  `json:"phase"`
	Generation  uint64 `json:"generation"`
	LastOutcome Phase  `json:"last_outcome,omitempty"`
}

// Snapshot is a consistent copy of the loop-owned state.
type Snapshot struct {
	Live           marketdata.SeriesKey  `json:"live"`
	LiveGeneration uint64                `json:"live_generation"`
	Chart          chart.SurfaceSnapshot `json:"chart"`
	VisibleRange   *chart.VisibleRange   `json:"visible_range,omitempty"`
	Classes        map[Class]ClassStatus `json:"classes"`
	Discarded      int                   `json:"discarded"`
}
