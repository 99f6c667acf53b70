package chart

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

const DefaultHeight = 500

// DefaultOptions returns the dark dashboard theme.
func DefaultOptions(width, height int) Options {
	return Options{
		Width:           width,
		Height:          height,
		BackgroundColor: "#131722",
		TextColor:       "#d1d4dc",
		GridColor:       "rgba(42, 46, 57, 0.5)",
		UpColor:         ColorBullish,
		DownColor:       ColorBearish,
	}
}

// SurfaceSnapshot is a read-only view of what the surface currently shows.
type SurfaceSnapshot struct {
	Initialized bool                 `json:"initialized"`
	Key         marketdata.SeriesKey `json:"key"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
	Candles     []marketdata.Candle  `json:"-"`
	CandleCount int                  `json:"candle_count"`
	Overlays    OverlaySnapshot      `json:"overlays"`
}

// Surface owns the drawing backend, the candle series and the volume series.
// It is not safe for concurrent use; the dashboard event loop is its only caller.
type Surface struct {
	backend  Backend
	overlays *OverlayRegistry
	opts     Options

	initialized bool
	key         marketdata.SeriesKey
	candles     []marketdata.Candle
}

func NewSurface(backend Backend, width, height int) *Surface {
	if height <= 0 {
		height = DefaultHeight
	}
	return &Surface{
		backend:  backend,
		overlays: NewOverlayRegistry(backend),
		opts:     DefaultOptions(width, height),
	}
}

// Overlays returns the registry drawing on this surface.
func (s *Surface) Overlays() *OverlayRegistry { return s.overlays }

// Initialize creates the chart and both series. Calling it again is a no-op.
func (s *Surface) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if err := s.backend.Init(ctx, s.opts); err != nil {
		return newError(CodeBackend, "initialize chart failed", err)
	}
	s.initialized = true
	slog.Info("chart surface initialized", "width", s.opts.Width, "height", s.opts.Height)
	return nil
}

// SetDataset replaces the whole visible dataset and fits the time scale to it.
// Overlays bound to another series are cleared first.
func (s *Surface) SetDataset(ctx context.Context, key marketdata.SeriesKey, candles []marketdata.Candle) error {
	if !s.initialized {
		return newError(CodeNotInitialized, "chart surface not initialized", nil)
	}
	if ok := s.overlays.Key(); !ok.IsZero() && ok != key {
		if err := s.overlays.ClearAll(ctx); err != nil {
			slog.Warn("overlay clear on dataset switch failed", "key", key.String(), "error", err)
		}
	}

	points := make([]CandlePoint, 0, len(candles))
	volume := make([]VolumePoint, 0, len(candles))
	for _, c := range candles {
		points = append(points, CandlePoint{Time: c.Time, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
		color := s.opts.DownColor
		if c.Bullish() {
			color = s.opts.UpColor
		}
		volume = append(volume, VolumePoint{Time: c.Time, Value: c.Volume, Color: color})
	}

	if err := s.backend.SetSeriesData(ctx, points, volume); err != nil {
		return newError(CodeBackend, "set series data failed", err)
	}
	s.key = key
	s.candles = candles

	if err := s.backend.FitContent(ctx); err != nil {
		slog.Warn("chart fit content failed", "key", key.String(), "error", err)
	}
	slog.Debug("chart dataset set", "key", key.String(), "candles", len(candles))
	return nil
}

// Resize changes the drawing area only; data and scroll position are kept.
func (s *Surface) Resize(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 {
		return newError(CodeValidation, "width and height must be positive", nil)
	}
	if !s.initialized {
		return newError(CodeNotInitialized, "chart surface not initialized", nil)
	}
	if width == s.opts.Width && height == s.opts.Height {
		return nil
	}
	if err := s.backend.Resize(ctx, width, height); err != nil {
		return newError(CodeBackend, "resize failed", err)
	}
	s.opts.Width, s.opts.Height = width, height
	return nil
}

func (s *Surface) Dimensions() (int, int) { return s.opts.Width, s.opts.Height }

// VisibleRange asks the backend for the scrolled time range. ok is false
// when the backend cannot report one.
func (s *Surface) VisibleRange(ctx context.Context) (r VisibleRange, ok bool, err error) {
	rr, ok := s.backend.(RangeReporter)
	if !ok || !s.initialized {
		return VisibleRange{}, false, nil
	}
	r, err = rr.VisibleRange(ctx)
	return r, err == nil, err
}

func (s *Surface) Snapshot() SurfaceSnapshot {
	candles := make([]marketdata.Candle, len(s.candles))
	copy(candles, s.candles)
	return SurfaceSnapshot{
		Initialized: s.initialized,
		Key:         s.key,
		Width:       s.opts.Width,
		Height:      s.opts.Height,
		Candles:     candles,
		CandleCount: len(candles),
		Overlays:    s.overlays.Snapshot(),
	}
}
