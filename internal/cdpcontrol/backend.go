package cdpcontrol

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
)

// evaluator is the part of Client the backend needs.
type evaluator interface {
	Eval(ctx context.Context, js string, out any) error
}

// Backend draws on a Lightweight Charts instance living in a browser tab.
type Backend struct {
	eval evaluator
}

var _ chart.Backend = (*Backend)(nil)

func NewBackend(c *Client) *Backend {
	return &Backend{eval: c}
}

func (b *Backend) Init(ctx context.Context, opts chart.Options) error {
	if err := b.eval.Eval(ctx, jsInitChart(opts), nil); err != nil {
		return err
	}
	slog.Debug("cdpcontrol chart created", "width", opts.Width, "height", opts.Height)
	return nil
}

func (b *Backend) SetSeriesData(ctx context.Context, candles []chart.CandlePoint, volume []chart.VolumePoint) error {
	return b.eval.Eval(ctx, jsSetSeriesData(candles, volume), nil)
}

func (b *Backend) FitContent(ctx context.Context) error {
	return b.eval.Eval(ctx, jsFitContent(), nil)
}

func (b *Backend) Resize(ctx context.Context, width, height int) error {
	return b.eval.Eval(ctx, jsResize(width, height), nil)
}

func (b *Backend) CreatePriceLine(ctx context.Context, line chart.PriceLine) (chart.Handle, error) {
	var id string
	if err := b.eval.Eval(ctx, jsCreatePriceLine(line), &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", newError(CodeEvalFailure, "bridge returned empty price line id", nil)
	}
	return chart.Handle(id), nil
}

func (b *Backend) RemovePriceLine(ctx context.Context, h chart.Handle) error {
	return b.eval.Eval(ctx, jsRemovePriceLine(h), nil)
}

// VisibleRange reports the time range currently scrolled into view.
func (b *Backend) VisibleRange(ctx context.Context) (chart.VisibleRange, error) {
	var r chart.VisibleRange
	err := b.eval.Eval(ctx, jsVisibleRange(), &r)
	return r, err
}
