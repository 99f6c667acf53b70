package chart

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
	"github.com/shopspring/decimal"
)

const (
	ColorBullish    = "#26a69a"
	ColorBearish    = "#ef5350"
	ColorWarning    = "#ef5350"
	ColorCaution    = "#ff9800"
	ColorBreak      = "#42a5f5"
	ColorReversal   = "#ab47bc"
	ColorFallback   = "#ffeb3b"
	ColorFVGZone    = "rgba(76, 175, 80, 0.5)"
	patternLineSize = 2
	fvgLineSize     = 1
)

// OverlayClass groups overlay lines replaced together.
type OverlayClass string

const (
	ClassPatterns OverlayClass = "patterns"
	ClassFVGs     OverlayClass = "fvgs"
)

// PatternColor resolves the line colour for a pattern. Status wins over type.
func PatternColor(t marketdata.PatternType, status marketdata.PatternStatus) string {
	switch status {
	case marketdata.StatusInvalid:
		return ColorWarning
	case marketdata.StatusPending:
		return ColorCaution
	}
	switch t {
	case marketdata.PatternHH, marketdata.PatternHL:
		return ColorBullish
	case marketdata.PatternLH, marketdata.PatternLL:
		return ColorBearish
	case marketdata.PatternBOS:
		return ColorBreak
	case marketdata.PatternCHoCH:
		return ColorReversal
	default:
		return ColorFallback
	}
}

// PatternLine encodes a pattern as a dashed price line.
func PatternLine(p marketdata.Pattern) PriceLine {
	return PriceLine{
		Price:            p.Price,
		Color:            PatternColor(p.Type, p.Status),
		LineWidth:        patternLineSize,
		LineStyle:        LineDashed,
		AxisLabelVisible: true,
		Title:            string(p.Type) + " (" + string(p.Status) + ")",
	}
}

// FVGLines encodes a gap as its top and bottom boundary lines.
func FVGLines(g marketdata.FVG) (top, bottom PriceLine) {
	fill := fixed(g.FillPercentage, 1)
	top = PriceLine{
		Price:            g.Top(),
		Color:            ColorFVGZone,
		LineWidth:        fvgLineSize,
		LineStyle:        LineSolid,
		AxisLabelVisible: true,
		Title:            "FVG Top (" + fill + "%)",
	}
	bottom = PriceLine{
		Price:            g.Bottom(),
		Color:            ColorFVGZone,
		LineWidth:        fvgLineSize,
		LineStyle:        LineSolid,
		AxisLabelVisible: true,
		Title:            "FVG Bottom",
	}
	return top, bottom
}

// fixed formats v with the given number of decimals, rounding the exact
// binary value half away from zero as JavaScript's toFixed does.
func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', int(places), 64)
	}
	exact, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', 80, 64))
	if err != nil {
		return decimal.NewFromFloat(v).StringFixed(places)
	}
	return exact.StringFixed(places)
}

type drawnLine struct {
	handle Handle
	line   PriceLine
}

// OverlaySnapshot is a read-only copy of the registry record.
type OverlaySnapshot struct {
	Key      marketdata.SeriesKey `json:"key"`
	Patterns []PriceLine          `json:"patterns"`
	FVGs     []PriceLine          `json:"fvgs"`
}

// OverlayRegistry owns every price line drawn for the live series. Each class
// holds either nothing or the complete line set of its last successful replace.
type OverlayRegistry struct {
	backend Backend
	key     marketdata.SeriesKey
	drawn   map[OverlayClass][]drawnLine

	// orphans are handles whose removal failed; removal is retried on the
	// next clear or replace.
	orphans []Handle
}

func NewOverlayRegistry(backend Backend) *OverlayRegistry {
	return &OverlayRegistry{
		backend: backend,
		drawn:   make(map[OverlayClass][]drawnLine),
	}
}

// Key returns the series the current overlays were drawn for.
func (r *OverlayRegistry) Key() marketdata.SeriesKey { return r.key }

func (r *OverlayRegistry) ReplacePatternOverlays(ctx context.Context, key marketdata.SeriesKey, patterns []marketdata.Pattern) error {
	lines := make([]PriceLine, 0, len(patterns))
	for _, p := range patterns {
		lines = append(lines, PatternLine(p))
	}
	return r.replace(ctx, key, ClassPatterns, lines)
}

func (r *OverlayRegistry) ReplaceFVGOverlays(ctx context.Context, key marketdata.SeriesKey, fvgs []marketdata.FVG) error {
	lines := make([]PriceLine, 0, 2*len(fvgs))
	for _, g := range fvgs {
		top, bottom := FVGLines(g)
		lines = append(lines, top, bottom)
	}
	return r.replace(ctx, key, ClassFVGs, lines)
}

// ClearAll removes every overlay line and unbinds the registry from its series.
func (r *OverlayRegistry) ClearAll(ctx context.Context) error {
	var errs []error
	for class := range r.drawn {
		if err := r.removeClass(ctx, class); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.retryOrphans(ctx); err != nil {
		errs = append(errs, err)
	}
	r.key = marketdata.SeriesKey{}
	return errors.Join(errs...)
}

// Count returns the number of lines currently recorded for class.
func (r *OverlayRegistry) Count(class OverlayClass) int { return len(r.drawn[class]) }

func (r *OverlayRegistry) Snapshot() OverlaySnapshot {
	return OverlaySnapshot{
		Key:      r.key,
		Patterns: linesOf(r.drawn[ClassPatterns]),
		FVGs:     linesOf(r.drawn[ClassFVGs]),
	}
}

func (r *OverlayRegistry) replace(ctx context.Context, key marketdata.SeriesKey, class OverlayClass, lines []PriceLine) error {
	if key != r.key {
		if err := r.ClearAll(ctx); err != nil {
			slog.Warn("overlay clear before rebind failed", "from", r.key.String(), "to", key.String(), "error", err)
		}
		r.key = key
	}

	if err := r.removeClass(ctx, class); err != nil {
		return err
	}
	if err := r.retryOrphans(ctx); err != nil {
		slog.Debug("overlay orphan removal failed", "class", class, "error", err)
	}

	added := make([]drawnLine, 0, len(lines))
	for _, line := range lines {
		h, err := r.backend.CreatePriceLine(ctx, line)
		if err != nil {
			for _, d := range added {
				if rmErr := r.backend.RemovePriceLine(ctx, d.handle); rmErr != nil {
					r.orphans = append(r.orphans, d.handle)
				}
			}
			slog.Warn("overlay replace rolled back", "key", key.String(), "class", class, "added", len(added), "wanted", len(lines), "error", err)
			return newError(CodeBackend, "create price line failed", err)
		}
		added = append(added, drawnLine{handle: h, line: line})
	}

	r.drawn[class] = added
	slog.Debug("overlay replace ok", "key", key.String(), "class", class, "lines", len(added))
	return nil
}

// removeClass takes every line of class off the backend. The record is
// emptied even when a removal fails; failed handles become orphans.
func (r *OverlayRegistry) removeClass(ctx context.Context, class OverlayClass) error {
	existing := r.drawn[class]
	delete(r.drawn, class)

	var errs []error
	for _, d := range existing {
		if err := r.backend.RemovePriceLine(ctx, d.handle); err != nil {
			r.orphans = append(r.orphans, d.handle)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return newError(CodeBackend, "remove price line failed", errors.Join(errs...))
	}
	return nil
}

func (r *OverlayRegistry) retryOrphans(ctx context.Context) error {
	if len(r.orphans) == 0 {
		return nil
	}
	pending := r.orphans
	r.orphans = nil

	var errs []error
	for _, h := range pending {
		if err := r.backend.RemovePriceLine(ctx, h); err != nil {
			r.orphans = append(r.orphans, h)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func linesOf(drawn []drawnLine) []PriceLine {
	out := make([]PriceLine, 0, len(drawn))
	for _, d := range drawn {
		out = append(out, d.line)
	}
	return out
}
