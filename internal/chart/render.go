package chart

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderPNG draws the surface snapshot as a close-price line with every
// overlay price line spanning the dataset.
func RenderPNG(w io.Writer, snap SurfaceSnapshot) error {
	if len(snap.Candles) == 0 {
		return newError(CodeValidation, "no dataset to render", nil)
	}

	times := make([]time.Time, 0, len(snap.Candles)+1)
	closes := make([]float64, 0, len(snap.Candles)+1)
	for _, c := range snap.Candles {
		times = append(times, c.At())
		closes = append(closes, c.Close)
	}
	// go-chart needs at least two x values to build a range.
	if len(times) == 1 {
		times = append(times, times[0].Add(time.Second))
		closes = append(closes, closes[0])
	}
	first, last := times[0], times[len(times)-1]

	series := []gochart.Series{
		gochart.TimeSeries{
			Name:    snap.Key.String(),
			XValues: times,
			YValues: closes,
			Style:   gochart.Style{StrokeColor: parseColor(ColorBullish), StrokeWidth: 1.5},
		},
	}
	overlays := append(append([]PriceLine(nil), snap.Overlays.Patterns...), snap.Overlays.FVGs...)
	for _, line := range overlays {
		style := gochart.Style{StrokeColor: parseColor(line.Color), StrokeWidth: float64(line.LineWidth)}
		if line.LineStyle == LineDashed {
			style.StrokeDashArray = []float64{5, 3}
		}
		series = append(series, gochart.TimeSeries{
			Name:    line.Title,
			XValues: []time.Time{first, last},
			YValues: []float64{line.Price, line.Price},
			Style:   style,
		})
	}

	width, height := snap.Width, snap.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = DefaultHeight
	}

	graph := gochart.Chart{
		Title:      snap.Key.String(),
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{ValueFormatter: gochart.TimeMinuteValueFormatter},
		YAxis:      gochart.YAxis{ValueFormatter: priceFormatter},
		Series:     series,
	}
	if err := graph.Render(gochart.PNG, w); err != nil {
		return newError(CodeBackend, "render chart png failed", err)
	}
	return nil
}

func priceFormatter(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', 5, 64)
	}
	return fmt.Sprint(v)
}

// parseColor accepts "#rrggbb" and "rgba(r, g, b, a)".
func parseColor(s string) drawing.Color {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return drawing.ColorFromHex(strings.TrimPrefix(s, "#"))
	}
	if strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(s, "rgba("), ")"), ",")
		if len(parts) == 4 {
			var c [3]uint8
			for i := 0; i < 3; i++ {
				n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
				if err != nil {
					return gochart.ColorAlternateGray
				}
				c[i] = uint8(n)
			}
			a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil {
				return gochart.ColorAlternateGray
			}
			return drawing.Color{R: c[0], G: c[1], B: c[2], A: uint8(a * 255)}
		}
	}
	return gochart.ColorAlternateGray
}
