package chart

import (
	"context"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeNotInitialized = "NOT_INITIALIZED"
	CodeBackend        = "BACKEND_FAILURE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// LineStyle mirrors the Lightweight Charts LineStyle enum.
type LineStyle int

const (
	LineSolid  LineStyle = 0
	LineDashed LineStyle = 2
)

// PriceLine is a horizontal line attached to the candle series.
type PriceLine struct {
	Price            float64   `json:"price"`
	Color            string    `json:"color"`
	LineWidth        int       `json:"lineWidth"`
	LineStyle        LineStyle `json:"lineStyle"`
	AxisLabelVisible bool      `json:"axisLabelVisible"`
	Title            string    `json:"title"`
}

// Handle is an opaque backend reference to a drawn price line.
type Handle string

// CandlePoint is one bar of the candle series as handed to a backend.
type CandlePoint struct {
	Time  float64 `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// VolumePoint is one bar of the volume histogram.
type VolumePoint struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// VisibleRange is the logical time range shown on the time scale.
type VisibleRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Options configures chart creation on a backend.
type Options struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	GridColor       string `json:"gridColor"`
	UpColor         string `json:"upColor"`
	DownColor       string `json:"downColor"`
}

// Backend is a drawing surface able to host one candle series, one volume
// series and any number of price lines on the candle series.
type Backend interface {
	Init(ctx context.Context, opts Options) error
	SetSeriesData(ctx context.Context, candles []CandlePoint, volume []VolumePoint) error
	FitContent(ctx context.Context) error
	Resize(ctx context.Context, width, height int) error
	CreatePriceLine(ctx context.Context, line PriceLine) (Handle, error)
	RemovePriceLine(ctx context.Context, h Handle) error
}

// RangeReporter is implemented by backends that can report the visible range.
type RangeReporter interface {
	VisibleRange(ctx context.Context) (VisibleRange, error)
}
