package marketdata

import (
	"fmt"
	"time"
)

const (
	CodeValidation = "VALIDATION"
	CodeNetwork    = "NETWORK"
	CodeServer     = "SERVER"
)

// CodedError is a typed error used for stable notice and API mapping.
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

// SeriesKey identifies one chart dataset and one overlay scope.
type SeriesKey struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (k SeriesKey) String() string { return k.Symbol + "@" + k.Timeframe }

// IsZero reports whether no series has been selected.
func (k SeriesKey) IsZero() bool { return k.Symbol == "" && k.Timeframe == "" }

// Candle is one OHLCV bar. Time is unix seconds as sent by the backend.
type Candle struct {
	Time   float64 `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// At returns the candle open time.
func (c Candle) At() time.Time { return unixSeconds(c.Time) }

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool { return c.Close >= c.Open }

type PatternType string

const (
	PatternHH    PatternType = "HH"
	PatternHL    PatternType = "HL"
	PatternLH    PatternType = "LH"
	PatternLL    PatternType = "LL"
	PatternBOS   PatternType = "BOS"
	PatternCHoCH PatternType = "CHoCH"
)

type PatternStatus string

const (
	StatusValid   PatternStatus = "Valid"
	StatusInvalid PatternStatus = "Invalid"
	StatusPending PatternStatus = "Pending"
)

// Pattern is a swing-structure point detected by the backend.
type Pattern struct {
	ID        int           `json:"id"`
	Type      PatternType   `json:"type"`
	Timeframe string        `json:"timeframe"`
	Status    PatternStatus `json:"status"`
	Timestamp float64       `json:"timestamp"`
	Price     float64       `json:"price"`
}

// FVG is a fair value gap zone.
type FVG struct {
	ID             int     `json:"id"`
	Timeframe      string  `json:"timeframe"`
	StartTime      float64 `json:"startTime"`
	EndTime        float64 `json:"endTime"`
	StartPrice     float64 `json:"startPrice"`
	EndPrice       float64 `json:"endPrice"`
	FillPercentage float64 `json:"fillPercentage"`
}

// Top returns the upper zone boundary.
func (g FVG) Top() float64 { return max(g.StartPrice, g.EndPrice) }

// Bottom returns the lower zone boundary.
func (g FVG) Bottom() float64 { return min(g.StartPrice, g.EndPrice) }

type TradeStatus string

const (
	TradePending  TradeStatus = "Pending"
	TradeExecuted TradeStatus = "Executed"
	TradeWin      TradeStatus = "Win"
	TradeLoss     TradeStatus = "Loss"
	TradeCanceled TradeStatus = "Canceled"
)

// TradeOpportunity is a server-owned read-only snapshot.
type TradeOpportunity struct {
	ID               int         `json:"id"`
	Status           TradeStatus `json:"status"`
	EntryPrice       float64     `json:"entryPrice"`
	StopLoss         float64     `json:"stopLoss"`
	TakeProfit       float64     `json:"takeProfit"`
	CreationTime     float64     `json:"creationTime"`
	PatternType      PatternType `json:"patternType"`
	PatternTimeframe string      `json:"patternTimeframe"`
	FVGTimeframe     string      `json:"fvgTimeframe"`
}

// CreatedAt returns the opportunity creation time.
func (o TradeOpportunity) CreatedAt() time.Time { return unixSeconds(o.CreationTime) }

// TimeframeStat aggregates opportunities sharing a pattern timeframe.
type TimeframeStat struct {
	Count   int     `json:"count"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"winRate"`
}

// TradeStatistics is the aggregate returned by /api/statistics/trades.
type TradeStatistics struct {
	TotalOpportunities int                      `json:"totalOpportunities"`
	WinCount           int                      `json:"winCount"`
	LossCount          int                      `json:"lossCount"`
	PendingCount       int                      `json:"pendingCount"`
	ExecutedCount      int                      `json:"executedCount"`
	WinRate            float64                  `json:"winRate"`
	Expectancy         float64                  `json:"expectancy"`
	TimeframeStats     map[string]TimeframeStat `json:"timeframeStats"`
}

// TimeframeInfo describes the candles stored for one timeframe.
type TimeframeInfo struct {
	Timeframe   string `json:"timeframe"`
	CandleCount int    `json:"candleCount"`
	LinkedCount int    `json:"linkedCount"`
}

// LinkCount reports parent linkage for one timeframe.
type LinkCount struct {
	Linked     int     `json:"linked"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// LinkResult is returned by /api/link-timeframes.
type LinkResult struct {
	Message      string               `json:"message,omitempty"`
	LinkedCounts map[string]LinkCount `json:"linkedCounts"`
}

// ValidationStats counts patterns by validation status.
type ValidationStats struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Pending int `json:"pending"`
}

// PatternCounts counts patterns by type for one timeframe.
type PatternCounts struct {
	HH    int `json:"HH"`
	HL    int `json:"HL"`
	LH    int `json:"LH"`
	LL    int `json:"LL"`
	BOS   int `json:"BOS"`
	CHoCH int `json:"CHoCH"`
}

// PriceActionSummary is returned by /api/analyze/price-action.
type PriceActionSummary struct {
	Message             string                   `json:"message,omitempty"`
	ValidationStats     ValidationStats          `json:"validationStats"`
	PatternCounts       map[string]PatternCounts `json:"patternCounts"`
	PatternsByTimeframe map[string]int           `json:"patternsByTimeframe"`
}

// AnalysisSummary is returned by the FVG and opportunity analysis endpoints.
type AnalysisSummary struct {
	Message string `json:"message"`
}

// UploadResult is returned by /api/upload.
type UploadResult struct {
	Message     string `json:"message,omitempty"`
	CandleCount int    `json:"candleCount"`
}

func unixSeconds(v float64) time.Time {
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
