package ui

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
	"github.com/shopspring/decimal"
)

const (
	PlaceholderOpportunities = "No trade opportunities found"
	PlaceholderStatistics    = "No statistics available"
	PlaceholderPatterns      = "No pattern statistics available"
	PlaceholderTimeframes    = "No candle data available"
	PlaceholderLinks         = "No timeframe links available"

	createdLayout = "2006-01-02 15:04:05"
)

// Row is one rendered table row. A placeholder row has a single cell.
type Row struct {
	Cells       []string `json:"cells"`
	Class       string   `json:"class,omitempty"`
	Badge       string   `json:"badge,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
}

// Table is a rendered table with its column headers.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func placeholder(columns []string, text string) Table {
	return Table{Columns: columns, Rows: []Row{{Cells: []string{text}, Placeholder: true}}}
}

// PriceActionView holds the last price action summary.
type PriceActionView struct {
	Valid    int   `json:"valid"`
	Invalid  int   `json:"invalid"`
	Pending  int   `json:"pending"`
	Patterns Table `json:"patterns"`
}

// StatisticsView holds the trade statistics totals and per-timeframe table.
type StatisticsView struct {
	TotalOpportunities int    `json:"total_opportunities"`
	WinCount           int    `json:"win_count"`
	LossCount          int    `json:"loss_count"`
	PendingCount       int    `json:"pending_count"`
	ExecutedCount      int    `json:"executed_count"`
	WinRate            string `json:"win_rate"`
	Expectancy         string `json:"expectancy"`
	Timeframes         Table  `json:"timeframes"`
}

// Views is everything the dashboard renders besides the chart.
type Views struct {
	PriceAction   *PriceActionView `json:"price_action,omitempty"`
	Opportunities *Table           `json:"opportunities,omitempty"`
	Statistics    *StatisticsView  `json:"statistics,omitempty"`
	Timeframes    *Table           `json:"timeframes,omitempty"`
	Links         *Table           `json:"links,omitempty"`
	UploadStatus  string           `json:"upload_status,omitempty"`
}

var (
	patternColumns     = []string{"Timeframe", "HH", "HL", "LH", "LL", "BOS", "CHoCH", "Total"}
	opportunityColumns = []string{"Created", "Pattern", "FVG TF", "Entry", "Stop Loss", "Take Profit", "Status"}
	statisticsColumns  = []string{"Timeframe", "Count", "Wins", "Losses", "Win Rate"}
	timeframeColumns   = []string{"Timeframe", "Candles", "Linked"}
	linkColumns        = []string{"Timeframe", "Linked", "Total", "Percentage"}
)

// RowClass returns the table row class for an opportunity status.
func RowClass(status marketdata.TradeStatus) string {
	switch status {
	case marketdata.TradeWin:
		return "table-success"
	case marketdata.TradeLoss:
		return "table-danger"
	case marketdata.TradeExecuted:
		return "table-warning"
	default:
		return ""
	}
}

// BadgeClass returns the status badge class for an opportunity status.
func BadgeClass(status marketdata.TradeStatus) string {
	switch status {
	case marketdata.TradeWin:
		return "bg-success"
	case marketdata.TradeLoss:
		return "bg-danger"
	case marketdata.TradeExecuted:
		return "bg-warning"
	case marketdata.TradePending:
		return "bg-info"
	default:
		return "bg-secondary"
	}
}

func price(v float64) string {
	return fixed(v, 5)
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

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

// RenderPriceAction builds the price action view. Timeframes are listed in
// the order given by order, then any others alphabetically.
func RenderPriceAction(summary marketdata.PriceActionSummary, order []string) PriceActionView {
	view := PriceActionView{
		Valid:   summary.ValidationStats.Valid,
		Invalid: summary.ValidationStats.Invalid,
		Pending: summary.ValidationStats.Pending,
	}
	if len(summary.PatternCounts) == 0 {
		view.Patterns = placeholder(patternColumns, PlaceholderPatterns)
		return view
	}

	view.Patterns = Table{Columns: patternColumns}
	for _, tf := range orderedKeys(summary.PatternCounts, order) {
		c := summary.PatternCounts[tf]
		view.Patterns.Rows = append(view.Patterns.Rows, Row{Cells: []string{
			tf,
			strconv.Itoa(c.HH),
			strconv.Itoa(c.HL),
			strconv.Itoa(c.LH),
			strconv.Itoa(c.LL),
			strconv.Itoa(c.BOS),
			strconv.Itoa(c.CHoCH),
			strconv.Itoa(summary.PatternsByTimeframe[tf]),
		}})
	}
	return view
}

// RenderOpportunities builds the opportunities table. Creation times are
// shown in loc.
func RenderOpportunities(opps []marketdata.TradeOpportunity, loc *time.Location) Table {
	if len(opps) == 0 {
		return placeholder(opportunityColumns, PlaceholderOpportunities)
	}
	if loc == nil {
		loc = time.UTC
	}
	t := Table{Columns: opportunityColumns, Rows: make([]Row, 0, len(opps))}
	for _, o := range opps {
		t.Rows = append(t.Rows, Row{
			Cells: []string{
				o.CreatedAt().In(loc).Format(createdLayout),
				fmt.Sprintf("%s (%s)", o.PatternType, o.PatternTimeframe),
				o.FVGTimeframe,
				price(o.EntryPrice),
				price(o.StopLoss),
				price(o.TakeProfit),
				string(o.Status),
			},
			Class: RowClass(o.Status),
			Badge: BadgeClass(o.Status),
		})
	}
	return t
}

func RenderStatistics(stats marketdata.TradeStatistics, order []string) StatisticsView {
	view := StatisticsView{
		TotalOpportunities: stats.TotalOpportunities,
		WinCount:           stats.WinCount,
		LossCount:          stats.LossCount,
		PendingCount:       stats.PendingCount,
		ExecutedCount:      stats.ExecutedCount,
		WinRate:            percent(stats.WinRate),
		Expectancy:         strconv.FormatFloat(stats.Expectancy, 'f', -1, 64),
	}
	if len(stats.TimeframeStats) == 0 {
		view.Timeframes = placeholder(statisticsColumns, PlaceholderStatistics)
		return view
	}
	view.Timeframes = Table{Columns: statisticsColumns}
	for _, tf := range orderedKeys(stats.TimeframeStats, order) {
		s := stats.TimeframeStats[tf]
		view.Timeframes.Rows = append(view.Timeframes.Rows, Row{Cells: []string{
			tf,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Wins),
			strconv.Itoa(s.Losses),
			percent(s.WinRate),
		}})
	}
	return view
}

func RenderTimeframes(infos []marketdata.TimeframeInfo) Table {
	if len(infos) == 0 {
		return placeholder(timeframeColumns, PlaceholderTimeframes)
	}
	t := Table{Columns: timeframeColumns}
	for _, info := range infos {
		t.Rows = append(t.Rows, Row{Cells: []string{
			info.Timeframe,
			strconv.Itoa(info.CandleCount),
			strconv.Itoa(info.LinkedCount),
		}})
	}
	return t
}

func RenderLinks(result marketdata.LinkResult, order []string) Table {
	if len(result.LinkedCounts) == 0 {
		return placeholder(linkColumns, PlaceholderLinks)
	}
	t := Table{Columns: linkColumns}
	for _, tf := range orderedKeys(result.LinkedCounts, order) {
		c := result.LinkedCounts[tf]
		t.Rows = append(t.Rows, Row{Cells: []string{
			tf,
			strconv.Itoa(c.Linked),
			strconv.Itoa(c.Total),
			fixed(c.Percentage, 1) + "%",
		}})
	}
	return t
}

// orderedKeys lists keys of m that appear in order first, in that order,
// followed by the rest sorted.
func orderedKeys[V any](m map[string]V, order []string) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
