package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Presets is the YAML description of what the dashboard offers and selects
// at startup.
type Presets struct {
	Symbols    []string       `yaml:"symbols" json:"symbols"`
	Timeframes []string       `yaml:"timeframes" json:"timeframes"`
	Defaults   Selection      `yaml:"defaults" json:"defaults"`
	Chart      ChartDimension `yaml:"chart" json:"chart"`
}

// Selection holds the initial values of every selector.
type Selection struct {
	Symbol                string   `yaml:"symbol" json:"symbol"`
	Timeframe             string   `yaml:"timeframe" json:"timeframe"`
	PriceActionTimeframes []string `yaml:"price_action_timeframes" json:"price_action_timeframes"`
	PivotTimeframe        string   `yaml:"pivot_timeframe" json:"pivot_timeframe"`
	CHoCHTimeframe        string   `yaml:"choch_timeframe" json:"choch_timeframe"`
	FVGTimeframe          string   `yaml:"fvg_timeframe" json:"fvg_timeframe"`
}

type ChartDimension struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// DefaultPresets returns the presets used when no YAML file is present.
func DefaultPresets() *Presets {
	return &Presets{
		Symbols:    []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD"},
		Timeframes: []string{"1m", "5m", "15m", "30m", "1H", "4H"},
		Defaults: Selection{
			Symbol:                "EURUSD",
			Timeframe:             "1H",
			PriceActionTimeframes: []string{"15m", "1H", "4H"},
			PivotTimeframe:        "1H",
			CHoCHTimeframe:        "4H",
			FVGTimeframe:          "15m",
		},
		Chart: ChartDimension{Width: 1200, Height: 500},
	}
}

// LoadPresets reads and validates a presets YAML file. Fields left out of the
// file keep their default values. Returns an os.ErrNotExist-wrapped error if
// the file is absent.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets config: %w", err)
	}
	p := DefaultPresets()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("presets config: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("presets config: %w", err)
	}
	return p, nil
}

func (p *Presets) validate() error {
	if len(p.Symbols) < 1 {
		return fmt.Errorf("at least one symbol is required")
	}
	if len(p.Timeframes) < 1 {
		return fmt.Errorf("at least one timeframe is required")
	}
	if p.Chart.Width <= 0 || p.Chart.Height <= 0 {
		return fmt.Errorf("chart dimensions must be positive")
	}
	d := p.Defaults
	if !slices.Contains(p.Symbols, d.Symbol) {
		return fmt.Errorf("defaults.symbol %q is not a listed symbol", d.Symbol)
	}
	for _, tf := range append([]string{d.Timeframe, d.PivotTimeframe, d.CHoCHTimeframe, d.FVGTimeframe}, d.PriceActionTimeframes...) {
		if !slices.Contains(p.Timeframes, tf) {
			return fmt.Errorf("default timeframe %q is not a listed timeframe", tf)
		}
	}
	return nil
}
