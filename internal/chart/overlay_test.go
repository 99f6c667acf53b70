package chart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

var eurusdH1 = marketdata.SeriesKey{Symbol: "EURUSD", Timeframe: "1H"}

// flakyBackend fails CreatePriceLine once failAt successful creates have happened.
type flakyBackend struct {
	*MemoryBackend
	failAt  int
	created int
}

func (f *flakyBackend) CreatePriceLine(ctx context.Context, line PriceLine) (Handle, error) {
	if f.failAt >= 0 && f.created == f.failAt {
		return "", errors.New("renderer rejected price line")
	}
	f.created++
	return f.MemoryBackend.CreatePriceLine(ctx, line)
}

func newReadyBackend(t *testing.T) *MemoryBackend {
	t.Helper()
	m := NewMemoryBackend()
	if err := m.Init(context.Background(), DefaultOptions(800, DefaultHeight)); err != nil {
		t.Fatalf("Init() = %v; want nil", err)
	}
	return m
}

func TestPatternColor(t *testing.T) {
	cases := []struct {
		typ    marketdata.PatternType
		status marketdata.PatternStatus
		want   string
	}{
		{marketdata.PatternLH, marketdata.StatusValid, ColorBearish},
		{marketdata.PatternLL, marketdata.StatusValid, ColorBearish},
		{marketdata.PatternHH, marketdata.StatusValid, ColorBullish},
		{marketdata.PatternHL, marketdata.StatusValid, ColorBullish},
		{marketdata.PatternBOS, marketdata.StatusValid, ColorBreak},
		{marketdata.PatternCHoCH, marketdata.StatusValid, ColorReversal},
		{"XX", marketdata.StatusValid, ColorFallback},
		{marketdata.PatternHH, marketdata.StatusPending, ColorCaution},
		{marketdata.PatternCHoCH, marketdata.StatusPending, ColorCaution},
		{marketdata.PatternHH, marketdata.StatusInvalid, ColorWarning},
	}
	for _, tc := range cases {
		if got := PatternColor(tc.typ, tc.status); got != tc.want {
			t.Errorf("PatternColor(%s, %s) = %q; want %q", tc.typ, tc.status, got, tc.want)
		}
	}
}

func TestFVGLines(t *testing.T) {
	top, bottom := FVGLines(marketdata.FVG{StartPrice: 1.2000, EndPrice: 1.1950, FillPercentage: 37.5})
	if top.Price != 1.2000 {
		t.Fatalf("top.Price = %v; want 1.2", top.Price)
	}
	if !strings.Contains(top.Title, "37.5") {
		t.Fatalf("top.Title = %q; want fill percentage", top.Title)
	}
	if bottom.Price != 1.1950 {
		t.Fatalf("bottom.Price = %v; want 1.195", bottom.Price)
	}
	if strings.Contains(bottom.Title, "%") {
		t.Fatalf("bottom.Title = %q; want no fill percentage", bottom.Title)
	}
	if top.Color != ColorFVGZone || bottom.Color != ColorFVGZone {
		t.Fatalf("colors = %q/%q; want zone color", top.Color, bottom.Color)
	}
}

func TestFVGLines_RoundsFillToOneDecimal(t *testing.T) {
	top, _ := FVGLines(marketdata.FVG{StartPrice: 1, EndPrice: 2, FillPercentage: 12.345})
	if top.Title != "FVG Top (12.3%)" {
		t.Fatalf("top.Title = %q; want %q", top.Title, "FVG Top (12.3%)")
	}
}

func TestFVGLines_RoundsBinaryValue(t *testing.T) {
	tests := []struct {
		fill float64
		want string
	}{
		{1.45, "FVG Top (1.4%)"},
		{0.25, "FVG Top (0.3%)"},
		{8.05, "FVG Top (8.1%)"},
		{99.95, "FVG Top (100.0%)"},
		{0, "FVG Top (0.0%)"},
	}
	for _, tt := range tests {
		top, _ := FVGLines(marketdata.FVG{StartPrice: 1, EndPrice: 2, FillPercentage: tt.fill})
		if top.Title != tt.want {
			t.Fatalf("FVGLines(%v).Title = %q; want %q", tt.fill, top.Title, tt.want)
		}
	}
}

func TestReplacePatternOverlays_Idempotent(t *testing.T) {
	m := newReadyBackend(t)
	r := NewOverlayRegistry(m)
	patterns := []marketdata.Pattern{
		{Type: marketdata.PatternHH, Status: marketdata.StatusValid, Price: 1.1},
		{Type: marketdata.PatternLL, Status: marketdata.StatusPending, Price: 1.0},
	}
	ctx := context.Background()
	if err := r.ReplacePatternOverlays(ctx, eurusdH1, patterns); err != nil {
		t.Fatalf("ReplacePatternOverlays() = %v; want nil", err)
	}
	once := m.Lines()
	if err := r.ReplacePatternOverlays(ctx, eurusdH1, patterns); err != nil {
		t.Fatalf("ReplacePatternOverlays() second call = %v; want nil", err)
	}
	twice := m.Lines()
	if len(once) != 2 || len(twice) != 2 {
		t.Fatalf("lines = %d then %d; want 2 and 2", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("line[%d] = %+v; want %+v", i, twice[i], once[i])
		}
	}
}

func TestReplaceFVGOverlays_Idempotent(t *testing.T) {
	m := newReadyBackend(t)
	r := NewOverlayRegistry(m)
	fvgs := []marketdata.FVG{{StartPrice: 1.2, EndPrice: 1.195, FillPercentage: 37.5}}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.ReplaceFVGOverlays(ctx, eurusdH1, fvgs); err != nil {
			t.Fatalf("ReplaceFVGOverlays() = %v; want nil", err)
		}
	}
	if got := m.SortedPrices(); len(got) != 2 || got[0] != 1.195 || got[1] != 1.2 {
		t.Fatalf("prices = %v; want [1.195 1.2]", got)
	}
	if r.Count(ClassFVGs) != 2 {
		t.Fatalf("Count(fvgs) = %d; want 2", r.Count(ClassFVGs))
	}
}

func TestReplace_FailureRollsBackToEmpty(t *testing.T) {
	m := newReadyBackend(t)
	fb := &flakyBackend{MemoryBackend: m, failAt: -1}
	r := NewOverlayRegistry(fb)
	ctx := context.Background()

	old := []marketdata.FVG{{StartPrice: 1.3, EndPrice: 1.29}}
	if err := r.ReplaceFVGOverlays(ctx, eurusdH1, old); err != nil {
		t.Fatalf("ReplaceFVGOverlays() = %v; want nil", err)
	}

	fb.failAt = fb.created + 3
	next := []marketdata.FVG{
		{StartPrice: 1.2, EndPrice: 1.19},
		{StartPrice: 1.1, EndPrice: 1.09},
	}
	err := r.ReplaceFVGOverlays(ctx, eurusdH1, next)
	if err == nil {
		t.Fatalf("ReplaceFVGOverlays() = nil; want error")
	}
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeBackend {
		t.Fatalf("error = %v; want %s", err, CodeBackend)
	}
	if n := len(m.Lines()); n != 0 {
		t.Fatalf("backend lines = %d; want 0 after rollback", n)
	}
	if r.Count(ClassFVGs) != 0 {
		t.Fatalf("Count(fvgs) = %d; want 0", r.Count(ClassFVGs))
	}
}

func TestReplace_FailureKeepsOtherClass(t *testing.T) {
	m := newReadyBackend(t)
	fb := &flakyBackend{MemoryBackend: m, failAt: -1}
	r := NewOverlayRegistry(fb)
	ctx := context.Background()

	if err := r.ReplacePatternOverlays(ctx, eurusdH1, []marketdata.Pattern{{Type: marketdata.PatternBOS, Price: 1.5}}); err != nil {
		t.Fatalf("ReplacePatternOverlays() = %v; want nil", err)
	}
	fb.failAt = fb.created
	if err := r.ReplaceFVGOverlays(ctx, eurusdH1, []marketdata.FVG{{StartPrice: 1, EndPrice: 2}}); err == nil {
		t.Fatalf("ReplaceFVGOverlays() = nil; want error")
	}
	if r.Count(ClassPatterns) != 1 {
		t.Fatalf("Count(patterns) = %d; want 1", r.Count(ClassPatterns))
	}
	if n := len(m.Lines()); n != 1 {
		t.Fatalf("backend lines = %d; want 1", n)
	}
}

func TestReplace_NewKeyClearsEveryClass(t *testing.T) {
	m := newReadyBackend(t)
	r := NewOverlayRegistry(m)
	ctx := context.Background()

	if err := r.ReplacePatternOverlays(ctx, eurusdH1, []marketdata.Pattern{{Type: marketdata.PatternHH, Price: 1}}); err != nil {
		t.Fatalf("ReplacePatternOverlays() = %v; want nil", err)
	}
	h4 := marketdata.SeriesKey{Symbol: "EURUSD", Timeframe: "4H"}
	if err := r.ReplaceFVGOverlays(ctx, h4, []marketdata.FVG{{StartPrice: 1, EndPrice: 2}}); err != nil {
		t.Fatalf("ReplaceFVGOverlays() = %v; want nil", err)
	}
	if r.Count(ClassPatterns) != 0 {
		t.Fatalf("Count(patterns) = %d; want 0 after key switch", r.Count(ClassPatterns))
	}
	if r.Key() != h4 {
		t.Fatalf("Key() = %v; want %v", r.Key(), h4)
	}
	if n := len(m.Lines()); n != 2 {
		t.Fatalf("backend lines = %d; want 2", n)
	}
}

func TestClearAll_Idempotent(t *testing.T) {
	m := newReadyBackend(t)
	r := NewOverlayRegistry(m)
	ctx := context.Background()
	if err := r.ReplacePatternOverlays(ctx, eurusdH1, []marketdata.Pattern{{Type: marketdata.PatternHH, Price: 1}}); err != nil {
		t.Fatalf("ReplacePatternOverlays() = %v; want nil", err)
	}
	for i := 0; i < 2; i++ {
		if err := r.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll() call %d = %v; want nil", i+1, err)
		}
	}
	if n := len(m.Lines()); n != 0 {
		t.Fatalf("backend lines = %d; want 0", n)
	}
	if !r.Key().IsZero() {
		t.Fatalf("Key() = %v; want zero", r.Key())
	}
}
