package chart

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps the chart in process memory. It is used when no browser
// is attached and as the reference backend in tests.
type MemoryBackend struct {
	mu       sync.Mutex
	opts     Options
	ready    bool
	candles  []CandlePoint
	volume   []VolumePoint
	visible  VisibleRange
	lines    map[Handle]PriceLine
	order    []Handle
	nextLine int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{lines: make(map[Handle]PriceLine)}
}

func (m *MemoryBackend) Init(_ context.Context, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	m.ready = true
	return nil
}

func (m *MemoryBackend) SetSeriesData(_ context.Context, candles []CandlePoint, volume []VolumePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return fmt.Errorf("memory backend: chart not created")
	}
	m.candles = append([]CandlePoint(nil), candles...)
	m.volume = append([]VolumePoint(nil), volume...)
	return nil
}

func (m *MemoryBackend) FitContent(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.candles) == 0 {
		m.visible = VisibleRange{}
		return nil
	}
	m.visible = VisibleRange{From: m.candles[0].Time, To: m.candles[len(m.candles)-1].Time}
	return nil
}

// SetVisibleRange scrolls the time scale, as a user drag would.
func (m *MemoryBackend) SetVisibleRange(r VisibleRange) {
	m.mu.Lock()
	m.visible = r
	m.mu.Unlock()
}

func (m *MemoryBackend) VisibleRange(_ context.Context) (VisibleRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible, nil
}

func (m *MemoryBackend) Resize(_ context.Context, width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Width, m.opts.Height = width, height
	return nil
}

func (m *MemoryBackend) CreatePriceLine(_ context.Context, line PriceLine) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return "", fmt.Errorf("memory backend: chart not created")
	}
	m.nextLine++
	h := Handle(fmt.Sprintf("line-%d", m.nextLine))
	m.lines[h] = line
	m.order = append(m.order, h)
	return h, nil
}

func (m *MemoryBackend) RemovePriceLine(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[h]; !ok {
		return fmt.Errorf("memory backend: unknown price line %q", h)
	}
	delete(m.lines, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lines returns the drawn price lines in creation order.
func (m *MemoryBackend) Lines() []PriceLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PriceLine, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.lines[h])
	}
	return out
}

// Candles returns the candle series currently set.
func (m *MemoryBackend) Candles() []CandlePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CandlePoint(nil), m.candles...)
}

// Volume returns the volume series currently set.
func (m *MemoryBackend) Volume() []VolumePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VolumePoint(nil), m.volume...)
}

func (m *MemoryBackend) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Width, m.opts.Height
}

// SortedPrices returns the prices of all drawn lines, ascending.
func (m *MemoryBackend) SortedPrices() []float64 {
	lines := m.Lines()
	out := make([]float64, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Price)
	}
	sort.Float64s(out)
	return out
}
