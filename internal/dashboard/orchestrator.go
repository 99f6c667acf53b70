package dashboard

import (
	"bytes"
	"context"
	"log/slog"
	"slices"

	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

const opsBufSize = 64

type op func(ctx context.Context)

type classState struct {
	gen  uint64
	last Phase
	busy bool
}

// token is captured when a request is issued and checked when it completes.
type token struct {
	class      Class
	gen        uint64
	key        marketdata.SeriesKey
	timeframes []string
	pivot      string
}

// Orchestrator sequences backend requests and applies their results to the
// chart surface. Everything below the ops channel is owned by the Run goroutine.
type Orchestrator struct {
	client    MarketData
	surface   *chart.Surface
	presenter Presenter

	ops  chan op
	done chan struct{}

	live      marketdata.SeriesKey
	liveGen   uint64
	classes   map[Class]*classState
	discarded int
}

func New(client MarketData, surface *chart.Surface, presenter Presenter) *Orchestrator {
	return &Orchestrator{
		client:    client,
		surface:   surface,
		presenter: presenter,
		ops:       make(chan op, opsBufSize),
		done:      make(chan struct{}),
		classes:   make(map[Class]*classState),
	}
}

// Run processes commands and completions until ctx is cancelled. It must be
// called exactly once.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	if err := o.surface.Initialize(ctx); err != nil {
		slog.Error("chart surface initialize failed; retrying on first load", "error", err)
	}
	slog.Info("dashboard loop started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("dashboard loop stopped", "discarded", o.discarded)
			return ctx.Err()
		case fn := <-o.ops:
			fn(ctx)
		}
	}
}

func (o *Orchestrator) post(fn op) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.ops <- fn:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// call runs fn on the loop and waits for it to return.
func (o *Orchestrator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	if err := o.post(func(loopCtx context.Context) { reply <- fn(loopCtx) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadCandles makes key the live series and loads its candles.
func (o *Orchestrator) LoadCandles(key marketdata.SeriesKey) error {
	return o.post(func(ctx context.Context) { o.load(ctx, key) })
}

func (o *Orchestrator) AnalyzePriceAction(symbol string, timeframes []string, pivot string) error {
	timeframes = slices.Clone(timeframes)
	return o.post(func(ctx context.Context) { o.analyzePriceAction(ctx, symbol, timeframes, pivot) })
}

func (o *Orchestrator) AnalyzeFVG(symbol, timeframe string) error {
	return o.post(func(ctx context.Context) { o.analyzeFVG(ctx, symbol, timeframe) })
}

func (o *Orchestrator) AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error {
	return o.post(func(ctx context.Context) { o.analyzeOpportunities(ctx, symbol, chochTimeframe, fvgTimeframe) })
}

// Upload sends a candle file. On success candles are reloaded for symbol and
// the live timeframe, or timeframe when nothing is live yet.
func (o *Orchestrator) Upload(symbol, timeframe, filename string, data []byte) error {
	return o.post(func(ctx context.Context) { o.upload(ctx, symbol, timeframe, filename, data) })
}

func (o *Orchestrator) LinkTimeframes(symbol string) error {
	return o.post(func(ctx context.Context) { o.linkTimeframes(ctx, symbol) })
}

func (o *Orchestrator) RefreshTimeframes(symbol string) error {
	return o.post(func(ctx context.Context) { o.refreshTimeframes(ctx, symbol) })
}

func (o *Orchestrator) RefreshOpportunities() error {
	return o.post(func(ctx context.Context) { o.refreshOpportunities(ctx) })
}

// Resize changes the chart dimensions and waits for the result.
func (o *Orchestrator) Resize(ctx context.Context, width, height int) error {
	return o.call(ctx, func(loopCtx context.Context) error {
		if err := o.surface.Resize(loopCtx, width, height); err != nil {
			return err
		}
		o.presenter.ChartUpdated(o.surface.Snapshot())
		return nil
	})
}

func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := o.call(ctx, func(ctx context.Context) error {
		snap = Snapshot{
			Live:           o.live,
			LiveGeneration: o.liveGen,
			Chart:          o.surface.Snapshot(),
			Classes:        make(map[Class]ClassStatus, len(o.classes)),
			Discarded:      o.discarded,
		}
		for class, st := range o.classes {
			phase := PhaseIdle
			if st.busy {
				phase = PhaseInFlight
			}
			snap.Classes[class] = ClassStatus{Phase: phase, Generation: st.gen, LastOutcome: st.last}
		}
		r, ok, err := o.surface.VisibleRange(ctx)
		if err != nil {
			slog.Debug("visible range unavailable", "error", err)
		}
		if ok {
			snap.VisibleRange = &r
		}
		return nil
	})
	return snap, err
}

func (o *Orchestrator) state(class Class) *classState {
	st, ok := o.classes[class]
	if !ok {
		st = &classState{}
		o.classes[class] = st
	}
	return st
}

func (o *Orchestrator) issue(class Class) token {
	st := o.state(class)
	st.gen++
	st.busy = true
	return token{class: class, gen: st.gen, key: o.live}
}

// stale reports whether a newer request of the same class was issued or, for
// classes that draw onto the chart, the live series is no longer the one the
// request was issued for.
func (o *Orchestrator) stale(t token) bool {
	if t.gen != o.state(t.class).gen {
		return true
	}
	return seriesBound(t.class) && t.key != o.live
}

func seriesBound(class Class) bool {
	switch class {
	case ClassLoadCandles, ClassPriceAction, ClassFVG, ClassOpportunity, ClassPatternOverlays, ClassFVGOverlays:
		return true
	}
	return false
}

// finish settles the latest request of a class and releases it.
func (o *Orchestrator) finish(t token, err error) {
	st := o.state(t.class)
	if err != nil {
		st.last = PhaseFailed
		slog.Warn("dashboard request failed", "class", t.class, "symbol", t.key.Symbol, "timeframe", t.key.Timeframe, "error", err)
		o.presenter.Failed(t.class, err)
	} else {
		st.last = PhaseSucceeded
	}
	st.busy = false
	o.presenter.Release(t.class)
}

// spawn runs call off the loop and applies the result on the loop unless the
// request went stale in the meantime.
func spawn[T any](o *Orchestrator, ctx context.Context, t token, call func(context.Context) (T, error), apply func(context.Context, T, error)) {
	go func() {
		res, err := call(ctx)
		if postErr := o.post(func(loopCtx context.Context) {
			if o.stale(t) {
				o.discard(t, err)
				return
			}
			apply(loopCtx, res, err)
		}); postErr != nil {
			slog.Debug("dashboard completion dropped", "class", t.class, "error", postErr)
		}
	}()
}

func (o *Orchestrator) discard(t token, err error) {
	o.discarded++
	slog.Debug("stale result discarded",
		"class", t.class,
		"symbol", t.key.Symbol,
		"timeframe", t.key.Timeframe,
		"request_generation", t.gen,
		"live", o.live.String(),
		"error", err,
	)
	// The live series moved but this was still the newest request of its
	// class. Nothing else will release it.
	if st := o.state(t.class); st.gen == t.gen && st.busy {
		st.busy = false
		o.presenter.Release(t.class)
	}
}

func (o *Orchestrator) load(ctx context.Context, key marketdata.SeriesKey) {
	o.liveGen++
	o.live = key
	if err := o.surface.Overlays().ClearAll(ctx); err != nil {
		slog.Warn("overlay clear on load failed", "symbol", key.Symbol, "timeframe", key.Timeframe, "error", err)
	}
	o.presenter.SelectionChanged(key)
	o.presenter.ChartUpdated(o.surface.Snapshot())

	t := o.issue(ClassLoadCandles)
	slog.Info("loading candles", "symbol", key.Symbol, "timeframe", key.Timeframe, "generation", o.liveGen)
	spawn(o, ctx, t, func(ctx context.Context) ([]marketdata.Candle, error) {
		return o.client.FetchCandles(ctx, key)
	}, func(ctx context.Context, candles []marketdata.Candle, err error) {
		if err == nil {
			err = o.applyDataset(ctx, key, candles)
		}
		o.finish(t, err)
	})
}

func (o *Orchestrator) applyDataset(ctx context.Context, key marketdata.SeriesKey, candles []marketdata.Candle) error {
	if err := o.surface.Initialize(ctx); err != nil {
		return err
	}
	if err := o.surface.SetDataset(ctx, key, candles); err != nil {
		return err
	}
	slog.Info("candles loaded", "symbol", key.Symbol, "timeframe", key.Timeframe, "candles", len(candles))
	o.presenter.ChartUpdated(o.surface.Snapshot())
	return nil
}

// focus makes key live, reloading candles when it is not already displayed
// or when force is set.
func (o *Orchestrator) focus(ctx context.Context, key marketdata.SeriesKey, force bool) {
	if force || key != o.live {
		o.load(ctx, key)
	}
}

func (o *Orchestrator) analyzePriceAction(ctx context.Context, symbol string, timeframes []string, pivot string) {
	t := o.issue(ClassPriceAction)
	t.timeframes = timeframes
	t.pivot = pivot
	slog.Info("price action analysis requested", "symbol", symbol, "timeframes", timeframes, "pivot", pivot)
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.PriceActionSummary, error) {
		return o.client.RequestPriceActionAnalysis(ctx, symbol, t.timeframes, t.pivot)
	}, func(ctx context.Context, summary marketdata.PriceActionSummary, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.PriceActionDone(summary)
		o.finish(t, nil)

		key := marketdata.SeriesKey{Symbol: symbol, Timeframe: t.pivot}
		o.focus(ctx, key, false)
		o.fetchPatterns(ctx, key)
	})
}

func (o *Orchestrator) fetchPatterns(ctx context.Context, key marketdata.SeriesKey) {
	t := o.issue(ClassPatternOverlays)
	spawn(o, ctx, t, func(ctx context.Context) ([]marketdata.Pattern, error) {
		return o.client.FetchPatterns(ctx, key)
	}, func(ctx context.Context, patterns []marketdata.Pattern, err error) {
		if err == nil {
			err = o.surface.Overlays().ReplacePatternOverlays(ctx, key, patterns)
		}
		if err == nil {
			slog.Info("pattern overlays drawn", "symbol", key.Symbol, "timeframe", key.Timeframe, "patterns", len(patterns))
			o.presenter.ChartUpdated(o.surface.Snapshot())
		}
		o.finish(t, err)
	})
}

func (o *Orchestrator) analyzeFVG(ctx context.Context, symbol, timeframe string) {
	t := o.issue(ClassFVG)
	slog.Info("fvg analysis requested", "symbol", symbol, "timeframe", timeframe)
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.AnalysisSummary, error) {
		return o.client.RequestFVGAnalysis(ctx, symbol, timeframe)
	}, func(ctx context.Context, summary marketdata.AnalysisSummary, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.AnalysisDone(ClassFVG, summary)
		o.finish(t, nil)

		key := marketdata.SeriesKey{Symbol: symbol, Timeframe: timeframe}
		o.focus(ctx, key, true)
		o.fetchFVGs(ctx, key)
	})
}

func (o *Orchestrator) fetchFVGs(ctx context.Context, key marketdata.SeriesKey) {
	t := o.issue(ClassFVGOverlays)
	spawn(o, ctx, t, func(ctx context.Context) ([]marketdata.FVG, error) {
		return o.client.FetchFVGs(ctx, key)
	}, func(ctx context.Context, fvgs []marketdata.FVG, err error) {
		if err == nil {
			err = o.surface.Overlays().ReplaceFVGOverlays(ctx, key, fvgs)
		}
		if err == nil {
			slog.Info("fvg overlays drawn", "symbol", key.Symbol, "timeframe", key.Timeframe, "fvgs", len(fvgs))
			o.presenter.ChartUpdated(o.surface.Snapshot())
		}
		o.finish(t, err)
	})
}

func (o *Orchestrator) analyzeOpportunities(ctx context.Context, symbol, chochTimeframe, fvgTimeframe string) {
	t := o.issue(ClassOpportunity)
	slog.Info("opportunity analysis requested", "symbol", symbol, "choch_timeframe", chochTimeframe, "fvg_timeframe", fvgTimeframe)
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.AnalysisSummary, error) {
		return o.client.RequestOpportunityAnalysis(ctx, symbol, chochTimeframe, fvgTimeframe)
	}, func(ctx context.Context, summary marketdata.AnalysisSummary, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.AnalysisDone(ClassOpportunity, summary)
		o.finish(t, nil)
		o.refreshOpportunities(ctx)
	})
}

func (o *Orchestrator) refreshOpportunities(ctx context.Context) {
	t := o.issue(ClassOpportunitiesRefresh)
	spawn(o, ctx, t, func(ctx context.Context) ([]marketdata.TradeOpportunity, error) {
		return o.client.FetchOpportunities(ctx)
	}, func(ctx context.Context, opps []marketdata.TradeOpportunity, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.OpportunitiesLoaded(opps)
		o.finish(t, nil)
		o.fetchStatistics(ctx)
	})
}

func (o *Orchestrator) fetchStatistics(ctx context.Context) {
	t := o.issue(ClassStatistics)
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.TradeStatistics, error) {
		return o.client.FetchTradeStatistics(ctx)
	}, func(_ context.Context, stats marketdata.TradeStatistics, err error) {
		if err == nil {
			o.presenter.StatisticsLoaded(stats)
		}
		o.finish(t, err)
	})
}

func (o *Orchestrator) upload(ctx context.Context, symbol, timeframe, filename string, data []byte) {
	t := o.issue(ClassUpload)
	slog.Info("candle upload requested", "symbol", symbol, "filename", filename, "bytes", len(data))
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.UploadResult, error) {
		return o.client.UploadCandleFile(ctx, symbol, filename, bytes.NewReader(data))
	}, func(ctx context.Context, result marketdata.UploadResult, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.UploadDone(result)
		o.finish(t, nil)

		tf := o.live.Timeframe
		if tf == "" {
			tf = timeframe
		}
		o.load(ctx, marketdata.SeriesKey{Symbol: symbol, Timeframe: tf})
	})
}

func (o *Orchestrator) linkTimeframes(ctx context.Context, symbol string) {
	t := o.issue(ClassLinkTimeframes)
	spawn(o, ctx, t, func(ctx context.Context) (marketdata.LinkResult, error) {
		return o.client.LinkTimeframes(ctx, symbol)
	}, func(ctx context.Context, result marketdata.LinkResult, err error) {
		if err != nil {
			o.finish(t, err)
			return
		}
		o.presenter.LinksDone(result)
		o.finish(t, nil)
		o.refreshTimeframes(ctx, symbol)
	})
}

func (o *Orchestrator) refreshTimeframes(ctx context.Context, symbol string) {
	t := o.issue(ClassTimeframes)
	spawn(o, ctx, t, func(ctx context.Context) ([]marketdata.TimeframeInfo, error) {
		return o.client.FetchTimeframes(ctx, symbol)
	}, func(_ context.Context, infos []marketdata.TimeframeInfo, err error) {
		if err == nil {
			o.presenter.TimeframesLoaded(symbol, infos)
		}
		o.finish(t, err)
	})
}
