package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
	"github.com/dgnsrekt/MaudeViewFX/internal/events"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

const (
	CodeBusy          = "BUSY"
	CodeValidation    = "VALIDATION"
	CodeNoticeUnknown = "NOTICE_NOT_FOUND"

	DefaultNoticeTTL = 5 * time.Second
	forwardTimeout   = 5 * time.Second
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

type ControlID string

const (
	ControlUpload        ControlID = "upload"
	ControlPriceAction   ControlID = "analyze-price-action"
	ControlFVG           ControlID = "analyze-fvg"
	ControlOpportunities ControlID = "analyze-opportunities"
	ControlLink          ControlID = "link-timeframes"
)

type controlSpec struct {
	class     dashboard.Class
	idleLabel string
	busyLabel string
}

var controlSpecs = map[ControlID]controlSpec{
	ControlUpload:        {dashboard.ClassUpload, "Upload", "Uploading..."},
	ControlPriceAction:   {dashboard.ClassPriceAction, "Analyze Price Action", "Analyzing..."},
	ControlFVG:           {dashboard.ClassFVG, "Find Fair Value Gaps", "Analyzing..."},
	ControlOpportunities: {dashboard.ClassOpportunity, "Find Trade Opportunities", "Analyzing..."},
	ControlLink:          {dashboard.ClassLinkTimeframes, "Link Timeframes", "Linking..."},
}

var controlOrder = []ControlID{ControlUpload, ControlPriceAction, ControlFVG, ControlOpportunities, ControlLink}

func controlFor(class dashboard.Class) (ControlID, bool) {
	for id, spec := range controlSpecs {
		if spec.class == class {
			return id, true
		}
	}
	return "", false
}

// Control is the rendered state of one trigger.
type Control struct {
	ID      ControlID `json:"id"`
	Label   string    `json:"label"`
	Enabled bool      `json:"enabled"`
}

// Dispatcher accepts dashboard commands.
type Dispatcher interface {
	LoadCandles(key marketdata.SeriesKey) error
	AnalyzePriceAction(symbol string, timeframes []string, pivot string) error
	AnalyzeFVG(symbol, timeframe string) error
	AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error
	Upload(symbol, timeframe, filename string, data []byte) error
	LinkTimeframes(symbol string) error
	RefreshTimeframes(symbol string) error
}

// Publisher fans state changes out to stream subscribers.
type Publisher interface {
	Publish(kind string, payload any)
}

// Forwarder sends notices to an external channel.
type Forwarder interface {
	Forward(ctx context.Context, level, message string) error
}

// State is a copy of everything the controller renders.
type State struct {
	Selection marketdata.SeriesKey  `json:"selection"`
	Controls  []Control             `json:"controls"`
	Notices   []Notice              `json:"notices"`
	Views     Views                 `json:"views"`
	Chart     chart.SurfaceSnapshot `json:"chart"`
}

// Options configures a Controller.
type Options struct {
	NoticeTTL time.Duration
	// Timeframes is the display order for per-timeframe tables.
	Timeframes []string
	Location   *time.Location
	Forwarder  Forwarder
	// ForwardMin is the lowest level forwarded. Empty forwards danger only.
	ForwardMin Level
}

// Controller maps triggers to dashboard commands and renders every outcome.
// It implements dashboard.Presenter.
type Controller struct {
	pub  Publisher
	opts Options

	mu         sync.Mutex
	dispatcher Dispatcher
	controls   map[ControlID]*Control
	notices    []Notice
	timers     map[string]*time.Timer
	views      Views
	selection  marketdata.SeriesKey
	chart      chart.SurfaceSnapshot
	closed     bool
}

var _ dashboard.Presenter = (*Controller)(nil)

func NewController(pub Publisher, opts Options) *Controller {
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ForwardMin == "" {
		opts.ForwardMin = LevelDanger
	}
	c := &Controller{
		pub:      pub,
		opts:     opts,
		controls: make(map[ControlID]*Control, len(controlSpecs)),
		timers:   make(map[string]*time.Timer),
	}
	for id, spec := range controlSpecs {
		c.controls[id] = &Control{ID: id, Label: spec.idleLabel, Enabled: true}
	}
	return c
}

// Attach sets the dispatcher triggers are sent to.
func (c *Controller) Attach(d Dispatcher) {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
}

// LoadChart selects a series. The timeframe selector is never disabled.
func (c *Controller) LoadChart(symbol, timeframe string) error {
	key := marketdata.SeriesKey{Symbol: strings.TrimSpace(symbol), Timeframe: strings.TrimSpace(timeframe)}
	if key.Symbol == "" || key.Timeframe == "" {
		return c.reject("Please select a symbol and timeframe")
	}
	d := c.getDispatcher()
	if d == nil {
		return errors.New("dashboard not attached")
	}
	return d.LoadCandles(key)
}

func (c *Controller) AnalyzePriceAction(symbol string, timeframes []string, pivot string) error {
	timeframes = compact(timeframes)
	if len(timeframes) == 0 {
		return c.reject("Please select at least one timeframe for analysis")
	}
	if strings.TrimSpace(symbol) == "" || strings.TrimSpace(pivot) == "" {
		return c.reject("Please select a symbol and pivot timeframe")
	}
	return c.trigger(ControlPriceAction, func(d Dispatcher) error {
		return d.AnalyzePriceAction(symbol, timeframes, pivot)
	})
}

func (c *Controller) AnalyzeFVG(symbol, timeframe string) error {
	if strings.TrimSpace(symbol) == "" || strings.TrimSpace(timeframe) == "" {
		return c.reject("Please select a symbol and timeframe")
	}
	return c.trigger(ControlFVG, func(d Dispatcher) error {
		return d.AnalyzeFVG(symbol, timeframe)
	})
}

func (c *Controller) AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error {
	if strings.TrimSpace(symbol) == "" || strings.TrimSpace(chochTimeframe) == "" || strings.TrimSpace(fvgTimeframe) == "" {
		return c.reject("Please select a symbol, CHoCH timeframe and FVG timeframe")
	}
	return c.trigger(ControlOpportunities, func(d Dispatcher) error {
		return d.AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe)
	})
}

// Upload sends a candle file. Candles are reloaded for the current timeframe
// selection, or timeframe when nothing is selected yet.
func (c *Controller) Upload(symbol, timeframe, filename string, data []byte) error {
	if strings.TrimSpace(symbol) == "" {
		return c.reject("Please select a symbol")
	}
	if strings.TrimSpace(filename) == "" || len(data) == 0 {
		return c.reject("Please choose a candle file to upload")
	}
	c.mu.Lock()
	if sel := c.selection.Timeframe; sel != "" {
		timeframe = sel
	}
	c.mu.Unlock()
	return c.trigger(ControlUpload, func(d Dispatcher) error {
		c.setUploadStatus("Uploading...")
		return d.Upload(symbol, timeframe, filename, data)
	})
}

func (c *Controller) LinkTimeframes(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return c.reject("Please select a symbol")
	}
	return c.trigger(ControlLink, func(d Dispatcher) error {
		return d.LinkTimeframes(symbol)
	})
}

func (c *Controller) RefreshTimeframes(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return c.reject("Please select a symbol")
	}
	d := c.getDispatcher()
	if d == nil {
		return errors.New("dashboard not attached")
	}
	return d.RefreshTimeframes(symbol)
}

// State returns a copy of the rendered state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Selection: c.selection,
		Controls:  c.controlsLocked(),
		Notices:   slices.Clone(c.notices),
		Views:     c.views,
		Chart:     c.chart,
	}
}

func (c *Controller) getDispatcher() Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatcher
}

// reject raises a warning notice for input that never reaches the network.
func (c *Controller) reject(message string) error {
	c.Notify(LevelWarning, message)
	return newError(CodeValidation, message, nil)
}

// trigger disables the control and sends exactly one command. A trigger on a
// disabled control is rejected.
func (c *Controller) trigger(id ControlID, send func(Dispatcher) error) error {
	spec := controlSpecs[id]

	c.mu.Lock()
	if c.dispatcher == nil {
		c.mu.Unlock()
		return errors.New("dashboard not attached")
	}
	ctl := c.controls[id]
	if !ctl.Enabled {
		c.mu.Unlock()
		return newError(CodeBusy, string(id)+" is already running", nil)
	}
	ctl.Enabled = false
	ctl.Label = spec.busyLabel
	snapshot := *ctl
	d := c.dispatcher
	c.mu.Unlock()

	c.publish(events.KindControl, snapshot)
	slog.Debug("ui trigger", "control", id)

	if err := send(d); err != nil {
		c.enable(id)
		return err
	}
	return nil
}

func (c *Controller) enable(id ControlID) {
	spec := controlSpecs[id]
	c.mu.Lock()
	ctl := c.controls[id]
	if ctl.Enabled {
		c.mu.Unlock()
		return
	}
	ctl.Enabled = true
	ctl.Label = spec.idleLabel
	snapshot := *ctl
	c.mu.Unlock()
	c.publish(events.KindControl, snapshot)
}

func (c *Controller) controlsLocked() []Control {
	out := make([]Control, 0, len(controlOrder))
	for _, id := range controlOrder {
		out = append(out, *c.controls[id])
	}
	return out
}

func (c *Controller) publish(kind string, payload any) {
	if c.pub != nil {
		c.pub.Publish(kind, payload)
	}
}

func (c *Controller) setUploadStatus(status string) {
	c.mu.Lock()
	c.views.UploadStatus = status
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "upload", Data: status})
}

type viewEvent struct {
	View string `json:"view"`
	Data any    `json:"data"`
}

// Presenter implementation. Called from the dashboard event loop.

func (c *Controller) Release(class dashboard.Class) {
	if class == dashboard.ClassUpload {
		c.mu.Lock()
		pending := c.views.UploadStatus == "Uploading..."
		c.mu.Unlock()
		if pending {
			c.setUploadStatus("")
		}
	}
	if id, ok := controlFor(class); ok {
		c.enable(id)
	}
}

func (c *Controller) Failed(class dashboard.Class, err error) {
	if class == dashboard.ClassUpload {
		status := "Upload failed"
		if isServerError(err) {
			status = "Failed to upload"
		}
		c.setUploadStatus(status)
	}
	c.Notify(LevelDanger, failureMessage(class, err))
}

func (c *Controller) PriceActionDone(summary marketdata.PriceActionSummary) {
	view := RenderPriceAction(summary, c.opts.Timeframes)
	c.mu.Lock()
	c.views.PriceAction = &view
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "price-action", Data: view})
	c.Notify(LevelSuccess, "Price action analysis completed")
}

func (c *Controller) AnalysisDone(class dashboard.Class, summary marketdata.AnalysisSummary) {
	msg := summary.Message
	if msg == "" {
		msg = "Analysis completed"
	}
	c.Notify(LevelSuccess, msg)
}

func (c *Controller) OpportunitiesLoaded(opps []marketdata.TradeOpportunity) {
	table := RenderOpportunities(opps, c.opts.Location)
	c.mu.Lock()
	c.views.Opportunities = &table
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "opportunities", Data: table})
}

func (c *Controller) StatisticsLoaded(stats marketdata.TradeStatistics) {
	view := RenderStatistics(stats, c.opts.Timeframes)
	c.mu.Lock()
	c.views.Statistics = &view
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "statistics", Data: view})
}

func (c *Controller) TimeframesLoaded(symbol string, infos []marketdata.TimeframeInfo) {
	table := RenderTimeframes(infos)
	c.mu.Lock()
	c.views.Timeframes = &table
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "timeframes", Data: table})
}

func (c *Controller) LinksDone(result marketdata.LinkResult) {
	table := RenderLinks(result, c.opts.Timeframes)
	c.mu.Lock()
	c.views.Links = &table
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "links", Data: table})
	msg := result.Message
	if msg == "" {
		msg = "Timeframes linked"
	}
	c.Notify(LevelSuccess, msg)
}

func (c *Controller) UploadDone(result marketdata.UploadResult) {
	c.setUploadStatus("Upload complete")
	c.Notify(LevelSuccess, fmt.Sprintf("Successfully processed %d candles", result.CandleCount))
}

func (c *Controller) SelectionChanged(key marketdata.SeriesKey) {
	c.mu.Lock()
	c.selection = key
	c.mu.Unlock()
	c.publish(events.KindView, viewEvent{View: "selection", Data: key})
}

func (c *Controller) ChartUpdated(snap chart.SurfaceSnapshot) {
	c.mu.Lock()
	c.chart = snap
	c.mu.Unlock()
	c.publish(events.KindChart, snap)
}

func isServerError(err error) bool {
	var coded *marketdata.CodedError
	return errors.As(err, &coded) && coded.Code == marketdata.CodeServer
}

// failureMessage words a failed request for a notice. Backend-reported
// errors are shown verbatim; transport failures get a generic message.
func failureMessage(class dashboard.Class, err error) string {
	var coded *marketdata.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case marketdata.CodeServer, marketdata.CodeValidation:
			return "Error: " + coded.Message
		case marketdata.CodeNetwork:
			if class == dashboard.ClassUpload {
				return "Upload failed. See logs for details."
			}
			return failurePrefix(class) + " failed. See logs for details."
		}
	}
	return failurePrefix(class) + " failed: " + err.Error()
}

func failurePrefix(class dashboard.Class) string {
	switch class {
	case dashboard.ClassLoadCandles:
		return "Loading candles"
	case dashboard.ClassPatternOverlays:
		return "Loading patterns"
	case dashboard.ClassFVGOverlays:
		return "Loading fair value gaps"
	case dashboard.ClassOpportunitiesRefresh:
		return "Loading opportunities"
	case dashboard.ClassStatistics:
		return "Loading statistics"
	case dashboard.ClassTimeframes:
		return "Loading timeframes"
	case dashboard.ClassLinkTimeframes:
		return "Linking"
	default:
		return "Analysis"
	}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
