package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
	"github.com/dgnsrekt/MaudeViewFX/internal/events"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeDispatcher) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) LoadCandles(key marketdata.SeriesKey) error {
	return f.record("load " + key.String())
}

func (f *fakeDispatcher) AnalyzePriceAction(symbol string, timeframes []string, pivot string) error {
	return f.record("price-action " + symbol)
}

func (f *fakeDispatcher) AnalyzeFVG(symbol, timeframe string) error {
	return f.record("fvg " + symbol + " " + timeframe)
}

func (f *fakeDispatcher) AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error {
	return f.record("opportunities " + symbol)
}

func (f *fakeDispatcher) Upload(symbol, timeframe, filename string, data []byte) error {
	return f.record("upload " + symbol + " " + timeframe)
}

func (f *fakeDispatcher) LinkTimeframes(symbol string) error {
	return f.record("link " + symbol)
}

func (f *fakeDispatcher) RefreshTimeframes(symbol string) error {
	return f.record("timeframes " + symbol)
}

type fakeForwarder struct {
	got chan string
}

func (f *fakeForwarder) Forward(ctx context.Context, level, message string) error {
	f.got <- level + ":" + message
	return nil
}

func newTestController(opts Options) (*Controller, *fakeDispatcher, *events.Broker) {
	broker := events.NewBroker()
	c := NewController(broker, opts)
	d := &fakeDispatcher{}
	c.Attach(d)
	return c, d, broker
}

func control(t *testing.T, c *Controller, id ControlID) Control {
	t.Helper()
	for _, ctl := range c.State().Controls {
		if ctl.ID == id {
			return ctl
		}
	}
	t.Fatalf("control %q not found", id)
	return Control{}
}

func codeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func TestTriggerDisablesControlUntilRelease(t *testing.T) {
	c, d, _ := newTestController(Options{})
	defer c.Close()

	if err := c.AnalyzeFVG("EURUSD", "H1"); err != nil {
		t.Fatalf("AnalyzeFVG() error = %v", err)
	}
	ctl := control(t, c, ControlFVG)
	if ctl.Enabled || ctl.Label != "Analyzing..." {
		t.Fatalf("control after trigger = %+v; want disabled with busy label", ctl)
	}

	err := c.AnalyzeFVG("EURUSD", "H1")
	if got := codeOf(err); got != CodeBusy {
		t.Fatalf("second AnalyzeFVG() code = %q; want %q", got, CodeBusy)
	}
	if got := d.count(); got != 1 {
		t.Fatalf("dispatched = %d; want 1", got)
	}

	c.Release(dashboard.ClassFVG)
	ctl = control(t, c, ControlFVG)
	if !ctl.Enabled || ctl.Label != "Find Fair Value Gaps" {
		t.Fatalf("control after release = %+v; want enabled with idle label", ctl)
	}
}

func TestTriggerReenablesOnDispatchError(t *testing.T) {
	c, d, _ := newTestController(Options{})
	defer c.Close()
	d.err = dashboard.ErrStopped

	if err := c.LinkTimeframes("EURUSD"); !errors.Is(err, dashboard.ErrStopped) {
		t.Fatalf("LinkTimeframes() error = %v; want ErrStopped", err)
	}
	if ctl := control(t, c, ControlLink); !ctl.Enabled {
		t.Fatalf("control = %+v; want enabled", ctl)
	}
}

func TestEmptyTimeframesWarnsWithoutDispatch(t *testing.T) {
	c, d, _ := newTestController(Options{})
	defer c.Close()

	err := c.AnalyzePriceAction("EURUSD", []string{" ", ""}, "H1")
	if got := codeOf(err); got != CodeValidation {
		t.Fatalf("AnalyzePriceAction() code = %q; want %q", got, CodeValidation)
	}
	if got := d.count(); got != 0 {
		t.Fatalf("dispatched = %d; want 0", got)
	}
	notices := c.State().Notices
	if len(notices) != 1 || notices[0].Level != LevelWarning {
		t.Fatalf("notices = %+v; want one warning", notices)
	}
	if notices[0].Message != "Please select at least one timeframe for analysis" {
		t.Fatalf("notice message = %q", notices[0].Message)
	}
	if ctl := control(t, c, ControlPriceAction); !ctl.Enabled {
		t.Fatalf("control = %+v; want enabled", ctl)
	}
}

func TestUploadUsesSelectedTimeframe(t *testing.T) {
	c, d, _ := newTestController(Options{})
	defer c.Close()
	c.SelectionChanged(marketdata.SeriesKey{Symbol: "EURUSD", Timeframe: "M15"})

	if err := c.Upload("EURUSD", "H1", "candles.csv", []byte("x")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := d.calls[0]; got != "upload EURUSD M15" {
		t.Fatalf("dispatched = %q; want %q", got, "upload EURUSD M15")
	}
	if got := c.State().Views.UploadStatus; got != "Uploading..." {
		t.Fatalf("UploadStatus = %q; want %q", got, "Uploading...")
	}

	c.UploadDone(marketdata.UploadResult{CandleCount: 42})
	c.Release(dashboard.ClassUpload)
	st := c.State()
	if st.Views.UploadStatus != "Upload complete" {
		t.Fatalf("UploadStatus = %q; want %q", st.Views.UploadStatus, "Upload complete")
	}
	last := st.Notices[len(st.Notices)-1]
	if last.Message != "Successfully processed 42 candles" {
		t.Fatalf("notice = %q", last.Message)
	}
}

func TestFailedNoticeWording(t *testing.T) {
	tests := []struct {
		name  string
		class dashboard.Class
		err   error
		want  string
	}{
		{"server", dashboard.ClassFVG, &marketdata.CodedError{Code: marketdata.CodeServer, Message: "no candles"}, "Error: no candles"},
		{"network", dashboard.ClassPriceAction, &marketdata.CodedError{Code: marketdata.CodeNetwork, Message: "dial"}, "Analysis failed. See logs for details."},
		{"upload network", dashboard.ClassUpload, &marketdata.CodedError{Code: marketdata.CodeNetwork, Message: "dial"}, "Upload failed. See logs for details."},
		{"plain", dashboard.ClassStatistics, errors.New("boom"), "Loading statistics failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureMessage(tt.class, tt.err); got != tt.want {
				t.Fatalf("failureMessage() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestUploadFailureStatus(t *testing.T) {
	c, _, _ := newTestController(Options{})
	defer c.Close()

	c.Failed(dashboard.ClassUpload, &marketdata.CodedError{Code: marketdata.CodeServer, Message: "bad file"})
	if got := c.State().Views.UploadStatus; got != "Failed to upload" {
		t.Fatalf("UploadStatus = %q; want %q", got, "Failed to upload")
	}
	c.Failed(dashboard.ClassUpload, &marketdata.CodedError{Code: marketdata.CodeNetwork, Message: "dial"})
	if got := c.State().Views.UploadStatus; got != "Upload failed" {
		t.Fatalf("UploadStatus = %q; want %q", got, "Upload failed")
	}
}

func TestNoticeExpires(t *testing.T) {
	c, _, broker := newTestController(Options{NoticeTTL: 20 * time.Millisecond})
	defer c.Close()
	id, sub := broker.Subscribe()
	defer broker.Unsubscribe(id)

	n := c.Notify(LevelInfo, "hello")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub:
			if evt.Kind == events.KindNoticeDismissed {
				if got := len(c.State().Notices); got != 0 {
					t.Fatalf("notices = %d; want 0", got)
				}
				if err := c.DismissNotice(n.ID); codeOf(err) != CodeNoticeUnknown {
					t.Fatalf("DismissNotice() after expiry error = %v; want %s", err, CodeNoticeUnknown)
				}
				return
			}
		case <-deadline:
			t.Fatal("notice was not dismissed")
		}
	}
}

func TestDismissNoticeEarly(t *testing.T) {
	c, _, _ := newTestController(Options{NoticeTTL: time.Hour})
	defer c.Close()

	n := c.Notify(LevelSuccess, "done")
	if err := c.DismissNotice(n.ID); err != nil {
		t.Fatalf("DismissNotice() error = %v", err)
	}
	if got := len(c.State().Notices); got != 0 {
		t.Fatalf("notices = %d; want 0", got)
	}
}

func TestNotifyAfterCloseArmsNoTimer(t *testing.T) {
	c, _, _ := newTestController(Options{NoticeTTL: time.Millisecond})
	c.Close()

	n := c.Notify(LevelDanger, "shutting down")
	c.mu.Lock()
	timers := len(c.timers)
	c.mu.Unlock()
	if timers != 0 {
		t.Fatalf("timers = %d; want 0 after Close", timers)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(c.State().Notices); got != 1 {
		t.Fatalf("notices = %d; want 1", got)
	}
	if err := c.DismissNotice(n.ID); err != nil {
		t.Fatalf("DismissNotice() error = %v", err)
	}
}

func TestReleaseClearsPendingUploadStatus(t *testing.T) {
	c, _, _ := newTestController(Options{})
	defer c.Close()

	if err := c.Upload("EURUSD", "1H", "candles.csv", []byte("x")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	c.Release(dashboard.ClassUpload)
	if got := c.State().Views.UploadStatus; got != "" {
		t.Fatalf("UploadStatus = %q; want cleared", got)
	}
	if ctl := control(t, c, ControlUpload); !ctl.Enabled || ctl.Label != "Upload" {
		t.Fatalf("upload control = %+v; want enabled with idle label", ctl)
	}
}

func TestDangerNoticesAreForwarded(t *testing.T) {
	fwd := &fakeForwarder{got: make(chan string, 4)}
	c, _, _ := newTestController(Options{Forwarder: fwd, NoticeTTL: time.Hour})
	defer c.Close()

	c.Notify(LevelSuccess, "quiet")
	c.Notify(LevelDanger, "loud")

	select {
	case got := <-fwd.got:
		if got != "danger:loud" {
			t.Fatalf("forwarded = %q; want %q", got, "danger:loud")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("danger notice was not forwarded")
	}
	select {
	case got := <-fwd.got:
		t.Fatalf("unexpected forward %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenterRendersViews(t *testing.T) {
	c, _, _ := newTestController(Options{Timeframes: []string{"H4", "H1"}})
	defer c.Close()

	c.OpportunitiesLoaded(nil)
	c.StatisticsLoaded(marketdata.TradeStatistics{WinRate: 50})
	c.TimeframesLoaded("EURUSD", nil)

	v := c.State().Views
	if v.Opportunities == nil || !v.Opportunities.Rows[0].Placeholder {
		t.Fatalf("Opportunities = %+v; want placeholder", v.Opportunities)
	}
	if v.Statistics == nil || v.Statistics.WinRate != "50%" {
		t.Fatalf("Statistics = %+v; want win rate 50%%", v.Statistics)
	}
	if got := v.Timeframes.Rows[0].Cells[0]; got != PlaceholderTimeframes {
		t.Fatalf("Timeframes placeholder = %q; want %q", got, PlaceholderTimeframes)
	}
}
