package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
	"github.com/dgnsrekt/MaudeViewFX/internal/marketdata"
	"github.com/dgnsrekt/MaudeViewFX/internal/ui"
)

type stubDispatcher struct {
	uploads []string
}

func (s *stubDispatcher) LoadCandles(key marketdata.SeriesKey) error { return nil }
func (s *stubDispatcher) AnalyzePriceAction(symbol string, timeframes []string, pivot string) error {
	return nil
}
func (s *stubDispatcher) AnalyzeFVG(symbol, timeframe string) error { return nil }
func (s *stubDispatcher) AnalyzeOpportunities(symbol, chochTimeframe, fvgTimeframe string) error {
	return nil
}
func (s *stubDispatcher) Upload(symbol, timeframe, filename string, data []byte) error {
	s.uploads = append(s.uploads, symbol+"|"+timeframe+"|"+filename+"|"+string(data))
	return nil
}
func (s *stubDispatcher) LinkTimeframes(symbol string) error    { return nil }
func (s *stubDispatcher) RefreshTimeframes(symbol string) error { return nil }

type stubDashboard struct {
	resizeErr error
	snap      dashboard.Snapshot
}

func (s *stubDashboard) Resize(ctx context.Context, width, height int) error {
	if s.resizeErr != nil {
		return s.resizeErr
	}
	s.snap.Chart.Width, s.snap.Chart.Height = width, height
	return nil
}

func (s *stubDashboard) Snapshot(ctx context.Context) (dashboard.Snapshot, error) {
	return s.snap, nil
}

type stubScreens struct {
	data []byte
	err  error
}

func (s *stubScreens) Screenshot(ctx context.Context) ([]byte, error) { return s.data, s.err }

type harness struct {
	handler    http.Handler
	controller *ui.Controller
	dispatcher *stubDispatcher
	dashboard  *stubDashboard
}

func newHarness(t *testing.T, screens Screenshotter) *harness {
	t.Helper()
	c := ui.NewController(nil, ui.Options{NoticeTTL: time.Hour})
	t.Cleanup(c.Close)
	d := &stubDispatcher{}
	c.Attach(d)
	dash := &stubDashboard{}
	return &harness{
		handler:    NewServer(Deps{Controls: c, Dashboard: dash, Screenshots: screens}),
		controller: c,
		dispatcher: d,
		dashboard:  dash,
	}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestChartPageInstallsBridge(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/chart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"window.__fxdash", "createPriceLine", `id="chart"`, "top: 0.8, bottom: 0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("chart page missing %q", want)
		}
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	if w := h.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestTriggerAccepted(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodPost, "/api/v1/dashboard/analyze/fvg", `{"symbol":"EURUSD","timeframe":"15m"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	w = h.do(http.MethodGet, "/api/v1/dashboard/state", "")
	var st ui.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	for _, c := range st.Controls {
		if c.ID == ui.ControlFVG && c.Enabled {
			t.Fatalf("fvg control enabled after trigger")
		}
	}
}

func TestBusyTriggerConflict(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"symbol":"EURUSD"}`
	if w := h.do(http.MethodPost, "/api/v1/dashboard/link-timeframes", body); w.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := h.do(http.MethodPost, "/api/v1/dashboard/link-timeframes", body); w.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestEmptyTimeframesBadRequest(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodPost, "/api/v1/dashboard/analyze/price-action", `{"symbol":"EURUSD","timeframes":[],"pivot_timeframe":"1H"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	if n := len(h.controller.State().Notices); n != 1 {
		t.Fatalf("notices = %d; want 1 warning", n)
	}
}

func TestDismissUnknownNotice(t *testing.T) {
	h := newHarness(t, nil)
	if w := h.do(http.MethodDelete, "/api/v1/dashboard/notices/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	n := h.controller.Notify(ui.LevelInfo, "hi")
	if w := h.do(http.MethodDelete, "/api/v1/dashboard/notices/"+n.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestResizeValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.dashboard.resizeErr = &chart.CodedError{Code: chart.CodeValidation, Message: "width and height must be positive"}
	if w := h.do(http.MethodPost, "/api/v1/dashboard/chart/resize", `{"width":0,"height":400}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestResizeReturnsChart(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodPost, "/api/v1/dashboard/chart/resize", `{"width":900,"height":450}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap chart.SurfaceSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Width != 900 || snap.Height != 450 {
		t.Fatalf("size = %dx%d; want 900x450", snap.Width, snap.Height)
	}
}

func TestChartPNGUsesScreenshot(t *testing.T) {
	h := newHarness(t, &stubScreens{data: []byte("\x89PNGshot")})
	w := h.do(http.MethodGet, "/api/v1/dashboard/chart.png", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "\x89PNGshot" {
		t.Fatalf("body = %q; want screenshot bytes", got)
	}
}

func TestChartPNGFallsBackToRender(t *testing.T) {
	h := newHarness(t, &stubScreens{err: errors.New("no page")})
	h.dashboard.snap.Chart = chart.SurfaceSnapshot{
		Width:  800,
		Height: 400,
		Key:    marketdata.SeriesKey{Symbol: "EURUSD", Timeframe: "1H"},
		Candles: []marketdata.Candle{
			{Time: 1700000000, Open: 1.10, High: 1.12, Low: 1.09, Close: 1.11},
			{Time: 1700003600, Open: 1.11, High: 1.11, Low: 1.08, Close: 1.09},
		},
	}
	w := h.do(http.MethodGet, "/api/v1/dashboard/chart.png", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q; want image/png", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("body is not a PNG")
	}
}

func TestUploadMultipart(t *testing.T) {
	h := newHarness(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("symbol", "EURUSD"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.WriteField("timeframe", "1H"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "eurusd.csv")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	fw.Write([]byte("time,open\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	want := "EURUSD|1H|eurusd.csv|time,open\n"
	if len(h.dispatcher.uploads) != 1 || h.dispatcher.uploads[0] != want {
		t.Fatalf("uploads = %q; want [%q]", h.dispatcher.uploads, want)
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dashboard.ErrStopped, http.StatusServiceUnavailable},
		{&ui.CodedError{Code: ui.CodeBusy}, http.StatusConflict},
		{&marketdata.CodedError{Code: marketdata.CodeServer, Message: "x"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{&chart.CodedError{Code: chart.CodeValidation}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		var se interface{ GetStatus() int }
		if !errors.As(mapErr(tt.err), &se) {
			t.Fatalf("mapErr(%v) is not a status error", tt.err)
		}
		if got := se.GetStatus(); got != tt.want {
			t.Fatalf("mapErr(%v) status = %d; want %d", tt.err, got, tt.want)
		}
	}
}
