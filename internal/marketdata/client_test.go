package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error type = %T; want *CodedError", err)
	}
	return coded.Code
}

func TestFetchCandles_DecodesSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/candles" {
			t.Errorf("path = %q; want /api/candles", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "EUR/USD" {
			t.Errorf("symbol = %q; want EUR/USD", got)
		}
		if got := r.URL.Query().Get("timeframe"); got != "1H" {
			t.Errorf("timeframe = %q; want 1H", got)
		}
		_, _ = io.WriteString(w, `[{"id":1,"time":1700000000.0,"open":1.1,"high":1.2,"low":1.0,"close":1.15,"volume":42}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	candles, err := c.FetchCandles(context.Background(), SeriesKey{Symbol: "EUR/USD", Timeframe: "1H"})
	if err != nil {
		t.Fatalf("FetchCandles() = %v; want nil", err)
	}
	if len(candles) != 1 {
		t.Fatalf("len(candles) = %d; want 1", len(candles))
	}
	if candles[0].Time != 1700000000 || candles[0].Volume != 42 {
		t.Fatalf("candle = %+v; want time 1700000000 volume 42", candles[0])
	}
	if !candles[0].Bullish() {
		t.Fatalf("Bullish() = false; want true")
	}
}

func TestErrorFieldOn2xxIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"no candles for symbol"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.FetchPatterns(context.Background(), SeriesKey{Symbol: "EUR/USD", Timeframe: "15m"})
	if err == nil {
		t.Fatalf("FetchPatterns() = nil; want server error")
	}
	if code := codeOf(t, err); code != CodeServer {
		t.Fatalf("code = %q; want %q", code, CodeServer)
	}
	if !strings.Contains(err.Error(), "no candles for symbol") {
		t.Fatalf("error = %q; want server message", err.Error())
	}
}

func TestNon2xxWithoutErrorFieldIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.FetchOpportunities(context.Background())
	if code := codeOf(t, err); code != CodeServer {
		t.Fatalf("code = %q; want %q", code, CodeServer)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(base, nil)
	_, err := c.FetchTradeStatistics(context.Background())
	if code := codeOf(t, err); code != CodeNetwork {
		t.Fatalf("code = %q; want %q", code, CodeNetwork)
	}
}

func TestRequestPriceActionAnalysis_EmptyTimeframesFailsBeforeRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.RequestPriceActionAnalysis(context.Background(), "EUR/USD", nil, "15m")
	if code := codeOf(t, err); code != CodeValidation {
		t.Fatalf("code = %q; want %q", code, CodeValidation)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("server hits = %d; want 0", n)
	}
}

func TestRequestPriceActionAnalysis_SendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Symbol         string   `json:"symbol"`
			Timeframes     []string `json:"timeframes"`
			PivotTimeframe string   `json:"pivotTimeframe"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.PivotTimeframe != "15m" || len(body.Timeframes) != 2 {
			t.Errorf("body = %+v; want pivot 15m and two timeframes", body)
		}
		_, _ = io.WriteString(w, `{"success":true,"validationStats":{"valid":3,"invalid":1,"pending":2},
"patternCounts":{"5m":{"HH":1,"HL":0,"LH":2,"LL":0,"BOS":1,"CHoCH":1}},"patternsByTimeframe":{"5m":5}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	sum, err := c.RequestPriceActionAnalysis(context.Background(), "EUR/USD", []string{"5m", "15m"}, "15m")
	if err != nil {
		t.Fatalf("RequestPriceActionAnalysis() = %v; want nil", err)
	}
	if sum.ValidationStats.Valid != 3 || sum.PatternCounts["5m"].LH != 2 || sum.PatternsByTimeframe["5m"] != 5 {
		t.Fatalf("summary = %+v; want decoded counts", sum)
	}
}

func TestUploadCandleFile_SendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() = %v", err)
		}
		if got := r.FormValue("symbol"); got != "GBP/USD" {
			t.Errorf("symbol = %q; want GBP/USD", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() = %v", err)
		} else {
			defer f.Close()
			data, _ := io.ReadAll(f)
			if hdr.Filename != "gbp.csv" || string(data) != "a,b\n" {
				t.Errorf("file = %q %q; want gbp.csv contents", hdr.Filename, data)
			}
		}
		_, _ = io.WriteString(w, `{"success":true,"candleCount":1440}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	res, err := c.UploadCandleFile(context.Background(), "GBP/USD", "gbp.csv", strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatalf("UploadCandleFile() = %v; want nil", err)
	}
	if res.CandleCount != 1440 {
		t.Fatalf("CandleCount = %d; want 1440", res.CandleCount)
	}
}

func TestFetchTradeStatistics_NilMapNormalised(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"totalOpportunities":0,"winCount":0,"lossCount":0,"pendingCount":0,"winRate":0,"expectancy":0}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	stats, err := c.FetchTradeStatistics(context.Background())
	if err != nil {
		t.Fatalf("FetchTradeStatistics() = %v; want nil", err)
	}
	if stats.TimeframeStats == nil {
		t.Fatalf("TimeframeStats = nil; want empty map")
	}
}

func TestFVGBounds(t *testing.T) {
	g := FVG{StartPrice: 1.1950, EndPrice: 1.2000}
	if g.Top() != 1.2000 || g.Bottom() != 1.1950 {
		t.Fatalf("Top/Bottom = %v/%v; want 1.2/1.195", g.Top(), g.Bottom())
	}
}
