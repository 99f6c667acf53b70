package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// Client is the typed request layer over the analysis backend. It keeps no
// state between calls and never retries.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) FetchCandles(ctx context.Context, key SeriesKey) ([]Candle, error) {
	if err := requireSeriesKey(key); err != nil {
		return nil, err
	}
	var out []Candle
	if err := c.get(ctx, "/api/candles", seriesQuery(key), &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) FetchPatterns(ctx context.Context, key SeriesKey) ([]Pattern, error) {
	if err := requireSeriesKey(key); err != nil {
		return nil, err
	}
	var out []Pattern
	if err := c.get(ctx, "/api/data/patterns", seriesQuery(key), &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) FetchFVGs(ctx context.Context, key SeriesKey) ([]FVG, error) {
	if err := requireSeriesKey(key); err != nil {
		return nil, err
	}
	var out []FVG
	if err := c.get(ctx, "/api/data/fvgs", seriesQuery(key), &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) FetchOpportunities(ctx context.Context) ([]TradeOpportunity, error) {
	var out []TradeOpportunity
	if err := c.get(ctx, "/api/data/opportunities", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) FetchTradeStatistics(ctx context.Context) (TradeStatistics, error) {
	var out TradeStatistics
	if err := c.get(ctx, "/api/statistics/trades", nil, &out); err != nil {
		return TradeStatistics{}, err
	}
	if out.TimeframeStats == nil {
		out.TimeframeStats = map[string]TimeframeStat{}
	}
	return out, nil
}

func (c *Client) FetchTimeframes(ctx context.Context, symbol string) ([]TimeframeInfo, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return nil, err
	}
	var out []TimeframeInfo
	if err := c.get(ctx, "/api/timeframes", url.Values{"symbol": {symbol}}, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) LinkTimeframes(ctx context.Context, symbol string) (LinkResult, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return LinkResult{}, err
	}
	body := struct {
		Symbol string `json:"symbol"`
	}{Symbol: symbol}
	var out LinkResult
	if err := c.postJSON(ctx, "/api/link-timeframes", body, &out); err != nil {
		return LinkResult{}, err
	}
	return out, nil
}

// RequestPriceActionAnalysis runs swing-structure detection for every
// requested timeframe and validates the result against pivot.
func (c *Client) RequestPriceActionAnalysis(ctx context.Context, symbol string, timeframes []string, pivot string) (PriceActionSummary, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return PriceActionSummary{}, err
	}
	if len(timeframes) == 0 {
		return PriceActionSummary{}, newError(CodeValidation, "at least one timeframe is required", nil)
	}
	if err := requireNonEmpty(pivot, "pivot timeframe"); err != nil {
		return PriceActionSummary{}, err
	}
	body := struct {
		Symbol         string   `json:"symbol"`
		Timeframes     []string `json:"timeframes"`
		PivotTimeframe string   `json:"pivotTimeframe"`
	}{Symbol: symbol, Timeframes: timeframes, PivotTimeframe: pivot}

	var out PriceActionSummary
	if err := c.postJSON(ctx, "/api/analyze/price-action", body, &out); err != nil {
		return PriceActionSummary{}, err
	}
	return out, nil
}

func (c *Client) RequestFVGAnalysis(ctx context.Context, symbol, timeframe string) (AnalysisSummary, error) {
	if err := requireSeriesKey(SeriesKey{Symbol: symbol, Timeframe: timeframe}); err != nil {
		return AnalysisSummary{}, err
	}
	body := struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
	}{Symbol: symbol, Timeframe: timeframe}

	var out AnalysisSummary
	if err := c.postJSON(ctx, "/api/analyze/fvg", body, &out); err != nil {
		return AnalysisSummary{}, err
	}
	return out, nil
}

func (c *Client) RequestOpportunityAnalysis(ctx context.Context, symbol, chochTimeframe, fvgTimeframe string) (AnalysisSummary, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return AnalysisSummary{}, err
	}
	if err := requireNonEmpty(chochTimeframe, "CHoCH timeframe"); err != nil {
		return AnalysisSummary{}, err
	}
	if err := requireNonEmpty(fvgTimeframe, "FVG timeframe"); err != nil {
		return AnalysisSummary{}, err
	}
	body := struct {
		Symbol         string `json:"symbol"`
		ChochTimeframe string `json:"chochTimeframe"`
		FVGTimeframe   string `json:"fvgTimeframe"`
	}{Symbol: symbol, ChochTimeframe: chochTimeframe, FVGTimeframe: fvgTimeframe}

	var out AnalysisSummary
	if err := c.postJSON(ctx, "/api/analyze/opportunities", body, &out); err != nil {
		return AnalysisSummary{}, err
	}
	return out, nil
}

// UploadCandleFile streams a CSV candle export to the backend as multipart form data.
func (c *Client) UploadCandleFile(ctx context.Context, symbol, filename string, file io.Reader) (UploadResult, error) {
	if err := requireNonEmpty(symbol, "symbol"); err != nil {
		return UploadResult{}, err
	}
	if err := requireNonEmpty(filename, "filename"); err != nil {
		return UploadResult{}, err
	}
	if file == nil {
		return UploadResult{}, newError(CodeValidation, "file is required", nil)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, newError(CodeValidation, "build multipart body failed", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return UploadResult{}, newError(CodeValidation, "read upload file failed", err)
	}
	if err := mw.WriteField("symbol", symbol); err != nil {
		return UploadResult{}, newError(CodeValidation, "build multipart body failed", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, newError(CodeValidation, "build multipart body failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return UploadResult{}, newError(CodeValidation, "build upload request failed", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.do(req, &out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newError(CodeValidation, "build request failed", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return newError(CodeValidation, "marshal request body failed", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return newError(CodeValidation, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends req and decodes the body into out. A present "error" field is a
// server failure whatever the status code.
func (c *Client) do(req *http.Request, out any) error {
	path := req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("marketdata request failed", "method", req.Method, "path", path, "error", err)
		return newError(CodeNetwork, req.Method+" "+path+" failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("marketdata response close failed", "path", path, "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(CodeNetwork, "read response failed", err)
	}

	if msg, ok := errorField(raw); ok {
		slog.Warn("marketdata server error", "path", path, "status", resp.StatusCode, "error", msg)
		return newError(CodeServer, msg, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(CodeServer, fmt.Sprintf("%s %s: HTTP %d", req.Method, path, resp.StatusCode), nil)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(CodeServer, "invalid response payload", err)
	}
	slog.Debug("marketdata request ok", "method", req.Method, "path", path, "status", resp.StatusCode, "bytes", len(raw))
	return nil
}

// errorField extracts a non-empty "error" member when raw is a JSON object.
func errorField(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(env.Error, &msg); err != nil {
		return string(env.Error), true
	}
	if msg == "" {
		msg = "server reported an empty error"
	}
	return msg, true
}

func requireNonEmpty(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return newError(CodeValidation, field+" is required", nil)
	}
	return nil
}

func requireSeriesKey(key SeriesKey) error {
	if err := requireNonEmpty(key.Symbol, "symbol"); err != nil {
		return err
	}
	return requireNonEmpty(key.Timeframe, "timeframe")
}

func seriesQuery(key SeriesKey) url.Values {
	return url.Values{"symbol": {key.Symbol}, "timeframe": {key.Timeframe}}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
