package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

type pageSession struct {
	info      PageInfo
	sessionID string
}

// Client evaluates scripts on the single browser tab whose URL contains the
// page filter. Evaluations are serialized.
type Client struct {
	cdpURL      string
	pageFilter  string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	page *pageSession

	evalMu sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, pageFilter string, evalTimeout time.Duration) *Client {
	if evalTimeout <= 0 {
		evalTimeout = 10 * time.Second
	}
	return &Client{
		cdpURL:      strings.TrimSpace(cdpURL),
		pageFilter:  strings.ToLower(strings.TrimSpace(pageFilter)),
		evalTimeout: evalTimeout,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.cdp != nil {
		if c.page != nil && c.page.sessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := c.cdp.detachFromTarget(ctx, c.page.sessionID); err != nil {
				slog.Debug("cdpcontrol detach cleanup failed", "target_id", c.page.info.TargetID, "error", err)
			}
			cancel()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.page = nil
}

// Page returns the tab the client is bound to, locating it if necessary.
func (c *Client) Page(ctx context.Context) (PageInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return PageInfo{}, err
	}
	if err := c.findPageLocked(ctx); err != nil {
		return PageInfo{}, err
	}
	return c.page.info, nil
}

// Eval runs a wrapped script on the chart page and decodes its data into out.
// A transient failure triggers one reconnect and retry.
func (c *Client) Eval(ctx context.Context, js string, out any) error {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	err := c.evalOnce(ctx, js, out)
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "error", err)
	if asCode(err, CodeCDPUnavailable) {
		c.mu.Lock()
		recErr := c.connectLocked(ctx)
		c.mu.Unlock()
		if recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "error", recErr)
			return recErr
		}
	} else {
		c.mu.Lock()
		c.page = nil
		c.mu.Unlock()
	}
	return c.evalOnce(ctx, js, out)
}

// Screenshot captures the chart page as PNG.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	cdp, sessionID, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	png, err := cdp.captureScreenshot(ctx, sessionID)
	if err != nil {
		return nil, newError(CodeEvalFailure, "capture screenshot failed", err)
	}
	return png, nil
}

func (c *Client) evalOnce(ctx context.Context, js string, out any) error {
	cdp, sessionID, err := c.session(ctx)
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "error", err)
		c.mu.Lock()
		if c.page != nil {
			c.page.sessionID = ""
		}
		c.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// session returns a connected transport and an attached session on the page.
func (c *Client) session(ctx context.Context) (*rawCDP, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(ctx); err != nil {
		return nil, "", err
	}
	if err := c.findPageLocked(ctx); err != nil {
		return nil, "", err
	}
	if c.page.sessionID != "" {
		return c.cdp, c.page.sessionID, nil
	}

	sid, err := c.cdp.attachToTarget(ctx, c.page.info.TargetID)
	if err != nil {
		return nil, "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	c.page.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", c.page.info.TargetID, "session_id", sid)
	return c.cdp, sid, nil
}

func (c *Client) ensureConnectedLocked(ctx context.Context) error {
	if c.cdp != nil {
		return nil
	}
	return c.connectLocked(ctx)
}

func (c *Client) findPageLocked(ctx context.Context) error {
	if c.page != nil {
		return nil
	}
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.pageFilter != "" && !strings.Contains(strings.ToLower(t.URL), c.pageFilter) {
			continue
		}
		c.page = &pageSession{info: PageInfo{TargetID: string(t.TargetID), URL: t.URL, Title: t.Title}}
		slog.Debug("cdpcontrol page found", "target_id", t.TargetID, "url", t.URL)
		return nil
	}
	return newError(CodePageNotFound, "no page matches filter "+jsString(c.pageFilter), nil)
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
