package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultTitle = "FX dashboard"

// Send posts a plain-text message to an ntfy topic endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string, tags ...string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Forwarder relays dashboard notices to one ntfy endpoint.
type Forwarder struct {
	endpoint string
	client   *http.Client
}

func NewForwarder(endpoint string, client *http.Client) *Forwarder {
	return &Forwarder{endpoint: strings.TrimSpace(endpoint), client: client}
}

func (f *Forwarder) Forward(ctx context.Context, level, message string) error {
	return Send(ctx, f.client, f.endpoint, defaultTitle, message, level)
}
