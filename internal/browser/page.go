package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ChartContainer is the element the chart host page draws into.
const ChartContainer = "#chart"

// ChartPage keeps a browser tab open on the chart host page. Closing it closes
// the tab.
type ChartPage struct {
	URL string

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// OpenPage attaches to the browser at cdpURL and makes sure a tab shows
// chartURL. An existing tab on that URL is reused; otherwise a new tab is
// opened. It returns once the chart container is ready.
func OpenPage(ctx context.Context, cdpURL, chartURL string, width, height int) (*ChartPage, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cdpURL)

	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(probeCtx); err != nil {
		probeCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	targets, err := chromedp.Targets(probeCtx)
	if err != nil {
		probeCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to enumerate targets: %w", err)
	}

	tabCtx, tabCancel := probeCtx, probeCancel
	reused := false
	for _, t := range targets {
		if t.Type == "page" && strings.HasPrefix(t.URL, chartURL) {
			probeCancel()
			tabCtx, tabCancel = chromedp.NewContext(allocCtx, chromedp.WithTargetID(t.TargetID))
			if err := chromedp.Run(tabCtx); err != nil {
				tabCancel()
				allocCancel()
				return nil, fmt.Errorf("attach chart tab %s: %w", t.TargetID, err)
			}
			reused = true
			slog.Info("reusing chart tab", "target_id", t.TargetID, "url", t.URL)
			break
		}
	}

	actions := []chromedp.Action{}
	if width > 0 && height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(width), int64(height)))
	}
	if !reused {
		actions = append(actions, chromedp.Navigate(chartURL))
	}
	actions = append(actions, chromedp.WaitReady(ChartContainer, chromedp.ByQuery))

	runCtx, runCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer runCancel()
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("open chart page %s: %w", chartURL, err)
	}
	slog.Info("chart page ready", "url", chartURL, "reused", reused)
	return &ChartPage{URL: chartURL, allocCancel: allocCancel, tabCancel: tabCancel}, nil
}

// Close closes the tab and releases the browser connection.
func (p *ChartPage) Close() {
	if p == nil {
		return
	}
	p.tabCancel()
	p.allocCancel()
}
