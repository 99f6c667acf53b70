package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/MaudeViewFX/internal/chart"
	"github.com/dgnsrekt/MaudeViewFX/internal/config"
	"github.com/dgnsrekt/MaudeViewFX/internal/dashboard"
)

func registerChartHandlers(api huma.API, deps Deps) {
	type resizeInput struct {
		Body struct {
			Width  int `json:"width" example:"1200"`
			Height int `json:"height" example:"500"`
		}
	}
	type chartOutput struct {
		Body chart.SurfaceSnapshot
	}
	huma.Register(api, huma.Operation{OperationID: "resize-chart", Method: http.MethodPost, Path: "/api/v1/dashboard/chart/resize", Summary: "Resize the chart", Description: "Changes the drawing area only. Data and visible range are kept.", Tags: []string{"Chart"}},
		func(ctx context.Context, input *resizeInput) (*chartOutput, error) {
			if err := deps.Dashboard.Resize(ctx, input.Body.Width, input.Body.Height); err != nil {
				return nil, mapErr(err)
			}
			snap, err := deps.Dashboard.Snapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &chartOutput{}
			out.Body = snap.Chart
			return out, nil
		})

	type imageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "chart-png",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/chart.png",
		Summary:     "Get a PNG of the chart",
		Description: "Captures the chart page when a browser is attached, otherwise renders the current dataset and overlays.",
		Tags:        []string{"Chart"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Chart image",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *struct{}) (*imageOutput, error) {
		if deps.Screenshots != nil {
			data, err := deps.Screenshots.Screenshot(ctx)
			if err == nil {
				return &imageOutput{ContentType: "image/png", Body: data}, nil
			}
			slog.Warn("chart screenshot failed, rendering instead", "error", err)
		}
		snap, err := deps.Dashboard.Snapshot(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		var buf bytes.Buffer
		if err := chart.RenderPNG(&buf, snap.Chart); err != nil {
			return nil, mapErr(err)
		}
		return &imageOutput{ContentType: "image/png", Body: buf.Bytes()}, nil
	})

	type diagnosticsOutput struct {
		Body dashboard.Snapshot
	}
	huma.Register(api, huma.Operation{OperationID: "dashboard-diagnostics", Method: http.MethodGet, Path: "/api/v1/dashboard/diagnostics", Summary: "Get request class states", Description: "Live series, generations, per-class phase and the count of discarded stale results.", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*diagnosticsOutput, error) {
			snap, err := deps.Dashboard.Snapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &diagnosticsOutput{}
			out.Body = snap
			return out, nil
		})

	type presetsOutput struct {
		Body *config.Presets
	}
	huma.Register(api, huma.Operation{OperationID: "get-presets", Method: http.MethodGet, Path: "/api/v1/dashboard/presets", Summary: "Get selectable symbols, timeframes and defaults", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*presetsOutput, error) {
			out := &presetsOutput{}
			out.Body = deps.Presets
			if out.Body == nil {
				out.Body = config.DefaultPresets()
			}
			return out, nil
		})
}

func registerMiscHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/healthz", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}
