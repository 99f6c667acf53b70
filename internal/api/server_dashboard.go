package api

import (
	"context"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/MaudeViewFX/internal/ui"
)

type acceptedOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func accepted() *acceptedOutput {
	out := &acceptedOutput{}
	out.Body.Status = "accepted"
	return out
}

func registerDashboardHandlers(api huma.API, ctl Controls) {
	type stateOutput struct {
		Body ui.State
	}
	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/v1/dashboard/state", Summary: "Get rendered dashboard state", Description: "Controls, notices, views, current selection and chart summary.", Tags: []string{"Dashboard"}},
		func(ctx context.Context, input *struct{}) (*stateOutput, error) {
			out := &stateOutput{}
			out.Body = ctl.State()
			return out, nil
		})

	type loadInput struct {
		Body struct {
			Symbol    string `json:"symbol" example:"EURUSD"`
			Timeframe string `json:"timeframe" example:"1H"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "load-chart", Method: http.MethodPost, Path: "/api/v1/dashboard/chart/load", Summary: "Select a series and load its candles", Tags: []string{"Chart"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *loadInput) (*acceptedOutput, error) {
			if err := ctl.LoadChart(input.Body.Symbol, input.Body.Timeframe); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	type priceActionInput struct {
		Body struct {
			Symbol         string   `json:"symbol" example:"EURUSD"`
			Timeframes     []string `json:"timeframes" doc:"Timeframes to analyze; at least one"`
			PivotTimeframe string   `json:"pivot_timeframe" example:"1H"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-price-action", Method: http.MethodPost, Path: "/api/v1/dashboard/analyze/price-action", Summary: "Run price action analysis", Description: "Draws the detected patterns for the pivot timeframe once the analysis succeeds.", Tags: []string{"Analysis"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *priceActionInput) (*acceptedOutput, error) {
			if err := ctl.AnalyzePriceAction(input.Body.Symbol, input.Body.Timeframes, input.Body.PivotTimeframe); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	type fvgInput struct {
		Body struct {
			Symbol    string `json:"symbol" example:"EURUSD"`
			Timeframe string `json:"timeframe" example:"15m"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-fvg", Method: http.MethodPost, Path: "/api/v1/dashboard/analyze/fvg", Summary: "Find fair value gaps", Tags: []string{"Analysis"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *fvgInput) (*acceptedOutput, error) {
			if err := ctl.AnalyzeFVG(input.Body.Symbol, input.Body.Timeframe); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	type opportunitiesInput struct {
		Body struct {
			Symbol         string `json:"symbol" example:"EURUSD"`
			CHoCHTimeframe string `json:"choch_timeframe" example:"4H"`
			FVGTimeframe   string `json:"fvg_timeframe" example:"15m"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-opportunities", Method: http.MethodPost, Path: "/api/v1/dashboard/analyze/opportunities", Summary: "Find trade opportunities", Description: "Refreshes the opportunities table and trade statistics on success.", Tags: []string{"Analysis"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *opportunitiesInput) (*acceptedOutput, error) {
			if err := ctl.AnalyzeOpportunities(input.Body.Symbol, input.Body.CHoCHTimeframe, input.Body.FVGTimeframe); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	type uploadForm struct {
		File huma.FormFile `form:"file" doc:"Candle file"`
	}
	type uploadInput struct {
		RawBody huma.MultipartFormFiles[uploadForm]
	}
	huma.Register(api, huma.Operation{OperationID: "upload-candles", Method: http.MethodPost, Path: "/api/v1/dashboard/upload", Summary: "Upload a candle file", Description: "Multipart form with file, symbol and optional timeframe. Candles for the selected timeframe are reloaded on success.", Tags: []string{"Data"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *uploadInput) (*acceptedOutput, error) {
			form := input.RawBody.Data()
			var symbol, timeframe string
			if f := input.RawBody.Form; f != nil {
				symbol = firstValue(f.Value["symbol"])
				timeframe = firstValue(f.Value["timeframe"])
			}
			var data []byte
			if form.File.IsSet {
				defer form.File.Close()
				b, err := io.ReadAll(form.File)
				if err != nil {
					return nil, huma.Error400BadRequest("read upload failed", err)
				}
				data = b
			}
			if err := ctl.Upload(symbol, timeframe, form.File.Filename, data); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	type symbolInput struct {
		Body struct {
			Symbol string `json:"symbol" example:"EURUSD"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "link-timeframes", Method: http.MethodPost, Path: "/api/v1/dashboard/link-timeframes", Summary: "Link candles to their parent timeframes", Tags: []string{"Data"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *symbolInput) (*acceptedOutput, error) {
			if err := ctl.LinkTimeframes(input.Body.Symbol); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "refresh-timeframes", Method: http.MethodPost, Path: "/api/v1/dashboard/timeframes/refresh", Summary: "Reload the stored timeframe listing", Tags: []string{"Data"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *symbolInput) (*acceptedOutput, error) {
			if err := ctl.RefreshTimeframes(input.Body.Symbol); err != nil {
				return nil, mapErr(err)
			}
			return accepted(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "dismiss-notice", Method: http.MethodDelete, Path: "/api/v1/dashboard/notices/{id}", Summary: "Dismiss a notice", Tags: []string{"Dashboard"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct{}, error) {
			if err := ctl.DismissNotice(input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}

func firstValue(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
