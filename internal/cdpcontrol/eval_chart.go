package cdpcontrol

import "github.com/dgnsrekt/MaudeViewFX/internal/chart"

// jsBridgePreamble resolves the bridge object the dashboard page installs on
// window. Every chart script starts with it.
const jsBridgePreamble = `
var fx = window.__fxdash;
if (!fx || typeof fx.init !== "function") {
  return JSON.stringify({ok:false,error_code:"` + CodeAPIUnavailable + `",error_message:"chart bridge not loaded"});
}`

func jsBridgeCall(call string) string {
	return wrapJSEval(jsBridgePreamble + `
var out = ` + call + `;
return JSON.stringify({ok:true,data:out === undefined ? null : out});`)
}

func jsInitChart(opts chart.Options) string {
	return jsBridgeCall("fx.init(" + jsJSON(opts) + ")")
}

func jsSetSeriesData(candles []chart.CandlePoint, volume []chart.VolumePoint) string {
	if candles == nil {
		candles = []chart.CandlePoint{}
	}
	if volume == nil {
		volume = []chart.VolumePoint{}
	}
	return jsBridgeCall("fx.setData(" + jsJSON(candles) + ", " + jsJSON(volume) + ")")
}

func jsFitContent() string {
	return jsBridgeCall("fx.fitContent()")
}

func jsResize(width, height int) string {
	return jsBridgeCall("fx.resize(" + jsJSON(width) + ", " + jsJSON(height) + ")")
}

func jsCreatePriceLine(line chart.PriceLine) string {
	return jsBridgeCall("fx.createPriceLine(" + jsJSON(line) + ")")
}

func jsRemovePriceLine(h chart.Handle) string {
	return jsBridgeCall("fx.removePriceLine(" + jsString(string(h)) + ")")
}

func jsVisibleRange() string {
	return jsBridgeCall("fx.visibleRange()")
}
