package api

// chartPageHTML hosts the chart in a browser tab. The dashboard drives it over
// CDP through window.__fxdash; the page itself only displays notices.
const chartPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>FX Dashboard Chart</title>
  <script src="https://unpkg.com/lightweight-charts@4.2.0/dist/lightweight-charts.standalone.production.js"></script>
  <style>
    body { margin: 0; background: #131722; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; }
    #chart { position: relative; }
    #notices { position: fixed; top: 8px; right: 8px; z-index: 10; width: 320px; }
    .notice { margin-bottom: 6px; padding: 8px 12px; border-radius: 4px; font-size: 13px; color: #fff; }
    .notice.success { background: #26a69a; }
    .notice.info { background: #42a5f5; }
    .notice.warning { background: #ff9800; }
    .notice.danger { background: #ef5350; }
  </style>
</head>
<body>
  <div id="chart"></div>
  <div id="notices"></div>
  <script>
  (function () {
    var chart = null;
    var candles = null;
    var volume = null;
    var lines = {};
    var nextLine = 1;

    function requireChart() {
      if (!chart) { throw new Error("chart not initialized"); }
    }

    window.__fxdash = {
      init: function (opts) {
        if (chart) { return true; }
        var el = document.getElementById("chart");
        chart = LightweightCharts.createChart(el, {
          width: opts.width,
          height: opts.height,
          layout: { background: { type: "solid", color: opts.backgroundColor }, textColor: opts.textColor },
          grid: { vertLines: { color: opts.gridColor }, horzLines: { color: opts.gridColor } },
          timeScale: { timeVisible: true, secondsVisible: false }
        });
        candles = chart.addCandlestickSeries({
          upColor: opts.upColor, downColor: opts.downColor, borderVisible: false,
          wickUpColor: opts.upColor, wickDownColor: opts.downColor
        });
        volume = chart.addHistogramSeries({ priceFormat: { type: "volume" }, priceScaleId: "" });
        volume.priceScale().applyOptions({ scaleMargins: { top: 0.8, bottom: 0 } });
        return true;
      },
      setData: function (bars, vols) {
        requireChart();
        candles.setData(bars);
        volume.setData(vols);
        return bars.length;
      },
      fitContent: function () {
        requireChart();
        chart.timeScale().fitContent();
        return true;
      },
      resize: function (w, h) {
        requireChart();
        chart.resize(w, h);
        return true;
      },
      createPriceLine: function (opts) {
        requireChart();
        var id = "pl-" + (nextLine++);
        lines[id] = candles.createPriceLine(opts);
        return id;
      },
      removePriceLine: function (id) {
        requireChart();
        var line = lines[id];
        if (!line) { return false; }
        candles.removePriceLine(line);
        delete lines[id];
        return true;
      },
      visibleRange: function () {
        requireChart();
        var r = chart.timeScale().getVisibleRange();
        return r ? { from: r.from, to: r.to } : { from: 0, to: 0 };
      }
    };

    var box = document.getElementById("notices");
    var src = new EventSource("/api/v1/dashboard/events?kinds=notice,notice-dismissed");
    src.addEventListener("notice", function (e) {
      var n = JSON.parse(e.data);
      var div = document.createElement("div");
      div.id = "notice-" + n.id;
      div.className = "notice " + n.level;
      div.textContent = n.message;
      box.appendChild(div);
    });
    src.addEventListener("notice-dismissed", function (e) {
      var el = document.getElementById("notice-" + JSON.parse(e.data).id);
      if (el) { el.remove(); }
    });
  })();
  </script>
</body>
</html>`
