package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lidarscan/internal/httputil"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/vfx"
)

// handleChart renders the latest frame of every target as a top-down X/Z
// scatter, one series per target. Records are re-anchored at the target
// position, which is where the renderer draws them.
// Query params:
//   - target (optional) restricts the chart to one handle
//   - max_points (optional; default 20000) caps points per series
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	maxPoints := 20000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 0 && v <= 200000 {
			maxPoints = v
		}
	}

	var targets []vfx.Target
	if h := r.URL.Query().Get("target"); h != "" {
		t, ok := s.targets.Get(scanner.TargetHandle(h))
		if !ok {
			httputil.NotFound(w, "unknown target "+h)
			return
		}
		targets = []vfx.Target{t}
	} else {
		targets = s.targets.Snapshot()
	}

	page, err := s.renderChart(targets, maxPoints)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	httputil.WriteHTML(w, http.StatusOK, page)
}

func (s *Server) renderChart(targets []vfx.Target, maxPoints int) ([]byte, error) {
	type series struct {
		name string
		data []opts.ScatterData
	}
	var (
		all    []series
		maxAbs float64
		total  int
	)
	for _, t := range targets {
		points := encoding.Decode(t.Records, t.Position)
		stride := 1
		if len(points) > maxPoints {
			stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
		}
		data := make([]opts.ScatterData, 0, len(points)/stride+1)
		for i := 0; i < len(points); i += stride {
			p := points[i]
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Z)))
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Z, p.Y}})
		}
		total += len(data)
		all = append(all, series{name: fmt.Sprintf("%s (%s)", t.Handle, t.Prefab), data: data})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Targets (top-down)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: s.assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Scan Targets", Subtitle: fmt.Sprintf("targets=%d points=%d", len(targets), total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)
	for _, sr := range all {
		scatter.AddSeries(sr.name, sr.data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
