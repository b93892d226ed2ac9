package main

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/blackknights-robotics/motioncore/internal/telemetry"
)

// Series is one named line of a chart.
type Series struct {
	Name   string
	Points plotter.XYs
}

// loadTrajectories reads pose arrays ([x, y, θ]) as x/y paths. Keys absent
// from the run are skipped.
func loadTrajectories(a *telemetry.Archive, runID string, keys []string) ([]Series, error) {
	var out []Series
	for _, key := range keys {
		pts, err := a.ArraySeries(runID, key)
		if err != nil {
			return nil, err
		}
		xy := make(plotter.XYs, 0, len(pts))
		for _, p := range pts {
			if len(p.Values) < 2 || math.IsNaN(p.Values[0]) || math.IsNaN(p.Values[1]) {
				continue
			}
			xy = append(xy, plotter.XY{X: p.Values[0], Y: p.Values[1]})
		}
		if len(xy) > 0 {
			out = append(out, Series{Name: key, Points: xy})
		}
	}
	return out, nil
}

// loadScalars reads scalar keys against time. Keys absent from the run are
// skipped; NaN samples are dropped.
func loadScalars(a *telemetry.Archive, runID string, keys []string) ([]Series, error) {
	var out []Series
	for _, key := range keys {
		pts, err := a.Series(runID, key)
		if err != nil {
			return nil, err
		}
		xy := make(plotter.XYs, 0, len(pts))
		for _, p := range pts {
			if math.IsNaN(p.Value) {
				continue
			}
			xy = append(xy, plotter.XY{X: p.T, Y: p.Value})
		}
		if len(xy) > 0 {
			out = append(out, Series{Name: key, Points: xy})
		}
	}
	return out, nil
}

// savePNG draws every series as a line on one plot.
func savePNG(path, title, xLabel, yLabel string, series []Series, equalAxes bool) error {
	if len(series) == 0 {
		return fmt.Errorf("%s: nothing to plot", title)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	for i, s := range series {
		line, err := plotter.NewLine(s.Points)
		if err != nil {
			return fmt.Errorf("series %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	p.Legend.Top = true

	if equalAxes {
		squareAxes(p)
	}
	if err := p.Save(10*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// squareAxes widens the narrower axis so a metre is the same length on both.
func squareAxes(p *plot.Plot) {
	dx := p.X.Max - p.X.Min
	dy := p.Y.Max - p.Y.Min
	switch {
	case dx > dy:
		mid := (p.Y.Max + p.Y.Min) / 2
		p.Y.Min, p.Y.Max = mid-dx/2, mid+dx/2
	case dy > dx:
		mid := (p.X.Max + p.X.Min) / 2
		p.X.Min, p.X.Max = mid-dy/2, mid+dy/2
	}
}

// renderHTML writes an interactive page with the trajectory and the scalar
// series.
func renderHTML(w io.Writer, run telemetry.Run, trajectories, scalars []Series) error {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Run %s", run.ID))

	if len(trajectories) > 0 {
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Width: "900px", Height: "700px"}),
			charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("run=%s label=%s", run.ID, run.Label)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		)
		for _, s := range trajectories {
			data := make([]opts.ScatterData, 0, len(s.Points))
			for _, p := range s.Points {
				data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
			}
			scatter.AddSeries(s.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
		}
		page.AddCharts(scatter)
	}

	if len(scalars) > 0 {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Errors", Width: "100%", Height: "500px"}),
			charts.WithTitleOpts(opts.Title{Title: "Controller signals"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		)
		for _, s := range scalars {
			data := make([]opts.LineData, 0, len(s.Points))
			for _, p := range s.Points {
				data = append(data, opts.LineData{Value: []interface{}{p.X, p.Y}})
			}
			line.AddSeries(s.Name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
		}
		page.AddCharts(line)
	}

	if len(trajectories) == 0 && len(scalars) == 0 {
		return fmt.Errorf("run %s has none of the requested keys", run.ID)
	}
	return page.Render(w)
}
