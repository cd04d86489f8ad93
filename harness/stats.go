// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package harness

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/montanaflynn/stats"
)

// LatencyStats summarizes per-iteration latencies in microseconds.
type LatencyStats struct {
	Samples []float64 `json:"samples"`
	Mean    float64   `json:"mean_us"`
	Median  float64   `json:"median_us"`
	P95     float64   `json:"p95_us"`
	StdDev  float64   `json:"stddev_us"`
	Min     float64   `json:"min_us"`
	Max     float64   `json:"max_us"`
}

// NewLatencyStats computes the summary of samples.
func NewLatencyStats(samples []float64) (LatencyStats, error) {
	if len(samples) == 0 {
		return LatencyStats{}, errors.New("latency stats: no samples")
	}
	data := stats.Float64Data(samples)
	ls := LatencyStats{Samples: samples}

	var err error
	if ls.Mean, err = stats.Mean(data); err != nil {
		return ls, fmt.Errorf("mean: %w", err)
	}
	if ls.Median, err = stats.Median(data); err != nil {
		return ls, fmt.Errorf("median: %w", err)
	}
	if ls.P95, err = stats.Percentile(data, 95); err != nil {
		return ls, fmt.Errorf("p95: %w", err)
	}
	if ls.StdDev, err = stats.StandardDeviation(data); err != nil {
		return ls, fmt.Errorf("stddev: %w", err)
	}
	if ls.Min, err = stats.Min(data); err != nil {
		return ls, fmt.Errorf("min: %w", err)
	}
	if ls.Max, err = stats.Max(data); err != nil {
		return ls, fmt.Errorf("max: %w", err)
	}
	return ls, nil
}

func (ls LatencyStats) String() string {
	return fmt.Sprintf("n=%d mean=%.1fus median=%.1fus p95=%.1fus std=%.1fus",
		len(ls.Samples), ls.Mean, ls.Median, ls.P95, ls.StdDev)
}

// WriteLatencyChart renders the per-iteration latencies as an HTML line
// chart.
func WriteLatencyChart(w io.Writer, title string, ls LatencyStats) error {
	x := make([]int, len(ls.Samples))
	y := make([]opts.LineData, len(ls.Samples))
	for i, v := range ls.Samples {
		x[i] = i
		y[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: ls.String()}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "latency (us)"}),
	)
	line.SetXAxis(x).AddSeries("encode+encrypt", y)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
