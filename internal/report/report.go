// Package report renders analysis results as an HTML report with
// interactive charts, CSV exports and static PNG plots.
package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
)

// Data bundles everything a report shows.
type Data struct {
	LogPath         string
	Result          *analysis.Result
	Recommendations []recommend.Recommendation
	Advisories      []recommend.Advisory
}

// WriteHTML renders the full report page.
func WriteHTML(w io.Writer, data Data) error {
	page := components.NewPage()
	page.PageTitle = "PID tune report"

	page.AddCharts(
		scoreChart(data.Result),
		bandChart(data.Result),
	)
	if psd := psdChart(data.Result); psd != nil {
		page.AddCharts(psd)
	}
	if len(data.Recommendations) > 0 {
		page.AddCharts(adjustmentChart(data.Recommendations))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering report page: %w", err)
	}
	return nil
}

// WriteHTMLFile renders the report into a file.
func WriteHTMLFile(path string, data Data) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing report file: %w", cErr)
		}
	}()

	return WriteHTML(f, data)
}

// scoreChart shows the per-axis performance index, averaged over segments.
func scoreChart(res *analysis.Result) components.Charter {
	var axes []string
	tracking := make([]opts.BarData, 0, flight.NumAxes)
	noise := make([]opts.BarData, 0, flight.NumAxes)
	response := make([]opts.BarData, 0, flight.NumAxes)
	overall := make([]opts.BarData, 0, flight.NumAxes)

	for _, axis := range flight.Axes {
		var t, n, r, o float64
		for _, sr := range res.Segments {
			p := sr.Axes[axis].Performance
			t += p.Tracking
			n += p.Noise
			r += p.Responsiveness
			o += p.Overall
		}
		count := float64(len(res.Segments))
		axes = append(axes, axis.String())
		tracking = append(tracking, opts.BarData{Value: round1(t / count)})
		noise = append(noise, opts.BarData{Value: round1(n / count)})
		response = append(response, opts.BarData{Value: round1(r / count)})
		overall = append(overall, opts.BarData{Value: round1(o / count)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Performance scores", Subtitle: "0-100, averaged over segments"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
	)
	bar.SetXAxis(axes).
		AddSeries("tracking", tracking).
		AddSeries("noise", noise).
		AddSeries("responsiveness", response).
		AddSeries("overall", overall)
	return bar
}

// bandChart shows the spectral band split of the gyro signal per axis.
func bandChart(res *analysis.Result) components.Charter {
	var axes []string
	bands := [3][]opts.BarData{}

	for _, axis := range flight.Axes {
		var energy [3]float64
		var n float64
		for _, sr := range res.Segments {
			sp := sr.Axes[axis].Spectrum
			if sp == nil || sp.Skipped {
				continue
			}
			total := sp.GyroBands[analysis.LowBand].Energy +
				sp.GyroBands[analysis.MidBand].Energy +
				sp.GyroBands[analysis.HighBand].Energy
			if total <= 0 {
				continue
			}
			for b := range energy {
				energy[b] += sp.GyroBands[b].Energy / total
			}
			n++
		}
		axes = append(axes, axis.String())
		for b := range bands {
			var v float64
			if n > 0 {
				v = round1(energy[b] / n * 100)
			}
			bands[b] = append(bands[b], opts.BarData{Value: v})
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Gyro band energy", Subtitle: "share of total energy, percent"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(axes).
		AddSeries("low (<10 Hz)", bands[analysis.LowBand]).
		AddSeries("mid (10-30 Hz)", bands[analysis.MidBand]).
		AddSeries("high (>30 Hz)", bands[analysis.HighBand])
	return bar
}

// psdChart plots the gyro PSD of the longest segment per axis. Returns nil
// when every segment skipped the spectral stage.
func psdChart(res *analysis.Result) components.Charter {
	seg := longestSegment(res)
	if seg < 0 {
		return nil
	}

	sr := res.Segments[seg]
	var freqs []string
	line := charts.NewLine()

	for _, axis := range flight.Axes {
		sp := sr.Axes[axis].Spectrum
		if sp == nil || sp.Skipped {
			continue
		}
		if freqs == nil {
			for _, f := range sp.Freqs {
				freqs = append(freqs, fmt.Sprintf("%.1f", f))
			}
		}
		data := make([]opts.LineData, 0, len(sp.GyroPSD))
		for _, p := range sp.GyroPSD {
			data = append(data, opts.LineData{Value: p})
		}
		line.AddSeries(axis.String(), data)
	}
	if freqs == nil {
		return nil
	}

	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Gyro power spectral density",
			Subtitle: fmt.Sprintf("segment %d, frequency in Hz", seg),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "log"}),
	)
	line.SetXAxis(freqs)
	return line
}

// adjustmentChart shows recommended PID changes as signed percentages.
func adjustmentChart(recs []recommend.Recommendation) components.Charter {
	var labels []string
	var values []opts.BarData
	for _, r := range recs {
		labels = append(labels, fmt.Sprintf("%s %s", r.Axis, r.Term))
		values = append(values, opts.BarData{Value: round1(r.AdjustmentPct)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Recommended adjustments", Subtitle: "percent change, priority order"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("adjustment %", values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

func longestSegment(res *analysis.Result) int {
	best, bestDur := -1, 0.0
	for i, sr := range res.Segments {
		hasSpectrum := false
		for _, axis := range flight.Axes {
			if sp := sr.Axes[axis].Spectrum; sp != nil && !sp.Skipped {
				hasSpectrum = true
			}
		}
		if hasSpectrum && sr.Segment.Duration() > bestDur {
			best, bestDur = i, sr.Segment.Duration()
		}
	}
	return best
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
