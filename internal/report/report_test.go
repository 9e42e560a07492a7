package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
	"github.com/droneworks/pidtune/internal/recommend"
)

func testResult(t *testing.T) *analysis.Result {
	t.Helper()

	const fs = 1000.0
	n := 4000
	ts := &flight.TimeSeries{SampleRate: fs}
	var gy float64
	for i := 0; i < n; i++ {
		var sp float64
		if i >= 1000 {
			sp = 100
		}
		gy += 0.03 * (sp - gy)

		ts.Time = append(ts.Time, float64(i)/fs)
		ts.Throttle = append(ts.Throttle, 1500)
		for _, a := range flight.Axes {
			ts.Setpoint[a] = append(ts.Setpoint[a], 0)
			ts.Gyro[a] = append(ts.Gyro[a], 0)
		}
		ts.Setpoint[flight.Roll][i] = sp
		ts.Gyro[flight.Roll][i] = gy + 2*math.Sin(2*math.Pi*20*float64(i)/fs)
	}
	seg := flight.Segment{Series: ts, Start: 0, End: n}

	cfg := analysis.DefaultConfig()
	res := &analysis.Result{SampleRate: fs, Segments: []analysis.SegmentResult{{Segment: seg}}}
	for _, axis := range flight.Axes {
		ar := analysis.AxisResult{Axis: axis}
		ar.Error = analysis.TrackingError(seg, axis)
		ar.Steps, ar.Agg = analysis.AnalyzeSteps(seg, axis, cfg.Step)
		ar.Spectrum = analysis.AnalyzeSpectrum(seg, axis, cfg.Spectral)
		ar.Performance = analysis.Score(seg, axis, ar.Error, ar.Agg, ar.Spectrum, cfg.Perf)
		res.Segments[0].Axes[axis] = ar
	}
	return res
}

func testRecommendations() ([]recommend.Recommendation, []recommend.Advisory) {
	recs := []recommend.Recommendation{
		{Axis: flight.Roll, Term: recommend.TermP, AdjustmentPct: -8.5, Priority: 2,
			Evidence: []string{"mid-band (10-30 Hz) energy ratio 0.39 exceeds 0.25"}},
	}
	advs := []recommend.Advisory{
		{Axis: flight.Yaw, Kind: "filter", Message: "review filter settings"},
	}
	return recs, advs
}

func TestWriteHTML(t *testing.T) {
	recs, advs := testRecommendations()
	data := Data{
		LogPath:         "flight.bbl",
		Result:          testResult(t),
		Recommendations: recs,
		Advisories:      advs,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, data))

	html := buf.String()
	assert.Contains(t, html, "Performance scores")
	assert.Contains(t, html, "Gyro band energy")
	assert.Contains(t, html, "Gyro power spectral density")
	assert.Contains(t, html, "Recommended adjustments")
}

func TestWriteMetricsCSV(t *testing.T) {
	data := Data{Result: testResult(t)}

	var buf bytes.Buffer
	require.NoError(t, WriteMetricsCSV(&buf, data))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+flight.NumAxes, "header plus one row per axis")
	assert.True(t, strings.HasPrefix(lines[0], "segment,axis,"))
	assert.Contains(t, lines[1], "roll")

	// Pitch had no steps: its step fields must be empty, not zero.
	var pitchLine string
	for _, l := range lines[1:] {
		if strings.Contains(l, "pitch") {
			pitchLine = l
		}
	}
	require.NotEmpty(t, pitchLine)
	assert.Contains(t, pitchLine, ",0,,,,")
}

func TestWriteRecommendationsCSV(t *testing.T) {
	recs, advs := testRecommendations()

	var buf bytes.Buffer
	require.NoError(t, WriteRecommendationsCSV(&buf, recs, advs))

	out := buf.String()
	assert.Contains(t, out, "recommendation,roll,P,-8.5,2,")
	assert.Contains(t, out, "advisory,yaw,filter,,,")
}

func TestSavePlots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	res := testResult(t)

	require.NoError(t, SavePlots(dir, res))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var traces, steps int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_trace.png") {
			traces++
		}
		if strings.HasSuffix(e.Name(), "_steps.png") {
			steps++
		}
	}
	assert.Equal(t, flight.NumAxes, traces, "one trace plot per axis")
	assert.Equal(t, 1, steps, "only roll had detected steps")
}
