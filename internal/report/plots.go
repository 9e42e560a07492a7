package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/droneworks/pidtune/internal/analysis"
	"github.com/droneworks/pidtune/internal/flight"
)

var (
	setpointColor = color.RGBA{R: 30, G: 90, B: 200, A: 255}
	gyroColor     = color.RGBA{R: 220, G: 60, B: 40, A: 255}
)

// SavePlots writes static PNG plots into dir: a setpoint/gyro trace per
// segment and axis, and the step responses where steps were detected.
func SavePlots(dir string, res *analysis.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating plot dir: %w", err)
	}

	for i, sr := range res.Segments {
		for _, axis := range flight.Axes {
			file := filepath.Join(dir, fmt.Sprintf("segment_%02d_%s_trace.png", i, axis))
			if err := saveTracePlot(file, sr.Segment, axis, i); err != nil {
				return err
			}

			ar := sr.Axes[axis]
			if len(ar.Steps) == 0 {
				continue
			}
			file = filepath.Join(dir, fmt.Sprintf("segment_%02d_%s_steps.png", i, axis))
			if err := saveStepPlot(file, sr.Segment, axis, ar.Steps, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// saveTracePlot draws setpoint and gyro over the segment.
func saveTracePlot(file string, seg flight.Segment, axis flight.Axis, segIdx int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Segment %d, %s", segIdx, axis)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "rate (deg/s)"

	times := seg.Time()
	spLine, err := plotter.NewLine(tracePoints(times, seg.Setpoint(axis)))
	if err != nil {
		return fmt.Errorf("building setpoint line: %w", err)
	}
	spLine.Color = setpointColor
	spLine.Width = vg.Points(1)

	gyLine, err := plotter.NewLine(tracePoints(times, seg.Gyro(axis)))
	if err != nil {
		return fmt.Errorf("building gyro line: %w", err)
	}
	gyLine.Color = gyroColor
	gyLine.Width = vg.Points(1)

	p.Add(spLine, gyLine)
	p.Legend.Add("setpoint", spLine)
	p.Legend.Add("gyro", gyLine)

	if err := p.Save(14*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("saving trace plot: %w", err)
	}
	return nil
}

// saveStepPlot overlays the detected step responses, each shifted so its
// step lands at t=0.
func saveStepPlot(file string, seg flight.Segment, axis flight.Axis, steps []analysis.StepMetrics, segIdx int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Segment %d, %s step responses", segIdx, axis)
	p.X.Label.Text = "time since step (s)"
	p.Y.Label.Text = "rate (deg/s)"

	times := seg.Time()
	gyro := seg.Gyro(axis)

	for k, s := range steps {
		// Half a second after the step, clipped to the segment end.
		n := 0
		t0 := times[s.StartIndex]
		for s.StartIndex+n < len(times) && times[s.StartIndex+n]-t0 <= 0.5 {
			n++
		}

		pts := make(plotter.XYs, n)
		for j := 0; j < n; j++ {
			pts[j] = plotter.XY{X: times[s.StartIndex+j] - t0, Y: gyro[s.StartIndex+j]}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("building step line: %w", err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("step %d (%.0f deg/s)", k+1, s.Amplitude), line)
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("saving step plot: %w", err)
	}
	return nil
}

func tracePoints(times, values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(times))
	for i := range times {
		pts[i] = plotter.XY{X: times[i], Y: values[i]}
	}
	return pts
}
