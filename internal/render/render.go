// Package render draws scalogram images: a time-frequency power map with
// axis scales, burst outlines and an info bar.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/droneworks/pidtune/internal/sysid"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 60
	defaultRightBorder  = 40

	defaultPlotWidth  = 1000
	defaultPlotHeight = 400

	// dB span below the peak that the color scale covers
	dynamicRangeDB = 60.0
)

var burstOutlineColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// BorderConfig defines the sizes of white space around the scalogram.
type BorderConfig struct {
	Top    int
	Left   int // Space for the frequency scale
	Bottom int // Space for the time scale and info bar
	Right  int
}

// Config holds the scalogram rendering options.
type Config struct {
	Width  int // Plot area width in pixels, excluding borders
	Height int

	FontSize     float64
	ColorTheme   ColorTheme
	ColorMapSize int // 0 for default

	OutlineBursts bool

	BorderConfig BorderConfig
}

// Renderer draws scalograms into RGBA images.
type Renderer struct {
	colorMap *ColorMapper
	config   Config
}

// NewRenderer creates a renderer, filling zero config values with defaults.
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultPlotWidth
	}
	if config.Height == 0 {
		config.Height = defaultPlotHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &Renderer{config: config}, nil
}

// Info describes the rendered scalogram for the info bar.
type Info struct {
	LogPath string
	Axis    string
	Segment int
}

// Render draws the scalogram with axis scales and burst outlines. Grid
// cells map onto the plot area nearest-neighbor; the frequency axis
// follows the scalogram's own (log-spaced) scale rows.
func (r *Renderer) Render(sg *sysid.Scalogram, info Info) (*image.RGBA, error) {
	if len(sg.Power) == 0 || len(sg.Times) == 0 {
		return nil, fmt.Errorf("empty scalogram")
	}

	fullWidth := r.config.Width + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := r.config.Height + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plotArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+r.config.Width,
		r.config.BorderConfig.Top+r.config.Height,
	)

	bounds := powerBounds(sg)
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Borders:  r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, sg, info, r.config.Width, r.config.Height); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderGrid(img, plotArea, sg)

	if r.config.OutlineBursts {
		r.outlineBursts(img, plotArea, sg)
	}

	return img, nil
}

// renderGrid draws the power map. Row 0 of the grid is the lowest
// frequency and lands at the bottom of the plot.
func (r *Renderer) renderGrid(img *image.RGBA, area image.Rectangle, sg *sysid.Scalogram) {
	rows, cols := len(sg.Power), len(sg.Times)

	for py := 0; py < area.Dy(); py++ {
		row := (area.Dy() - 1 - py) * rows / area.Dy()
		for px := 0; px < area.Dx(); px++ {
			col := px * cols / area.Dx()
			db := powerDB(sg.Power[row][col])
			img.Set(area.Min.X+px, area.Min.Y+py, r.colorMap.GetColor(db))
		}
	}
}

// outlineBursts draws a rectangle around every flagged burst.
func (r *Renderer) outlineBursts(img *image.RGBA, area image.Rectangle, sg *sysid.Scalogram) {
	for _, b := range sg.Bursts {
		x0 := area.Min.X + timeToX(b.StartTime, sg, area.Dx())
		x1 := area.Min.X + timeToX(b.EndTime, sg, area.Dx())
		y0 := area.Min.Y + freqToY(b.MaxFreqHz, sg, area.Dy())
		y1 := area.Min.Y + freqToY(b.MinFreqHz, sg, area.Dy())

		for x := x0; x <= x1; x++ {
			img.Set(x, y0, burstOutlineColor)
			img.Set(x, y1, burstOutlineColor)
		}
		for y := y0; y <= y1; y++ {
			img.Set(x0, y, burstOutlineColor)
			img.Set(x1, y, burstOutlineColor)
		}
	}
}

func timeToX(t float64, sg *sysid.Scalogram, width int) int {
	span := sg.Times[len(sg.Times)-1] - sg.Times[0]
	if span <= 0 {
		return 0
	}
	x := int((t - sg.Times[0]) / span * float64(width-1))
	return clampInt(x, 0, width-1)
}

// freqToY maps a frequency onto the plot row through the scalogram's own
// scale spacing, so log-spaced scales render evenly.
func freqToY(f float64, sg *sysid.Scalogram, height int) int {
	rows := len(sg.Freqs)
	row := 0
	for i, rf := range sg.Freqs {
		if rf <= f {
			row = i
		}
	}
	y := (rows - 1 - row) * height / rows
	return clampInt(y, 0, height-1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func powerDB(p float64) float64 {
	return 10 * math.Log10(math.Max(p, 1e-30))
}

// powerBounds fixes the color scale to a dynamic range below the peak.
func powerBounds(sg *sysid.Scalogram) PowerBounds {
	peak := math.Inf(-1)
	for _, row := range sg.Power {
		for _, v := range row {
			if db := powerDB(v); db > peak {
				peak = db
			}
		}
	}
	if math.IsInf(peak, -1) {
		peak = 0
	}
	return PowerBounds{Min: peak - dynamicRangeDB, Max: peak}
}

// Internal annotator implementation
type annotatorConfig struct {
	FontSize float64
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, sg *sysid.Scalogram, info Info, width, height int) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, sg, height); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, sg, width, height); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, sg, info); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

// drawFrequencyScale labels a subset of the scalogram's scale rows on the
// left border. Rows are labelled at their actual pixel position, so the
// log spacing stays visible.
func (a *annotator) drawFrequencyScale(img *image.RGBA, sg *sysid.Scalogram, height int) error {
	rows := len(sg.Freqs)
	step := rows * int(a.config.FontSize*2) / height
	if step < 1 {
		step = 1
	}

	metrics := a.fontFace.Metrics()

	for row := 0; row < rows; row += step {
		y := a.config.Borders.Top + (rows-1-row)*height/rows

		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(sg.Freqs[row])
		textY := y + metrics.Ascent.Round()/2
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, sg *sysid.Scalogram, width, height int) error {
	span := sg.Times[len(sg.Times)-1] - sg.Times[0]
	if span <= 0 {
		return nil
	}
	timeStep := niceTimeStep(span, width)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	axisY := a.config.Borders.Top + height

	for t := 0.0; t <= span; t += timeStep {
		x := a.config.Borders.Left + int(t/span*float64(width-1))

		for y := axisY; y < axisY+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.1fs", sg.Times[0]+t)
		labelWidth := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(labelWidth.Round()/2), axisY+tickMarkLength+fontHeight)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, sg *sysid.Scalogram, info Info) error {
	text := fmt.Sprintf("%s; axis: %s; segment: %d; dominant: %s; bursts: %d",
		info.LogPath, info.Axis, info.Segment, formatFrequency(sg.DominantHz), len(sg.Bursts))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 4

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(text, pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

func formatFrequency(freq float64) string {
	if freq >= 1e3 {
		return fmt.Sprintf("%.1f kHz", freq/1e3)
	}
	return fmt.Sprintf("%.0f Hz", freq)
}

// niceTimeStep picks a label interval that keeps labels readable.
func niceTimeStep(span float64, width int) float64 {
	desired := float64(width) / pixelsPerLabel
	target := span / desired

	steps := []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
	for _, s := range steps {
		if s >= target {
			return s
		}
	}
	return span / 2
}
