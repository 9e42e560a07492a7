package render

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneworks/pidtune/internal/sysid"
)

func testScalogram() *sysid.Scalogram {
	rows, cols := 16, 100
	sg := &sysid.Scalogram{
		Times: make([]float64, cols),
		Freqs: make([]float64, rows),
		Power: make([][]float64, rows),
	}
	for c := range sg.Times {
		sg.Times[c] = float64(c) * 0.05
	}
	f := 2.0
	for r := range sg.Freqs {
		sg.Freqs[r] = f
		f *= 1.3
		sg.Power[r] = make([]float64, cols)
		for c := range sg.Power[r] {
			sg.Power[r][c] = 1e-3
		}
	}
	// A strong patch in the middle of the grid.
	for r := 6; r < 10; r++ {
		for c := 40; c < 60; c++ {
			sg.Power[r][c] = 10
		}
	}
	sg.DominantHz = sg.Freqs[8]
	sg.Bursts = []sysid.Burst{{
		StartTime: sg.Times[40],
		EndTime:   sg.Times[59],
		MinFreqHz: sg.Freqs[6],
		MaxFreqHz: sg.Freqs[9],
		PeakPower: 10,
	}}
	return sg
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer(Config{Width: 200, Height: 100, OutlineBursts: true})
	require.NoError(t, err)

	img, err := r.Render(testScalogram(), Info{LogPath: "flight.bbl", Axis: "roll"})
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, 200+defaultLeftBorder+defaultRightBorder, bounds.Dx())
	assert.Equal(t, 100+defaultTopBorder+defaultBottomBorder, bounds.Dy())

	// The plot area must not be left white.
	nonWhite := 0
	for y := defaultTopBorder; y < defaultTopBorder+100; y++ {
		for x := defaultLeftBorder; x < defaultLeftBorder+200; x++ {
			r8, g8, b8, _ := img.At(x, y).RGBA()
			if r8 != 0xffff || g8 != 0xffff || b8 != 0xffff {
				nonWhite++
			}
		}
	}
	assert.Greater(t, nonWhite, 100*200/2)
}

func TestRenderer_EmptyScalogram(t *testing.T) {
	r, err := NewRenderer(Config{})
	require.NoError(t, err)

	_, err = r.Render(&sysid.Scalogram{}, Info{})
	assert.Error(t, err)
}

func TestColorMapper_Clamping(t *testing.T) {
	cm := NewColorMapper(ClassicTheme, PowerBounds{Min: -60, Max: 0})

	low := cm.GetColor(-120)
	high := cm.GetColor(60)
	assert.Equal(t, cm.GetColor(-60), low)
	assert.Equal(t, cm.GetColor(0), high)
	assert.NotEqual(t, low, high)
}

func TestHSVToRGB_Grayscale(t *testing.T) {
	c := HSV{H: 0, S: 0, V: 0.5}.RGB()
	rgba, ok := c.(color.RGBA)
	require.True(t, ok)
	assert.Equal(t, rgba.R, rgba.G)
	assert.Equal(t, rgba.G, rgba.B)
}
