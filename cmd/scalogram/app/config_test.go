package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/droneworks/pidtune/internal/render"
)

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		c := NewConfig()
		c.DBPath = "runs.db"
		c.RunID = 1
		c.Axis = "roll"
		c.OutputFile = "out"
		return c
	}

	for _, theme := range []render.ColorTheme{
		render.ClassicTheme, render.GrayscaleTheme, render.ThermalTheme, render.MarineTheme,
	} {
		assert.NoError(t, base().validate("png", string(theme)), "theme %s", theme)
	}

	assert.Error(t, base().validate("png", "viridis"))
	assert.Error(t, base().validate("bmp", string(render.ThermalTheme)))

	c := base()
	c.Axis = "collective"
	assert.Error(t, c.validate("png", string(render.ThermalTheme)))

	c = base()
	c.RunID = 0
	assert.Error(t, c.validate("png", string(render.ThermalTheme)))
}
