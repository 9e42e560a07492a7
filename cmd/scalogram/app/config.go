package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/droneworks/pidtune/internal/render"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	RunID      int64
	Segment    int
	Axis       string
	OutputFile string
	Format     ImageFormat
	Theme      render.ColorTheme
	NoOutlines bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[render.ColorTheme]struct{}{
	render.ClassicTheme:   {},
	render.GrayscaleTheme: {},
	render.ThermalTheme:   {},
	render.MarineTheme:    {},
}

var validAxes = map[string]struct{}{
	"roll":  {},
	"pitch": {},
	"yaw":   {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  render.ThermalTheme,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.RunID, "run", 1, "Run ID")
	flag.IntVar(&c.Segment, "segment", 0, "Flight segment index")
	flag.StringVar(&c.Axis, "axis", "roll", "Axis. [roll, pitch, yaw]")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(render.ThermalTheme), "Color theme. [classic, grayscale, thermal, marine]")
	flag.BoolVar(&c.NoOutlines, "no-outlines", false, "Disable burst outlines")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	if err := c.validate(imageFormat, theme); err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = render.ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func (c *Config) validate(imageFormat, theme string) error {
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	if c.RunID <= 0 {
		return errors.New("run id is required")
	}
	if c.Segment < 0 {
		return errors.New("segment must not be negative")
	}
	if _, ok := validAxes[strings.ToLower(c.Axis)]; !ok {
		return fmt.Errorf("invalid axis: %s", c.Axis)
	}
	if c.OutputFile == "" {
		return errors.New("output file is required")
	}
	if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		return fmt.Errorf("invalid image format: %s", imageFormat)
	}
	if _, ok := validThemes[render.ColorTheme(theme)]; !ok {
		return fmt.Errorf("invalid color theme: %s", theme)
	}
	return nil
}
