// Package config handles the geokit configuration file.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/beetlebugorg/geokit/pkg/render"
	"github.com/beetlebugorg/geokit/pkg/service"
	"github.com/beetlebugorg/geokit/pkg/zonal"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Log     Log     `yaml:"log"`
	Service Service `yaml:"service"`
	Raster  Raster  `yaml:"raster"`
	Zonal   Zonal   `yaml:"zonal"`
	Render  Render  `yaml:"render"`
}

// Log selects the log level and output format.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Service configures the remote fetch client.
type Service struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	UserAgent       string        `yaml:"user_agent"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Raster configures tiled raster processing.
type Raster struct {
	TileSize   int   `yaml:"tile_size"`
	Workers    int   `yaml:"workers"` // 0 uses every CPU
	CacheBytes int64 `yaml:"cache_bytes"`
	Compress   bool  `yaml:"compress"`
}

// Zonal sets the default cell assignment rules.
type Zonal struct {
	AllTouched    bool `yaml:"all_touched"`
	IncludeNoData bool `yaml:"include_nodata"`
}

// Render holds map drawing defaults. Colours are hex strings.
type Render struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Padding     int     `yaml:"padding"`
	Background  string  `yaml:"background"`
	Fill        string  `yaml:"fill"`
	Stroke      string  `yaml:"stroke"`
	StrokeWidth float64 `yaml:"stroke_width"`
	PointRadius float64 `yaml:"point_radius"`
}

// Default returns the built-in configuration.
func Default() *Config {
	svc := service.DefaultConfig()
	return &Config{
		Log: Log{Level: "info", Format: "console"},
		Service: Service{
			Timeout:         svc.Timeout,
			MaxRetries:      svc.MaxRetries,
			InitialInterval: svc.InitialInterval,
			MaxInterval:     svc.MaxInterval,
			UserAgent:       svc.UserAgent,
			MaxBodyBytes:    svc.MaxBodyBytes,
		},
		Raster: Raster{
			TileSize:   zonal.DefaultTileRows,
			CacheBytes: 512 << 20,
			Compress:   true,
		},
		Render: Render{
			Width:       800,
			Height:      600,
			Padding:     16,
			Background:  "#ffffff",
			Fill:        "#3b82c4",
			Stroke:      "#1f2a37",
			StrokeWidth: 1.5,
			PointRadius: 4,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every value is in range.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	s := c.Service
	switch {
	case s.Timeout <= 0:
		return fmt.Errorf("service.timeout must be positive")
	case s.MaxRetries < 0:
		return fmt.Errorf("service.max_retries must not be negative")
	case s.InitialInterval <= 0 || s.MaxInterval < s.InitialInterval:
		return fmt.Errorf("service intervals must satisfy 0 < initial_interval <= max_interval")
	case s.MaxBodyBytes <= 0:
		return fmt.Errorf("service.max_body_bytes must be positive")
	}

	r := c.Raster
	switch {
	case r.TileSize <= 0:
		return fmt.Errorf("raster.tile_size must be positive")
	case r.Workers < 0:
		return fmt.Errorf("raster.workers must not be negative")
	case r.CacheBytes < 0:
		return fmt.Errorf("raster.cache_bytes must not be negative")
	}

	if _, err := c.RenderOptions(); err != nil {
		return err
	}
	return nil
}

// ServiceConfig converts the service section for service.NewClient.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		Timeout:         c.Service.Timeout,
		MaxRetries:      c.Service.MaxRetries,
		InitialInterval: c.Service.InitialInterval,
		MaxInterval:     c.Service.MaxInterval,
		UserAgent:       c.Service.UserAgent,
		MaxBodyBytes:    c.Service.MaxBodyBytes,
	}
}

// ZonalOptions converts the zonal and raster sections for zonal.Aggregate.
func (c *Config) ZonalOptions() zonal.Options {
	return zonal.Options{
		AllTouched:    c.Zonal.AllTouched,
		IncludeNoData: c.Zonal.IncludeNoData,
		Parallel:      c.Raster.Workers != 1,
		Workers:       c.Raster.Workers,
		TileSize:      c.Raster.TileSize,
	}
}

// RenderOptions converts the render section, parsing its colours.
func (c *Config) RenderOptions() (render.Options, error) {
	opts := render.DefaultOptions()
	r := c.Render
	opts.Width, opts.Height, opts.Padding = r.Width, r.Height, r.Padding
	opts.StrokeWidth, opts.PointRadius = r.StrokeWidth, r.PointRadius

	for _, col := range []struct {
		key string
		val string
		dst *color.RGBA
	}{
		{"render.background", r.Background, &opts.Background},
		{"render.fill", r.Fill, &opts.Fill},
		{"render.stroke", r.Stroke, &opts.Stroke},
	} {
		parsed, err := render.ParseColor(col.val)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", col.key, err)
		}
		*col.dst = parsed
	}

	switch {
	case opts.Width <= 0 || opts.Height <= 0:
		return opts, fmt.Errorf("render size must be positive, got %dx%d", opts.Width, opts.Height)
	case opts.Padding < 0 || 2*opts.Padding >= opts.Width || 2*opts.Padding >= opts.Height:
		return opts, fmt.Errorf("render.padding %d leaves no room", opts.Padding)
	case opts.StrokeWidth < 0 || opts.PointRadius < 0:
		return opts, fmt.Errorf("render.stroke_width and render.point_radius must not be negative")
	}
	return opts, nil
}
