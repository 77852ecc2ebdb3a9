// Command geokit runs geokit operations from the command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/beetlebugorg/geokit/internal/config"
	"github.com/beetlebugorg/geokit/internal/logger"
	"github.com/beetlebugorg/geokit/pkg/raster"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Options are the flags shared by every command.
type Options struct {
	Logger logger.Options `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"GEOKIT_CONFIG" description:"Path to configuration file"`
}

// app carries state prepared before a command runs.
type app struct {
	opts  Options
	cfg   *config.Config
	cache *raster.Cache
	out   io.Writer
}

// prepare sets up logging and loads the configuration.
func (a *app) prepare() error {
	if err := logger.Setup(a.opts.Logger); err != nil {
		return err
	}

	a.cfg = config.Default()
	if a.opts.ConfigFile != "" {
		cfg, err := config.Load(a.opts.ConfigFile)
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}
		a.cfg = cfg
	}
	a.cache = raster.NewCache(a.cfg.Raster.CacheBytes)

	log.Debug().
		Str("config", a.opts.ConfigFile).
		Int("tile_size", a.cfg.Raster.TileSize).
		Int("workers", a.cfg.Raster.Workers).
		Msg("Configuration loaded")
	return nil
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if err := a.prepare(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"info", "Describe a vector or raster file", "Print CRS, extent and schema of a vector file or the grid of a GeoTIFF.", &infoCommand{app: a}},
		{"reproject", "Reproject a vector file", "Transform every feature into the target CRS and write the result.", &reprojectCommand{app: a}},
		{"buffer", "Buffer vector features", "Replace every geometry with the region within a distance of it.", &bufferCommand{app: a}},
		{"simplify", "Simplify vector features", "Douglas-Peucker simplification that keeps valid geometries valid.", &simplifyCommand{app: a}},
		{"relate", "Print DE-9IM matrices", "Relate every feature of the first file with every feature of the second.", &relateCommand{app: a}},
		{"crop", "Crop a GeoTIFF to a bounding box", "Crop a raster to the cells overlapping a bounding box in its CRS.", &cropCommand{app: a}},
		{"zonal", "Zonal statistics", "Aggregate raster cells by the zones of a vector file.", &zonalCommand{app: a}},
		{"fetch", "Fetch a remote resource", "Download GeoJSON, GeoTIFF or a zipped shapefile and save it locally.", &fetchCommand{app: a}},
		{"render", "Render a file to PNG", "Draw a vector file or one raster band to a PNG image.", &renderCommand{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			log.Fatal().Err(err).Str("command", c.name).Msg("Failed to register command")
		}
	}
	return parser
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load(".env")

	a := &app{out: os.Stdout}
	parser := newParser(a)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Fprintln(os.Stdout, flagsErr.Message)
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, flagsErr.Message)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
