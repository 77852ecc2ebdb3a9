// Package logger configures the global zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the log level and output format. The tags let it be
// embedded in a go-flags option struct as a group.
type Options struct {
	Level   string `long:"log-level"  env:"GEOKIT_LOG_LEVEL"  description:"Log level (trace, debug, info, warn, error)" default:"info"`
	Format  string `long:"log-format" env:"GEOKIT_LOG_FORMAT" description:"Log format" choice:"console" choice:"json" default:"console"`
	NoColor bool   `long:"no-color"   env:"NO_COLOR"          description:"Disable colour in console output"`
}

// Setup configures log.Logger and the global level from o and writes to
// stderr.
func Setup(o Options) error {
	return SetupWriter(o, os.Stderr)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(o Options, w io.Writer) error {
	level := zerolog.InfoLevel
	if o.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(o.Level))
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	var out io.Writer
	switch strings.ToLower(o.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: w, NoColor: o.NoColor, TimeFormat: time.TimeOnly}
	case "json":
		out = w
	default:
		return fmt.Errorf("log format must be console or json, got %q", o.Format)
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
