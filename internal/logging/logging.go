// Package logging builds the service's zerolog loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a root logger writing to w at the given level. An empty level
// means info. Writing to a terminal produces human readable output.
func New(level string, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if w == nil {
		w = os.Stderr
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Component derives a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Badger adapts a zerolog logger to badger's logging interface. Badger's
// info and debug chatter is logged at debug level.
type Badger struct {
	Log zerolog.Logger
}

func (b Badger) Errorf(f string, v ...interface{})   { b.Log.Error().Msgf(strings.TrimSpace(f), v...) }
func (b Badger) Warningf(f string, v ...interface{}) { b.Log.Warn().Msgf(strings.TrimSpace(f), v...) }
func (b Badger) Infof(f string, v ...interface{})    { b.Log.Debug().Msgf(strings.TrimSpace(f), v...) }
func (b Badger) Debugf(f string, v ...interface{})   { b.Log.Trace().Msgf(strings.TrimSpace(f), v...) }

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
