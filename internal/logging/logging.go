// Package logging configures the daemon's logrus logger.
package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to out at the given level ("debug", "info",
// ...) and format ("text" or "json").
func New(out io.Writer, level, format string) (*log.Logger, error) {
	l := log.New()
	l.SetOutput(out)
	if err := Apply(l, level, format); err != nil {
		return nil, err
	}
	return l, nil
}

// Apply reconfigures an existing logger in place.
func Apply(l *log.Logger, level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("log format: unknown %q", format)
	}
	l.SetLevel(lvl)
	return nil
}

// Component returns an entry tagged with the component name.
func Component(l *log.Logger, name string) *log.Entry {
	return l.WithField("component", name)
}
