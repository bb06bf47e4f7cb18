// Package logging builds the logrus logger shared by the binaries.
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/crysgarage/engine/config"
)

// New returns a logger writing to out with the configured level and format.
func New(cfg config.Log, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	switch cfg.Format {
	case config.FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	case config.FormatText, "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return l, nil
}
