// Package logger configures the process-wide logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"gt06gateway/internal/config"
)

// TimeFormat is used for every timestamp written to log files.
const TimeFormat = "2006-01-02 15:04:05"

// zoneFormatter renders entry times in a fixed location.
type zoneFormatter struct {
	logrus.Formatter
	loc *time.Location
}

func (f zoneFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Time = e.Time.In(f.loc)
	return f.Formatter.Format(e)
}

// NewFormatter returns the formatter selected by format ("json" or "text"), rendering times in loc.
func NewFormatter(format string, loc *time.Location, colors bool) logrus.Formatter {
	var f logrus.Formatter
	if strings.ToLower(format) == "json" {
		f = &logrus.JSONFormatter{TimestampFormat: TimeFormat}
	} else {
		f = &logrus.TextFormatter{
			TimestampFormat: TimeFormat,
			FullTimestamp:   true,
			DisableColors:   !colors,
		}
	}
	if loc == nil {
		return f
	}
	return zoneFormatter{Formatter: f, loc: loc}
}

// LoadLocation resolves a timezone name, falling back to local time.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unknown timezone %q, using local time\n", name)
		return time.Local
	}
	return loc
}

// Init configures the standard logrus logger: level, format, console output and a size-rotated file.
// The returned closer flushes the rotating file.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(NewFormatter(cfg.Format, LoadLocation(cfg.Timezone), false))

	var writers []io.Writer
	if cfg.EnableConsole {
		writers = append(writers, os.Stdout)
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	switch len(writers) {
	case 0:
		logrus.SetOutput(io.Discard)
	case 1:
		logrus.SetOutput(writers[0])
	default:
		logrus.SetOutput(io.MultiWriter(writers...))
	}
	return closer, nil
}
