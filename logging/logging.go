// Package logging builds the logrus logger shared by the engines and the
// per-engine line buffer that a renderer reads back.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05 MST"

type Options struct {
	Level  string // debug, info, warn, error; default info
	Format string // text or json; default text
	File   string // optional append-only log file

	// Location is the display timezone for entry timestamps and time
	// fields. Nil means UTC.
	Location *time.Location
	Stdout   io.Writer
}

// New builds a logger writing to stdout and, when opts.File is set, to that
// file as well. The returned closer releases the file.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	var inner logrus.Formatter
	switch strings.ToLower(opts.Format) {
	case "", "text":
		inner = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
			DisableColors:   opts.File != "",
		}
	case "json":
		inner = &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	default:
		return nil, nil, fmt.Errorf("log format %q: want text or json", opts.Format)
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("log dir: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&LocalFormatter{Formatter: inner, Location: opts.Location})
	return logger, closer, nil
}

// Discard returns a logger that writes nowhere, for tests and library use.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LocalFormatter renders the entry timestamp and any time.Time fields in
// Location. The engine only deals in instants; this is the one place they
// become wall clock.
type LocalFormatter struct {
	logrus.Formatter
	Location *time.Location
}

func (f *LocalFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	e := *entry
	e.Time = entry.Time.In(loc)
	e.Data = make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if t, ok := v.(time.Time); ok {
			v = t.In(loc).Format(timestampFormat)
		}
		e.Data[k] = v
	}
	return f.Formatter.Format(&e)
}
