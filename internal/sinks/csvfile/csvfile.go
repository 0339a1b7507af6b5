// Package csvfile appends rows to size-rotated CSV files.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/chrissnell/wxtpoller/internal/publish"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimestampLayout is the timestamp format used in the first column of every row.
const TimestampLayout = "20060102T15:04:05.000000"

// Config controls where rows are written and how files rotate.
type Config struct {
	Dir        string
	Site       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileName builds the capture file name for a site and start time.
func FileName(site string, start time.Time) string {
	return fmt.Sprintf("WXT536_%s_%s.csv", site, start.Format("20060102.150405"))
}

// Writer serializes rows to an underlying stream.
type Writer struct {
	mu  sync.Mutex
	out io.WriteCloser
	w   *csv.Writer
}

// NewWriter writes CSV rows to out.
func NewWriter(out io.WriteCloser) *Writer {
	return &Writer{out: out, w: csv.NewWriter(out)}
}

// Open returns a Writer backed by a rotating file in cfg.Dir.
func Open(cfg Config, start time.Time) *Writer {
	return NewWriter(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, FileName(cfg.Site, start)),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// WriteRow writes and flushes a single row.
func (w *Writer) WriteRow(fields []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Write(fields); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	return w.out.Close()
}

// Sink writes one row per measurement:
// timestamp, scope, name, value, unit, sensor.
type Sink struct {
	w      *Writer
	fields map[string]string
}

// NewSink wraps w. fields maps metric names to WXT field codes so values are
// written with the precision the transmitter reports.
func NewSink(w *Writer, fields map[string]string) *Sink {
	return &Sink{w: w, fields: fields}
}

func (s *Sink) Publish(ctx context.Context, m publish.Measurement) error {
	return s.w.WriteRow([]string{
		m.Timestamp.UTC().Format(TimestampLayout),
		string(m.Scope),
		m.Name,
		publish.FormatValue(s.fields[m.Name], m.Value),
		m.Unit,
		m.Sensor,
	})
}

func (s *Sink) Close() error {
	return s.w.Close()
}
