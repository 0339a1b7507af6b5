// Package transport owns the byte link to the transmitter: a serial port, or
// a TCP connection to a serial server or emulator.
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

const (
	lineTerminator = "\r\n"
	lineBuffer     = 16
	maxLineLength  = 1024 // WXT messages stay well under 200 bytes
	dialTimeout    = 10 * time.Second
)

// ErrClosed is returned once the link has been closed or its reader failed.
var ErrClosed = errors.New("transport closed")

// Config describes how to reach the transmitter. SerialDevice wins when both
// it and Hostname/Port are set.
type Config struct {
	SerialDevice string
	Baud         int
	Hostname     string
	Port         string
	// OpenTimeout bounds the retries made while opening the link.
	OpenTimeout time.Duration
}

// Conn is a line-oriented view of the link. A single goroutine reads the
// underlying stream and queues complete lines.
type Conn struct {
	rwc    io.ReadWriteCloser
	lines  chan []byte
	logger *zap.SugaredLogger

	writeMu   sync.Mutex
	errMu     sync.Mutex
	readErr   error
	closeOnce sync.Once
}

// Open connects to the transmitter, retrying with exponential backoff until
// OpenTimeout elapses.
func Open(cfg Config, logger *zap.SugaredLogger) (*Conn, error) {
	var rwc io.ReadWriteCloser

	connect := func() error {
		var err error
		switch {
		case cfg.SerialDevice != "":
			logger.Debugf("attempting to open serial port %s at %d baud", cfg.SerialDevice, cfg.Baud)
			rwc, err = serial.OpenPort(&serial.Config{Name: cfg.SerialDevice, Baud: cfg.Baud})
			if err != nil {
				err = errors.Wrapf(err, "opening serial port %s", cfg.SerialDevice)
			}
		case cfg.Hostname != "" && cfg.Port != "":
			addr := net.JoinHostPort(cfg.Hostname, cfg.Port)
			logger.Debugf("attempting to connect to %s", addr)
			rwc, err = net.DialTimeout("tcp", addr, dialTimeout)
			if err != nil {
				err = errors.Wrapf(err, "connecting to %s", addr)
			}
		default:
			return backoff.Permanent(errors.New("must provide either a serial device or hostname+port"))
		}
		if err != nil {
			logger.Warnf("%v; retrying", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = cfg.OpenTimeout
	if cfg.OpenTimeout <= 0 {
		b.MaxElapsedTime = time.Nanosecond
	}

	if err := backoff.Retry(connect, b); err != nil {
		return nil, err
	}
	return New(rwc, logger), nil
}

// New wraps an already open stream and starts its reader.
func New(rwc io.ReadWriteCloser, logger *zap.SugaredLogger) *Conn {
	c := &Conn{
		rwc:    rwc,
		lines:  make(chan []byte, lineBuffer),
		logger: logger,
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.lines)

	r := bufio.NewReaderSize(c.rwc, maxLineLength)
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			if !oversized {
				c.logger.Debugf("discarding line longer than %d bytes", maxLineLength)
			}
			oversized = true
			continue
		}

		switch {
		case oversized:
			// tail of a discarded line
			oversized = false
		case len(chunk) > 0:
			line := make([]byte, len(chunk))
			copy(line, chunk)
			select {
			case c.lines <- line:
			default:
				c.logger.Debugf("line buffer full, dropping %q", line)
			}
		}
		if err != nil {
			c.setReadErr(err)
			return
		}
	}
}

func (c *Conn) setReadErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if err == io.EOF {
		c.readErr = ErrClosed
		return
	}
	c.readErr = errors.Wrap(ErrClosed, err.Error())
}

func (c *Conn) err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		return ErrClosed
	}
	return c.readErr
}

// WriteCommand discards any replies still queued from earlier exchanges and
// sends cmd followed by CR LF.
func (c *Conn) WriteCommand(cmd string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for drained := false; !drained; {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return c.err()
			}
			c.logger.Debugf("discarding stale line %q", line)
		default:
			drained = true
		}
	}

	if _, err := io.WriteString(c.rwc, cmd+lineTerminator); err != nil {
		return errors.Wrapf(err, "writing %q", cmd)
	}
	return nil
}

// ReadLine waits up to timeout for the next line. It returns nil, nil on
// timeout; an error means the link is gone.
func (c *Conn) ReadLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			return nil, c.err()
		}
		return line, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the link. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rwc.Close()
	})
	return err
}
