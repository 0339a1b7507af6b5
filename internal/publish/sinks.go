package publish

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by an AsyncSink whose buffer is exhausted.
var ErrQueueFull = errors.New("sink queue full, measurement dropped")

// Fanout publishes each measurement to every sink in order, attempting all of
// them even when some fail.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, m Measurement) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.Publish(ctx, m))
	}
	return err
}

// AsyncSink decouples a slow sink from the polling loop. Measurements are
// queued and delivered by a single worker.
type AsyncSink struct {
	name   string
	next   Sink
	c      chan Measurement
	logger *zap.SugaredLogger
}

// NewAsyncSink buffers up to depth measurements in front of next.
func NewAsyncSink(name string, next Sink, depth int, logger *zap.SugaredLogger) *AsyncSink {
	if depth < 1 {
		depth = 1
	}
	return &AsyncSink{
		name:   name,
		next:   next,
		c:      make(chan Measurement, depth),
		logger: logger,
	}
}

// Publish queues m without blocking.
func (a *AsyncSink) Publish(ctx context.Context, m Measurement) error {
	select {
	case a.c <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the delivery worker; it exits when ctx is cancelled.
func (a *AsyncSink) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case m := <-a.c:
				if err := a.next.Publish(ctx, m); err != nil {
					a.logger.Errorf("%s sink error: %v", a.name, err)
				}
			case <-ctx.Done():
				a.logger.Infof("cancellation request received. Stopping %s sink", a.name)
				return
			}
		}
	}()
}

// LogSink writes each measurement to the log at info level, the way the
// node scope is observed on a device without a message bus.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(ctx context.Context, m Measurement) error {
	l.logger.Infow("measurement",
		"scope", m.Scope,
		"name", m.Name,
		"value", m.Value,
		"unit", m.Unit,
		"sensor", m.Sensor,
		"timestamp", m.Timestamp.UnixNano(),
	)
	return nil
}
