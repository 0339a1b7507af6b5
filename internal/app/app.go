package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/wxtpoller/internal/controllers/restserver"
	"github.com/chrissnell/wxtpoller/internal/feed"
	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/internal/scheduler"
	"github.com/chrissnell/wxtpoller/internal/sinks/amqp"
	"github.com/chrissnell/wxtpoller/internal/sinks/csvfile"
	"github.com/chrissnell/wxtpoller/internal/sinks/latest"
	"github.com/chrissnell/wxtpoller/internal/transport"
	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
	"github.com/chrissnell/wxtpoller/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	debug  bool
	logger *zap.SugaredLogger

	store   *latest.Store
	tracker *health.Tracker
}

// New creates a new application instance. cfg must already be validated.
func New(cfg *config.ConfigData, debug bool, logger *zap.SugaredLogger) *App {
	threshold := config.DefaultFailureThreshold
	if cfg.Health != nil {
		threshold = cfg.Health.FailureThreshold
	}
	return &App{
		cfg:     cfg,
		debug:   debug,
		logger:  logger.With("run", uuid.NewString()),
		store:   latest.NewStore(),
		tracker: health.NewTracker(threshold),
	}
}

// Run opens the link, starts every configured component and blocks until a
// shutdown signal, ctx cancellation or a link failure.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dev := a.cfg.Device
	tasks, err := BuildTasks(a.cfg)
	if err != nil {
		return err
	}
	readTimeout, err := config.ParseInterval(dev.ReadTimeout)
	if err != nil {
		return err
	}
	openTimeout, err := config.ParseInterval(dev.OpenTimeout)
	if err != nil {
		return err
	}
	attemptInterval, err := config.ParseInterval(a.cfg.Poll.AttemptInterval)
	if err != nil {
		return err
	}

	conn, err := transport.Open(transport.Config{
		SerialDevice: dev.SerialDevice,
		Baud:         dev.Baud,
		Hostname:     dev.Hostname,
		Port:         dev.Port,
		OpenTimeout:  openTimeout,
	}, a.logger.Named("transport"))
	if err != nil {
		return fmt.Errorf("could not open link to %s: %w", dev.Name, err)
	}
	closers := []io.Closer{conn}

	var wg sync.WaitGroup
	g, gctx := errgroup.WithContext(ctx)

	var observers []wxt.FrameObserver
	if a.cfg.Feed != nil {
		f := feed.New(hostPort(a.cfg.Feed.ListenAddr, a.cfg.Feed.Port), a.logger.Named("feed"))
		observers = append(observers, f)
		g.Go(func() error { return f.Run(gctx) })
	}

	var decoderOpts []wxt.DecoderOption
	if dev.AcceptAltHeatingPrefix {
		decoderOpts = append(decoderOpts, wxt.WithAltHeatingPrefix())
	}
	policy := wxt.RetryPolicy{MaxAttempts: a.cfg.Poll.MaxAttempts, Interval: attemptInterval}
	validator := wxt.NewValidator(conn, policy, readTimeout, a.logger.Named("validator"))
	station := wxt.NewStation(dev.Name, validator, wxt.NewDecoder(decoderOpts...), a.logger.Named("station"), observers...)

	sinks, sinkClosers, err := a.buildSinks(gctx, g, &wg)
	closers = append(closers, sinkClosers...)
	if err != nil {
		cancel()
		_ = g.Wait()
		wg.Wait()
		return multierr.Append(err, closeAll(closers))
	}

	adapter := publish.NewAdapter(dev.Sensor, sinks, a.debug, a.logger.Named("publish"))
	sched := scheduler.New(station, adapter, tasks, a.logger.Named("scheduler"), scheduler.WithRecorder(a.tracker))
	g.Go(func() error { return sched.Run(gctx) })

	if a.cfg.REST != nil {
		rest := restserver.NewController(hostPort(a.cfg.REST.ListenAddr, a.cfg.REST.Port),
			dev.Name, dev.Sensor, tasks, a.store, a.tracker, a.logger.Named("rest"))
		g.Go(func() error { return rest.Run(gctx) })
	}
	if a.cfg.Health != nil {
		hs := health.NewServer(hostPort(a.cfg.Health.ListenAddr, a.cfg.Health.Port),
			a.cfg.Health.Service, a.tracker, a.logger.Named("health"))
		g.Go(func() error { return hs.Run(gctx) })
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	g.Go(func() error {
		select {
		case <-sigs:
			a.logger.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	a.logger.Infof("polling %s (%s); active scopes: %v", dev.Name, dev.Sensor, sched.Active())

	err = g.Wait()
	if err != nil {
		a.logger.Errorf("stopping: %v", err)
	}
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	err = multierr.Append(err, closeAll(closers))
	a.logger.Info("shutdown complete")
	return err
}

// buildSinks assembles each scope's sink fan-out. Sinks named by more than
// one scope are shared.
func (a *App) buildSinks(ctx context.Context, g *errgroup.Group, wg *sync.WaitGroup) (map[publish.Scope]publish.Sink, []io.Closer, error) {
	var (
		closers  []io.Closer
		logSink  publish.Sink
		csvSink  publish.Sink
		amqpSink publish.Sink
	)

	get := func(name string) (publish.Sink, error) {
		switch name {
		case config.SinkLog:
			if logSink == nil {
				logSink = publish.NewLogSink(a.logger.Named("measurements"))
			}
			return logSink, nil
		case config.SinkLatest:
			return a.store, nil
		case config.SinkCSV:
			if csvSink == nil {
				c := a.cfg.CSV
				w := csvfile.Open(csvfile.Config{
					Dir:        c.Dir,
					Site:       c.Site,
					MaxSizeMB:  c.MaxSizeMB,
					MaxBackups: c.MaxBackups,
					MaxAgeDays: c.MaxAgeDays,
					Compress:   c.Compress,
				}, time.Now())
				s := csvfile.NewSink(w, metricFields(a.cfg.Metrics))
				closers = append(closers, s)
				csvSink = s
			}
			return csvSink, nil
		case config.SinkAMQP:
			if amqpSink == nil {
				c := a.cfg.AMQP
				s, err := amqp.New(amqp.Config{
					URL:           c.URL,
					Exchange:      c.Exchange,
					ExchangeType:  c.ExchangeType,
					Encoding:      c.Encoding,
					RoutingPrefix: c.RoutingPrefix,
				}, a.logger.Named("amqp"))
				if err != nil {
					return nil, err
				}
				closers = append(closers, s)
				g.Go(func() error {
					if err := s.Connect(ctx); err != nil && ctx.Err() == nil {
						return fmt.Errorf("amqp: %w", err)
					}
					return nil
				})
				async := publish.NewAsyncSink("amqp", s, c.QueueDepth, a.logger.Named("amqp"))
				async.Start(ctx, wg)
				amqpSink = async
			}
			return amqpSink, nil
		}
		return nil, fmt.Errorf("unknown sink %q", name)
	}

	out := make(map[publish.Scope]publish.Sink)
	for scope, sc := range map[publish.Scope]config.ScopeData{
		publish.ScopeNode:    a.cfg.Scopes.Node,
		publish.ScopeBeehive: a.cfg.Scopes.Beehive,
	} {
		var fan publish.Fanout
		for _, name := range sc.Sinks {
			s, err := get(name)
			if err != nil {
				return nil, closers, err
			}
			fan = append(fan, s)
		}
		out[scope] = fan
	}
	return out, closers, nil
}

// BuildTasks turns the scope and metric configuration into publish tasks.
func BuildTasks(cfg *config.ConfigData) ([]publish.Task, error) {
	scopes := []struct {
		scope publish.Scope
		data  config.ScopeData
	}{
		{publish.ScopeNode, cfg.Scopes.Node},
		{publish.ScopeBeehive, cfg.Scopes.Beehive},
	}

	tasks := make([]publish.Task, 0, len(scopes))
	for _, s := range scopes {
		interval, err := config.ParseInterval(s.data.Interval)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", s.scope, err)
		}
		task := publish.Task{Scope: s.scope, Interval: interval, Query: s.data.Query}
		for _, m := range cfg.Metrics {
			if !inScope(m, s.scope) {
				continue
			}
			task.Metrics = append(task.Metrics, publish.Metric{Name: m.Name, Field: m.Field, Unit: m.Unit})
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func inScope(m config.MetricData, scope publish.Scope) bool {
	if len(m.Scopes) == 0 {
		return true
	}
	for _, s := range m.Scopes {
		if publish.Scope(s) == scope {
			return true
		}
	}
	return false
}

func metricFields(metrics []config.MetricData) map[string]string {
	out := make(map[string]string, len(metrics))
	for _, m := range metrics {
		out[m.Name] = m.Field
	}
	return out
}

func hostPort(addr string, port int) string {
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

func closeAll(closers []io.Closer) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}
