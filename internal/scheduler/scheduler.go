// Package scheduler drives the poll-publish cycles, one goroutine per enabled
// scope, each on its own cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
)

// Poller runs one poll sequence and decodes the answer.
type Poller interface {
	Poll(ctx context.Context, query string) (*wxt.Sample, error)
}

// Publisher emits the metrics of a task from a decoded sample.
type Publisher interface {
	Publish(ctx context.Context, task publish.Task, sample *wxt.Sample) publish.Result
}

// Recorder receives the outcome of every cycle.
type Recorder interface {
	RecordCycle(scope string, outcome health.Outcome, published, failed int, at time.Time)
}

type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRecorder reports cycle outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

type Scheduler struct {
	poller    Poller
	publisher Publisher
	tasks     []publish.Task
	clock     Clock
	recorder  Recorder
	logger    *zap.SugaredLogger
}

func New(poller Poller, publisher Publisher, tasks []publish.Task, logger *zap.SugaredLogger, opts ...Option) *Scheduler {
	s := &Scheduler{
		poller:    poller,
		publisher: publisher,
		tasks:     tasks,
		clock:     realClock{},
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Active returns the scopes that will run.
func (s *Scheduler) Active() []publish.Scope {
	var scopes []publish.Scope
	for _, t := range s.tasks {
		if t.Enabled() {
			scopes = append(scopes, t.Scope)
		}
	}
	return scopes
}

// Run starts every enabled scope and blocks until ctx is cancelled or a scope
// hits a link failure, whose error is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, task := range s.tasks {
		if !task.Enabled() {
			s.logger.Infof("%s publishing disabled", task.Scope)
			continue
		}
		task := task
		started++
		s.logger.Infof("publishing %s scope every %v using query %s", task.Scope, task.Interval, task.Query)
		g.Go(func() error {
			return s.runScope(gctx, task)
		})
	}
	if started == 0 {
		s.logger.Warn("no publish scope enabled; nothing to poll")
	}
	return g.Wait()
}

func (s *Scheduler) runScope(ctx context.Context, task publish.Task) error {
	if err := s.cycle(ctx, task); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := s.cycle(ctx, task); err != nil {
				return err
			}
		}
	}
}

// cycle polls once and publishes. Only link failures are returned.
func (s *Scheduler) cycle(ctx context.Context, task publish.Task) error {
	sample, err := s.poller.Poll(ctx, task.Query)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil
	case errors.Is(err, wxt.ErrNoValidFrame):
		s.logger.Warnf("%s: no valid reply to %s, skipping cycle", task.Scope, task.Query)
		s.record(task, health.OutcomeNoFrame, publish.Result{})
		return nil
	case err != nil:
		s.record(task, health.OutcomeLinkError, publish.Result{})
		return fmt.Errorf("%s poll failed: %w", task.Scope, err)
	case sample == nil:
		s.logger.Debugf("%s: reply to %s could not be decoded, skipping cycle", task.Scope, task.Query)
		s.record(task, health.OutcomeNoSample, publish.Result{})
		return nil
	}

	res := s.publisher.Publish(ctx, task, sample)
	s.logger.Debugf("%s: published %d, skipped %d, failed %d", task.Scope, res.Published, res.Skipped, res.Failed)
	s.record(task, health.OutcomeOK, res)
	return nil
}

func (s *Scheduler) record(task publish.Task, outcome health.Outcome, res publish.Result) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordCycle(string(task.Scope), outcome, res.Published, res.Failed, s.clock.Now())
}
