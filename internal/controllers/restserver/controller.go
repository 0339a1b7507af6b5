// Package restserver serves the poller's latest readings and health over HTTP.
package restserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/pkg/responseformat"
)

// LatestSource is the read side of the latest-sample store.
type LatestSource interface {
	Scope(scope publish.Scope) []publish.Measurement
	Scopes() []publish.Scope
	Updated() time.Time
}

// StatusSource reports poll health.
type StatusSource interface {
	Healthy() bool
	Snapshot() []health.ScopeStatus
}

type Controller struct {
	Server    http.Server
	station   string
	sensor    string
	tasks     []publish.Task
	latest    LatestSource
	status    StatusSource
	formatter *responseformat.Formatter
	started   time.Time
	logger    *zap.SugaredLogger
}

// NewController builds the HTTP server for listenAddr. tasks describes the
// configured scopes so /metrics/{scope} can tell disabled scopes from unknown ones.
func NewController(listenAddr, station, sensor string, tasks []publish.Task, latest LatestSource, status StatusSource, logger *zap.SugaredLogger) *Controller {
	c := &Controller{
		station:   station,
		sensor:    sensor,
		tasks:     tasks,
		latest:    latest,
		status:    status,
		formatter: responseformat.NewFormatter(),
		started:   time.Now(),
		logger:    logger,
	}
	c.Server.Addr = listenAddr
	c.Server.Handler = c.Router()
	c.Server.ReadHeaderTimeout = 10 * time.Second
	return c
}

// Router returns the configured routes.
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/latest", c.GetLatest).Methods(http.MethodGet)
	router.HandleFunc("/metrics/{scope}", c.GetScopeMetrics).Methods(http.MethodGet)
	router.HandleFunc("/status", c.GetStatus).Methods(http.MethodGet)
	router.HandleFunc("/fields", c.GetFields).Methods(http.MethodGet)
	return router
}

// Run serves HTTP until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Infof("starting REST server on %s", c.Server.Addr)

	errc := make(chan error, 1)
	go func() {
		errc <- c.Server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down the REST server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
