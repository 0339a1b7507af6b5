// Package feed rebroadcasts every validated raw frame to connected TCP clients.
// Clients are read-only listeners; anything they send is discarded.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
)

// FormatLine renders a frame as a single feed line.
func FormatLine(name string, frame wxt.RawFrame) []byte {
	return []byte(fmt.Sprintf("%s %s %s\r\n",
		frame.Captured.UTC().Format(time.RFC3339Nano), name, frame.Text()))
}

type Server struct {
	gnet.BuiltinEventEngine

	addr   string
	logger *zap.SugaredLogger

	mu      sync.Mutex
	clients map[gnet.Conn]struct{}
	eng     gnet.Engine
	booted  chan struct{}
}

func New(addr string, logger *zap.SugaredLogger) *Server {
	return &Server{
		addr:    addr,
		logger:  logger,
		clients: make(map[gnet.Conn]struct{}),
		booted:  make(chan struct{}),
	}
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.eng = eng
	s.mu.Unlock()
	close(s.booted)
	s.logger.Infof("raw frame feed listening on %s", s.addr)
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Infof("feed client connected from %v", c.RemoteAddr())
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	if err != nil {
		s.logger.Debugf("feed client %v closed: %v", c.RemoteAddr(), err)
	}
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	_, _ = c.Discard(c.InboundBuffered())
	return gnet.None
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ObserveFrame queues the frame to every connected client.
func (s *Server) ObserveFrame(name string, frame wxt.RawFrame) {
	line := FormatLine(name, frame)

	s.mu.Lock()
	conns := make([]gnet.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.AsyncWrite(line, nil); err != nil {
			s.logger.Debugf("feed write to %v failed: %v", c.RemoteAddr(), err)
		}
	}
}

// Run serves the feed until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	runDone := make(chan struct{})
	defer close(runDone)

	go func() {
		select {
		case <-ctx.Done():
		case <-runDone:
			return
		}
		select {
		case <-s.booted:
		case <-runDone:
			return
		}
		s.mu.Lock()
		eng := s.eng
		s.mu.Unlock()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down the raw frame feed...")
		if err := eng.Stop(stopCtx); err != nil {
			s.logger.Warnf("feed shutdown: %v", err)
		}
	}()

	return gnet.Run(s, "tcp://"+s.addr,
		gnet.WithMulticore(false),
		gnet.WithReusePort(false),
		gnet.WithLogger(s.logger),
	)
}
