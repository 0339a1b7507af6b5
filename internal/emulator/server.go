package emulator

import (
	"bufio"
	"context"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source supplies the reading used to answer a query.
type Source func() Reading

// RandomSource draws readings from Generate using the wall clock.
func RandomSource(seed int64) Source {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func() Reading {
		mu.Lock()
		defer mu.Unlock()
		return Generate(time.Now(), rng)
	}
}

type Server struct {
	source Source
	// Noise, when set, is written before every reply to exercise the
	// poller's frame validation.
	Noise  string
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

func NewServer(source Source, logger *zap.SugaredLogger) *Server {
	return &Server{source: source, logger: logger}
}

// Serve answers connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	s.logger.Infof("WXT emulator listening on %s", lis.Addr())
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Errorf("failed to accept connection: %v", err)
			continue
		}
		s.logger.Infof("client connected from %s", conn.RemoteAddr())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		reply, ok := s.reply(query)
		if !ok {
			s.logger.Debugf("ignoring query %q", query)
			continue
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			s.logger.Warnf("failed to send reply: %v", err)
			return
		}
	}
}

func (s *Server) reply(query string) (string, bool) {
	if query == "?" {
		return "0\r\n", true
	}
	lines, ok := s.source().Frame(query)
	if !ok {
		return "", false
	}
	var b strings.Builder
	if s.Noise != "" {
		b.WriteString(s.Noise)
		b.WriteString("\r\n")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String(), true
}
