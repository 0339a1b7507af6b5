package health

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server publishes the tracker's state through the standard gRPC health
// checking protocol, under both the named service and the empty service.
type Server struct {
	addr    string
	service string
	grpc    *grpc.Server
	health  *grpchealth.Server
	logger  *zap.SugaredLogger
}

// NewServer creates a health server bound to tracker. It starts SERVING.
func NewServer(addr, service string, tracker *Tracker, logger *zap.SugaredLogger) *Server {
	s := &Server{
		addr:    addr,
		service: service,
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		logger:  logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	s.setServing(tracker.Healthy())
	tracker.OnChange(s.setServing)
	return s
}

func (s *Server) setServing(healthy bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warnf("poller unhealthy, reporting %s", status)
	} else {
		s.logger.Infof("poller healthy, reporting %s", status)
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down the gRPC health server...")
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()
	s.logger.Infof("gRPC health server listening on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
