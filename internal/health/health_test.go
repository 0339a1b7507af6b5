package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestTrackerThreshold(t *testing.T) {
	tr := NewTracker(3)
	var flips []bool
	tr.OnChange(func(h bool) { flips = append(flips, h) })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.RecordCycle("node", OutcomeNoFrame, 0, 0, now)
	tr.RecordCycle("node", OutcomeNoSample, 0, 0, now)
	assert.True(t, tr.Healthy())

	tr.RecordCycle("node", OutcomeNoFrame, 0, 0, now)
	assert.False(t, tr.Healthy())

	// Another scope succeeding does not clear the failing one.
	tr.RecordCycle("beehive", OutcomeOK, 4, 0, now)
	assert.False(t, tr.Healthy())

	tr.RecordCycle("node", OutcomeOK, 9, 1, now)
	assert.True(t, tr.Healthy())
	assert.Equal(t, []bool{false, true}, flips)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "beehive", snap[0].Scope)
	assert.Equal(t, "node", snap[1].Scope)
	assert.Equal(t, 4, snap[1].Cycles)
	assert.Equal(t, 1, snap[1].Successes)
	assert.Equal(t, 0, snap[1].ConsecutiveFailures)
	assert.Equal(t, 9, snap[1].Published)
	assert.Equal(t, 1, snap[1].PublishFailures)
	assert.Equal(t, "ok", snap[1].LastOutcome)
	assert.Equal(t, now, snap[1].LastSuccess)
}

func TestTrackerMinimumThreshold(t *testing.T) {
	tr := NewTracker(0)
	tr.RecordCycle("node", OutcomeLinkError, 0, 0, time.Now())
	assert.False(t, tr.Healthy())
}

func TestServerReportsTrackerState(t *testing.T) {
	tr := NewTracker(1)
	srv := NewServer("", "wxtpoller", tr, zaptest.NewLogger(t).Sugar())

	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("wxtpoller"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))

	tr.RecordCycle("node", OutcomeNoFrame, 0, 0, time.Now())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("wxtpoller"))

	tr.RecordCycle("node", OutcomeOK, 1, 0, time.Now())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("health server did not stop")
	}
}
