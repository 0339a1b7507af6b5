package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/wxtpoller/internal/emulator"
	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/pkg/config"
)

func TestBuildTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Scopes.Node.Interval = "30s"
	cfg.Scopes.Beehive.Interval = "-1"
	cfg.Scopes.Beehive.Query = "0R2"
	cfg.Metrics = []config.MetricData{
		{Name: "env.temperature", Field: "Ta", Unit: "degree Celsius"},
		{Name: "env.pressure", Field: "Pa", Unit: "hectoPascal", Scopes: []string{"beehive"}},
	}

	tasks, err := BuildTasks(cfg)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	node, beehive := tasks[0], tasks[1]
	assert.Equal(t, publish.ScopeNode, node.Scope)
	assert.Equal(t, 30*time.Second, node.Interval)
	assert.True(t, node.Enabled())
	assert.Equal(t, config.DefaultQuery, node.Query)
	assert.Equal(t, []publish.Metric{{Name: "env.temperature", Field: "Ta", Unit: "degree Celsius"}}, node.Metrics)

	assert.Equal(t, publish.ScopeBeehive, beehive.Scope)
	assert.False(t, beehive.Enabled())
	assert.Equal(t, "0R2", beehive.Query)
	assert.Len(t, beehive.Metrics, 2)
}

func startEmulator(t *testing.T) (host, port string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	reading := emulator.Reading{
		WindDirAvg: 268, WindSpeedAvg: 1.8,
		AirTemp: 23.6, Humidity: 14.2, Pressure: 1026.6,
		HeaterTemp: 25.9, HeaterVolt: 12.0, HeaterState: 'N',
		SupplyVolt: 12.0, RefVolt: 3.498,
	}
	srv := emulator.NewServer(func() emulator.Reading { return reading }, zaptest.NewLogger(t).Sugar())
	srv.Noise = "garbage"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, port, err = net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestRunAgainstEmulator(t *testing.T) {
	host, port := startEmulator(t)
	dir := t.TempDir()

	cfg := &config.ConfigData{
		Device: config.DeviceData{
			Name:        "roof",
			Hostname:    host,
			Port:        port,
			ReadTimeout: "500ms",
			OpenTimeout: "2s",
		},
		Poll: config.PollData{MaxAttempts: 5, AttemptInterval: "10ms"},
		Scopes: config.ScopesData{
			Node:    config.ScopeData{Interval: "50ms", Sinks: []string{config.SinkLatest, config.SinkCSV}},
			Beehive: config.ScopeData{Interval: "-1"},
		},
		CSV: &config.CSVData{Dir: dir, Site: "test"},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	a := New(cfg, true, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.store.Scope(publish.ScopeNode)) > 0
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}

	byName := map[string]publish.Measurement{}
	for _, m := range a.store.Scope(publish.ScopeNode) {
		byName[m.Name] = m
	}
	assert.Equal(t, 23.6, byName["wxt.env.temp"].Value)
	assert.Equal(t, "vaisala-wxt536", byName["wxt.env.temp"].Sensor)
	assert.Equal(t, 1.0, byName["wxt.heater.status"].Value)
	assert.NotContains(t, byName, "wxt.rain.duration", "0R0 carries no rain duration")
	assert.Empty(t, a.store.Scope(publish.ScopeBeehive))

	snap := a.tracker.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "node", snap[0].Scope)
	assert.Positive(t, snap[0].Successes)

	files, err := filepath.Glob(filepath.Join(dir, "WXT536_test_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), ",node,wxt.env.temp,23.6,degree Celsius,vaisala-wxt536")
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestRunFailsWhenLinkCannotOpen(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	require.NoError(t, lis.Close())

	cfg := config.Default()
	cfg.Device.SerialDevice = ""
	cfg.Device.Hostname = host
	cfg.Device.Port = port
	cfg.Device.OpenTimeout = "100ms"
	require.NoError(t, cfg.Validate())

	err = New(cfg, false, zaptest.NewLogger(t).Sugar()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not open link")
}

func TestRunStopsOnLinkFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		// Hang up as soon as the first query arrives.
		buf := make([]byte, 16)
		_, _ = conn.Read(buf)
		conn.Close()
	}()
	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Device.SerialDevice = ""
	cfg.Device.Hostname = host
	cfg.Device.Port = port
	cfg.Poll.AttemptInterval = "10ms"
	cfg.Scopes.Beehive.Interval = "0"
	require.NoError(t, cfg.Validate())

	a := New(cfg, false, zaptest.NewLogger(t).Sugar())
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "node poll failed")
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop after the link failed")
	}

	snap := a.tracker.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, health.OutcomeLinkError.String(), snap[0].LastOutcome)
}
