package csvfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestSinkWritesRows(t *testing.T) {
	buf := &bufferCloser{}
	s := NewSink(NewWriter(buf), map[string]string{"wxt.rain.accumulation": "Rc"})

	ts := time.Date(2024, 6, 1, 12, 30, 15, 250000000, time.UTC)
	require.NoError(t, s.Publish(context.Background(), publish.Measurement{
		Name: "wxt.rain.accumulation", Value: 0.5, Unit: "millimeters", Sensor: "vaisala-wxt536", Scope: publish.ScopeNode, Timestamp: ts,
	}))
	require.NoError(t, s.Publish(context.Background(), publish.Measurement{
		Name: "wxt.custom", Value: 1.25, Unit: "x, y", Sensor: "vaisala-wxt536", Scope: publish.ScopeBeehive, Timestamp: ts,
	}))
	require.NoError(t, s.Close())

	assert.Equal(t,
		"20240601T12:30:15.250000,node,wxt.rain.accumulation,0.50,millimeters,vaisala-wxt536\n"+
			"20240601T12:30:15.250000,beehive,wxt.custom,1.25,\"x, y\",vaisala-wxt536\n",
		buf.String())
	assert.True(t, buf.closed)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "WXT536_atmos_20240601.123015.csv", FileName("atmos", time.Date(2024, 6, 1, 12, 30, 15, 0, time.UTC)))
}

func TestOpenWritesFile(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	w := Open(Config{Dir: dir, Site: "test", MaxSizeMB: 1}, start)
	require.NoError(t, w.WriteRow([]string{"a", "b"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName("test", start)))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}
