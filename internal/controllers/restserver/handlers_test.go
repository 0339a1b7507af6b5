package restserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/wxtpoller/internal/health"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/chrissnell/wxtpoller/internal/sinks/latest"
	"github.com/chrissnell/wxtpoller/pkg/responseformat"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestController(t *testing.T) (*Controller, *latest.Store, *health.Tracker) {
	t.Helper()
	store := latest.NewStore()
	tracker := health.NewTracker(2)
	tasks := []publish.Task{
		{Scope: publish.ScopeNode, Interval: 30 * time.Second, Query: "0R0"},
		{Scope: publish.ScopeBeehive, Interval: -time.Second, Query: "0R0"},
	}
	c := NewController("127.0.0.1:0", "roof", "vaisala-wxt536", tasks, store, tracker, zaptest.NewLogger(t).Sugar())
	return c, store, tracker
}

func serve(c *Controller, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetLatest(t *testing.T) {
	c, store, _ := newTestController(t)

	rec := serve(c, "/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty LatestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Nil(t, empty.LastUpdated)
	assert.Empty(t, empty.Scopes)

	require.NoError(t, store.Publish(context.Background(), publish.Measurement{
		Name: "env.temperature", Value: 23.6, Unit: "degrees Celsius", Sensor: "vaisala-wxt536",
		Scope: publish.ScopeNode, Timestamp: testTime,
	}))

	rec = serve(c, "/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, responseformat.ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp LatestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "roof", resp.Station)
	require.NotNil(t, resp.LastUpdated)
	assert.True(t, testTime.Equal(*resp.LastUpdated))
	require.Len(t, resp.Scopes[publish.ScopeNode], 1)
	assert.Equal(t, 23.6, resp.Scopes[publish.ScopeNode][0].Value)
}

func TestGetLatestMsgPack(t *testing.T) {
	c, store, _ := newTestController(t)
	require.NoError(t, store.Publish(context.Background(), publish.Measurement{
		Name: "env.pressure", Value: 1026.6, Unit: "hectoPascal", Scope: publish.ScopeNode, Timestamp: testTime,
	}))

	rec := serve(c, "/latest?format=msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, responseformat.ContentTypeMsgPack, rec.Header().Get("Content-Type"))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "roof", decoded["station"])
	assert.Contains(t, decoded, "scopes")
}

func TestGetScopeMetrics(t *testing.T) {
	c, _, _ := newTestController(t)

	rec := serve(c, "/metrics/node")
	require.Equal(t, http.StatusOK, rec.Code)
	var node ScopeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.True(t, node.Enabled)
	assert.Equal(t, "30s", node.Interval)
	assert.Equal(t, "0R0", node.Query)
	assert.Empty(t, node.Measurements)

	rec = serve(c, "/metrics/beehive")
	require.Equal(t, http.StatusOK, rec.Code)
	var beehive ScopeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &beehive))
	assert.False(t, beehive.Enabled)
	assert.Empty(t, beehive.Interval)

	rec = serve(c, "/metrics/hive")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body responseformat.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "hive")
}

func TestGetStatus(t *testing.T) {
	c, _, tracker := newTestController(t)

	rec := serve(c, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	tracker.RecordCycle("node", health.OutcomeNoFrame, 0, 0, testTime)
	tracker.RecordCycle("node", health.OutcomeNoFrame, 0, 0, testTime)

	rec = serve(c, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Healthy)
	require.Len(t, resp.Scopes, 1)
	assert.Equal(t, 2, resp.Scopes[0].ConsecutiveFailures)
}

func TestGetFields(t *testing.T) {
	c, _, _ := newTestController(t)

	rec := serve(c, "/fields")
	require.Equal(t, http.StatusOK, rec.Code)
	var fields []FieldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))

	byCode := map[string]FieldResponse{}
	for _, f := range fields {
		byCode[f.Code] = f
	}
	assert.Equal(t, "coded", byCode["Jo"].Kind)
	assert.Equal(t, "integer", byCode["Dm"].Kind)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	c, _, _ := newTestController(t)
	assert.Equal(t, http.StatusNotFound, serve(c, "/span/day").Code)

	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/latest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
