package latest

import (
	"context"
	"testing"
	"time"

	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/stretchr/testify/assert"
)

func TestStoreKeepsNewestPerMetric(t *testing.T) {
	s := NewStore()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s.Publish(context.Background(), publish.Measurement{Name: "wxt.env.temp", Value: 20, Scope: publish.ScopeNode, Timestamp: t0})
	s.Publish(context.Background(), publish.Measurement{Name: "wxt.env.temp", Value: 21, Scope: publish.ScopeNode, Timestamp: t0.Add(time.Second)})
	s.Publish(context.Background(), publish.Measurement{Name: "wxt.env.humidity", Value: 50, Scope: publish.ScopeNode, Timestamp: t0})
	s.Publish(context.Background(), publish.Measurement{Name: "wxt.env.temp", Value: 19, Scope: publish.ScopeBeehive, Timestamp: t0})

	node := s.Scope(publish.ScopeNode)
	if assert.Len(t, node, 2) {
		assert.Equal(t, "wxt.env.humidity", node[0].Name)
		assert.Equal(t, 21.0, node[1].Value)
	}
	assert.Len(t, s.Scope(publish.ScopeBeehive), 1)
	assert.Empty(t, s.Scope("other"))
	assert.Equal(t, []publish.Scope{publish.ScopeBeehive, publish.ScopeNode}, s.Scopes())
	assert.Equal(t, t0.Add(time.Second), s.Updated())
}
