// Package health tracks poll cycle outcomes and exposes them as a gRPC health
// service.
package health

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies how a poll cycle ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeNoFrame means the transmitter did not answer within the attempt budget.
	OutcomeNoFrame
	// OutcomeNoSample means a reply arrived but could not be decoded.
	OutcomeNoSample
	// OutcomeLinkError means the link itself failed.
	OutcomeLinkError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoFrame:
		return "no-frame"
	case OutcomeNoSample:
		return "no-sample"
	case OutcomeLinkError:
		return "link-error"
	}
	return "unknown"
}

// ScopeStatus is the running tally for one scope.
type ScopeStatus struct {
	Scope               string    `json:"scope"`
	Cycles              int       `json:"cycles"`
	Successes           int       `json:"successes"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Published           int       `json:"published"`
	PublishFailures     int       `json:"publish_failures"`
	LastOutcome         string    `json:"last_outcome"`
	LastCycle           time.Time `json:"last_cycle"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
}

// Tracker aggregates cycle outcomes. A scope is unhealthy once it has failed
// threshold cycles in a row.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	scopes    map[string]*ScopeStatus
	healthy   bool
	listeners []func(healthy bool)
}

func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker{threshold: threshold, scopes: make(map[string]*ScopeStatus), healthy: true}
}

// OnChange registers fn to be called whenever overall health flips.
func (t *Tracker) OnChange(fn func(healthy bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// RecordCycle records the end of one cycle.
func (t *Tracker) RecordCycle(scope string, outcome Outcome, published, failed int, at time.Time) {
	t.mu.Lock()
	st, ok := t.scopes[scope]
	if !ok {
		st = &ScopeStatus{Scope: scope}
		t.scopes[scope] = st
	}
	st.Cycles++
	st.LastCycle = at
	st.LastOutcome = outcome.String()
	st.Published += published
	st.PublishFailures += failed
	if outcome == OutcomeOK {
		st.Successes++
		st.ConsecutiveFailures = 0
		st.LastSuccess = at
	} else {
		st.ConsecutiveFailures++
	}

	healthy := t.computeHealthy()
	var notify []func(bool)
	if healthy != t.healthy {
		t.healthy = healthy
		notify = append(notify, t.listeners...)
	}
	t.mu.Unlock()

	for _, fn := range notify {
		fn(healthy)
	}
}

func (t *Tracker) computeHealthy() bool {
	for _, st := range t.scopes {
		if st.ConsecutiveFailures >= t.threshold {
			return false
		}
	}
	return true
}

// Healthy reports whether every scope is below the failure threshold.
func (t *Tracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.healthy
}

// Snapshot returns a copy of every scope's status sorted by scope.
func (t *Tracker) Snapshot() []ScopeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ScopeStatus, 0, len(t.scopes))
	for _, st := range t.scopes {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}
