// Package publish projects decoded samples onto named metrics and hands them
// to the sinks configured for each scope.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
	"go.uber.org/zap"
)

// Scope names a delivery audience.
type Scope string

const (
	ScopeNode    Scope = "node"
	ScopeBeehive Scope = "beehive"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeNode, ScopeBeehive:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Metric binds a published metric name to a WXT field code and a unit label.
type Metric struct {
	Name  string
	Field string
	Unit  string
}

// Task is one scope's publishing schedule.
type Task struct {
	Scope    Scope
	Interval time.Duration
	Query    string
	Metrics  []Metric
}

// Enabled reports whether the task should ever run.
func (t Task) Enabled() bool {
	return t.Interval > 0
}

// Measurement is a single value on its way to a sink.
type Measurement struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Sensor    string    `json:"sensor"`
	Scope     Scope     `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink delivers measurements. Implementations own delivery and durability.
type Sink interface {
	Publish(ctx context.Context, m Measurement) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, m Measurement) error

func (f SinkFunc) Publish(ctx context.Context, m Measurement) error {
	return f(ctx, m)
}

// Result summarizes one Publish call.
type Result struct {
	Published int
	Skipped   int
	Failed    int
}

// Adapter maps samples to measurements and pushes them to per-scope sinks.
type Adapter struct {
	sensor string
	sinks  map[Scope]Sink
	debug  bool
	logger *zap.SugaredLogger
}

// NewAdapter creates an Adapter. sinks maps each scope to its destination;
// a scope without a sink publishes nothing.
func NewAdapter(sensor string, sinks map[Scope]Sink, debug bool, logger *zap.SugaredLogger) *Adapter {
	copied := make(map[Scope]Sink, len(sinks))
	for k, v := range sinks {
		copied[k] = v
	}
	return &Adapter{sensor: sensor, sinks: copied, debug: debug, logger: logger}
}

// Publish sends every metric of task that the sample carries. Missing fields
// are skipped and sink failures are logged; neither stops the loop.
func (a *Adapter) Publish(ctx context.Context, task Task, sample *wxt.Sample) Result {
	var res Result
	if sample == nil {
		return res
	}

	sink, ok := a.sinks[task.Scope]
	if !ok {
		a.logger.Warnf("no sink configured for scope %s", task.Scope)
		return res
	}

	for _, metric := range task.Metrics {
		value, ok := sample.Value(metric.Field)
		if !ok {
			res.Skipped++
			continue
		}

		m := Measurement{
			Name:      metric.Name,
			Value:     value,
			Unit:      metric.Unit,
			Sensor:    a.sensor,
			Scope:     task.Scope,
			Timestamp: sample.Captured,
		}
		if a.debug {
			a.logger.Debugw(string(task.Scope)+" publishing",
				"metric", m.Name, "value", FormatValue(metric.Field, value), "unit", m.Unit, "kind", kindOf(metric.Field))
		}

		if err := sink.Publish(ctx, m); err != nil {
			res.Failed++
			a.logger.Errorf("%s: publishing %s failed: %v", task.Scope, m.Name, err)
			continue
		}
		res.Published++
	}
	return res
}

// FormatValue renders a field value with the precision its registry entry
// declares. Unknown fields fall back to the shortest representation.
func FormatValue(field string, v float64) string {
	fs, ok := wxt.LookupField(field)
	if !ok {
		return fmt.Sprintf("%g", v)
	}
	switch fs.Kind {
	case wxt.KindInteger, wxt.KindCoded:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%.*f", fs.Decimals, v)
	}
}

func kindOf(field string) string {
	if fs, ok := wxt.LookupField(field); ok {
		return fs.Kind.String()
	}
	return "unknown"
}
