package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/chrissnell/wxtpoller/internal/constants"
	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
)

const (
	DefaultDeviceName      = "wxt"
	DefaultSerialDevice    = "/dev/ttyUSB1"
	DefaultBaud            = 19200
	DefaultReadTimeout     = "1s"
	DefaultOpenTimeout     = "30s"
	DefaultQuery           = "0R0"
	DefaultSensor          = "vaisala-wxt536"
	DefaultMaxAttempts     = 30
	DefaultAttemptInterval = "100ms"
	DefaultScopeInterval   = "1s"

	DefaultRESTPort         = 8080
	DefaultHealthPort       = 50051
	DefaultHealthService    = constants.ServiceName
	DefaultFailureThreshold = 5
	DefaultFeedPort         = 7070
	DefaultAMQPQueueDepth   = 256
)

// Sink names accepted in a scope's sink list.
const (
	SinkLog    = "log"
	SinkLatest = "latest"
	SinkCSV    = "csv"
	SinkAMQP   = "amqp"
)

const (
	ScopeNode    = "node"
	ScopeBeehive = "beehive"
)

// DefaultMetrics is the metric set published when the config names none.
func DefaultMetrics() []MetricData {
	return []MetricData{
		{Name: "wxt.wind.direction", Field: "Dm", Unit: "degrees"},
		{Name: "wxt.wind.speed", Field: "Sm", Unit: "meters per second"},
		{Name: "wxt.env.temp", Field: "Ta", Unit: "degree Celsius"},
		{Name: "wxt.env.humidity", Field: "Ua", Unit: "percent"},
		{Name: "wxt.env.pressure", Field: "Pa", Unit: "hectoPascal"},
		{Name: "wxt.rain.accumulation", Field: "Rc", Unit: "millimeters"},
		{Name: "wxt.rain.duration", Field: "Rd", Unit: "seconds"},
		{Name: "wxt.rain.intensity", Field: "Ri", Unit: "millimeters per hour"},
		{Name: "wxt.rain.peak", Field: "Rp", Unit: "millimeters per hour"},
		{Name: "wxt.hail.accumulation", Field: "Hc", Unit: "hits per square centimeter"},
		{Name: "wxt.hail.duration", Field: "Hd", Unit: "seconds"},
		{Name: "wxt.hail.intensity", Field: "Hi", Unit: "hits per square centimeter per hour"},
		{Name: "wxt.hail.peak", Field: "Hp", Unit: "hits per square centimeter per hour"},
		{Name: "wxt.heater.temp", Field: "Th", Unit: "degree Celsius"},
		{Name: "wxt.heater.volt", Field: "Vh", Unit: "volts"},
		{Name: "wxt.heater.status", Field: wxt.HeaterStatusCode, Unit: ""},
		{Name: "wxt.voltage.supply", Field: "Vs", Unit: "volts"},
		{Name: "wxt.voltage.reference", Field: "Vr", Unit: "volts"},
	}
}

// Default returns a configuration with every default applied.
func Default() *ConfigData {
	cfg := &ConfigData{}
	cfg.ApplyDefaults()
	return cfg
}

func finish(cfg *ConfigData) (*ConfigData, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *ConfigData) ApplyDefaults() {
	d := &c.Device
	if d.Name == "" {
		d.Name = DefaultDeviceName
	}
	if d.SerialDevice == "" && d.Hostname == "" {
		d.SerialDevice = DefaultSerialDevice
	}
	if d.Baud == 0 {
		d.Baud = DefaultBaud
	}
	if d.ReadTimeout == "" {
		d.ReadTimeout = DefaultReadTimeout
	}
	if d.OpenTimeout == "" {
		d.OpenTimeout = DefaultOpenTimeout
	}
	if d.Query == "" {
		d.Query = DefaultQuery
	}
	if d.Sensor == "" {
		d.Sensor = DefaultSensor
	}

	if c.Poll.MaxAttempts == 0 {
		c.Poll.MaxAttempts = DefaultMaxAttempts
	}
	if c.Poll.AttemptInterval == "" {
		c.Poll.AttemptInterval = DefaultAttemptInterval
	}

	c.defaultScope(&c.Scopes.Node, ScopeNode)
	c.defaultScope(&c.Scopes.Beehive, ScopeBeehive)

	if len(c.Metrics) == 0 {
		c.Metrics = DefaultMetrics()
	}

	if c.AMQP != nil && c.AMQP.QueueDepth == 0 {
		c.AMQP.QueueDepth = DefaultAMQPQueueDepth
	}
	if c.REST != nil && c.REST.Port == 0 {
		c.REST.Port = DefaultRESTPort
	}
	if c.Health != nil {
		if c.Health.Port == 0 {
			c.Health.Port = DefaultHealthPort
		}
		if c.Health.Service == "" {
			c.Health.Service = DefaultHealthService
		}
		if c.Health.FailureThreshold == 0 {
			c.Health.FailureThreshold = DefaultFailureThreshold
		}
	}
	if c.Feed != nil && c.Feed.Port == 0 {
		c.Feed.Port = DefaultFeedPort
	}
}

func (c *ConfigData) defaultScope(s *ScopeData, name string) {
	if s.Interval == "" {
		s.Interval = DefaultScopeInterval
	}
	if s.Query == "" {
		s.Query = c.Device.Query
	}
	if len(s.Sinks) == 0 {
		s.Sinks = []string{SinkLog, SinkLatest}
		if c.CSV != nil {
			s.Sinks = append(s.Sinks, SinkCSV)
		}
		if c.AMQP != nil && name == ScopeBeehive {
			s.Sinks = append(s.Sinks, SinkAMQP)
		}
	}
}

// Validate reports every problem in the configuration at once.
func (c *ConfigData) Validate() error {
	var err error
	d := c.Device

	if d.SerialDevice == "" && (d.Hostname == "" || d.Port == "") {
		err = multierr.Append(err, fmt.Errorf("device %s: serial-device or hostname and port must be set", d.Name))
	}
	if d.Baud <= 0 {
		err = multierr.Append(err, fmt.Errorf("device %s: invalid baud rate %d", d.Name, d.Baud))
	}
	err = multierr.Append(err, positiveDuration("device.read-timeout", d.ReadTimeout))
	err = multierr.Append(err, positiveDuration("device.open-timeout", d.OpenTimeout))
	err = multierr.Append(err, validQuery("device.query", d.Query))

	if c.Poll.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("poll.max-attempts must be at least 1, got %d", c.Poll.MaxAttempts))
	}
	if iv, perr := ParseInterval(c.Poll.AttemptInterval); perr != nil {
		err = multierr.Append(err, fmt.Errorf("poll.attempt-interval: %w", perr))
	} else if iv < 0 {
		err = multierr.Append(err, fmt.Errorf("poll.attempt-interval must not be negative"))
	}

	err = multierr.Append(err, c.validateScope(ScopeNode, c.Scopes.Node))
	err = multierr.Append(err, c.validateScope(ScopeBeehive, c.Scopes.Beehive))

	seen := make(map[string]bool)
	for _, m := range c.Metrics {
		if m.Name == "" {
			err = multierr.Append(err, fmt.Errorf("metric for field %s has no name", m.Field))
		}
		if seen[m.Name] {
			err = multierr.Append(err, fmt.Errorf("metric %s defined twice", m.Name))
		}
		seen[m.Name] = true
		if _, ok := wxt.LookupField(m.Field); !ok {
			err = multierr.Append(err, fmt.Errorf("metric %s: unknown field %q", m.Name, m.Field))
		}
		for _, s := range m.Scopes {
			if s != ScopeNode && s != ScopeBeehive {
				err = multierr.Append(err, fmt.Errorf("metric %s: unknown scope %q", m.Name, s))
			}
		}
	}

	if c.AMQP != nil {
		if c.AMQP.URL == "" {
			err = multierr.Append(err, fmt.Errorf("amqp.url must be set"))
		}
		if c.AMQP.Exchange == "" {
			err = multierr.Append(err, fmt.Errorf("amqp.exchange must be set"))
		}
		switch c.AMQP.Encoding {
		case "", "json", "msgpack":
		default:
			err = multierr.Append(err, fmt.Errorf("amqp.encoding must be json or msgpack, got %q", c.AMQP.Encoding))
		}
	}
	if c.CSV != nil && c.CSV.Site == "" {
		err = multierr.Append(err, fmt.Errorf("csv.site must be set"))
	}
	if c.Health != nil && c.Health.FailureThreshold < 1 {
		err = multierr.Append(err, fmt.Errorf("health.failure-threshold must be at least 1"))
	}
	return err
}

func (c *ConfigData) validateScope(name string, s ScopeData) error {
	var err error
	if _, perr := ParseInterval(s.Interval); perr != nil {
		err = multierr.Append(err, fmt.Errorf("scopes.%s.interval: %w", name, perr))
	}
	err = multierr.Append(err, validQuery("scopes."+name+".query", s.Query))
	for _, sink := range s.Sinks {
		switch sink {
		case SinkLog, SinkLatest:
		case SinkCSV:
			if c.CSV == nil {
				err = multierr.Append(err, fmt.Errorf("scopes.%s: csv sink requires a csv section", name))
			}
		case SinkAMQP:
			if c.AMQP == nil {
				err = multierr.Append(err, fmt.Errorf("scopes.%s: amqp sink requires an amqp section", name))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("scopes.%s: unknown sink %q", name, sink))
		}
	}
	return err
}

func positiveDuration(key, s string) error {
	d, err := ParseInterval(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", key, s)
	}
	return nil
}

func validQuery(key, q string) error {
	if !strings.HasPrefix(q, "0R") {
		return fmt.Errorf("%s: %q is not a data query", key, q)
	}
	return nil
}

// maxIntervalSeconds is the largest whole number of seconds a time.Duration holds.
var maxIntervalSeconds = math.Floor(math.MaxInt64 / float64(time.Second))

func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if math.IsNaN(f) || math.Abs(f) > maxIntervalSeconds {
		return 0, fmt.Errorf("duration %q out of range", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}
