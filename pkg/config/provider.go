package config

import (
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get the device section alone
	GetDevice() (*DeviceData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Device  DeviceData   `yaml:"device" toml:"device" json:"device"`
	Poll    PollData     `yaml:"poll" toml:"poll" json:"poll"`
	Scopes  ScopesData   `yaml:"scopes" toml:"scopes" json:"scopes"`
	Metrics []MetricData `yaml:"metrics,omitempty" toml:"metrics,omitempty" json:"metrics,omitempty"`

	AMQP   *AMQPData       `yaml:"amqp,omitempty" toml:"amqp,omitempty" json:"amqp,omitempty"`
	CSV    *CSVData        `yaml:"csv,omitempty" toml:"csv,omitempty" json:"csv,omitempty"`
	REST   *RESTServerData `yaml:"rest,omitempty" toml:"rest,omitempty" json:"rest,omitempty"`
	Health *HealthData     `yaml:"health,omitempty" toml:"health,omitempty" json:"health,omitempty"`
	Feed   *FeedData       `yaml:"feed,omitempty" toml:"feed,omitempty" json:"feed,omitempty"`
}

// DeviceData describes the transmitter and how to reach it. Either
// SerialDevice or Hostname+Port must be set.
type DeviceData struct {
	Name         string `yaml:"name" toml:"name" json:"name"`
	SerialDevice string `yaml:"serial-device,omitempty" toml:"serial-device,omitempty" json:"serial_device,omitempty"`
	Baud         int    `yaml:"baud,omitempty" toml:"baud,omitempty" json:"baud,omitempty"`
	Hostname     string `yaml:"hostname,omitempty" toml:"hostname,omitempty" json:"hostname,omitempty"`
	Port         string `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty"`
	ReadTimeout  string `yaml:"read-timeout,omitempty" toml:"read-timeout,omitempty" json:"read_timeout,omitempty"`
	OpenTimeout  string `yaml:"open-timeout,omitempty" toml:"open-timeout,omitempty" json:"open_timeout,omitempty"`
	Query        string `yaml:"query,omitempty" toml:"query,omitempty" json:"query,omitempty"`
	Sensor       string `yaml:"sensor,omitempty" toml:"sensor,omitempty" json:"sensor,omitempty"`
	// AcceptAltHeatingPrefix treats 0R9 replies as heating/voltage frames.
	AcceptAltHeatingPrefix bool `yaml:"accept-alt-heating-prefix,omitempty" toml:"accept-alt-heating-prefix,omitempty" json:"accept_alt_heating_prefix,omitempty"`
}

// PollData is the validator's retry budget.
type PollData struct {
	MaxAttempts     int    `yaml:"max-attempts,omitempty" toml:"max-attempts,omitempty" json:"max_attempts,omitempty"`
	AttemptInterval string `yaml:"attempt-interval,omitempty" toml:"attempt-interval,omitempty" json:"attempt_interval,omitempty"`
}

type ScopesData struct {
	Node    ScopeData `yaml:"node" toml:"node" json:"node"`
	Beehive ScopeData `yaml:"beehive" toml:"beehive" json:"beehive"`
}

// ScopeData configures one publish scope. A zero or negative interval
// disables the scope.
type ScopeData struct {
	Interval string   `yaml:"interval,omitempty" toml:"interval,omitempty" json:"interval,omitempty"`
	Query    string   `yaml:"query,omitempty" toml:"query,omitempty" json:"query,omitempty"`
	Sinks    []string `yaml:"sinks,omitempty" toml:"sinks,omitempty" json:"sinks,omitempty"`
}

// MetricData maps a WXT field to a published metric name. Scopes limits the
// metric to the named scopes; empty means every scope.
type MetricData struct {
	Name   string   `yaml:"name" toml:"name" json:"name"`
	Field  string   `yaml:"field" toml:"field" json:"field"`
	Unit   string   `yaml:"unit" toml:"unit" json:"unit"`
	Scopes []string `yaml:"scopes,omitempty" toml:"scopes,omitempty" json:"scopes,omitempty"`
}

type AMQPData struct {
	URL           string `yaml:"url" toml:"url" json:"url"`
	Exchange      string `yaml:"exchange" toml:"exchange" json:"exchange"`
	ExchangeType  string `yaml:"exchange-type,omitempty" toml:"exchange-type,omitempty" json:"exchange_type,omitempty"`
	Encoding      string `yaml:"encoding,omitempty" toml:"encoding,omitempty" json:"encoding,omitempty"`
	RoutingPrefix string `yaml:"routing-prefix,omitempty" toml:"routing-prefix,omitempty" json:"routing_prefix,omitempty"`
	QueueDepth    int    `yaml:"queue-depth,omitempty" toml:"queue-depth,omitempty" json:"queue_depth,omitempty"`
}

type CSVData struct {
	Dir        string `yaml:"dir" toml:"dir" json:"dir"`
	Site       string `yaml:"site" toml:"site" json:"site"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty" toml:"max-size-mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" toml:"max-backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty" toml:"max-age-days,omitempty" json:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty" toml:"compress,omitempty" json:"compress,omitempty"`
}

type RESTServerData struct {
	ListenAddr string `yaml:"listen-addr,omitempty" toml:"listen-addr,omitempty" json:"listen_addr,omitempty"`
	Port       int    `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty"`
}

type HealthData struct {
	ListenAddr       string `yaml:"listen-addr,omitempty" toml:"listen-addr,omitempty" json:"listen_addr,omitempty"`
	Port             int    `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty"`
	Service          string `yaml:"service,omitempty" toml:"service,omitempty" json:"service,omitempty"`
	FailureThreshold int    `yaml:"failure-threshold,omitempty" toml:"failure-threshold,omitempty" json:"failure_threshold,omitempty"`
}

type FeedData struct {
	ListenAddr string `yaml:"listen-addr,omitempty" toml:"listen-addr,omitempty" json:"listen_addr,omitempty"`
	Port       int    `yaml:"port,omitempty" toml:"port,omitempty" json:"port,omitempty"`
}

// ParseInterval parses a duration string. Bare numbers are taken as seconds
// so "-1" and "2.5" work like they do on the command line.
func ParseInterval(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return parseSeconds(s)
}
