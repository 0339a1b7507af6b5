// Package amqp publishes measurements to a RabbitMQ exchange, one message per
// value, routed by scope.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/chrissnell/wxtpoller/internal/publish"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	exchangeTypeTopic = "topic"
	durable           = true
	deleteWhenUnused  = false
	internal          = false
	noWait            = false
	mandatory         = false
	immediate         = false

	// MissingValue is advertised in every message's metadata as the value
	// downstream consumers should treat as absent.
	MissingValue = "-9999.9"
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = fmt.Errorf("amqp: not connected")

// Config selects the broker and message format.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
	// Encoding is "json" (default) or "msgpack".
	Encoding string
	// RoutingPrefix is prepended to the scope to form the routing key.
	RoutingPrefix string
}

// Message is the body published for each measurement.
type Message struct {
	Name      string            `json:"name" msgpack:"name"`
	Value     float64           `json:"value" msgpack:"value"`
	Timestamp int64             `json:"ts" msgpack:"ts"`
	Meta      map[string]string `json:"meta" msgpack:"meta"`
}

type session interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type amqpSession struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (s amqpSession) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return s.conn.NotifyClose(c)
}

func (s amqpSession) Close() error {
	return multierr.Append(s.Channel.Close(), s.conn.Close())
}

func dialSession(url string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return amqpSession{Channel: ch, conn: conn}, nil
}

// Sink is a publish.Sink backed by an AMQP exchange.
type Sink struct {
	cfg         Config
	contentType string
	encode      func(v interface{}) ([]byte, error)
	dial        func(url string) (session, error)
	logger      *zap.SugaredLogger

	mu      sync.RWMutex
	session session
}

// New validates cfg and returns an unconnected Sink.
func New(cfg Config, logger *zap.SugaredLogger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp: url is required")
	}
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("amqp: exchange is required")
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = exchangeTypeTopic
	}

	s := &Sink{cfg: cfg, dial: dialSession, logger: logger}
	switch cfg.Encoding {
	case "", "json":
		s.contentType, s.encode = "application/json", json.Marshal
	case "msgpack":
		s.contentType, s.encode = "application/x-msgpack", msgpack.Marshal
	default:
		return nil, fmt.Errorf("amqp: unsupported encoding %q", cfg.Encoding)
	}
	return s, nil
}

// Connect dials the broker, retrying with exponential backoff until ctx ends,
// and keeps the connection alive in the background.
func (s *Sink) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	if err := backoff.Retry(func() error { return s.connect() }, backoff.WithContext(b, ctx)); err != nil {
		return err
	}
	go s.watch(ctx)
	return nil
}

func (s *Sink) connect() error {
	sess, err := s.dial(s.cfg.URL)
	if err != nil {
		s.logger.Warnf("could not connect to AMQP broker: %v", err)
		return err
	}
	if err := sess.ExchangeDeclare(s.cfg.Exchange, s.cfg.ExchangeType, durable, deleteWhenUnused, internal, noWait, nil); err != nil {
		sess.Close()
		s.logger.Warnf("could not declare exchange %s: %v", s.cfg.Exchange, err)
		return err
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.logger.Infof("connected to AMQP broker, publishing to exchange %s", s.cfg.Exchange)
	return nil
}

// watch waits for the connection to drop and reconnects.
func (s *Sink) watch(ctx context.Context) {
	for {
		s.mu.RLock()
		sess := s.session
		s.mu.RUnlock()
		if sess == nil {
			return
		}

		closed := sess.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case reason, ok := <-closed:
			if !ok || reason == nil {
				// graceful close
				return
			}
			s.logger.Errorf("AMQP connection lost: %v", reason)
		}

		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 5 * time.Second
		b.MaxInterval = 5 * time.Minute
		b.MaxElapsedTime = 0
		if err := backoff.Retry(func() error { return s.connect() }, backoff.WithContext(b, ctx)); err != nil {
			return
		}
	}
}

// Publish encodes m and publishes it with the scope as routing key.
func (s *Sink) Publish(ctx context.Context, m publish.Measurement) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil {
		return ErrNotConnected
	}

	body, err := s.encode(NewMessage(m))
	if err != nil {
		return fmt.Errorf("amqp: encoding %s: %w", m.Name, err)
	}

	err = sess.PublishWithContext(ctx, s.cfg.Exchange, s.RoutingKey(m.Scope), mandatory, immediate, amqp.Publishing{
		ContentType:  s.contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    m.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publishing %s: %w", m.Name, err)
	}
	return nil
}

// RoutingKey returns the routing key used for a scope.
func (s *Sink) RoutingKey(scope publish.Scope) string {
	return s.cfg.RoutingPrefix + string(scope)
}

// Close shuts down the broker connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

// NewMessage converts a measurement to its wire form.
func NewMessage(m publish.Measurement) Message {
	return Message{
		Name:      m.Name,
		Value:     m.Value,
		Timestamp: m.Timestamp.UnixNano(),
		Meta: map[string]string{
			"units":   m.Unit,
			"sensor":  m.Sensor,
			"scope":   string(m.Scope),
			"missing": MissingValue,
		},
	}
}
