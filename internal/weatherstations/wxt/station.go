// Package wxt speaks the ASCII polling protocol of Vaisala WXT weather transmitters.
package wxt

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// FrameObserver is notified of every validated frame before it is decoded.
type FrameObserver interface {
	ObserveFrame(name string, frame RawFrame)
}

// Station polls one WXT transmitter. Polls are serialized: the link carries
// one query/reply exchange at a time no matter how many scopes share it.
type Station struct {
	name      string
	mu        sync.Mutex
	validator *Validator
	decoder   *Decoder
	observers []FrameObserver
	logger    *zap.SugaredLogger
}

// NewStation wires a validator and decoder into a pollable station.
func NewStation(name string, validator *Validator, decoder *Decoder, logger *zap.SugaredLogger, observers ...FrameObserver) *Station {
	return &Station{
		name:      name,
		validator: validator,
		decoder:   decoder,
		observers: observers,
		logger:    logger,
	}
}

func (s *Station) StationName() string {
	return s.name
}

// QueryPredicate returns the reply check for a query. A query naming a
// single message accepts that prefix (plus 0R9 for 0R5 when the alias is
// enabled); anything else, such as the composite "0R", accepts any prefix
// the decoder knows.
func (s *Station) QueryPredicate(query string) Predicate {
	if s.decoder.Accepts(query) {
		if query == PrefixHeating && s.decoder.Accepts(PrefixHeatingAlt) {
			return HasPrefix(PrefixHeating, PrefixHeatingAlt)
		}
		return HasPrefix(query)
	}
	return HasPrefix(s.decoder.Prefixes()...)
}

// Poll runs one query/validate/decode exchange. It returns ErrNoValidFrame
// when the transmitter did not answer in time and a nil sample without error
// when the reply could not be decoded. Any other error means the link failed.
//
// A composite query such as "0R" is answered with one line per message
// group; every line is read and the decoded values are merged into a single
// FrameGroup sample.
func (s *Station) Poll(ctx context.Context, query string) (*Sample, error) {
	pred := s.QueryPredicate(query)

	s.mu.Lock()
	frames, err := s.exchange(ctx, query, pred)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, f := range frames {
		for _, o := range s.observers {
			o.ObserveFrame(s.name, f)
		}
	}

	var samples []*Sample
	for _, f := range frames {
		sample := s.decoder.Decode(f)
		if sample == nil {
			s.logger.Debugf("station [%s]: could not decode reply %q to query %s", s.name, f.Text(), query)
			continue
		}
		samples = append(samples, sample)
	}
	return merge(samples), nil
}

func (s *Station) exchange(ctx context.Context, query string, pred Predicate) ([]RawFrame, error) {
	frame, err := s.validator.PollUntilValid(ctx, query, pred)
	if err != nil {
		return nil, err
	}
	frames := []RawFrame{frame}
	if s.decoder.Accepts(query) {
		return frames, nil
	}

	rest, err := s.validator.ReadFollowing(ctx, pred, len(s.decoder.Prefixes())-1)
	if err != nil {
		return nil, err
	}
	return append(frames, rest...), nil
}

func merge(samples []*Sample) *Sample {
	switch len(samples) {
	case 0:
		return nil
	case 1:
		return samples[0]
	}
	out := &Sample{Type: FrameGroup, Values: make(map[string]float64), Captured: samples[0].Captured}
	for _, sample := range samples {
		for code, v := range sample.Values {
			out.Values[code] = v
		}
	}
	return out
}
