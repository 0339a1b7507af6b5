package wxt

import (
	"strconv"
	"time"
)

// Sample holds the fields decoded from a single frame.
type Sample struct {
	Type     FrameType
	Values   map[string]float64
	Captured time.Time
}

// Value returns the decoded value for a field code.
func (s *Sample) Value(code string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Values[code]
	return v, ok
}

// Decoder turns validated frames into samples. It holds no per-frame state.
type Decoder struct {
	byPrefix map[string]*format
	prefixes []string
}

// DecoderOption adjusts which frame prefixes a Decoder accepts.
type DecoderOption func(*Decoder)

// WithAltHeatingPrefix makes the decoder accept 0R9 replies, which some
// transmitter configurations send in place of 0R5.
func WithAltHeatingPrefix() DecoderOption {
	return func(d *Decoder) {
		d.enable(PrefixHeatingAlt)
	}
}

// NewDecoder returns a decoder for the standard WXT prefixes.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{byPrefix: make(map[string]*format)}
	for _, p := range []string{PrefixComposite, PrefixWind, PrefixEnvironment, PrefixPrecip, PrefixHeating} {
		d.enable(p)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) enable(prefix string) {
	if _, ok := d.byPrefix[prefix]; ok {
		return
	}
	for _, f := range formats {
		if f.prefix == prefix {
			d.byPrefix[prefix] = f
			d.prefixes = append(d.prefixes, prefix)
			return
		}
	}
}

// Prefixes returns the prefixes this decoder recognizes, in registration order.
func (d *Decoder) Prefixes() []string {
	out := make([]string, len(d.prefixes))
	copy(out, d.prefixes)
	return out
}

// Accepts reports whether prefix is one this decoder will decode.
func (d *Decoder) Accepts(prefix string) bool {
	_, ok := d.byPrefix[prefix]
	return ok
}

// Decode classifies the frame by prefix and extracts its fields. It returns
// nil when the prefix is unknown or no tolerated pattern matches.
func (d *Decoder) Decode(frame RawFrame) *Sample {
	text := frame.Text()
	if len(text) < prefixLen {
		return nil
	}
	f, ok := d.byPrefix[text[:prefixLen]]
	if !ok {
		return nil
	}

	for _, re := range f.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		values, ok := f.extract(re.SubexpNames(), m)
		if !ok {
			continue
		}
		return &Sample{Type: f.frameType, Values: values, Captured: frame.Captured}
	}
	return nil
}

func (f *format) extract(names, m []string) (map[string]float64, bool) {
	groups := make(map[string]string, len(names))
	for i, name := range names {
		if name != "" {
			groups[name] = m[i]
		}
	}

	values := make(map[string]float64, len(f.fields)+1)
	for _, ff := range f.fields {
		raw := groups[ff.code]
		if raw == "" {
			if ff.optional {
				continue
			}
			return nil, false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		values[ff.code] = v
		if ff.code == "Vh" {
			values[HeaterStatusCode] = float64(HeaterStatus(groups["Vh_u"]))
		}
	}
	return values, true
}
