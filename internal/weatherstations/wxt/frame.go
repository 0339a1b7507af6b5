package wxt

import (
	"regexp"
	"strings"
	"time"
)

// FrameType identifies a WXT data message by its three character prefix.
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameComposite
	FrameDirectionSpeedExtremes
	FrameEnvironmental
	FramePrecipitation
	FrameHeatingVoltage
	FrameHeatingVoltageAlt
	// FrameGroup is a sample merged from every line of a composite 0R reply.
	FrameGroup
)

func (t FrameType) String() string {
	switch t {
	case FrameComposite:
		return "composite"
	case FrameDirectionSpeedExtremes:
		return "wind"
	case FrameEnvironmental:
		return "environmental"
	case FramePrecipitation:
		return "precipitation"
	case FrameHeatingVoltage:
		return "heating"
	case FrameHeatingVoltageAlt:
		return "heating-alt"
	case FrameGroup:
		return "group"
	}
	return "unknown"
}

// Frame prefixes as sent in queries and echoed at the start of replies.
const (
	PrefixComposite    = "0R0"
	PrefixWind         = "0R1"
	PrefixEnvironment  = "0R2"
	PrefixPrecip       = "0R3"
	PrefixHeating      = "0R5"
	PrefixHeatingAlt   = "0R9"
	prefixLen          = 3
	maxControlByte     = 14
	valuePattern       = `[-+]?\d+(?:\.\d+)?`
	anyUnitCharPattern = `[A-Za-z#]?`
)

// RawFrame is one line received from the transmitter.
type RawFrame struct {
	Bytes    []byte
	Captured time.Time
}

// Text returns the frame with control characters removed.
func (f RawFrame) Text() string {
	return string(StripControl(f.Bytes))
}

// StripControl drops every byte with a value of 14 or below (CR, LF, NUL and
// friends). The input is left untouched.
func StripControl(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c > maxControlByte {
			out = append(out, c)
		}
	}
	return out
}

type formatField struct {
	code     string
	optional bool
}

// format is one entry of the decoding table: a prefix, its ordered fields,
// and the patterns tried in order when matching a frame.
type format struct {
	frameType FrameType
	prefix    string
	fields    []formatField
	patterns  []*regexp.Regexp
}

func required(codes ...string) []formatField {
	out := make([]formatField, len(codes))
	for i, c := range codes {
		out[i] = formatField{code: c}
	}
	return out
}

func optional(codes ...string) []formatField {
	out := required(codes...)
	for i := range out {
		out[i].optional = true
	}
	return out
}

func concat(groups ...[]formatField) []formatField {
	var out []formatField
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var formats = []*format{
	newFormat(FrameComposite, PrefixComposite, concat(
		required("Dm", "Sm", "Ta", "Ua", "Pa", "Rc"),
		optional("Hc"),
		required("Th", "Vh"),
		optional("Vs", "Vr"),
	)),
	newFormat(FrameDirectionSpeedExtremes, PrefixWind, required("Dn", "Dm", "Dx", "Sn", "Sm", "Sx")),
	newFormat(FrameEnvironmental, PrefixEnvironment, required("Ta", "Ua", "Pa")),
	newFormat(FramePrecipitation, PrefixPrecip, concat(
		required("Rc", "Rd", "Ri", "Hc", "Hd", "Hi"),
		optional("Rp", "Hp"),
	)),
	newFormat(FrameHeatingVoltage, PrefixHeating, required("Th", "Vh", "Vs", "Vr")),
	newFormat(FrameHeatingVoltageAlt, PrefixHeatingAlt, required("Th", "Vh", "Vs", "Vr")),
}

func newFormat(t FrameType, prefix string, fields []formatField) *format {
	f := &format{frameType: t, prefix: prefix, fields: fields}
	f.patterns = []*regexp.Regexp{
		f.compile(primaryUnit),
		f.compile(anyUnit),
	}
	return f
}

func primaryUnit(fs FieldSpec) string {
	if fs.Code == "Vh" {
		// the state character is dropped by some configurations
		return "[" + regexp.QuoteMeta(fs.UnitChars) + "]?"
	}
	return "[" + regexp.QuoteMeta(fs.UnitChars) + "]"
}

func anyUnit(FieldSpec) string {
	return anyUnitCharPattern
}

// compile builds an anchored pattern with a named value group and a named
// unit group (<code>_u) per field.
func (f *format) compile(unit func(FieldSpec) string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	sb.WriteString(regexp.QuoteMeta(f.prefix))
	for _, ff := range f.fields {
		fs, ok := LookupField(ff.code)
		if !ok {
			panic("wxt: format " + f.prefix + " references unregistered field " + ff.code)
		}
		piece := "," + ff.code + "=(?P<" + ff.code + ">" + valuePattern + ")(?P<" + ff.code + "_u>" + unit(fs) + ")"
		if ff.optional {
			piece = "(?:" + piece + ")?"
		}
		sb.WriteString(piece)
	}
	sb.WriteString(",?$")
	return regexp.MustCompile(sb.String())
}
