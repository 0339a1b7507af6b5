package wxt

import "sort"

// Kind describes how a field's value is represented on the wire and downstream.
type Kind int

const (
	// KindInteger values are whole numbers, e.g. wind direction in degrees.
	KindInteger Kind = iota
	// KindFloat values carry a fixed number of decimals.
	KindFloat
	// KindCoded values are small enumerations synthesized by the decoder.
	KindCoded
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindCoded:
		return "coded"
	}
	return "unknown"
}

// FieldSpec describes one WXT measurement field.
type FieldSpec struct {
	Code     string
	Name     string
	Unit     string
	Kind     Kind
	Decimals int
	// UnitChars lists the unit characters the transmitter emits for this
	// field in its factory (metric) configuration. For Vh these are the
	// heater state characters instead of a unit.
	UnitChars string
}

// HeaterStatusCode is the derived field holding the heater state.
const HeaterStatusCode = "Jo"

var fieldSpecs = map[string]FieldSpec{
	"Dn": {Code: "Dn", Name: "wind direction minimum", Unit: "degrees", Kind: KindInteger, UnitChars: "D"},
	"Dm": {Code: "Dm", Name: "wind direction average", Unit: "degrees", Kind: KindInteger, UnitChars: "D"},
	"Dx": {Code: "Dx", Name: "wind direction maximum", Unit: "degrees", Kind: KindInteger, UnitChars: "D"},
	"Sn": {Code: "Sn", Name: "wind speed minimum", Unit: "meters per second", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Sm": {Code: "Sm", Name: "wind speed average", Unit: "meters per second", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Sx": {Code: "Sx", Name: "wind speed maximum", Unit: "meters per second", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Ta": {Code: "Ta", Name: "air temperature", Unit: "degree Celsius", Kind: KindFloat, Decimals: 1, UnitChars: "C"},
	"Ua": {Code: "Ua", Name: "relative humidity", Unit: "percent", Kind: KindFloat, Decimals: 1, UnitChars: "P"},
	"Pa": {Code: "Pa", Name: "air pressure", Unit: "hectoPascal", Kind: KindFloat, Decimals: 1, UnitChars: "H"},
	"Rc": {Code: "Rc", Name: "rain accumulation", Unit: "millimeters", Kind: KindFloat, Decimals: 2, UnitChars: "M"},
	"Rd": {Code: "Rd", Name: "rain duration", Unit: "seconds", Kind: KindFloat, Decimals: 0, UnitChars: "s"},
	"Ri": {Code: "Ri", Name: "rain intensity", Unit: "millimeters per hour", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Rp": {Code: "Rp", Name: "rain peak intensity", Unit: "millimeters per hour", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Hc": {Code: "Hc", Name: "hail accumulation", Unit: "hits per square centimeter", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Hd": {Code: "Hd", Name: "hail duration", Unit: "seconds", Kind: KindFloat, Decimals: 0, UnitChars: "s"},
	"Hi": {Code: "Hi", Name: "hail intensity", Unit: "hits per square centimeter per hour", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Hp": {Code: "Hp", Name: "hail peak intensity", Unit: "hits per square centimeter per hour", Kind: KindFloat, Decimals: 1, UnitChars: "M"},
	"Th": {Code: "Th", Name: "heating temperature", Unit: "degree Celsius", Kind: KindFloat, Decimals: 1, UnitChars: "C"},
	"Vh": {Code: "Vh", Name: "heating voltage", Unit: "volts", Kind: KindFloat, Decimals: 1, UnitChars: "#NVWF"},
	"Vs": {Code: "Vs", Name: "supply voltage", Unit: "volts", Kind: KindFloat, Decimals: 1, UnitChars: "V"},
	"Vr": {Code: "Vr", Name: "reference voltage", Unit: "volts", Kind: KindFloat, Decimals: 3, UnitChars: "V"},

	HeaterStatusCode: {Code: HeaterStatusCode, Name: "heater status", Unit: "", Kind: KindCoded},
}

// LookupField returns the registry entry for a field code.
func LookupField(code string) (FieldSpec, bool) {
	fs, ok := fieldSpecs[code]
	return fs, ok
}

// Fields returns every registered field sorted by code.
func Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(fieldSpecs))
	for _, fs := range fieldSpecs {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
