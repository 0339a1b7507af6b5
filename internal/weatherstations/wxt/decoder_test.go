package wxt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compositeFrame = "0R0,Dm=045D,Sm=1.2M,Ta=20.5C,Ua=65.0P,Pa=1013.0H,Rc=0.00M,Th=20.0C,Vh=21.0N"

func frame(s string) RawFrame {
	return RawFrame{Bytes: []byte(s), Captured: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestDecodeFrames(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantType FrameType
		want     map[string]float64
	}{
		{
			name:     "composite",
			line:     compositeFrame,
			wantType: FrameComposite,
			want:     map[string]float64{"Dm": 45, "Sm": 1.2, "Ta": 20.5, "Ua": 65.0, "Pa": 1013.0, "Rc": 0.0, "Th": 20.0, "Vh": 21.0, "Jo": 1},
		},
		{
			name:     "composite with hail and appended voltages",
			line:     "0R0,Dm=270D,Sm=3.4M,Ta=-5.2C,Ua=91.3P,Pa=987.4H,Rc=1.25M,Hc=0.3M,Th=-4.8C,Vh=11.8W,Vs=12.1V,Vr=3.498V",
			wantType: FrameComposite,
			want:     map[string]float64{"Dm": 270, "Sm": 3.4, "Ta": -5.2, "Ua": 91.3, "Pa": 987.4, "Rc": 1.25, "Hc": 0.3, "Th": -4.8, "Vh": 11.8, "Jo": 3, "Vs": 12.1, "Vr": 3.498},
		},
		{
			name:     "composite without heater state character",
			line:     "0R0,Dm=045D,Sm=1.2M,Ta=20.5C,Ua=65.0P,Pa=1013.0H,Rc=0.00M,Th=20.0C,Vh=21.0",
			wantType: FrameComposite,
			want:     map[string]float64{"Dm": 45, "Sm": 1.2, "Ta": 20.5, "Ua": 65.0, "Pa": 1013.0, "Rc": 0.0, "Th": 20.0, "Vh": 21.0, "Jo": 0},
		},
		{
			name:     "wind extremes",
			line:     "0R1,Dn=236D,Dm=283D,Dx=031D,Sn=0.0M,Sm=1.0M,Sx=2.2M",
			wantType: FrameDirectionSpeedExtremes,
			want:     map[string]float64{"Dn": 236, "Dm": 283, "Dx": 31, "Sn": 0.0, "Sm": 1.0, "Sx": 2.2},
		},
		{
			name:     "environmental",
			line:     "0R2,Ta=23.6C,Ua=14.2P,Pa=1026.6H",
			wantType: FrameEnvironmental,
			want:     map[string]float64{"Ta": 23.6, "Ua": 14.2, "Pa": 1026.6},
		},
		{
			name:     "environmental in imperial units",
			line:     "0R2,Ta=74.5F,Ua=14.2P,Pa=30.31I",
			wantType: FrameEnvironmental,
			want:     map[string]float64{"Ta": 74.5, "Ua": 14.2, "Pa": 30.31},
		},
		{
			name:     "precipitation",
			line:     "0R3,Rc=0.00M,Rd=0s,Ri=0.0M,Hc=0.0M,Hd=0s,Hi=0.0M",
			wantType: FramePrecipitation,
			want:     map[string]float64{"Rc": 0, "Rd": 0, "Ri": 0, "Hc": 0, "Hd": 0, "Hi": 0},
		},
		{
			name:     "precipitation with peaks",
			line:     "0R3,Rc=2.35M,Rd=120s,Ri=4.1M,Hc=0.0M,Hd=0s,Hi=0.0M,Rp=12.7M,Hp=0.0M",
			wantType: FramePrecipitation,
			want:     map[string]float64{"Rc": 2.35, "Rd": 120, "Ri": 4.1, "Hc": 0, "Hd": 0, "Hi": 0, "Rp": 12.7, "Hp": 0},
		},
		{
			name:     "heating voltage",
			line:     "0R5,Th=25.9C,Vh=12.0N,Vs=15.2V,Vr=3.475V",
			wantType: FrameHeatingVoltage,
			want:     map[string]float64{"Th": 25.9, "Vh": 12.0, "Jo": 1, "Vs": 15.2, "Vr": 3.475},
		},
		{
			name:     "control characters are ignored",
			line:     "\x00\x0e0R2,Ta=23.6C,Ua=14.2P,Pa=1026.6H\r\n",
			wantType: FrameEnvironmental,
			want:     map[string]float64{"Ta": 23.6, "Ua": 14.2, "Pa": 1026.6},
		},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame(tt.line)
			s := d.Decode(f)
			require.NotNil(t, s)
			assert.Equal(t, tt.wantType, s.Type)
			assert.Equal(t, tt.want, s.Values)
			assert.Equal(t, f.Captured, s.Captured)
		})
	}
}

func TestDecodeHeaterSuffixOnlyChangesStatus(t *testing.T) {
	d := NewDecoder()
	base := d.Decode(frame(compositeFrame))
	require.NotNil(t, base)

	codes := map[string]float64{"#": 0, "N": 1, "V": 2, "W": 3, "F": 4}
	for suffix, want := range codes {
		t.Run(suffix, func(t *testing.T) {
			line := compositeFrame[:len(compositeFrame)-1] + suffix
			s := d.Decode(frame(line))
			require.NotNil(t, s)
			assert.Equal(t, want, s.Values[HeaterStatusCode])

			for code, v := range base.Values {
				if code == HeaterStatusCode {
					continue
				}
				assert.Equal(t, v, s.Values[code], code)
			}
			assert.Len(t, s.Values, len(base.Values))
		})
	}
}

func TestDecodeNoSample(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"short", "0R"},
		{"unknown prefix", "0R9X"},
		{"alternate heating prefix not enabled", "0R9,Th=25.9C,Vh=12.0N,Vs=15.2V,Vr=3.475V"},
		{"missing required field", "0R2,Ta=23.6C,Pa=1026.6H"},
		{"fields out of order", "0R2,Ua=14.2P,Ta=23.6C,Pa=1026.6H"},
		{"garbled value", "0R2,Ta=2x.6C,Ua=14.2P,Pa=1026.6H"},
		{"trailing garbage", "0R2,Ta=23.6C,Ua=14.2P,Pa=1026.6H,Zz"},
		{"not a data message", "0XU,A=0,M=P,T=1"},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, d.Decode(frame(tt.line)))
		})
	}
}

func TestDecodeAltHeatingPrefix(t *testing.T) {
	d := NewDecoder(WithAltHeatingPrefix())
	s := d.Decode(frame("0R9,Th=25.9C,Vh=12.0F,Vs=15.2V,Vr=3.475V"))
	require.NotNil(t, s)
	assert.Equal(t, FrameHeatingVoltageAlt, s.Type)
	assert.Equal(t, float64(HeaterHalfBelow), s.Values[HeaterStatusCode])

	assert.Nil(t, d.Decode(frame("0R9X")))
	assert.Contains(t, d.Prefixes(), PrefixHeatingAlt)
	assert.NotContains(t, NewDecoder().Prefixes(), PrefixHeatingAlt)
}

func TestDecodeIsIdempotent(t *testing.T) {
	d := NewDecoder()
	f := frame("0R0,Dm=270D,Sm=3.4M,Ta=-5.2C,Ua=91.3P,Pa=987.4H,Rc=1.25M,Hc=0.3M,Th=-4.8C,Vh=11.8W,Vs=12.1V,Vr=3.498V")

	first := d.Decode(f)
	second := d.Decode(f)
	require.NotNil(t, first)
	assert.Equal(t, first, second)

	// mutating one result must not leak into the next decode
	first.Values["Dm"] = 0
	assert.Equal(t, float64(270), d.Decode(f).Values["Dm"])
}

func TestHeaterStatus(t *testing.T) {
	tests := map[string]int{
		"#":  HeaterOff,
		"N":  HeaterAbove,
		"V":  HeaterHalfHigh,
		"W":  HeaterFullLow,
		"F":  HeaterHalfBelow,
		"":   HeaterOff,
		"Q":  HeaterOff,
		"NN": HeaterOff,
	}
	for suffix, want := range tests {
		assert.Equal(t, want, HeaterStatus(suffix), "suffix %q", suffix)
	}
}

func TestRegistryCoversFormats(t *testing.T) {
	for _, f := range formats {
		for _, ff := range f.fields {
			_, ok := LookupField(ff.code)
			assert.True(t, ok, "%s references %s", f.prefix, ff.code)
		}
		assert.Len(t, f.patterns, 2)
	}

	fs, ok := LookupField("Dm")
	require.True(t, ok)
	assert.Equal(t, KindInteger, fs.Kind)
	assert.Equal(t, "degrees", fs.Unit)

	all := Fields()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Code, all[i].Code)
	}
}
