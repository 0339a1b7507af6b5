package wxt

// Heater state codes derived from the character that trails the Vh value.
const (
	HeaterOff         = 0 // '#': no heating voltage
	HeaterAbove       = 1 // 'N': supply above the high threshold
	HeaterHalfHigh    = 2 // 'V': 50% duty, between high and mid thresholds
	HeaterFullLow     = 3 // 'W': 100% duty, between mid and low thresholds
	HeaterHalfBelow   = 4 // 'F': 50% duty, below the low threshold
	heaterUnknownCode = HeaterOff
)

// HeaterStatus maps the Vh state suffix to its code. Anything unrecognized,
// including an empty suffix, maps to HeaterOff.
func HeaterStatus(suffix string) int {
	if len(suffix) != 1 {
		return heaterUnknownCode
	}
	switch suffix[0] {
	case '#':
		return HeaterOff
	case 'N':
		return HeaterAbove
	case 'V':
		return HeaterHalfHigh
	case 'W':
		return HeaterFullLow
	case 'F':
		return HeaterHalfBelow
	}
	return heaterUnknownCode
}
