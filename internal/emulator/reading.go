// Package emulator answers WXT ASCII polling queries over TCP with synthetic
// but plausible readings, so the poller can run without hardware.
package emulator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/chrissnell/wxtpoller/internal/weatherstations/wxt"
)

// Reading is one synthetic set of transmitter values.
type Reading struct {
	WindDirMin, WindDirAvg, WindDirMax    int
	WindSpeedMin, WindSpeedAvg, WindSpeed float64
	AirTemp, Humidity, Pressure           float64
	RainAccum, RainIntensity              float64
	RainDuration                          int
	HailAccum, HailIntensity              float64
	HailDuration                          int
	HeaterTemp, HeaterVolt                float64
	HeaterState                           byte
	SupplyVolt, RefVolt                   float64
}

// Generate produces a reading that follows the season and the time of day.
func Generate(now time.Time, rng *rand.Rand) Reading {
	hour := float64(now.Hour())
	dayOfYear := float64(now.YearDay())

	seasonal := 12.0 + 10.0*math.Sin(2*math.Pi*(dayOfYear-81)/365)
	temp := seasonal + 7.0*math.Sin(2*math.Pi*(hour-9)/24) + rng.Float64()*1.0 - 0.5

	humidity := math.Max(5, math.Min(100, 65-(temp-12)*1.5+rng.Float64()*6-3))

	avgSpeed := 1.5 + rng.Float64()*4 + 1.0*math.Sin(2*math.Pi*hour/24)
	avgDir := rng.Intn(360)
	spread := 10 + rng.Intn(40)

	r := Reading{
		WindDirMin:   (avgDir - spread + 360) % 360,
		WindDirAvg:   avgDir,
		WindDirMax:   (avgDir + spread) % 360,
		WindSpeedMin: math.Max(0, avgSpeed-1-rng.Float64()),
		WindSpeedAvg: avgSpeed,
		WindSpeed:    avgSpeed + 1 + rng.Float64()*2,
		AirTemp:      temp,
		Humidity:     humidity,
		Pressure:     1013.2 + rng.Float64()*20 - 10,
		HeaterTemp:   temp + 2 + rng.Float64(),
		HeaterState:  '#',
		SupplyVolt:   11.8 + rng.Float64()*0.6,
		RefVolt:      3.49 + rng.Float64()*0.02,
	}

	// Occasional light rain.
	if rng.Float64() < 0.05 {
		r.RainIntensity = rng.Float64() * 4
		r.RainDuration = 10 + rng.Intn(50)
		r.RainAccum = r.RainIntensity * float64(r.RainDuration) / 3600
	}
	if temp < 4 {
		r.HeaterState = 'N'
		r.HeaterVolt = r.SupplyVolt
	}
	return r
}

// Frame renders the reply to query. Composite 0R produces one line per
// message group. ok is false for queries the emulator does not answer.
func (r Reading) Frame(query string) (lines []string, ok bool) {
	switch query {
	case wxt.PrefixComposite:
		return []string{r.composite()}, true
	case wxt.PrefixWind:
		return []string{r.wind()}, true
	case wxt.PrefixEnvironment:
		return []string{r.env()}, true
	case wxt.PrefixPrecip:
		return []string{r.precip()}, true
	case wxt.PrefixHeating, wxt.PrefixHeatingAlt:
		return []string{r.heating(query)}, true
	case "0R":
		return []string{r.wind(), r.env(), r.precip(), r.heating(wxt.PrefixHeating)}, true
	}
	return nil, false
}

func (r Reading) composite() string {
	return join(wxt.PrefixComposite,
		fmt.Sprintf("Dm=%dD", r.WindDirAvg),
		fmt.Sprintf("Sm=%.1fM", r.WindSpeedAvg),
		fmt.Sprintf("Ta=%.1fC", r.AirTemp),
		fmt.Sprintf("Ua=%.1fP", r.Humidity),
		fmt.Sprintf("Pa=%.1fH", r.Pressure),
		fmt.Sprintf("Rc=%.2fM", r.RainAccum),
		fmt.Sprintf("Th=%.1fC", r.HeaterTemp),
		fmt.Sprintf("Vh=%.1f%c", r.HeaterVolt, r.HeaterState),
	)
}

func (r Reading) wind() string {
	return join(wxt.PrefixWind,
		fmt.Sprintf("Dn=%03dD", r.WindDirMin),
		fmt.Sprintf("Dm=%03dD", r.WindDirAvg),
		fmt.Sprintf("Dx=%03dD", r.WindDirMax),
		fmt.Sprintf("Sn=%.1fM", r.WindSpeedMin),
		fmt.Sprintf("Sm=%.1fM", r.WindSpeedAvg),
		fmt.Sprintf("Sx=%.1fM", r.WindSpeed),
	)
}

func (r Reading) env() string {
	return join(wxt.PrefixEnvironment,
		fmt.Sprintf("Ta=%.1fC", r.AirTemp),
		fmt.Sprintf("Ua=%.1fP", r.Humidity),
		fmt.Sprintf("Pa=%.1fH", r.Pressure),
	)
}

func (r Reading) precip() string {
	return join(wxt.PrefixPrecip,
		fmt.Sprintf("Rc=%.2fM", r.RainAccum),
		fmt.Sprintf("Rd=%ds", r.RainDuration),
		fmt.Sprintf("Ri=%.1fM", r.RainIntensity),
		fmt.Sprintf("Hc=%.1fM", r.HailAccum),
		fmt.Sprintf("Hd=%ds", r.HailDuration),
		fmt.Sprintf("Hi=%.1fM", r.HailIntensity),
	)
}

func (r Reading) heating(prefix string) string {
	return join(prefix,
		fmt.Sprintf("Th=%.1fC", r.HeaterTemp),
		fmt.Sprintf("Vh=%.1f%c", r.HeaterVolt, r.HeaterState),
		fmt.Sprintf("Vs=%.1fV", r.SupplyVolt),
		fmt.Sprintf("Vr=%.3fV", r.RefVolt),
	)
}

func join(prefix string, fields ...string) string {
	return prefix + "," + strings.Join(fields, ",")
}
