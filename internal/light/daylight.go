package light

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Daylight describes the sun at the configured location
type Daylight struct {
	SunAltitude float64 `json:"sun_altitude"`
	IsDaytime   bool    `json:"is_daytime"`
	Sunrise     string  `json:"sunrise,omitempty"`
	Sunset      string  `json:"sunset,omitempty"`
}

// daylightAt computes sun altitude in degrees and the day's sunrise and sunset
func daylightAt(lat, lon float64, t time.Time) Daylight {
	position := suncalc.GetPosition(t, lat, lon)
	altitude := position.Altitude * (180.0 / math.Pi)

	d := Daylight{
		SunAltitude: math.Round(altitude*10) / 10,
		IsDaytime:   altitude > 0,
	}

	// Polar day and night have no sunrise or sunset
	times := suncalc.GetTimes(t, lat, lon)
	if rise, ok := times[suncalc.Sunrise]; ok && !rise.Value.IsZero() {
		d.Sunrise = rise.Value.In(t.Location()).Format(time.RFC3339)
	}
	if set, ok := times[suncalc.Sunset]; ok && !set.Value.IsZero() {
		d.Sunset = set.Value.In(t.Location()).Format(time.RFC3339)
	}

	return d
}
