package weather

import (
	"strings"

	"github.com/i474232898/weather-dashboard/internal/apperr"
)

// Unit is the temperature unit results are rendered in. Aggregation always
// runs on Celsius samples; conversion happens on the way out.
type Unit string

const (
	Celsius    Unit = "celsius"
	Fahrenheit Unit = "fahrenheit"
)

// ParseUnit accepts the unit names used by the dashboard and by OpenWeather
// ("metric"/"imperial"). The empty string means Celsius.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "c", "celsius", "metric":
		return Celsius, nil
	case "f", "fahrenheit", "imperial":
		return Fahrenheit, nil
	default:
		return "", apperr.Validation("unknown temperature unit %q", s)
	}
}

// Convert converts a Celsius temperature into u.
func (u Unit) Convert(celsius float64) float64 {
	if u == Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}

func (t Temperature) in(u Unit) Temperature {
	return Temperature{
		Temp:      u.Convert(t.Temp),
		FeelsLike: u.Convert(t.FeelsLike),
		Min:       u.Convert(t.Min),
		Max:       u.Convert(t.Max),
	}
}

// In returns a copy of the dashboard with every temperature expressed in u.
func (d Dashboard) In(u Unit) Dashboard {
	out := d
	out.Unit = u
	out.Current.Main = d.Current.Main.in(u)
	out.Forecast = make([]DayForecast, len(d.Forecast))
	for i, day := range d.Forecast {
		day.Temp = DayTemperature{
			Day: u.Convert(day.Temp.Day),
			Min: u.Convert(day.Temp.Min),
			Max: u.Convert(day.Temp.Max),
		}
		out.Forecast[i] = day
	}
	return out
}

// In returns a copy of the observation with temperatures expressed in u.
func (c CurrentWeather) In(u Unit) CurrentWeather {
	c.Main = c.Main.in(u)
	return c
}
