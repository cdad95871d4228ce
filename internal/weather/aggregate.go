package weather

import "time"

const (
	secondsPerDay  = 24 * 60 * 60
	secondsPerHour = 60 * 60

	// Samples whose local hour falls in [middayFrom, middayTo] stand for the whole day.
	middayFrom = 12
	middayTo   = 15
)

// dayGroup is the set of samples sharing one local calendar date.
type dayGroup struct {
	key     int64 // days since epoch, local time
	samples []ForecastSample
}

// GroupByDay buckets 3-hour forecast samples into one DayForecast per local
// calendar date. The local date of a sample is the date of its timestamp
// shifted by utcOffset seconds. Days are returned in the order their date
// first appears in samples; the result is not truncated. An empty input
// yields an empty, non-nil result.
func GroupByDay(samples []ForecastSample, utcOffset int) []DayForecast {
	groups := make([]dayGroup, 0, 6)
	index := make(map[int64]int)

	for _, s := range samples {
		key := floorDiv(s.Timestamp+int64(utcOffset), secondsPerDay)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, dayGroup{key: key})
		}
		groups[i].samples = append(groups[i].samples, s)
	}

	days := make([]DayForecast, 0, len(groups))
	for _, g := range groups {
		days = append(days, summarizeDay(g, utcOffset))
	}
	return days
}

// FirstDays returns at most n leading days. It is the caller-side truncation
// applied before rendering a "5-day" forecast.
func FirstDays(days []DayForecast, n int) []DayForecast {
	if n < 0 || len(days) <= n {
		return days
	}
	return days[:n]
}

func summarizeDay(g dayGroup, utcOffset int) DayForecast {
	rep := g.samples[representativeIndex(g.samples, utcOffset)]

	minTemp := g.samples[0].Main.Min
	maxTemp := g.samples[0].Main.Max
	for _, s := range g.samples[1:] {
		if s.Main.Min < minTemp {
			minTemp = s.Main.Min
		}
		if s.Main.Max > maxTemp {
			maxTemp = s.Main.Max
		}
	}

	return DayForecast{
		Date:      time.Unix(g.key*secondsPerDay, 0).UTC().Format(time.DateOnly),
		Timestamp: rep.Timestamp,
		Temp: DayTemperature{
			Day: rep.Main.Temp,
			Min: minTemp,
			Max: maxTemp,
		},
		Condition: rep.Condition,
		Category:  rep.Condition.Category(),
		Humidity:  rep.Humidity,
		WindSpeed: rep.WindSpeed,
	}
}

// representativeIndex picks the first sample in the midday window, falling
// back to the middle sample of the day.
func representativeIndex(samples []ForecastSample, utcOffset int) int {
	for i, s := range samples {
		h := localHour(s.Timestamp, utcOffset)
		if h >= middayFrom && h <= middayTo {
			return i
		}
	}
	return len(samples) / 2
}

func localHour(ts int64, utcOffset int) int {
	secs := floorMod(ts+int64(utcOffset), secondsPerDay)
	return int(secs / secondsPerHour)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
