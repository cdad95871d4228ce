package weather

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/i474232898/weather-dashboard/internal/common"
)

// Category is a coarse, normalized weather condition.
type Category string

const (
	CategoryUnknown Category = "unknown"
	CategoryClear   Category = "clear"
	CategoryCloudy  Category = "cloudy"
	CategoryRain    Category = "rain"
	CategorySnow    Category = "snow"
	CategoryStorm   Category = "storm"
	CategoryMist    Category = "mist"
)

// Condition is the primary weather condition reported for a reading.
type Condition struct {
	Code        int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Category maps the short label (and description as a fallback) to a Category.
func (c Condition) Category() Category {
	text := strings.ToLower(c.Main + " " + c.Description)
	switch {
	case strings.TrimSpace(text) == "":
		return CategoryUnknown
	case common.HasAny(text, "thunder", "storm"):
		return CategoryStorm
	case common.HasAny(text, "snow", "sleet", "blizzard"):
		return CategorySnow
	case common.HasAny(text, "rain", "drizzle", "shower"):
		return CategoryRain
	case common.HasAny(text, "mist", "fog", "haze", "smoke", "dust"):
		return CategoryMist
	case common.HasAny(text, "cloud", "overcast"):
		return CategoryCloudy
	case common.HasAny(text, "clear", "sunny"):
		return CategoryClear
	default:
		return CategoryUnknown
	}
}

// Temperature groups the temperature fields of a reading, in Celsius.
type Temperature struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feelsLike"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// ForecastSample is one 3-hour forecast reading as produced by the weather backend.
type ForecastSample struct {
	Timestamp int64       `json:"dt"` // seconds since epoch, UTC
	Main      Temperature `json:"main"`
	Humidity  float64     `json:"humidity"`
	WindSpeed float64     `json:"windSpeed"`
	Condition Condition   `json:"weather"`
}

// Forecast is the raw multi-day forecast for a city.
type Forecast struct {
	City      string           `json:"city"`
	Country   string           `json:"country"`
	UTCOffset int              `json:"timezone"` // seconds east of UTC
	Samples   []ForecastSample `json:"samples"`
}

// CurrentWeather is the latest observation for a city.
type CurrentWeather struct {
	City       string      `json:"city"`
	Country    string      `json:"country"`
	Lat        float64     `json:"lat"`
	Lon        float64     `json:"lon"`
	Timestamp  int64       `json:"dt"`
	UTCOffset  int         `json:"timezone"`
	Main       Temperature `json:"main"`
	Humidity   float64     `json:"humidity"`
	Pressure   float64     `json:"pressure"`
	WindSpeed  float64     `json:"windSpeed"`
	Visibility int         `json:"visibility"`
	Sunrise    int64       `json:"sunrise"`
	Sunset     int64       `json:"sunset"`
	Condition  Condition   `json:"weather"`
	Category   Category    `json:"category"`
}

// DayTemperature holds the per-day temperature summary.
type DayTemperature struct {
	Day float64 `json:"day"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DayForecast is one aggregated forecast day. Values are fixed at construction.
type DayForecast struct {
	Date      string         `json:"date"`          // local calendar date, YYYY-MM-DD
	Timestamp int64          `json:"dateTimestamp"` // timestamp of the representative sample
	Temp      DayTemperature `json:"temp"`
	Condition Condition      `json:"weather"`
	Category  Category       `json:"category"`
	Humidity  float64        `json:"humidity"`
	WindSpeed float64        `json:"windSpeed"`
}

// Dashboard is the result of a city search.
type Dashboard struct {
	City      string         `json:"city"`
	Country   string         `json:"country"`
	UTCOffset int            `json:"timezone"`
	Unit      Unit           `json:"unit"`
	Current   CurrentWeather `json:"current"`
	Forecast  []DayForecast  `json:"forecast"`
}

// ID accepts both JSON strings and numbers; the backend has used both.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// HistoryUser identifies who made a query; only populated for admins.
type HistoryUser struct {
	ID    ID     `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HistoryItem is one server-side weather query record.
type HistoryItem struct {
	ID        ID              `json:"id"`
	City      string          `json:"city"`
	Country   string          `json:"country"`
	CreatedAt int64           `json:"createdAt"`
	Result    json.RawMessage `json:"result,omitempty"`
	User      *HistoryUser    `json:"user,omitempty"`
}

// RecentSearch is one entry of the per-session recent-search list.
type RecentSearch struct {
	ID        string `json:"id"`
	City      string `json:"city"`
	Country   string `json:"country"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

// Key returns the case-insensitive identity of the searched city.
func (r RecentSearch) Key() string {
	return strings.ToLower(strings.TrimSpace(r.City))
}
