package weather

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/common"
)

// DefaultForecastDays is how many days a dashboard forecast shows.
const DefaultForecastDays = 5

// Service turns remote weather data into dashboard views and keeps the
// per-session recent-search list.
type Service struct {
	recent RecentStore
	days   int
	log    zerolog.Logger
}

// NewService creates a new Service. days <= 0 falls back to DefaultForecastDays.
func NewService(recent RecentStore, days int, log zerolog.Logger) *Service {
	if days <= 0 {
		days = DefaultForecastDays
	}
	return &Service{
		recent: recent,
		days:   days,
		log:    log.With().Str("component", "weather").Logger(),
	}
}

// Search fetches current conditions and the forecast for city, aggregates the
// forecast per day and records the search for owner. Errors from src are
// returned unchanged; a NotFound is never retried.
func (s *Service) Search(ctx context.Context, src Source, owner, city string) (Dashboard, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Dashboard{}, apperr.Validation("Please enter a city name")
	}

	current, forecast, err := src.GetWeatherAndForecast(ctx, city)
	if err != nil {
		s.log.Debug().Err(err).Str("city", city).Msg("search failed")
		return Dashboard{}, err
	}

	days := FirstDays(GroupByDay(forecast.Samples, forecast.UTCOffset), s.days)
	current.Category = current.Condition.Category()

	name, country := current.City, current.Country
	if name == "" {
		name, country = forecast.City, forecast.Country
	}
	if name == "" {
		name = city
	}
	s.recent.Add(owner, name, country)

	s.log.Debug().
		Str("city", name).
		Int("samples", len(forecast.Samples)).
		Int("days", len(days)).
		Msg("forecast aggregated")

	return Dashboard{
		City:      name,
		Country:   country,
		UTCOffset: forecast.UTCOffset,
		Unit:      Celsius,
		Current:   current,
		Forecast:  days,
	}, nil
}

// ByCoordinates fetches current conditions for a position.
func (s *Service) ByCoordinates(ctx context.Context, src Source, lat, lon float64) (CurrentWeather, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return CurrentWeather{}, apperr.Validation("latitude must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return CurrentWeather{}, apperr.Validation("longitude must be between -180 and 180")
	}
	current, err := src.GetWeatherByCoordinates(ctx, lat, lon)
	if err != nil {
		return CurrentWeather{}, err
	}
	current.Category = current.Condition.Category()
	return current, nil
}

// History returns the server-side query history, filtered by q on city,
// country and, for admin listings, the querying user. Matching is
// case-insensitive; an empty q returns everything.
func (s *Service) History(ctx context.Context, src Source, q string) ([]HistoryItem, error) {
	items, err := src.GetWeatherHistory(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]HistoryItem, 0, len(items))
	for _, item := range items {
		fields := []string{item.City, item.Country}
		if item.User != nil {
			fields = append(fields, item.User.Email, item.User.Name)
		}
		if common.ContainsFold(q, fields...) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Recent returns the recent searches of owner, newest first.
func (s *Service) Recent(owner string) []RecentSearch {
	return s.recent.List(owner)
}

// ForgetRecent removes one recent search. It reports whether it existed.
func (s *Service) ForgetRecent(owner, id string) bool {
	return s.recent.Remove(owner, id)
}

// ClearRecent drops the whole recent-search list of owner.
func (s *Service) ClearRecent(owner string) {
	s.recent.Clear(owner)
}
