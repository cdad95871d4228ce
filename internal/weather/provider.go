package weather

import (
	"context"
)

// Source abstracts the remote weather API as seen by one authenticated session.
type Source interface {
	GetWeatherByCity(ctx context.Context, city string) (CurrentWeather, error)
	GetForecast(ctx context.Context, city string) (Forecast, error)
	GetWeatherAndForecast(ctx context.Context, city string) (CurrentWeather, Forecast, error)
	GetWeatherByCoordinates(ctx context.Context, lat, lon float64) (CurrentWeather, error)
	GetWeatherHistory(ctx context.Context) ([]HistoryItem, error)
}

// RecentStore is the contract the recent-search store must satisfy.
// owner identifies the browser session the list belongs to.
type RecentStore interface {
	Add(owner, city, country string) RecentSearch
	List(owner string) []RecentSearch
	Remove(owner, id string) bool
	Clear(owner string)
	// Move hands from's list to to, replacing anything to held.
	Move(from, to string)
}
