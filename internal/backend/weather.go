package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// The backend relays OpenWeather payloads. Only the fields the dashboard
// renders are decoded.

type owCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type owWind struct {
	Speed float64 `json:"speed"`
}

type owCurrent struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather    []owCondition `json:"weather"`
	Main       owMain        `json:"main"`
	Visibility int           `json:"visibility"`
	Wind       owWind        `json:"wind"`
	Dt         int64         `json:"dt"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Timezone int    `json:"timezone"`
	Name     string `json:"name"`
}

type owForecast struct {
	List []struct {
		Dt      int64         `json:"dt"`
		Main    owMain        `json:"main"`
		Weather []owCondition `json:"weather"`
		Wind    owWind        `json:"wind"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

func firstCondition(items []owCondition) weather.Condition {
	if len(items) == 0 {
		return weather.Condition{}
	}
	c := items[0]
	return weather.Condition{Code: c.ID, Main: c.Main, Description: c.Description, Icon: c.Icon}
}

func temperature(m owMain) weather.Temperature {
	return weather.Temperature{Temp: m.Temp, FeelsLike: m.FeelsLike, Min: m.TempMin, Max: m.TempMax}
}

func (p owCurrent) toCurrent() weather.CurrentWeather {
	return weather.CurrentWeather{
		City:       p.Name,
		Country:    p.Sys.Country,
		Lat:        p.Coord.Lat,
		Lon:        p.Coord.Lon,
		Timestamp:  p.Dt,
		UTCOffset:  p.Timezone,
		Main:       temperature(p.Main),
		Humidity:   p.Main.Humidity,
		Pressure:   p.Main.Pressure,
		WindSpeed:  p.Wind.Speed,
		Visibility: p.Visibility,
		Sunrise:    p.Sys.Sunrise,
		Sunset:     p.Sys.Sunset,
		Condition:  firstCondition(p.Weather),
	}
}

func (p owForecast) toForecast() weather.Forecast {
	samples := make([]weather.ForecastSample, 0, len(p.List))
	for _, item := range p.List {
		samples = append(samples, weather.ForecastSample{
			Timestamp: item.Dt,
			Main:      temperature(item.Main),
			Humidity:  item.Main.Humidity,
			WindSpeed: item.Wind.Speed,
			Condition: firstCondition(item.Weather),
		})
	}
	return weather.Forecast{
		City:      p.City.Name,
		Country:   p.City.Country,
		UTCOffset: p.City.Timezone,
		Samples:   samples,
	}
}

// GetWeatherByCity returns current conditions for city. A 404 becomes the
// user-facing "city not found" error.
func (c *Client) GetWeatherByCity(ctx context.Context, city string) (weather.CurrentWeather, error) {
	var payload owCurrent
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/weather/city/" + url.PathEscape(city),
		endpoint: "/weather/city",
		notFound: func() error { return apperr.CityNotFound(city) },
		fallback: "Failed to fetch weather data",
	}, &payload)
	if err != nil {
		return weather.CurrentWeather{}, err
	}
	return payload.toCurrent(), nil
}

// GetForecast returns the raw 3-hourly forecast for city.
func (c *Client) GetForecast(ctx context.Context, city string) (weather.Forecast, error) {
	var payload owForecast
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/weather/forecast/" + url.PathEscape(city),
		endpoint: "/weather/forecast",
		notFound: func() error { return apperr.CityNotFound(city) },
		fallback: "Failed to fetch forecast data",
	}, &payload)
	if err != nil {
		return weather.Forecast{}, err
	}
	return payload.toForecast(), nil
}

// GetWeatherAndForecast fetches current conditions and the forecast
// concurrently and waits for both. The first error wins.
func (c *Client) GetWeatherAndForecast(ctx context.Context, city string) (weather.CurrentWeather, weather.Forecast, error) {
	var (
		current  weather.CurrentWeather
		forecast weather.Forecast
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = c.GetWeatherByCity(gctx, city)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = c.GetForecast(gctx, city)
		return err
	})
	if err := g.Wait(); err != nil {
		return weather.CurrentWeather{}, weather.Forecast{}, err
	}
	return current, forecast, nil
}

// GetWeatherByCoordinates returns current conditions at a position.
func (c *Client) GetWeatherByCoordinates(ctx context.Context, lat, lon float64) (weather.CurrentWeather, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var payload owCurrent
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/weather/coordinates",
		endpoint: "/weather/coordinates",
		query:    q,
		fallback: "Failed to fetch weather data",
	}, &payload)
	if err != nil {
		return weather.CurrentWeather{}, err
	}
	return payload.toCurrent(), nil
}

// GetWeatherHistory returns the server-side query history. For an admin it
// holds every user's queries.
func (c *Client) GetWeatherHistory(ctx context.Context) ([]weather.HistoryItem, error) {
	var items []weather.HistoryItem
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/weather/history",
		endpoint: "/weather/history",
		fallback: "Failed to fetch weather history",
	}, &items)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []weather.HistoryItem{}
	}
	return items, nil
}

var _ weather.Source = (*Client)(nil)
