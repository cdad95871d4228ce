package weather

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/apperr"
)

type fakeSource struct {
	current  CurrentWeather
	forecast Forecast
	history  []HistoryItem
	err      error
	calls    int
}

func (f *fakeSource) GetWeatherByCity(_ context.Context, _ string) (CurrentWeather, error) {
	f.calls++
	return f.current, f.err
}

func (f *fakeSource) GetForecast(_ context.Context, _ string) (Forecast, error) {
	f.calls++
	return f.forecast, f.err
}

func (f *fakeSource) GetWeatherAndForecast(_ context.Context, _ string) (CurrentWeather, Forecast, error) {
	f.calls++
	if f.err != nil {
		return CurrentWeather{}, Forecast{}, f.err
	}
	return f.current, f.forecast, nil
}

func (f *fakeSource) GetWeatherByCoordinates(_ context.Context, _, _ float64) (CurrentWeather, error) {
	f.calls++
	return f.current, f.err
}

func (f *fakeSource) GetWeatherHistory(_ context.Context) ([]HistoryItem, error) {
	f.calls++
	return f.history, f.err
}

type fakeRecent struct {
	added []string
}

func (f *fakeRecent) Add(_, city, country string) RecentSearch {
	f.added = append(f.added, city+","+country)
	return RecentSearch{City: city, Country: country}
}
func (f *fakeRecent) List(_ string) []RecentSearch { return nil }
func (f *fakeRecent) Remove(_, _ string) bool      { return false }
func (f *fakeRecent) Clear(_ string)               {}
func (f *fakeRecent) Move(_, _ string)             {}

func sixDayForecast() Forecast {
	var samples []ForecastSample
	for d := 0; d < 6; d++ {
		samples = append(samples, samplesAtHours(day0+int64(d)*86400, 0, 6, 12, 18)...)
	}
	return Forecast{City: "London", Country: "GB", Samples: samples}
}

func TestSearchAggregatesAndTruncates(t *testing.T) {
	src := &fakeSource{
		current:  CurrentWeather{City: "London", Country: "GB", Condition: Condition{Main: "Clouds"}},
		forecast: sixDayForecast(),
	}
	recent := &fakeRecent{}
	svc := NewService(recent, 5, zerolog.Nop())

	dash, err := svc.Search(context.Background(), src, "sid", "  london ")

	require.NoError(t, err)
	assert.Len(t, dash.Forecast, 5)
	assert.Equal(t, "2024-03-10", dash.Forecast[0].Date)
	assert.Equal(t, CategoryCloudy, dash.Current.Category)
	assert.Equal(t, Celsius, dash.Unit)
	assert.Equal(t, []string{"London,GB"}, recent.added)
}

func TestSearchRejectsEmptyCity(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(&fakeRecent{}, 5, zerolog.Nop())

	_, err := svc.Search(context.Background(), src, "sid", "   ")

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, src.calls)
}

func TestSearchSurfacesNotFoundVerbatim(t *testing.T) {
	src := &fakeSource{err: apperr.CityNotFound("Nowhere12345")}
	recent := &fakeRecent{}
	svc := NewService(recent, 5, zerolog.Nop())

	_, err := svc.Search(context.Background(), src, "sid", "Nowhere12345")

	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "City 'Nowhere12345' not found. Please check the spelling and try again.", err.Error())
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, recent.added)
}

func TestByCoordinatesValidatesRange(t *testing.T) {
	src := &fakeSource{current: CurrentWeather{City: "Quito"}}
	svc := NewService(&fakeRecent{}, 5, zerolog.Nop())

	_, err := svc.ByCoordinates(context.Background(), src, 91, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.ByCoordinates(context.Background(), src, 0, -181)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cur, err := svc.ByCoordinates(context.Background(), src, -0.2, -78.5)
	require.NoError(t, err)
	assert.Equal(t, "Quito", cur.City)
}

func TestHistoryFilter(t *testing.T) {
	src := &fakeSource{history: []HistoryItem{
		{ID: "1", City: "London", Country: "GB"},
		{ID: "2", City: "Paris", Country: "FR"},
		{ID: "3", City: "Londrina", Country: "BR"},
		{ID: "4", City: "Oslo", Country: "NO", User: &HistoryUser{ID: "9", Email: "ann@example.com", Name: "Ann"}},
	}}
	svc := NewService(&fakeRecent{}, 5, zerolog.Nop())

	items, err := svc.History(context.Background(), src, "LOND")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.History(context.Background(), src, "fr")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ID("2"), items[0].ID)

	items, err = svc.History(context.Background(), src, "ann@")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ID("4"), items[0].ID)

	all, err := svc.History(context.Background(), src, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	src.err = errors.New("down")
	_, err = svc.History(context.Background(), src, "")
	assert.Error(t, err)
}

func TestUnitConversion(t *testing.T) {
	u, err := ParseUnit("imperial")
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, u)
	assert.InDelta(t, 212.0, u.Convert(100), 1e-9)

	_, err = ParseUnit("kelvin")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	dash := Dashboard{
		Current:  CurrentWeather{Main: Temperature{Temp: 0, FeelsLike: 10}},
		Forecast: []DayForecast{{Temp: DayTemperature{Day: 20, Min: -40, Max: 30}}},
	}
	f := dash.In(Fahrenheit)
	assert.Equal(t, 32.0, f.Current.Main.Temp)
	assert.Equal(t, 50.0, f.Current.Main.FeelsLike)
	assert.Equal(t, DayTemperature{Day: 68, Min: -40, Max: 86}, f.Forecast[0].Temp)
	assert.Equal(t, 20.0, dash.Forecast[0].Temp.Day, "conversion must not alias the source")
}

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var item HistoryItem
	require.NoError(t, item.ID.UnmarshalJSON([]byte(`42`)))
	assert.Equal(t, ID("42"), item.ID)
	require.NoError(t, item.ID.UnmarshalJSON([]byte(`"abc"`)))
	assert.Equal(t, ID("abc"), item.ID)
}
