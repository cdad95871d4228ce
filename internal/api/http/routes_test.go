package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/session"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/token"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// remoteBackend fakes the auth/weather backend. Users are keyed by password
// to keep the fixture small: "admin-pw" logs in an ADMIN, anything else a USER.
func remoteBackend(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds backend.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		role, access := "USER", "user-token"
		if creds.Password == "admin-pw" {
			role, access = "ADMIN", "admin-token"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"refresh_token": "refresh",
			"user":          map[string]any{"id": 1, "email": creds.Email, "name": "Ann", "role": role},
		})
	})
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var reg backend.Registration
		_ = json.NewDecoder(r.Body).Decode(&reg)
		writeJSON(w, http.StatusCreated, map[string]any{
			"access_token":  "user-token",
			"refresh_token": "refresh",
			"user":          map[string]any{"id": 3, "email": reg.Email, "name": reg.Name, "role": "USER"},
		})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "rotated-token", "refresh_token": "refresh"})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/weather/city/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/Locked") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not allowed"})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/Nowhere12345") {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "London",
			"sys":     map[string]any{"country": "GB"},
			"main":    map[string]any{"temp": 10, "feels_like": 8},
			"weather": []map[string]any{{"main": "Clear", "description": "clear sky"}},
		})
	})
	mux.HandleFunc("/weather/forecast/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/Locked") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not allowed"})
			return
		}
		if strings.HasSuffix(r.URL.Path, "/Nowhere12345") {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		list := make([]map[string]any, 0, 48)
		start := int64(1700006400) // 2023-11-15T00:00:00Z
		for i := int64(0); i < 48; i++ {
			list = append(list, map[string]any{
				"dt":      start + i*3*3600,
				"main":    map[string]any{"temp": 10, "temp_min": 5, "temp_max": 15, "humidity": 60},
				"wind":    map[string]any{"speed": 2},
				"weather": []map[string]any{{"main": "Clouds"}},
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"city": map[string]any{"name": "London", "country": "GB", "timezone": 0},
			"list": list,
		})
	})
	mux.HandleFunc("/weather/history", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "city": "London", "country": "GB", "createdAt": 1},
			{"id": 2, "city": "Paris", "country": "FR", "createdAt": 2},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type staticHealth bool

func (h staticHealth) BackendHealthy() bool { return bool(h) }

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	srv := remoteBackend(t)

	tr, err := backend.NewTransport(backend.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil, zerolog.Nop())
	require.NoError(t, err)

	recent := store.NewMemoryStore(store.DefaultMaxRecent)
	registry := session.NewRegistry(token.NewCache(1, time.Hour), session.TransportClients(tr), recent, time.Hour, nil, zerolog.Nop())
	opts := Options{LoginPath: "/login"}

	reg := prometheus.NewRegistry()
	metrics.New(true, reg)

	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(opts),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	RegisterRoutes(app, Deps{
		Sessions: registry,
		Weather:  weather.NewService(recent, weather.DefaultForecastDays, zerolog.Nop()),
		Health:   staticHealth(true),
		Gatherer: reg,
		Options:  opts,
	})
	return app
}

// client carries the session cookie between requests.
type client struct {
	t      *testing.T
	app    *fiber.App
	cookie *http.Cookie
}

func (c *client) do(method, target, body string) (*http.Response, map[string]any) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	for _, ck := range resp.Cookies() {
		if ck.Name == DefaultCookieName && ck.Value != "" {
			c.cookie = ck
		}
	}

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (c *client) list(target string) []map[string]any {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(c.cookie)
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestProtectedRouteRequiresLogin(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, body := c.do(http.MethodGet, "/api/v1/weather?city=London", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/login", body["redirect"])
}

func TestSessionStartsUnauthenticated(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, body := c.do(http.MethodGet, "/api/v1/auth/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["state"])
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)
}

func TestLoginValidation(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, body := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"not-an-email","password":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "email")
}

func TestSearchFlow(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, body := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", body["state"])

	resp, body = c.do(http.MethodGet, "/api/v1/weather?city=London", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "London", body["city"])
	forecast, ok := body["forecast"].([]any)
	require.True(t, ok)
	assert.Len(t, forecast, 5)
	day := forecast[0].(map[string]any)
	assert.Equal(t, "2023-11-15", day["date"])

	resp, body = c.do(http.MethodGet, "/api/v1/weather?city=London&unit=fahrenheit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fahrenheit", body["unit"])
	current := body["current"].(map[string]any)
	assert.InDelta(t, 50.0, current["main"].(map[string]any)["temp"], 1e-9)

	resp, body = c.do(http.MethodGet, "/api/v1/weather?city=Nowhere12345", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "City 'Nowhere12345' not found. Please check the spelling and try again.", body["message"])

	resp, _ = c.do(http.MethodGet, "/api/v1/weather?city=%20", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	recent := c.list("/api/v1/searches")
	require.Len(t, recent, 1)
	assert.Equal(t, "London", recent[0]["city"])

	resp, _ = c.do(http.MethodDelete, "/api/v1/searches/"+recent[0]["id"].(string), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = c.do(http.MethodDelete, "/api/v1/searches/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, c.list("/api/v1/searches"))
}

func TestHistoryAndAdminGate(t *testing.T) {
	user := &client{t: t, app: newTestApp(t)}
	resp, _ := user.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items := user.list("/api/v1/weather/history?q=par")
	require.Len(t, items, 1)
	assert.Equal(t, "Paris", items[0]["city"])

	resp, _ = user.do(http.MethodGet, "/api/v1/admin/history", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := &client{t: t, app: user.app}
	resp, _ = admin.do(http.MethodPost, "/api/v1/auth/login", `{"email":"root@example.com","password":"admin-pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, admin.list("/api/v1/admin/history"), 2)
}

func TestLogout(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}
	resp, _ := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionCookie := c.cookie

	resp, body := c.do(http.MethodPost, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["state"])

	c.cookie = sessionCookie
	resp, _ = c.do(http.MethodGet, "/api/v1/searches", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, body := c.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["backend"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mresp, err := c.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestCoordinatesValidation(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}
	resp, _ := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/v1/weather/coordinates?lat=abc&lon=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/api/v1/weather/coordinates?lat=95&lon=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginIssuesFreshSessionID(t *testing.T) {
	app := newTestApp(t)
	const planted = "11111111-2222-4333-8444-555555555555"

	victim := &client{t: t, app: app, cookie: &http.Cookie{Name: DefaultCookieName, Value: planted}}
	resp, body := victim.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", body["state"])
	assert.NotEqual(t, planted, victim.cookie.Value)

	attacker := &client{t: t, app: app, cookie: &http.Cookie{Name: DefaultCookieName, Value: planted}}
	resp, body = attacker.do(http.MethodGet, "/api/v1/weather?city=London", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/login", body["redirect"])

	resp, body = attacker.do(http.MethodGet, "/api/v1/auth/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["state"])

	resp, _ = victim.do(http.MethodGet, "/api/v1/weather?city=London", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterIssuesFreshSessionID(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}
	resp, _ := c.do(http.MethodGet, "/api/v1/auth/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	before := c.cookie.Value

	resp, body := c.do(http.MethodPost, "/api/v1/auth/register", `{"name":"Ann","email":"ann@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", body["state"])
	assert.NotEqual(t, before, c.cookie.Value)
}

func TestUnauthorizedKeepsCookieOfAuthenticatedSession(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}
	resp, _ := c.do(http.MethodPost, "/api/v1/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The backend keeps rejecting the refreshed token; the session survives.
	resp, body := c.do(http.MethodGet, "/api/v1/weather?city=Locked", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/login", body["redirect"])
	for _, ck := range resp.Cookies() {
		assert.NotEqual(t, DefaultCookieName, ck.Name)
	}

	resp, body = c.do(http.MethodGet, "/api/v1/auth/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authenticated", body["state"])
}

func TestUnauthorizedClearsCookieOfUnauthenticatedSession(t *testing.T) {
	c := &client{t: t, app: newTestApp(t)}

	resp, _ := c.do(http.MethodGet, "/api/v1/weather?city=London", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var cleared bool
	for _, ck := range resp.Cookies() {
		if ck.Name == DefaultCookieName && ck.Value == "" {
			cleared = true
		}
	}
	assert.True(t, cleared)
}
