package httpapi

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/session"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

var validate = validator.New()

// HealthReporter reports the last known backend health.
type HealthReporter interface {
	BackendHealthy() bool
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Sessions *session.Registry
	Weather  *weather.Service
	Health   HealthReporter
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
	Options  Options
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	opts := d.Options.withDefaults()
	svc := d.Weather

	app.Get("/health", func(c *fiber.Ctx) error {
		backendStatus := "unavailable"
		if d.Health != nil && d.Health.BackendHealthy() {
			backendStatus = "ok"
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-dashboard",
			"backend": backendStatus,
		})
	})

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1", withSession(d.Sessions, opts))

	auth := v1.Group("/auth")

	auth.Post("/login", func(c *fiber.Ctx) error {
		var req backend.Credentials
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation("invalid request body")
		}
		req.Email = strings.TrimSpace(req.Email)
		if err := validate.Struct(req); err != nil {
			return validationError(err)
		}
		s, err := manager(c).Login(c.UserContext(), req)
		if err != nil {
			return err
		}
		rotateSessionCookie(c, opts, s.ID)
		return c.JSON(s)
	})

	auth.Post("/register", func(c *fiber.Ctx) error {
		var req backend.Registration
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation("invalid request body")
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
		if err := validate.Struct(req); err != nil {
			return validationError(err)
		}
		s, err := manager(c).Register(c.UserContext(), req)
		if err != nil {
			return err
		}
		rotateSessionCookie(c, opts, s.ID)
		return c.JSON(s)
	})

	auth.Post("/logout", func(c *fiber.Ctx) error {
		m := manager(c)
		m.Logout(c.UserContext())
		clearSessionCookie(c, opts)
		return c.JSON(fiber.Map{
			"state":    m.Snapshot().State,
			"redirect": opts.LoginPath,
		})
	})

	auth.Get("/session", func(c *fiber.Ctx) error {
		return c.JSON(manager(c).Check(c.UserContext()))
	})

	v1.Get("/weather", requireAuth, func(c *fiber.Ctx) error {
		unit, err := weather.ParseUnit(c.Query("unit"))
		if err != nil {
			return err
		}
		m := manager(c)
		dash, err := svc.Search(c.UserContext(), m.Client(), m.ID(), utils.CopyString(c.Query("city")))
		if err != nil {
			return err
		}
		return c.JSON(dash.In(unit))
	})

	v1.Get("/weather/coordinates", requireAuth, func(c *fiber.Ctx) error {
		unit, err := weather.ParseUnit(c.Query("unit"))
		if err != nil {
			return err
		}
		lat, err := parseCoordinate(c.Query("lat"), "latitude")
		if err != nil {
			return err
		}
		lon, err := parseCoordinate(c.Query("lon"), "longitude")
		if err != nil {
			return err
		}
		cur, err := svc.ByCoordinates(c.UserContext(), manager(c).Client(), lat, lon)
		if err != nil {
			return err
		}
		return c.JSON(cur.In(unit))
	})

	history := func(c *fiber.Ctx) error {
		items, err := svc.History(c.UserContext(), manager(c).Client(), c.Query("q"))
		if err != nil {
			return err
		}
		return c.JSON(items)
	}
	v1.Get("/weather/history", requireAuth, history)
	v1.Get("/admin/history", requireAuth, requireRole(backend.RoleAdmin), history)

	v1.Get("/searches", requireAuth, func(c *fiber.Ctx) error {
		return c.JSON(svc.Recent(manager(c).ID()))
	})

	v1.Delete("/searches", requireAuth, func(c *fiber.Ctx) error {
		svc.ClearRecent(manager(c).ID())
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Delete("/searches/:id", requireAuth, func(c *fiber.Ctx) error {
		if !svc.ForgetRecent(manager(c).ID(), c.Params("id")) {
			return apperr.NotFound("recent search not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func parseCoordinate(raw, name string) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, apperr.Validation("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", name)
	}
	return v, nil
}
