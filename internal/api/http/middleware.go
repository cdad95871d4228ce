package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/logging"
	"github.com/i474232898/weather-dashboard/internal/session"
)

const (
	localManager = "session.manager"
	localUser    = "session.user"
)

// DefaultCookieName names the session-id cookie.
const DefaultCookieName = "wd_session"

// Options configures the session cookie and the login redirect.
type Options struct {
	CookieName   string
	CookieDomain string
	CookieSecure bool
	LoginPath    string
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	return o
}

func setSessionCookie(c *fiber.Ctx, opts Options, id string) {
	c.Cookie(&fiber.Cookie{
		Name:     opts.CookieName,
		Value:    id,
		Path:     "/",
		Domain:   opts.CookieDomain,
		Secure:   opts.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearSessionCookie(c *fiber.Ctx, opts Options) {
	c.Cookie(&fiber.Cookie{
		Name:     opts.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   opts.CookieDomain,
		Secure:   opts.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// rotateSessionCookie hands the browser the id a session moved to on login.
func rotateSessionCookie(c *fiber.Ctx, opts Options, id string) {
	setSessionCookie(c, opts, id)
	c.Locals(logging.LocalSession, shortID(id))
}

// withSession resolves the caller's session Manager, issuing a new session
// cookie when the browser has none or an unknown one.
func withSession(sessions *session.Registry, opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Cookie values alias the request buffer; the registry keeps the id.
		// Unknown ids are never adopted.
		id := utils.CopyString(c.Cookies(opts.CookieName))
		m := sessions.Get(id)
		if m.ID() != id {
			setSessionCookie(c, opts, m.ID())
		}
		c.Locals(localManager, m)
		c.Locals(logging.LocalSession, shortID(m.ID()))
		return c.Next()
	}
}

// requireAuth lets only authenticated sessions through. A session still in
// the checking state is verified first.
func requireAuth(c *fiber.Ctx) error {
	m := manager(c)
	m.Check(c.UserContext())
	u, err := m.RequireUser()
	if err != nil {
		return err
	}
	c.Locals(localUser, u)
	return c.Next()
}

// requireRole lets only users with role through. It must run after requireAuth.
func requireRole(role backend.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, ok := c.Locals(localUser).(backend.User)
		if !ok {
			return apperr.Unauthorized(nil, "Please log in to continue.")
		}
		if u.Role != role {
			return apperr.Forbidden("You do not have permission to access this page.")
		}
		return c.Next()
	}
}

func manager(c *fiber.Ctx) *session.Manager {
	m, _ := c.Locals(localManager).(*session.Manager)
	return m
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
