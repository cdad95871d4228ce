// Package logging builds the process logger and the request-logging middleware.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/metrics"
)

// LocalSession is the fiber Locals key under which handlers store a short
// session id for the request log.
const LocalSession = "log.session"

// New builds the root logger. An unknown level falls back to info. pretty
// switches to the human-readable console writer.
func New(level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "weather-dashboard").Logger()
}

// Middleware logs every request and records its metrics under the matched
// route pattern, so path parameters do not explode label cardinality.
func Middleware(log zerolog.Logger, rec metrics.Recorder) fiber.Handler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app's error handler write the response so the status is final.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		latency := time.Since(start)
		status := c.Response().StatusCode()

		route := c.Route().Path
		rec.ObserveHTTP(route, status, latency)

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if sid, ok := c.Locals(LocalSession).(string); ok && sid != "" {
			ev = ev.Str("session", sid)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", route).
			Int("status", status).
			Dur("latency", latency).
			Msg("request")
		return nil
	}
}
