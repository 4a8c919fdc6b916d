package middleware

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = echo.HeaderXRequestID

const loggerKey = "logger"

// RequestLogger assigns a request id (kept from the client when present),
// stores a request-scoped logger on the context and logs one line per
// request once the handler returns.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := req.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)

			entry := log.WithField("request_id", rid)
			c.Set(loggerKey, entry)

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is final.
				c.Error(err)
			}

			path := req.URL.Path
			if req.URL.RawQuery != "" {
				path = path + "?" + req.URL.RawQuery
			}
			status := c.Response().Status
			fields := entry.WithFields(logrus.Fields{
				"status_code": status,
				"latency_ms":  time.Since(start).Milliseconds(),
				"client_ip":   c.RealIP(),
				"method":      req.Method,
				"path":        path,
			})
			switch {
			case err != nil:
				fields.WithError(err).Error("request failed")
			case status >= 500:
				fields.Error("server error")
			case status >= 400:
				fields.Warn("client error")
			default:
				fields.Info("request handled")
			}
			return nil
		}
	}
}

// Logger returns the request-scoped logger set by RequestLogger, or fallback
// when the middleware did not run.
func Logger(c echo.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if l, ok := c.Get(loggerKey).(logrus.FieldLogger); ok {
		return l
	}
	if fallback == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return fallback
}
