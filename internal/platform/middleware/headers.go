package middleware

import "github.com/labstack/echo/v4"

// NoStore marks responses as uncacheable JSON API output. Corpora are
// synthetic but look like PHI to every proxy in between.
func NoStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Cache-Control", "no-store")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			return next(c)
		}
	}
}
