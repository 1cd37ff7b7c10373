package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route templates reachable without a session.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/db":              true,
	"/metrics":                true,
	"/api/v1/auth/login":      true,
	"/api/v1/auth/register":   true,
	"/api/v1/specializations": true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is served without a session.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
