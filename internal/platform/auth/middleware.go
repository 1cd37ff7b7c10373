package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// SessionConfig configures SessionMiddleware.
type SessionConfig struct {
	Issuer     *TokenIssuer
	Store      SessionStore
	CookieName string
	Secure     bool
	Skipper    middleware.Skipper
	Logger     zerolog.Logger
}

// SessionMiddleware resolves the caller once per request. The session token
// is read from the session cookie or an "Authorization: Bearer" header,
// verified, and matched against the stored session. The resulting Principal
// is placed on the request context; requests without a valid session get 401.
func SessionMiddleware(cfg SessionConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := extractToken(c, cfg.CookieName)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			claims, err := cfg.Issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			sess, err := cfg.Store.Get(c.Request().Context(), claims.SessionID)
			if err != nil {
				if !errors.Is(err, ErrSessionNotFound) {
					cfg.Logger.Error().Err(err).Str("session_id", claims.SessionID).Msg("session lookup failed")
					return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			uid, err := claims.UserID()
			if err != nil || uid != sess.UserID || claims.Role != sess.Role {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			SetPrincipal(c, sess.Principal())
			return next(c)
		}
	}
}

func extractToken(c echo.Context, cookieName string) (string, bool) {
	if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, true
		}
	}
	return "", false
}

// SetSessionCookie writes the session token as an HttpOnly same-site cookie.
func SetSessionCookie(c echo.Context, name, token string, expires time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c echo.Context, name string, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
