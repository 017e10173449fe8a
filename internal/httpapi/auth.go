package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/sift/internal/auth"
)

const bearerPrefix = "Bearer "

// requireAuth guards a route with the static bearer token whose bcrypt hash
// is configured via API_TOKEN_HASH. An empty hash disables the check.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.TrimSpace(s.opts.APITokenHash) == "" {
				return next(c)
			}

			token, found := bearerToken(c)
			if !found {
				return unauthorizedResponse(c)
			}
			if !auth.VerifyToken(token, s.opts.APITokenHash) {
				return unauthorizedResponse(c)
			}

			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, bool) {
	if c == nil || c.Request() == nil {
		return "", false
	}

	header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if header == "" {
		return "", false
	}
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorizedResponse(c echo.Context) error {
	if c == nil {
		return fmt.Errorf("authentication required")
	}
	return fail(c, http.StatusUnauthorized, "Authentication required", nil)
}
