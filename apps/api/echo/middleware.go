package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// portalMiddleware guards a route group behind a portal flag carried in the
// JWT claims. An optional role list further restricts access within the portal.
func portalMiddleware(allowed func(Claims) bool, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if allowed(claims) && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func soporteMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsSoporte }, roles...)
}

func oficinaMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsOficina || c.IsSoporte }, roles...)
}

func directorMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsDirector }, roles...)
}

func investigadorMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsInvestigador }, roles...)
}
