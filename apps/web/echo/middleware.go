package echoweb

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/guard"
	"github.com/trezcool/edusys/core/session"
)

const contextIdentityKey = "identity"

// awaitSettled waits for the startup resolution, up to the hold timeout, and returns the session.
func (s *Server) awaitSettled(ctx echo.Context) session.Session {
	snap := s.sessions.Snapshot()
	if !snap.Resolving {
		return snap
	}

	timer := time.NewTimer(s.deps.Conf.Web.HoldTimeout)
	defer timer.Stop()
	select {
	case <-s.sessions.Settled():
	case <-timer.C:
	case <-ctx.Request().Context().Done():
	}
	return s.sessions.Snapshot()
}

// guardMiddleware gates protected views: Hold shows a loading page, Redirect goes to the login view.
func (s *Server) guardMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		snap := s.awaitSettled(ctx)

		outcome := s.guard.Evaluate(snap)
		switch outcome.Decision {
		case guard.Hold:
			ctx.Response().Header().Set("Retry-After", "1")
			return ctx.Render(http.StatusServiceUnavailable, "loading", s.newPage(ctx, "Loading"))
		case guard.Redirect:
			return ctx.Redirect(http.StatusSeeOther, outcome.Location)
		default:
			ctx.Set(contextIdentityKey, *snap.Identity)
			return next(ctx)
		}
	}
}

// roleMiddleware restricts a view to the given roles.
func roleMiddleware(roles ...session.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, ok := contextIdentity(ctx)
			if ok && id.HasRole(roles...) {
				return next(ctx)
			}
			return core.ErrForbidden
		}
	}
}

func contextIdentity(ctx echo.Context) (session.Identity, bool) {
	id, ok := ctx.Get(contextIdentityKey).(session.Identity)
	return id, ok
}
