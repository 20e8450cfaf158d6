package echoweb

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/gateway"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that renders our errors as pages.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	logger core.Logger,
	sessions session.Reader,
	newPage func(echo.Context, string) page,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var (
			authErr *gateway.AuthorizationError
			srvErr  *gateway.ServerError
			netErr  *gateway.NetworkError
			vErr    *core.ValidationError
			httpErr *echo.HTTPError
		)
		code := http.StatusInternalServerError
		view := "error"
		message := ""

		switch {
		case errors.As(err, &authErr):
			// credentials were cleared: the guard sends the next request to the login view
			if !sessions.Snapshot().Authenticated() {
				if rErr := ctx.Redirect(http.StatusSeeOther, loginPath); rErr != nil {
					ctx.Echo().Logger.Error(rErr)
				}
				return
			}
			code = http.StatusUnauthorized
			message = "The school API refused the request."
		case errors.Is(err, core.ErrForbidden):
			code = http.StatusForbidden
			view = "forbidden"
		case errors.As(err, &srvErr):
			code = srvErr.Status
			switch code {
			case http.StatusForbidden:
				view = "forbidden"
			case http.StatusNotFound:
				view = "notfound"
			default:
				message = srvErr.Message()
			}
		case errors.As(err, &netErr):
			code = http.StatusBadGateway
			message = "The school API could not be reached."
		case errors.As(err, &vErr):
			code = http.StatusBadRequest
			message = vErr.Error()
		case errors.As(err, &httpErr):
			code = httpErr.Code
			switch code {
			case http.StatusForbidden:
				view = "forbidden"
			case http.StatusNotFound:
				view = "notfound"
			default:
				message = fmt.Sprint(httpErr.Message)
			}
		default: // any other error is a server error
			msg := http.StatusText(http.StatusInternalServerError)
			args := []interface{}{errors.Wrap(err, msg)}
			if id, ok := contextIdentity(ctx); ok {
				args = append(args, id)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		p := newPage(ctx, http.StatusText(code))
		p.Error = message
		p.Data = errorView{Code: code}

		// Send response
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.Render(code, view, p)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
