package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
)

const (
	// contextTriggerKey holds the trigger type under evaluation, for error reports.
	contextTriggerKey = "triggerType"

	lockRetryAfter = "1" // seconds
)

var (
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "service not authenticated")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errUserNotFound     = echo.NewHTTPError(http.StatusNotFound, "user not found")
	errTriggerLockTaken = echo.NewHTTPError(http.StatusServiceUnavailable, "another trigger of this user is being evaluated")

	// sentinelHTTPErrors are the engine and identity errors with a client-facing meaning.
	sentinelHTTPErrors = map[error]*echo.HTTPError{
		user.ErrNotFound:        errUserNotFound,
		feedback.ErrLockTimeout: errTriggerLockTaken,
	}
)

// errorResponse maps err to a status code and a response body.
// ok is false when err is unexpected and must be reported as a server error.
func errorResponse(err error) (code int, message interface{}, ok bool) {
	cause := errors.Cause(err)
	if herr, found := sentinelHTTPErrors[cause]; found {
		return herr.Code, herr.Message, true
	}

	switch origErr := cause.(type) {
	case *echo.HTTPError:
		if origErr.Message == middleware.ErrJWTMissing.Message {
			return http.StatusUnauthorized, origErr.Message, true
		}
		if origErr.Internal != nil {
			// a scope filter rejected while binding the payload
			if errors.Cause(origErr.Internal) == feedback.ErrInvalidScopeFilter {
				return http.StatusBadRequest, map[string]string{"scope_filter": origErr.Internal.Error()}, true
			}
			if herr, isHTTP := origErr.Internal.(*echo.HTTPError); isHTTP {
				origErr = herr
			}
		}
		return origErr.Code, origErr.Message, true
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
		}
		return http.StatusBadRequest, fldErrs, true
	case *core.ValidationError:
		if origErr.Fields == nil {
			return http.StatusBadRequest, origErr.Error(), true
		}
		fldErrs := make(map[string]string, len(origErr.Fields))
		for _, fErr := range origErr.Fields {
			fldErrs[fErr.Field] = fErr.Error
		}
		return http.StatusBadRequest, fldErrs, true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message, ok := errorResponse(err)

		switch {
		case !ok:
			// storage failures of the engine end up here: the trigger could not be evaluated
			extra := map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				extra["service"] = claims.Subject
			}
			if trigger, isSet := ctx.Get(contextTriggerKey).(feedback.TriggerType); isSet {
				extra["trigger_type"] = trigger
			}
			logger.Error("feedback api: request failed", err, extra)

			if core.IsShutdown(err) {
				signalShutdown()
			}
		case code == http.StatusServiceUnavailable:
			ctx.Response().Header().Set("Retry-After", lockRetryAfter)
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, isStr := message.(string); isStr {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
