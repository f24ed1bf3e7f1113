package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
)

// errorResponse is the body of every error response.
type errorResponse struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// backendStatus is the HTTP status of errors that do not carry their own.
func backendStatus(code string) int {
	switch code {
	case core.CodeUnknownTable:
		return http.StatusNotFound
	case core.CodeConflict:
		return http.StatusConflict
	case core.CodeInvalidJWT:
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var res errorResponse

		switch origErr := errors.Cause(err).(type) {
		case *core.BackendError:
			code = origErr.Status
			if code == 0 {
				code = backendStatus(origErr.Code)
			}
			res.Code = origErr.Code
			res.Message = origErr.Message
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				res.Code = core.CodeInvalidJWT
				res.Message = "missing or malformed jwt"
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if m, ok := origErr.Message.(string); ok {
				res.Message = m
			} else {
				res.Message = http.StatusText(code)
			}
		case validator.ValidationErrors:
			res.Fields = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				res.Fields[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			res.Code = core.CodeValidation
			res.Message = "invalid input"
		case *core.ValidationError:
			if errors.Is(origErr.Err, user.ErrEmailExists) {
				code = http.StatusUnprocessableEntity
				res.Code = core.CodeUserExists
				res.Message = "User already registered"
				break
			}
			if origErr.Fields != nil {
				res.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					res.Fields[fErr.Field] = fErr.Error
				}
			}
			code = http.StatusBadRequest
			res.Code = core.CodeValidation
			res.Message = origErr.Error()
		default:
			if origErr == user.ErrEmailExists { // lost a sign-up race
				code = http.StatusUnprocessableEntity
				res.Code = core.CodeUserExists
				res.Message = "User already registered"
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			res.Message = msg

			var usr core.SessionUser
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			res.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, res)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
