package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/service"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// fail writes the standard {error, message} envelope.
func fail(c echo.Context, status int, msg string) error {
	body := echo.Map{"error": http.StatusText(status)}
	if msg != "" {
		body["message"] = msg
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error { return fail(c, http.StatusBadRequest, msg) }

// respondError maps a domain error to its HTTP answer.  Anything unknown
// is logged and reported as a bare 500.
func respondError(c echo.Context, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return badRequest(c, ve.Msg)
	case errors.Is(err, keys.ErrInvalidKey), errors.Is(err, keys.ErrWeakPasswordKey):
		return badRequest(c, "Invalid password key")
	case errors.Is(err, service.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrInvalidToken):
		return fail(c, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, utils.ErrInvalidResetToken):
		return fail(c, http.StatusUnauthorized, "invalid or expired reset token")
	case errors.Is(err, utils.ErrInvalidPasswordKeyToken):
		return fail(c, http.StatusUnauthorized, "invalid Password-Key")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "")
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, http.StatusNotFound, "")
	case errors.Is(err, service.ErrAlreadyExists):
		return fail(c, http.StatusConflict, "user already exists")
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrConflict):
		return fail(c, http.StatusConflict, "")
	}
	logger.WithContext(c.Request().Context()).Error("request failed",
		zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"})
}

// HTTPErrorHandler renders framework errors (unknown routes, bad methods,
// panics caught by Recover) in the same envelope as handler errors.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := ""
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok && m != http.StatusText(code) {
			msg = m
		}
	} else {
		logger.WithContext(c.Request().Context()).Error("unhandled error", zap.Error(err))
	}
	if code >= http.StatusInternalServerError {
		msg = ""
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = fail(c, code, msg)
	}
	if werr != nil {
		logger.WithContext(c.Request().Context()).Warn("write error response", zap.Error(werr))
	}
}
