package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/lexauth"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorKind struct {
	err     error
	status  int
	code    string
	message string
}

// Most specific first. The public message never includes the joined cause.
var errorKinds = []errorKind{
	{lexauth.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later"},
	{lexauth.ErrAccountInactive, http.StatusForbidden, "account_inactive", "account is inactive"},
	{lexauth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "incorrect email or password"},
	{lexauth.ErrInvalidOrExpiredToken, http.StatusUnauthorized, "invalid_token", "invalid or expired token"},
	{lexauth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "authentication required"},
	{lexauth.ErrInvalidMFACode, http.StatusUnauthorized, "invalid_mfa_code", "invalid mfa code"},
	{lexauth.ErrMFASecretUnavailable, http.StatusInternalServerError, "mfa_unavailable", "mfa is temporarily unavailable"},
	{lexauth.ErrMFAAlreadyEnabled, http.StatusBadRequest, "mfa_already_enabled", "mfa is already enabled"},
	{lexauth.ErrMFANotEnabled, http.StatusBadRequest, "mfa_not_enabled", "mfa is not enabled"},
	{lexauth.ErrMFASetupNotInitiated, http.StatusBadRequest, "mfa_setup_not_initiated", "mfa setup not initiated"},
	{lexauth.ErrForbidden, http.StatusForbidden, "forbidden", "insufficient permissions"},
	{lexauth.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{lexauth.ErrDuplicateIdentity, http.StatusConflict, "duplicate_identity", "email or username already registered"},
	{lexauth.ErrPasswordPolicy, http.StatusBadRequest, "password_policy", ""},
	{lexauth.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
}

// Status returns the HTTP status for err.
func Status(err error) int {
	status, _, _ := classify(err)
	return status
}

func classify(err error) (int, string, string) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		msg := k.message
		if msg == "" {
			// Validation errors carry a caller-facing description.
			msg = err.Error()
		}
		return k.status, k.code, msg
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

// mfaStateError reports an invalid MFA code during setup and management as a
// bad request instead of an authentication failure.
func mfaStateError(err error) error {
	if errors.Is(err, lexauth.ErrInvalidMFACode) {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "invalid_mfa_code", Message: "invalid mfa code"})
	}
	return err
}

// errorHandler renders engine errors and echo errors as errorBody.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   errorBody
	)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case errorBody:
			body = m
		case string:
			body = errorBody{Error: http.StatusText(status), Message: m}
		default:
			body = errorBody{Error: http.StatusText(status), Message: http.StatusText(status)}
		}
	} else {
		var code, msg string
		status, code, msg = classify(err)
		body = errorBody{Error: code, Message: msg}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("lexauth: request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
