package httpapi

import (
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/lexauth"
)

const day = 24 * time.Hour

/* ==== Accounts ==== */

func (s *Server) register(c echo.Context) error {
	var req lexauth.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("email", req.Email, "password", req.Password); err != nil {
		return err
	}

	acct, err := s.engine.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, acct.Public())
}

type meResponse struct {
	lexauth.Account
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	AuthMethod  string   `json:"auth_method"`
}

func (s *Server) me(c echo.Context) error {
	id := identity(c)
	roles := id.Roles.Roles()
	sort.Strings(roles)
	perms := id.Roles.Permissions()
	sort.Strings(perms)

	return c.JSON(http.StatusOK, meResponse{
		Account:     id.Account.Public(),
		Roles:       roles,
		Permissions: perms,
		AuthMethod:  string(id.Method),
	})
}

func (s *Server) updateProfile(c echo.Context) error {
	var req lexauth.ProfileUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	acct, err := s.engine.UpdateProfile(c.Request().Context(), identity(c).AccountID(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct)
}

/* ==== Sign-in ==== */

func (s *Server) login(c echo.Context) error {
	var req lexauth.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("email", req.Email, "password", req.Password); err != nil {
		return err
	}

	res, err := s.engine.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("refresh_token", req.RefreshToken); err != nil {
		return err
	}

	pair, err := s.engine.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) logout(c echo.Context) error {
	if err := s.engine.Logout(c.Request().Context(), identity(c).AccountID()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

/* ==== Sessions ==== */

func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.engine.ListSessions(c.Request().Context(), identity(c).AccountID())
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []lexauth.SessionInfo{}
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) revokeSession(c echo.Context) error {
	if err := s.engine.RevokeSession(c.Request().Context(), identity(c).AccountID(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

/* ==== Passwords ==== */

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("current_password", req.CurrentPassword, "new_password", req.NewPassword); err != nil {
		return err
	}

	if err := s.engine.ChangePassword(c.Request().Context(), identity(c).AccountID(), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// requestPasswordReset always answers 202 so the response does not reveal
// whether the email is registered.
func (s *Server) requestPasswordReset(c echo.Context) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("email", req.Email); err != nil {
		return err
	}

	if err := s.engine.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, messageResponse{
		Message: "if the address is registered, a reset link has been sent",
	})
}

func (s *Server) confirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("token", req.Token, "new_password", req.NewPassword); err != nil {
		return err
	}

	if err := s.engine.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

/* ==== MFA ==== */

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type mfaDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes,omitempty"`
	Remaining   int      `json:"remaining"`
}

func (s *Server) setupMFA(c echo.Context) error {
	setup, err := s.engine.SetupMFA(c.Request().Context(), identity(c).AccountID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, setup)
}

func (s *Server) verifyMFA(c echo.Context) error {
	var req mfaCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("code", req.Code); err != nil {
		return err
	}

	if err := s.engine.VerifyMFA(c.Request().Context(), identity(c).AccountID(), req.Code); err != nil {
		return mfaStateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) disableMFA(c echo.Context) error {
	var req mfaDisableRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("password", req.Password); err != nil {
		return err
	}

	if err := s.engine.DisableMFA(c.Request().Context(), identity(c).AccountID(), req.Password, req.Code); err != nil {
		return mfaStateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) regenerateBackupCodes(c echo.Context) error {
	var req mfaCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("code", req.Code); err != nil {
		return err
	}

	codes, err := s.engine.RegenerateBackupCodes(c.Request().Context(), identity(c).AccountID(), req.Code)
	if err != nil {
		return mfaStateError(err)
	}
	return c.JSON(http.StatusOK, backupCodesResponse{BackupCodes: codes, Remaining: len(codes)})
}

func (s *Server) remainingBackupCodes(c echo.Context) error {
	n, err := s.engine.RemainingBackupCodes(c.Request().Context(), identity(c).AccountID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, backupCodesResponse{Remaining: n})
}

/* ==== API keys ==== */

type createAPIKeyRequest struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes,omitempty"`
	ExpiresInDays int      `json:"expires_in_days,omitempty"`
}

func (s *Server) createAPIKey(c echo.Context) error {
	var req createAPIKeyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := required("name", req.Name); err != nil {
		return err
	}
	if req.ExpiresInDays < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "expires_in_days must not be negative"})
	}
	if req.ExpiresInDays > maxExpiresInDays(s.engine.Config().APIKeys.MaxTTL) {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "expires_in_days exceeds the maximum key lifetime"})
	}

	issued, err := s.engine.IssueAPIKey(c.Request().Context(), identity(c).AccountID(), req.Name, req.Scopes,
		time.Duration(req.ExpiresInDays)*day)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, issued)
}

func (s *Server) listAPIKeys(c echo.Context) error {
	keys, err := s.engine.ListAPIKeys(c.Request().Context(), identity(c).AccountID())
	if err != nil {
		return err
	}
	if keys == nil {
		keys = []lexauth.APIKey{}
	}
	return c.JSON(http.StatusOK, keys)
}

func (s *Server) revokeAPIKey(c echo.Context) error {
	if err := s.engine.RevokeAPIKey(c.Request().Context(), identity(c).AccountID(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// maxExpiresInDays is the largest day count that converts to a Duration
// without overflow and stays within maxTTL when one is set.
func maxExpiresInDays(maxTTL time.Duration) int {
	limit := time.Duration(math.MaxInt64) / day
	if maxTTL > 0 {
		limit = maxTTL / day
	}
	return int(limit)
}
