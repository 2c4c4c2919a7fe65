// Package httpapi serves the engine's flows as a JSON REST API on echo.
//
// Every route lives under /api/v1/auth. Protected routes accept a bearer
// access token or an X-API-Key header. Engine errors map to status codes in
// one place, see [Status].
package httpapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/MrEthical07/lexauth"
	"github.com/MrEthical07/lexauth/middleware"
)

// Prefix is the mount point of every route.
const Prefix = "/api/v1/auth"

// Server owns the echo instance and the engine it serves.
type Server struct {
	echo   *echo.Echo
	engine *lexauth.Engine
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMiddleware adds echo middleware ahead of every route.
func WithMiddleware(mw ...echo.MiddlewareFunc) Option {
	return func(s *Server) { s.echo.Use(mw...) }
}

// WithHandler mounts an extra handler, such as a metrics endpoint, at path.
func WithHandler(method, path string, h http.Handler) Option {
	return func(s *Server) { s.echo.Add(method, path, echo.WrapHandler(h)) }
}

// WithTrustedProxies takes the client IP from X-Forwarded-For, skipping
// hops inside the given CIDR ranges. Without it the IP is always the
// connection's remote address.
func WithTrustedProxies(cidrs ...string) Option {
	return func(s *Server) {
		opts := []echo.TrustOption{
			echo.TrustLoopback(false),
			echo.TrustLinkLocal(false),
			echo.TrustPrivateNet(false),
		}
		for _, cidr := range cidrs {
			_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
			if err != nil {
				s.logger.Warn("httpapi: ignoring trusted proxy", "cidr", cidr, "error", err)
				continue
			}
			opts = append(opts, echo.TrustIPRange(ipNet))
		}
		s.echo.IPExtractor = echo.ExtractIPFromXFFHeader(opts...)
	}
}

// New builds the API around engine.
func New(engine *lexauth.Engine, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPDirect()

	s := &Server{echo: e, engine: engine, logger: slog.Default()}
	e.HTTPErrorHandler = s.errorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))

	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) routes() {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	g := s.echo.Group(Prefix, s.clientInfo)

	g.POST("/register", s.register)
	g.POST("/login", s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/password-reset/request", s.requestPasswordReset)
	g.POST("/password-reset/confirm", s.confirmPasswordReset)

	auth := s.authenticate
	g.GET("/me", s.me, auth)
	g.PUT("/me", s.updateProfile, auth)
	g.PUT("/me/password", s.changePassword, auth)
	g.POST("/logout", s.logout, auth)
	g.GET("/sessions", s.listSessions, auth)
	g.DELETE("/sessions/:id", s.revokeSession, auth)

	g.POST("/mfa/setup", s.setupMFA, auth)
	g.POST("/mfa/verify", s.verifyMFA, auth)
	g.POST("/mfa/disable", s.disableMFA, auth)
	g.GET("/mfa/backup-codes", s.remainingBackupCodes, auth)
	g.POST("/mfa/backup-codes", s.regenerateBackupCodes, auth)

	g.POST("/api-keys", s.createAPIKey, auth)
	g.GET("/api-keys", s.listAPIKeys, auth)
	g.DELETE("/api-keys/:id", s.revokeAPIKey, auth)
}

// clientInfo attaches the caller's IP and user agent for sessions and audit.
func (s *Server) clientInfo(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		ctx := lexauth.WithClientIP(r.Context(), c.RealIP())
		ctx = lexauth.WithUserAgent(ctx, r.UserAgent())
		c.SetRequest(r.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		id, err := s.engine.Authenticate(r.Context(), middleware.Credentials(r))
		if err != nil {
			if !errors.Is(err, lexauth.ErrAccountInactive) {
				c.Response().Header().Set("WWW-Authenticate", `Bearer realm="lexauth"`)
			}
			return err
		}
		c.SetRequest(r.WithContext(lexauth.WithIdentity(r.Context(), id)))
		return next(c)
	}
}

func identity(c echo.Context) *lexauth.Identity {
	id, _ := lexauth.IdentityFromContext(c.Request().Context())
	return id
}

// bind decodes the JSON body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "malformed request body"})
	}
	return nil
}

// required rejects the request when any named value is blank. Pairs are
// name, value.
func required(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return echo.NewHTTPError(http.StatusBadRequest, errorBody{
		Error:   "invalid_input",
		Message: "missing required fields: " + strings.Join(missing, ", "),
	})
}
