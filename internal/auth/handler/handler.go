package handler

import (
	"net/http"

	"marketplace-auth/internal/auth/provider"
	"marketplace-auth/internal/auth/sso"
	"marketplace-auth/internal/idle"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/middleware"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the collaborators the auth endpoints need.
type Deps struct {
	Verifier    *sso.Verifier
	Provisioner *sso.Provisioner
	Providers   *provider.Registry // optional OIDC login
	Sessions    session.Store
	Markers     idle.Markers
	CSRF        *session.CSRF
	Policy      idle.Policy
	Auth        *middleware.AuthMiddleware
	RateLimit   *middleware.RateLimiter // optional
	Metrics     *metrics.Metrics
}

type Handler struct {
	verifier    *sso.Verifier
	provisioner *sso.Provisioner
	providers   *provider.Registry
	sessions    session.Store
	markers     idle.Markers
	csrf        *session.CSRF
	policy      idle.Policy
	auth        *middleware.AuthMiddleware
	rateLimit   *middleware.RateLimiter
	metrics     *metrics.Metrics
	cookies     session.CookieOptions
}

func NewHandler(d Deps) *Handler {
	m := d.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	return &Handler{
		verifier:    d.Verifier,
		provisioner: d.Provisioner,
		providers:   d.Providers,
		sessions:    d.Sessions,
		markers:     d.Markers,
		csrf:        d.CSRF,
		policy:      d.Policy,
		auth:        d.Auth,
		rateLimit:   d.RateLimit,
		metrics:     m,
		cookies:     session.DefaultCookieOptions(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	entry := r.Group("/")
	if h.rateLimit != nil {
		entry.Use(h.rateLimit.Middleware())
	}
	entry.POST("/api/auth/sso", h.ssoJSON)
	entry.GET("/auth/sso", h.ssoRedirect)
	entry.GET("/oauth/login/:provider", h.login)
	entry.GET("/oauth/callback/:provider", h.callback)

	r.GET("/api/auth/session", middleware.GinOptionalAuth(h.auth), h.getSession)
	r.POST("/api/auth/logout",
		middleware.GinOptionalAuth(h.auth),
		h.logoutAnonymous,
		middleware.RequireCSRF(h.csrf, h.metrics),
		h.logout,
	)

	authed := r.Group("/api/auth", middleware.GinRequireAuth(h.auth))
	authed.GET("/csrf", h.csrfToken)
	authed.POST("/activity", middleware.RequireCSRF(h.csrf, h.metrics), h.activity)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

// errorRedirect is where browser flows land when login fails.
func errorRedirect(reason sso.Reason) string {
	return "/auth/error?code=" + string(reason)
}

func (h *Handler) writeFailure(c *gin.Context, e *sso.Error) {
	c.JSON(e.HTTPStatus(), gin.H{
		"success": false,
		"error":   e.Message,
		"code":    e.Reason,
	})
}

func (h *Handler) redirectFailure(c *gin.Context, e *sso.Error) {
	c.Redirect(http.StatusFound, errorRedirect(e.Reason))
}
