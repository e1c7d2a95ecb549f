package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"marketplace-auth/internal/auth/handler"
	"marketplace-auth/internal/auth/provider"
	"marketplace-auth/internal/auth/provider/oidc"
	"marketplace-auth/internal/auth/resolver"
	"marketplace-auth/internal/auth/sso"
	"marketplace-auth/internal/config"
	"marketplace-auth/internal/idle"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/middleware"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// verificationPolicy never yields permissive in production, whatever the config says.
func verificationPolicy(cfg config.Config) sso.VerificationPolicy {
	if cfg.Permissive() {
		return sso.PolicyPermissive
	}
	return sso.PolicyStrict
}

func setupHTTP(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {
	origin, err := url.Parse(cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: public base url: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// ----------------------------
	// Dependencies
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	markers := idle.NewRedisMarkers(infra.Redis.Client, session.MaxAge)
	csrf := session.NewCSRF(cfg.CSRFSecret)
	identityResolver := resolver.NewDBResolver(infra.DB)

	policy := idle.Policy{IdleLimit: cfg.IdleLimit, WarningWindow: cfg.IdleWarning}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	vp := verificationPolicy(cfg)
	verifier, err := sso.NewVerifier(
		cfg.SSOSharedSecret,
		vp,
		sso.WithFreshnessWindow(cfg.SSOFreshnessWindow),
		sso.WithFutureSkew(cfg.SSOFutureSkew),
		sso.WithMaxPayload(cfg.SSOMaxPayload),
	)
	if err != nil {
		return nil, err
	}
	if vp == sso.PolicyPermissive {
		logger.Warn("sso verification is permissive; signatures are not checked", map[string]any{
			"env": cfg.AppEnv,
		})
	}

	var providers []provider.OAuthProvider
	if cfg.OIDCEnabled() {
		p, err := oidc.New(ctx, oidc.Config{
			Name:         cfg.OIDCName,
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			AuthURL:      cfg.OIDCAuthURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	authMiddleware := middleware.NewAuthMiddleware(sessionStore, markers, policy, cfg.IdleEnforce, m)

	authHandler := handler.NewHandler(handler.Deps{
		Verifier:    verifier,
		Provisioner: sso.NewProvisioner(identityResolver, sessionStore, csrf, markers, origin),
		Providers:   provider.NewRegistry(providers...),
		Sessions:    sessionStore,
		Markers:     markers,
		CSRF:        csrf,
		Policy:      policy,
		Auth:        authMiddleware,
		RateLimit:   middleware.NewRateLimiter(ctx, rate.Limit(cfg.SSORateLimit), cfg.SSORateBurst, m),
		Metrics:     m,
	})

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		userID, _ := middleware.UserIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
		})
	})

	logger.Info("http routes ready", map[string]any{
		"verification": vp.String(),
		"oidc":         cfg.OIDCEnabled(),
		"idle_enforce": cfg.IdleEnforce,
	})

	return router, nil
}
