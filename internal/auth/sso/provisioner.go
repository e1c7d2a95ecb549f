package sso

import (
	"context"
	"net/url"
	"time"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/auth/resolver"
	"marketplace-auth/internal/idle"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/session"
)

// Grant is what a successful login hands back to the HTTP layer.
type Grant struct {
	UserID      string
	SessionID   string
	CSRFToken   string
	CSRFCookie  string
	RedirectURL string
	ExpiresAt   time.Time

	// RedirectRewritten is set when the requested callback was replaced by "/".
	RedirectRewritten bool
}

// Cookies returns the cookie set that carries this grant.
func (g *Grant) Cookies() session.Cookies {
	return session.Cookies{
		SessionID:   g.SessionID,
		CSRF:        g.CSRFCookie,
		CallbackURL: g.RedirectURL,
	}
}

// Provisioner exchanges a verified identity for a local session.
type Provisioner struct {
	resolver resolver.Resolver
	store    session.Store
	csrf     *session.CSRF
	markers  idle.Markers
	origin   *url.URL
	maxAge   time.Duration
	now      func() time.Time
}

func NewProvisioner(
	res resolver.Resolver,
	store session.Store,
	csrf *session.CSRF,
	markers idle.Markers,
	origin *url.URL,
) *Provisioner {
	return &Provisioner{
		resolver: res,
		store:    store,
		csrf:     csrf,
		markers:  markers,
		origin:   origin,
		maxAge:   session.MaxAge,
		now:      time.Now,
	}
}

// Provision creates or updates the local user, persists a new session and
// returns the grant. Failures are not retried; the user restarts the login.
func (p *Provisioner) Provision(
	ctx context.Context,
	identity *auth.Identity,
	callbackURL string,
) (*Grant, error) {

	if err := validateIdentity(identity); err != nil {
		return nil, err
	}

	redirect, redirectErr := SafeRedirect(callbackURL, p.origin)
	if redirectErr != nil {
		logger.Warn("unsafe callback url rewritten", map[string]any{
			"provider": identity.Provider,
			"reason":   redirectErr.Error(),
		})
	}

	userID, err := p.resolver.Resolve(ctx, identity)
	if err != nil {
		logger.Error("resolve user failed", map[string]any{
			"provider": identity.Provider,
			"error":    err.Error(),
		})
		return nil, newError(ReasonPersistenceFailure, "session creation failed", err)
	}

	sessionID, err := session.GenerateID()
	if err != nil {
		return nil, newError(ReasonPersistenceFailure, "session creation failed", err)
	}

	csrfToken, csrfCookie, err := p.csrf.Issue()
	if err != nil {
		return nil, newError(ReasonPersistenceFailure, "session creation failed", err)
	}

	now := p.now()
	sess := session.Session{
		SessionID: sessionID,
		UserID:    userID,
		Email:     identity.Email,
		Name:      identity.Name,
		Image:     identity.Image,
		Provider:  identity.Provider,
		CSRFToken: csrfToken,
		CreatedAt: now,
		ExpiresAt: now.Add(p.maxAge),
	}

	if err := p.store.Create(ctx, sess); err != nil {
		logger.Error("persist session failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, newError(ReasonPersistenceFailure, "session creation failed", err)
	}

	if p.markers != nil {
		if err := p.markers.For(sessionID).Touch(ctx, now); err != nil {
			logger.Warn("seed activity marker failed", map[string]any{
				"sid":   logger.Prefix(sessionID),
				"error": err.Error(),
			})
		}
	}

	logger.Info("session provisioned", map[string]any{
		"user_id":  userID,
		"provider": identity.Provider,
		"sid":      logger.Prefix(sessionID),
	})

	return &Grant{
		UserID:      userID,
		SessionID:   sessionID,
		CSRFToken:   csrfToken,
		CSRFCookie:  csrfCookie,
		RedirectURL: redirect,
		ExpiresAt:   sess.ExpiresAt,

		RedirectRewritten: redirectErr != nil,
	}, nil
}

func validateIdentity(identity *auth.Identity) error {
	if identity == nil || identity.ProviderUserID == "" {
		return newError(ReasonMalformedPayload, "invalid user data", nil)
	}
	if err := validate.Var(identity.Email, "required,email"); err != nil {
		return newError(ReasonMalformedPayload, "invalid user data", err)
	}
	return nil
}
