package middleware

import (
	"context"
	"net/http"
	"time"

	"marketplace-auth/internal/idle"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/session"
)

// unexported, collision-proof context key
type sessionContextKeyType struct{}

var sessionKey = sessionContextKeyType{}

// SessionFromContext returns the authenticated session attached by RequireAuth.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return s.UserID, true
}

// WithSession attaches a session to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

type AuthMiddleware struct {
	Store       session.Store
	Markers     idle.Markers
	Policy      idle.Policy
	EnforceIdle bool
	Cookies     session.CookieOptions
	Metrics     *metrics.Metrics

	now func() time.Time
}

func NewAuthMiddleware(
	store session.Store,
	markers idle.Markers,
	policy idle.Policy,
	enforceIdle bool,
	m *metrics.Metrics,
) *AuthMiddleware {
	return &AuthMiddleware{
		Store:       store,
		Markers:     markers,
		Policy:      policy,
		EnforceIdle: enforceIdle,
		Cookies:     session.DefaultCookieOptions(),
		Metrics:     m,
		now:         time.Now,
	}
}

// Authenticate loads the session behind the request cookie. Anonymous,
// unknown, expired and idle-expired requests yield (nil, nil); the latter
// two also delete the session and clear the cookies.
func (a *AuthMiddleware) Authenticate(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	sessionID := cookie.Value

	sess, err := a.Store.Get(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	now := a.now()

	if sess.Expired(now) {
		a.terminate(w, r, sessionID)
		return nil, nil
	}

	if a.EnforceIdle && a.Markers != nil {
		last, ok, err := a.Markers.For(sessionID).Load(r.Context())
		if err != nil {
			// Marker outages must not log everyone out.
			logger.Warn("activity marker unavailable", map[string]any{
				"sid":   logger.Prefix(sessionID),
				"error": err.Error(),
			})
		} else if ok && a.Policy.StateAt(now.Sub(last)) == idle.StateLoggedOut {
			logger.Info("session idle-expired", map[string]any{
				"sid":     logger.Prefix(sessionID),
				"user_id": sess.UserID,
			})
			if a.Metrics != nil {
				a.Metrics.IdleExpirations.Inc()
			}
			a.terminate(w, r, sessionID)
			return nil, nil
		}
	}

	return sess, nil
}

func (a *AuthMiddleware) terminate(w http.ResponseWriter, r *http.Request, sessionID string) {
	_ = a.Store.Delete(r.Context(), sessionID)
	if a.Markers != nil {
		_ = a.Markers.For(sessionID).Clear(r.Context())
	}
	session.ClearCookies(w, a.Cookies)
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.Authenticate(w, r)
		if err != nil {
			// An outage is not a logout.
			logger.Error("session lookup failed", map[string]any{
				"error": err.Error(),
			})
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}
