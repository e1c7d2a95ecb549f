package handler

import (
	"net/http"
	"time"

	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/middleware"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
)

type userView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Provider string `json:"provider"`
}

type idleView struct {
	LimitMs      int64  `json:"limitMs"`
	WarningMs    int64  `json:"warningMs"`
	LastActivity *int64 `json:"lastActivity,omitempty"`
	RemainingMs  *int64 `json:"remainingMs,omitempty"`
	State        string `json:"state,omitempty"`
}

type sessionView struct {
	User    userView  `json:"user"`
	Expires time.Time `json:"expires"`
	Idle    idleView  `json:"idle"`
}

// getSession answers with {} for anonymous callers so collaborators can
// check for a login without handling errors.
func (h *Handler) getSession(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	c.JSON(http.StatusOK, sessionView{
		User: userView{
			ID:       sess.UserID,
			Email:    sess.Email,
			Name:     sess.Name,
			Image:    sess.Image,
			Provider: sess.Provider,
		},
		Expires: sess.ExpiresAt,
		Idle:    h.idleStatus(c, sess.SessionID, time.Now()),
	})
}

func (h *Handler) idleStatus(c *gin.Context, sessionID string, now time.Time) idleView {
	v := idleView{
		LimitMs:   h.policy.IdleLimit.Milliseconds(),
		WarningMs: h.policy.WarningWindow.Milliseconds(),
	}
	if h.markers == nil {
		return v
	}

	last, ok, err := h.markers.For(sessionID).Load(c.Request.Context())
	if err != nil || !ok {
		return v
	}

	elapsed := now.Sub(last)
	lastMs := last.UnixMilli()
	remainingMs := h.policy.Remaining(elapsed).Milliseconds()
	v.LastActivity = &lastMs
	v.RemainingMs = &remainingMs
	v.State = h.policy.StateAt(elapsed).String()
	return v
}

// csrfToken returns the session's token, re-issuing the cookie when the
// browser no longer holds a valid one.
func (h *Handler) csrfToken(c *gin.Context) {
	sess, _ := middleware.SessionFromContext(c.Request.Context())

	cookie, err := c.Request.Cookie(session.CSRFCookieName)
	if err == nil && h.csrf.Verify(cookie.Value, sess.CSRFToken) == nil {
		c.JSON(http.StatusOK, gin.H{"csrfToken": sess.CSRFToken})
		return
	}

	token, cookieValue, err := h.csrf.Issue()
	if err != nil {
		logger.Error("csrf issue failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "csrf unavailable"})
		return
	}

	updated := *sess
	updated.CSRFToken = token
	if err := h.sessions.Update(c.Request.Context(), updated); err != nil {
		logger.Error("csrf rotation failed", map[string]any{
			"sid":   logger.Prefix(sess.SessionID),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "csrf unavailable"})
		return
	}

	session.SetCSRFCookie(c.Writer, cookieValue, h.cookies)
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

// activity records user activity for the session, resetting the idle clock
// for every tab and instance watching its marker.
func (h *Handler) activity(c *gin.Context) {
	sess, _ := middleware.SessionFromContext(c.Request.Context())
	now := time.Now()

	if h.markers != nil {
		if err := h.markers.For(sess.SessionID).Touch(c.Request.Context(), now); err != nil {
			logger.Error("activity touch failed", map[string]any{
				"sid":   logger.Prefix(sess.SessionID),
				"error": err.Error(),
			})
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activity not recorded"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"lastActivity": now.UnixMilli(),
		"remainingMs":  h.policy.IdleLimit.Milliseconds(),
	})
}

// logoutAnonymous keeps logout idempotent: without a session there is
// nothing to protect, so cookies are cleared and the chain stops.
func (h *Handler) logoutAnonymous(c *gin.Context) {
	if _, ok := middleware.SessionFromContext(c.Request.Context()); ok {
		c.Next()
		return
	}

	session.ClearCookies(c.Writer, h.cookies)
	c.AbortWithStatus(http.StatusNoContent)
}

func (h *Handler) logout(c *gin.Context) {
	sess, _ := middleware.SessionFromContext(c.Request.Context())

	// best-effort; the cookies are cleared regardless
	if err := h.sessions.Delete(c.Request.Context(), sess.SessionID); err != nil {
		logger.Warn("session delete failed", map[string]any{
			"sid":   logger.Prefix(sess.SessionID),
			"error": err.Error(),
		})
	}
	if h.markers != nil {
		_ = h.markers.For(sess.SessionID).Clear(c.Request.Context())
	}

	session.ClearCookies(c.Writer, h.cookies)
	h.metrics.LogoutsTotal.Inc()

	logger.Info("logout", map[string]any{
		"user_id": sess.UserID,
		"sid":     logger.Prefix(sess.SessionID),
		"ip":      c.ClientIP(),
	})

	c.Status(http.StatusNoContent)
}
