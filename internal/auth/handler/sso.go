package handler

import (
	"errors"
	"net/http"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/auth/sso"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
)

// Request bodies are capped well above the payload limit; the character
// count itself is enforced by the verifier.
const maxBodyBytes = 1 << 20

func (h *Handler) ssoJSON(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var a sso.Assertion
	if err := c.ShouldBindJSON(&a); err != nil {
		h.writeFailure(c, h.reject(c, bindError(err)))
		return
	}

	grant, err := h.establish(c, a)
	if err != nil {
		h.writeFailure(c, sso.AsError(err))
		return
	}

	session.SetCookies(c.Writer, grant.Cookies(), h.cookies)
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"redirectUrl": grant.RedirectURL,
	})
}

// ssoRedirect is the browser-navigation variant: inputs arrive as query
// parameters and the answer is always a redirect.
func (h *Handler) ssoRedirect(c *gin.Context) {
	var a sso.Assertion
	if err := c.ShouldBindQuery(&a); err != nil {
		h.redirectFailure(c, h.reject(c, bindError(err)))
		return
	}

	grant, err := h.establish(c, a)
	if err != nil {
		h.redirectFailure(c, sso.AsError(err))
		return
	}

	session.SetCookies(c.Writer, grant.Cookies(), h.cookies)
	c.Redirect(http.StatusFound, grant.RedirectURL)
}

// establish verifies the assertion and provisions a session for it.
func (h *Handler) establish(c *gin.Context, a sso.Assertion) (*sso.Grant, error) {
	record, err := h.verifier.Verify(a)
	if err != nil {
		return nil, h.reject(c, err)
	}

	return h.provision(c, record.Identity(), a.CallbackURL)
}

func (h *Handler) provision(c *gin.Context, identity *auth.Identity, callbackURL string) (*sso.Grant, error) {
	grant, err := h.provisioner.Provision(c.Request.Context(), identity, callbackURL)
	if err != nil {
		return nil, h.reject(c, err)
	}

	if grant.RedirectRewritten {
		h.metrics.UnsafeRedirects.Inc()
	}
	h.metrics.AssertionsTotal.WithLabelValues("accepted", "").Inc()
	h.metrics.SessionsCreated.WithLabelValues(identity.Provider).Inc()

	return grant, nil
}

// reject records a failed login attempt and returns its tagged form.
func (h *Handler) reject(c *gin.Context, err error) *sso.Error {
	e := sso.AsError(err)

	h.metrics.AssertionsTotal.WithLabelValues("rejected", string(e.Reason)).Inc()
	logger.Warn("sso login rejected", map[string]any{
		"reason": e.Reason,
		"ip":     c.ClientIP(),
		"error":  e.Error(),
	})
	return e
}

func bindError(err error) *sso.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return sso.NewError(sso.ReasonOversizedPayload, "payload too large", err)
	}
	return sso.NewError(sso.ReasonMalformedPayload, "invalid request body", err)
}
