package handler

import (
	"fmt"
	"net/http"

	"marketplace-auth/internal/auth/sso"
	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
)

// login starts an OIDC authorization code flow. The requested callbackUrl
// is remembered in a cookie and sanitized when the session is provisioned.
func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login unavailable"})
		return
	}
	codeChallenge, err := generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login unavailable"})
		return
	}

	if callbackURL := c.Query("callbackUrl"); callbackURL != "" {
		session.SetCallbackCookie(c.Writer, callbackURL, int(stateTTL.Seconds()), h.cookies)
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	codeVerifier := getPKCEVerifier(c)
	clearFlowCookies(c)

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		h.redirectFailure(c, h.reject(c, sso.NewError(
			sso.ReasonAuthenticationFailed, "authentication failed", fmt.Errorf("provider error: %s", errParam),
		)))
		return
	}

	code := c.Query("code")
	if code == "" || codeVerifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing code or pkce verifier",
		})
		return
	}

	identity, err := p.ExchangeCode(c.Request.Context(), code, codeVerifier)
	if err != nil {
		h.redirectFailure(c, h.reject(c, sso.NewError(sso.ReasonAuthenticationFailed, "authentication failed", err)))
		return
	}

	// Users are linked by email, so the provider must vouch for it.
	if !identity.EmailVerified {
		h.redirectFailure(c, h.reject(c, sso.NewError(sso.ReasonMalformedPayload, "email not verified", nil)))
		return
	}

	grant, err := h.provision(c, identity, session.CallbackURL(c.Request))
	if err != nil {
		h.redirectFailure(c, sso.AsError(err))
		return
	}

	session.SetCookies(c.Writer, grant.Cookies(), h.cookies)
	c.Redirect(http.StatusFound, grant.RedirectURL)
}
