package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	pkceCookieName = "__Host-oauth-pkce"
	pkceTTL        = 5 * time.Minute
)

func generatePKCE(c *gin.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	verifier := base64.RawURLEncoding.EncodeToString(b)
	setFlowCookie(c, pkceCookieName, verifier, int(pkceTTL.Seconds()))
	return pkceChallenge(verifier), nil
}

// pkceChallenge is the S256 transform of a verifier.
func pkceChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func getPKCEVerifier(c *gin.Context) string {
	cookie, err := c.Request.Cookie(pkceCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
