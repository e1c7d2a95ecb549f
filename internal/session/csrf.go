package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrCSRFSecretMissing = errors.New("session: csrf secret not configured")
	ErrCSRFMismatch      = errors.New("session: csrf token mismatch")
)

// CSRF issues and checks the correlation token carried in the csrf cookie.
// The cookie value is "token|hex(hmac(secret, token))"; clients echo the
// plain token back in a header.
type CSRF struct {
	secret []byte
}

func NewCSRF(secret string) *CSRF {
	return &CSRF{secret: []byte(secret)}
}

// Issue returns a fresh token and the matching cookie value.
func (c *CSRF) Issue() (token, cookieValue string, err error) {
	if len(c.secret) == 0 {
		return "", "", ErrCSRFSecretMissing
	}

	token, err = randomToken(32)
	if err != nil {
		return "", "", err
	}
	return token, token + "|" + c.sign(token), nil
}

// Verify checks that cookieValue was issued by this CSRF and carries
// the presented token.
func (c *CSRF) Verify(cookieValue, presented string) error {
	if len(c.secret) == 0 {
		return ErrCSRFSecretMissing
	}

	token, mac, ok := strings.Cut(cookieValue, "|")
	if !ok || token == "" || presented == "" {
		return ErrCSRFMismatch
	}
	if !hmac.Equal([]byte(mac), []byte(c.sign(token))) {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(presented)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// TokenFromCookie returns the plain token part of a cookie value.
func TokenFromCookie(cookieValue string) string {
	token, _, _ := strings.Cut(cookieValue, "|")
	return token
}

func (c *CSRF) sign(token string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
