package sso

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"marketplace-auth/internal/logger"
)

const (
	DefaultFreshnessWindow = 5 * time.Minute
	DefaultFutureSkew      = 30 * time.Second
	DefaultMaxPayload      = 20000
)

// VerificationPolicy decides whether timestamp and signature checks run.
type VerificationPolicy int

const (
	// PolicyStrict requires a fresh ts and a valid sig. It is the zero value.
	PolicyStrict VerificationPolicy = iota
	// PolicyPermissive skips ts/sig checks for local testing. Never used in production.
	PolicyPermissive
)

func (p VerificationPolicy) String() string {
	if p == PolicyPermissive {
		return "permissive"
	}
	return "strict"
}

var sigPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Timestamp is the assertion issue time in Unix milliseconds as it appeared
// on the wire. The raw text is kept because it is part of the signed message.
type Timestamp string

// UnmarshalJSON accepts both 1700000000000 and "1700000000000".
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Timestamp(n.String())
	return nil
}

// Assertion is the inbound SSO payload.
type Assertion struct {
	UserData    string    `json:"userData" form:"userData"`
	CallbackURL string    `json:"callbackUrl" form:"callbackUrl"`
	Timestamp   Timestamp `json:"ts" form:"ts"`
	Signature   string    `json:"sig" form:"sig"`
}

type VerifierOption func(*Verifier)

func WithFreshnessWindow(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.window = d }
}

func WithFutureSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.skew = d }
}

func WithMaxPayload(n int) VerifierOption {
	return func(v *Verifier) { v.maxPayload = n }
}

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// Verifier validates signed identity assertions. It has no side effects.
type Verifier struct {
	secret     []byte
	policy     VerificationPolicy
	window     time.Duration
	skew       time.Duration
	maxPayload int
	now        func() time.Time
}

var ErrSecretMissing = errors.New("sso: shared secret is required for strict verification")

func NewVerifier(secret string, policy VerificationPolicy, opts ...VerifierOption) (*Verifier, error) {
	if policy == PolicyStrict && secret == "" {
		return nil, ErrSecretMissing
	}

	v := &Verifier{
		secret:     []byte(secret),
		policy:     policy,
		window:     DefaultFreshnessWindow,
		skew:       DefaultFutureSkew,
		maxPayload: DefaultMaxPayload,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Verifier) Policy() VerificationPolicy {
	return v.policy
}

// Verify checks size, signature format, freshness, signature value and
// shape, in that order. A malformed sig is always InvalidSignature, whatever
// the timestamp.
func (v *Verifier) Verify(a Assertion) (*IdentityRecord, error) {
	if payloadLength(a.UserData) > v.maxPayload {
		return nil, newError(ReasonOversizedPayload, "payload too large", nil)
	}

	if v.policy == PolicyStrict {
		if !sigPattern.MatchString(a.Signature) {
			return nil, newError(ReasonInvalidSignature, "invalid signature", nil)
		}
		if err := v.checkTimestamp(a.Timestamp); err != nil {
			return nil, err
		}
		if err := v.checkSignature(a); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("sso assertion accepted without signature checks", map[string]any{
			"policy":  v.policy.String(),
			"has_sig": a.Signature != "",
		})
	}

	return decodeIdentity(a.UserData)
}

func (v *Verifier) checkTimestamp(ts Timestamp) error {
	raw := strings.TrimSpace(string(ts))
	if raw == "" {
		return newError(ReasonStaleOrMissingTimestamp, "missing timestamp", nil)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return newError(ReasonStaleOrMissingTimestamp, "invalid timestamp", err)
	}

	issued := time.UnixMilli(ms)
	now := v.now()

	if now.Sub(issued) > v.window {
		return newError(ReasonStaleOrMissingTimestamp, "timestamp expired", nil)
	}
	if issued.Sub(now) > v.skew {
		return newError(ReasonStaleOrMissingTimestamp, "timestamp in the future", nil)
	}
	return nil
}

func (v *Verifier) checkSignature(a Assertion) error {
	expected := Sign(v.secret, string(a.Timestamp), a.UserData)
	if !hmac.Equal([]byte(expected), []byte(a.Signature)) {
		return newError(ReasonInvalidSignature, "invalid signature", nil)
	}
	return nil
}

// payloadLength counts UTF-16 code units, the unit browsers and the identity
// provider measure string length in.
func payloadLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Sign returns hex(HMAC-SHA256(secret, ts + "." + payload)), the signature
// the identity provider attaches to an assertion.
func Sign(secret []byte, ts, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
