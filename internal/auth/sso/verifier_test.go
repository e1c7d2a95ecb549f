package sso

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "crowdpen-shared-secret"

var fixedNow = time.UnixMilli(1_760_000_000_000)

func newStrictVerifier(t *testing.T, opts ...VerifierOption) *Verifier {
	t.Helper()
	opts = append([]VerifierOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	v, err := NewVerifier(testSecret, PolicyStrict, opts...)
	require.NoError(t, err)
	return v
}

func signedAssertion(payload string, issued time.Time) Assertion {
	ts := strconv.FormatInt(issued.UnixMilli(), 10)
	return Assertion{
		UserData:    payload,
		CallbackURL: "/dashboard",
		Timestamp:   Timestamp(ts),
		Signature:   Sign([]byte(testSecret), ts, payload),
	}
}

const validPayload = `{"id":"cp-42","email":"Writer@Crowdpen.test","name":"Ada Writer"}`

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "expected *sso.Error, got %T", err)
	return e.Reason
}

func TestVerify_Valid(t *testing.T) {
	v := newStrictVerifier(t)

	rec, err := v.Verify(signedAssertion(validPayload, fixedNow.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "cp-42", rec.SubjectID)
	assert.Equal(t, "Ada Writer", rec.DisplayName)

	id := rec.Identity()
	assert.Equal(t, "writer@crowdpen.test", id.Email)
	assert.Equal(t, "crowdpen", id.Provider)
}

func TestVerify_NumericSubjectID(t *testing.T) {
	v := newStrictVerifier(t)

	rec, err := v.Verify(signedAssertion(`{"id":1234,"email":"a@b.co"}`, fixedNow))
	require.NoError(t, err)
	assert.Equal(t, "1234", rec.SubjectID)
}

func TestVerify_SignatureFormat(t *testing.T) {
	v := newStrictVerifier(t)
	good := signedAssertion(validPayload, fixedNow)

	for name, sig := range map[string]string{
		"empty":     "",
		"uppercase": strings.ToUpper(good.Signature),
		"short":     good.Signature[:63],
		"long":      good.Signature + "0",
		"non-hex":   strings.Repeat("g", 64),
		"base64":    "q83vEjRWeJq83vEjRWeJq83vEjRWeJq83vEjRWeJq83=",
	} {
		t.Run(name, func(t *testing.T) {
			a := good
			a.Signature = sig
			_, err := v.Verify(a)
			assert.Equal(t, ReasonInvalidSignature, reasonOf(t, err))
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestVerify_MalformedSignatureWinsOverTimestamp(t *testing.T) {
	v := newStrictVerifier(t)

	cases := map[string]struct {
		ts  Timestamp
		sig string
	}{
		"missing ts, non-hex sig":  {"", "not-hex"},
		"ancient ts, short sig":    {"1", "XYZ"},
		"future ts, empty sig":     {Timestamp(strconv.FormatInt(fixedNow.Add(time.Hour).UnixMilli(), 10)), ""},
		"stale ts, uppercase sig":  {Timestamp(strconv.FormatInt(fixedNow.Add(-time.Hour).UnixMilli(), 10)), strings.Repeat("A", 64)},
		"garbled ts, too long sig": {"yesterday", strings.Repeat("a", 65)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(Assertion{UserData: validPayload, Timestamp: tc.ts, Signature: tc.sig})
			assert.ErrorIs(t, err, ErrInvalidSignature)
			assert.Equal(t, ReasonInvalidSignature, reasonOf(t, err))
		})
	}
}

func TestVerify_WellFormedSignatureStaleTimestamp(t *testing.T) {
	v := newStrictVerifier(t)

	_, err := v.Verify(signedAssertion(validPayload, fixedNow.Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrStaleOrMissingTimestamp)
}

func TestVerify_SignatureMismatch(t *testing.T) {
	v := newStrictVerifier(t)

	a := signedAssertion(validPayload, fixedNow)
	a.UserData = `{"id":"cp-1","email":"admin@crowdpen.test"}`
	_, err := v.Verify(a)
	assert.Equal(t, ReasonInvalidSignature, reasonOf(t, err))

	other := signedAssertion(validPayload, fixedNow)
	other.Signature = Sign([]byte("wrong-secret"), string(other.Timestamp), other.UserData)
	_, err = v.Verify(other)
	assert.Equal(t, ReasonInvalidSignature, reasonOf(t, err))
}

func TestVerify_Timestamp(t *testing.T) {
	v := newStrictVerifier(t, WithFreshnessWindow(5*time.Minute), WithFutureSkew(30*time.Second))

	cases := map[string]struct {
		issued time.Time
		ok     bool
	}{
		"fresh":             {fixedNow.Add(-4 * time.Minute), true},
		"at window edge":    {fixedNow.Add(-5 * time.Minute), true},
		"stale":             {fixedNow.Add(-5*time.Minute - time.Millisecond), false},
		"small future skew": {fixedNow.Add(20 * time.Second), true},
		"future":            {fixedNow.Add(time.Minute), false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(signedAssertion(validPayload, tc.issued))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, ReasonStaleOrMissingTimestamp, reasonOf(t, err))
		})
	}
}

func TestVerify_MissingOrGarbledTimestamp(t *testing.T) {
	v := newStrictVerifier(t)

	a := signedAssertion(validPayload, fixedNow)
	a.Timestamp = ""
	_, err := v.Verify(a)
	assert.Equal(t, ReasonStaleOrMissingTimestamp, reasonOf(t, err))

	a.Timestamp = "yesterday"
	_, err = v.Verify(a)
	assert.Equal(t, ReasonStaleOrMissingTimestamp, reasonOf(t, err))
}

func TestVerify_OversizedBeforeSignature(t *testing.T) {
	v := newStrictVerifier(t)

	a := Assertion{
		UserData:  strings.Repeat("x", DefaultMaxPayload+1),
		Signature: "not-even-hex",
	}
	_, err := v.Verify(a)
	assert.Equal(t, ReasonOversizedPayload, reasonOf(t, err))
	assert.Equal(t, 413, AsError(err).HTTPStatus())
}

func TestVerify_PayloadLimitCountsCharacters(t *testing.T) {
	v := newStrictVerifier(t, WithMaxPayload(100))

	// 60 two-byte runes: 120 bytes but 60 characters.
	name := strings.Repeat("é", 60)
	payload := `{"id":"1","email":"a@b.co","name":"` + name + `"}`
	require.Greater(t, len(payload), 100)

	_, err := v.Verify(signedAssertion(payload, fixedNow))
	assert.NoError(t, err)
}

func TestVerify_PayloadLimitCountsUTF16Units(t *testing.T) {
	v := newStrictVerifier(t, WithMaxPayload(100))

	// Each emoji is one rune but two UTF-16 code units.
	name := strings.Repeat("😀", 40)
	payload := `{"id":"1","email":"a@b.co","name":"` + name + `"}`
	require.LessOrEqual(t, len([]rune(payload)), 100)

	_, err := v.Verify(signedAssertion(payload, fixedNow))
	assert.Equal(t, ReasonOversizedPayload, reasonOf(t, err))
}

func TestVerify_MalformedPayload(t *testing.T) {
	v := newStrictVerifier(t)

	for name, payload := range map[string]string{
		"not json":      `{"id":`,
		"missing id":    `{"email":"a@b.co"}`,
		"missing email": `{"id":"cp-1"}`,
		"bad email":     `{"id":"cp-1","email":"not-an-email"}`,
		"array":         `[1,2,3]`,
		"trailing junk": `{"id":"1","email":"a@b.co"} trailing junk`,
		"second value":  `{"id":"1","email":"a@b.co"}{"id":"2","email":"c@d.co"}`,
		"stray brace":   `{"id":"1","email":"a@b.co"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(signedAssertion(payload, fixedNow))
			assert.Equal(t, ReasonMalformedPayload, reasonOf(t, err))
		})
	}
}

func TestVerify_TrailingWhitespaceAccepted(t *testing.T) {
	v := newStrictVerifier(t)

	_, err := v.Verify(signedAssertion(validPayload+"\n  ", fixedNow))
	assert.NoError(t, err)
}

func TestVerify_ReplayWithinWindowAccepted(t *testing.T) {
	v := newStrictVerifier(t)
	a := signedAssertion(validPayload, fixedNow)

	_, err := v.Verify(a)
	require.NoError(t, err)
	_, err = v.Verify(a)
	assert.NoError(t, err)
}

func TestVerify_PermissiveSkipsSignature(t *testing.T) {
	v, err := NewVerifier("", PolicyPermissive)
	require.NoError(t, err)

	rec, err := v.Verify(Assertion{UserData: validPayload})
	require.NoError(t, err)
	assert.Equal(t, "cp-42", rec.SubjectID)

	_, err = v.Verify(Assertion{UserData: strings.Repeat("x", DefaultMaxPayload+1)})
	assert.Equal(t, ReasonOversizedPayload, reasonOf(t, err))

	_, err = v.Verify(Assertion{UserData: `{"id":"x"}`})
	assert.Equal(t, ReasonMalformedPayload, reasonOf(t, err))
}

func TestNewVerifier_StrictNeedsSecret(t *testing.T) {
	_, err := NewVerifier("", PolicyStrict)
	assert.ErrorIs(t, err, ErrSecretMissing)
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	var a Assertion
	require.NoError(t, json.Unmarshal([]byte(`{"userData":"{}","ts":1760000000000,"sig":"ab"}`), &a))
	assert.Equal(t, Timestamp("1760000000000"), a.Timestamp)

	require.NoError(t, json.Unmarshal([]byte(`{"ts":"1760000000001"}`), &a))
	assert.Equal(t, Timestamp("1760000000001"), a.Timestamp)

	require.NoError(t, json.Unmarshal([]byte(`{"ts":null}`), &a))
	assert.Equal(t, Timestamp(""), a.Timestamp)
}

func TestSign_KnownVector(t *testing.T) {
	// hex(HMAC-SHA256("key", "1." + "payload"))
	sig := Sign([]byte("key"), "1", "payload")
	assert.Len(t, sig, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig)
	assert.Equal(t, sig, Sign([]byte("key"), "1", "payload"))
	assert.NotEqual(t, sig, Sign([]byte("key"), "2", "payload"))
}

func TestError_HTTPStatus(t *testing.T) {
	assert.Equal(t, 401, newError(ReasonInvalidSignature, "", nil).HTTPStatus())
	assert.Equal(t, 401, newError(ReasonStaleOrMissingTimestamp, "", nil).HTTPStatus())
	assert.Equal(t, 400, newError(ReasonMalformedPayload, "", nil).HTTPStatus())
	assert.Equal(t, 500, newError(ReasonPersistenceFailure, "", nil).HTTPStatus())
	assert.Equal(t, 401, newError(ReasonAuthenticationFailed, "", nil).HTTPStatus())
	assert.ErrorIs(t, newError(ReasonAuthenticationFailed, "", nil), ErrAuthenticationFailed)

	wrapped := AsError(errors.New("boom"))
	assert.Equal(t, ReasonPersistenceFailure, wrapped.Reason)
	assert.ErrorIs(t, wrapped, ErrPersistenceFailure)
}
