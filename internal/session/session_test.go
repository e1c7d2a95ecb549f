package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func testSession(id string) Session {
	now := time.Now()
	return Session{
		SessionID: id,
		UserID:    "user-1",
		Email:     "writer@crowdpen.test",
		CSRFToken: "csrf",
		CreatedAt: now,
		ExpiresAt: now.Add(MaxAge),
	}
}

func TestRedisStore_CreateGetDelete(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("sid-1")))
	assert.True(t, mr.Exists("session:sid-1"))
	assert.InDelta(t, MaxAge.Seconds(), mr.TTL("session:sid-1").Seconds(), 5)

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "writer@crowdpen.test", got.Email)

	require.NoError(t, store.Delete(ctx, "sid-1"))
	got, err = store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_CreateRejectsInvalid(t *testing.T) {
	store, _ := newStore(t)

	err := store.Create(context.Background(), Session{SessionID: "sid"})
	assert.ErrorIs(t, err, ErrInvalidSession)

	s := testSession("sid")
	s.ExpiresAt = time.Now().Add(-time.Second)
	assert.Error(t, store.Create(context.Background(), s))
}

func TestRedisStore_CreateCollision(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("sid")))
	assert.ErrorContains(t, store.Create(ctx, testSession("sid")), "collision")
}

func TestRedisStore_UpdateExpiredDeletes(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	s := testSession("sid")
	require.NoError(t, store.Create(ctx, s))

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Update(ctx, s))
	assert.False(t, mr.Exists("session:sid"))
}

func TestRedisStore_GetCorrupt(t *testing.T) {
	store, mr := newStore(t)
	require.NoError(t, mr.Set("session:bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestCSRF_IssueVerify(t *testing.T) {
	csrf := NewCSRF("csrf-secret")

	token, cookie, err := csrf.Issue()
	require.NoError(t, err)
	assert.Equal(t, token, TokenFromCookie(cookie))
	assert.NoError(t, csrf.Verify(cookie, token))

	assert.ErrorIs(t, csrf.Verify(cookie, "other"), ErrCSRFMismatch)
	assert.ErrorIs(t, csrf.Verify(token+"|deadbeef", token), ErrCSRFMismatch)
	assert.ErrorIs(t, csrf.Verify("", token), ErrCSRFMismatch)
	assert.ErrorIs(t, NewCSRF("other-secret").Verify(cookie, token), ErrCSRFMismatch)
}

func TestCSRF_MissingSecret(t *testing.T) {
	_, _, err := NewCSRF("").Issue()
	assert.ErrorIs(t, err, ErrCSRFSecretMissing)
}

func TestSetCookies(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookies(w, Cookies{
		SessionID:   "sid",
		CSRF:        "tok|mac",
		CallbackURL: "/products?id=7",
	}, DefaultCookieOptions())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
		assert.True(t, c.HttpOnly, c.Name)
		assert.True(t, c.Secure, c.Name)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite, c.Name)
		assert.Equal(t, "/", c.Path, c.Name)
		assert.Equal(t, 30*24*60*60, c.MaxAge, c.Name)
	}
	assert.Equal(t, "sid", byName[CookieName].Value)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(byName[CallbackCookieName])
	assert.Equal(t, "/products?id=7", CallbackURL(r))
}

func TestClearCookies(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCookies(w, CookieOptions{Secure: true})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)
	for _, c := range cookies {
		assert.Equal(t, -1, c.MaxAge)
		assert.Empty(t, c.Value)
		assert.True(t, c.HttpOnly)
	}
}
