package session

import (
	"net/http"
	"net/url"
)

const (
	CookieName         = "__Host-session"
	CSRFCookieName     = "__Host-csrf"
	CallbackCookieName = "__Host-callback-url"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

// DefaultCookieOptions is what every SSO cookie is issued with.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true // secure default
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Cookies is the set written after a successful login.
type Cookies struct {
	SessionID   string
	CSRF        string // full cookie value, see CSRF.Issue
	CallbackURL string
}

// SetCookies issues the session, csrf and callback-url cookies, all with MaxAge.
func SetCookies(w http.ResponseWriter, c Cookies, opts CookieOptions) {
	setCookie(w, CookieName, c.SessionID, int(MaxAge.Seconds()), opts)
	setCookie(w, CSRFCookieName, c.CSRF, int(MaxAge.Seconds()), opts)
	setCookie(w, CallbackCookieName, url.QueryEscape(c.CallbackURL), int(MaxAge.Seconds()), opts)
}

// SetCSRFCookie replaces only the csrf cookie, after the token is rotated.
func SetCSRFCookie(w http.ResponseWriter, cookieValue string, opts CookieOptions) {
	setCookie(w, CSRFCookieName, cookieValue, int(MaxAge.Seconds()), opts)
}

// SetCallbackCookie remembers a post-login redirect before an OAuth round trip.
func SetCallbackCookie(w http.ResponseWriter, callbackURL string, maxAge int, opts CookieOptions) {
	setCookie(w, CallbackCookieName, url.QueryEscape(callbackURL), maxAge, opts)
}

// CallbackURL reads the callback-url cookie, or "" if absent.
func CallbackURL(r *http.Request) string {
	cookie, err := r.Cookie(CallbackCookieName)
	if err != nil {
		return ""
	}
	v, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return v
}

// ClearCookies removes every cookie SetCookies issues.
func ClearCookies(w http.ResponseWriter, opts CookieOptions) {
	for _, name := range []string{CookieName, CSRFCookieName, CallbackCookieName} {
		setCookie(w, name, "", -1, opts)
	}
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
