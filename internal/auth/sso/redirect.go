package sso

import (
	"net/url"
	"strings"
)

// MaxRedirectLength caps callback targets; longer values fall back to "/".
const MaxRedirectLength = 2048

// SafeRedirect constrains a requested post-login target to a same-origin
// relative path. Anything it cannot prove safe becomes "/" together with an
// UnsafeRedirectTarget error the caller should log but not fail on.
func SafeRedirect(target string, origin *url.URL) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "/", nil
	}

	if len(target) > MaxRedirectLength {
		return "/", newError(ReasonUnsafeRedirectTarget, "redirect target too long", nil)
	}

	if strings.ContainsAny(target, "\\\r\n\t") || hasControl(target) {
		return "/", newError(ReasonUnsafeRedirectTarget, "redirect target has forbidden characters", nil)
	}

	u, err := url.Parse(target)
	if err != nil {
		return "/", newError(ReasonUnsafeRedirectTarget, "redirect target unparseable", err)
	}

	if u.Scheme == "" && u.Host == "" {
		// "//evil.example" parses as host-relative; only single-slash paths are kept.
		if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
			return "/", newError(ReasonUnsafeRedirectTarget, "redirect target is not rooted", nil)
		}
		return target, nil
	}

	if origin == nil || !sameOrigin(u, origin) {
		return "/", newError(ReasonUnsafeRedirectTarget, "redirect target is off-origin", nil)
	}

	rel := &url.URL{
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}
	out := rel.String()
	if !strings.HasPrefix(out, "/") || strings.HasPrefix(out, "//") {
		return "/", nil
	}
	return out, nil
}

func sameOrigin(u, origin *url.URL) bool {
	return strings.EqualFold(u.Scheme, origin.Scheme) &&
		strings.EqualFold(u.Hostname(), origin.Hostname()) &&
		effectivePort(u) == effectivePort(origin) &&
		u.User == nil
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
