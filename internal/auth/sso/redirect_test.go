package sso

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRedirect(t *testing.T) {
	origin, _ := url.Parse("https://market.example.com")

	cases := []struct {
		in     string
		want   string
		unsafe bool
	}{
		{"", "/", false},
		{"/", "/", false},
		{"/products/42?tab=reviews#top", "/products/42?tab=reviews#top", false},
		{"https://market.example.com/cart?step=2", "/cart?step=2", false},
		{"https://MARKET.example.com:443/orders", "/orders", false},
		{"https://market.example.com", "/", false},
		{"https://evil.example.com/phish", "/", true},
		{"http://market.example.com/cart", "/", true},
		{"https://market.example.com:8443/cart", "/", true},
		{"https://user@market.example.com/cart", "/", true},
		{"//evil.example.com/path", "/", true},
		{"/\\evil.example.com", "/", true},
		{"javascript:alert(1)", "/", true},
		{"relative/path", "/", true},
		{"/ok\r\nSet-Cookie: x=y", "/", true},
		{"/" + strings.Repeat("a", MaxRedirectLength), "/", true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := SafeRedirect(tc.in, origin)
			assert.Equal(t, tc.want, got)
			if tc.unsafe {
				assert.ErrorIs(t, err, ErrUnsafeRedirectTarget)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSafeRedirect_NoOriginRejectsAbsolute(t *testing.T) {
	got, err := SafeRedirect("https://market.example.com/cart", nil)
	assert.Equal(t, "/", got)
	assert.Error(t, err)

	got, err = SafeRedirect("/cart", nil)
	assert.Equal(t, "/cart", got)
	assert.NoError(t, err)
}
