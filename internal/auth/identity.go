package auth

// Identity represents a normalized external authentication identity,
// either from a signed SSO assertion or an OAuth provider.
// It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "crowdpen", "oidc"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string
	EmailVerified  bool
	Name           string // display name, may be empty
	Image          string // avatar url, may be empty
}

// ProviderCrowdpen is the provider name recorded for SSO assertions.
const ProviderCrowdpen = "crowdpen"
