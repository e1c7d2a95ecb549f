package resolver

import (
	"context"

	"marketplace-auth/internal/auth"
)

// Resolver determines which internal user an external identity belongs to,
// creating or updating the local user record as needed.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity *auth.Identity,
	) (userID string, err error)
}
