package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/db"

	"github.com/google/uuid"
)

var ErrNilIdentity = errors.New("resolver: identity is nil")

// DBResolver resolves identities against the users and identities tables.
// Lookup order: provider subject, then email (linking), then a new user.
// Profile fields are refreshed on every login.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", ErrNilIdentity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("resolver: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	userID, err := resolveTx(ctx, tx, identity)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("resolver: commit: %w", err)
	}

	return userID.String(), nil
}

func resolveTx(ctx context.Context, tx *sql.Tx, identity *auth.Identity) (uuid.UUID, error) {
	var userID uuid.UUID

	// 1. Known subject
	err := tx.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&userID)

	switch {
	case err == nil:
		return userID, touchProfile(ctx, tx, userID, identity)
	case !errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, fmt.Errorf("resolver: lookup identity: %w", err)
	}

	// 2. Existing user by email, new subject
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`,
		identity.Email,
	).Scan(&userID)

	switch {
	case err == nil:
		if err := linkIdentity(ctx, tx, userID, identity); err != nil {
			return uuid.Nil, err
		}
		return userID, touchProfile(ctx, tx, userID, identity)
	case !errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, fmt.Errorf("resolver: lookup user: %w", err)
	}

	// 3. New user
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, name, image, last_login_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`,
		identity.Email,
		identity.EmailVerified,
		identity.Name,
		identity.Image,
	).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolver: create user: %w", err)
	}

	if err := linkIdentity(ctx, tx, userID, identity); err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}

func linkIdentity(ctx context.Context, tx *sql.Tx, userID uuid.UUID, identity *auth.Identity) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)
	if err != nil {
		return fmt.Errorf("resolver: link identity: %w", err)
	}
	return nil
}

// touchProfile keeps the stored name and image when the assertion omits them.
func touchProfile(ctx context.Context, tx *sql.Tx, userID uuid.UUID, identity *auth.Identity) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE(NULLIF($2, ''), name),
		    image = COALESCE(NULLIF($3, ''), image),
		    email_verified = email_verified OR $4,
		    last_login_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`,
		userID,
		identity.Name,
		identity.Image,
		identity.EmailVerified,
	)
	if err != nil {
		return fmt.Errorf("resolver: update profile: %w", err)
	}
	return nil
}
