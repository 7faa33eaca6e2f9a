package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listings/internal/core"
)

// GrantAdmin marks the user with email as an administrator, creating the
// user when none exists.
func (s *Store) GrantAdmin(ctx context.Context, email string) (*core.User, error) {
	const q = `
		INSERT INTO users (id, email, is_admin, created_at)
		VALUES ($1, $2, true, now())
		ON CONFLICT (email) DO UPDATE SET is_admin = true
		RETURNING ` + userColumns

	return (&UserRepo{db: s.pool}).findOne(ctx, q, core.ToPgUUID(uuid.New()), email)
}
