package core

import (
	"context"

	"github.com/google/uuid"
)

// AdminGate authorizes mutating calls. It is checked before any validation
// or storage work.
type AdminGate struct {
	users UserRepository
}

// NewAdminGate creates a gate that reads the administrator flag from users.
func NewAdminGate(users UserRepository) *AdminGate {
	return &AdminGate{users: users}
}

// RequireAdmin returns nil when callerID belongs to an administrator and
// ErrForbidden otherwise. Unknown and nil callers are forbidden.
func (g *AdminGate) RequireAdmin(ctx context.Context, callerID uuid.UUID) error {
	if callerID == uuid.Nil {
		return ErrForbidden
	}
	u, err := g.users.FindUserByID(ctx, callerID)
	if err != nil {
		return persistErr("load caller", err)
	}
	if u == nil || !u.IsAdmin {
		return ErrForbidden
	}
	return nil
}
