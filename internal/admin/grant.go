// Package admin provides operator tasks that run outside the HTTP API.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listings/internal/core"
)

// GrantTimeout is the maximum duration for a grant against the store.
const GrantTimeout = 30 * time.Second

// ErrInvalidEmail is returned when the email to grant is unusable.
var ErrInvalidEmail = errors.New("admin: invalid email")

// Granter is implemented by stores that can promote a user to administrator.
type Granter interface {
	GrantAdmin(ctx context.Context, email string) (*core.User, error)
}

// Signer issues bearer tokens for a user.
type Signer interface {
	Sign(userID uuid.UUID, ttl time.Duration) (string, error)
}

// Grant is the outcome of Provision.
type Grant struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
}

// Provision promotes (or creates) the administrator identified by email and
// signs a token valid for ttl. Emails are normalized the way imports
// normalize owner emails, so a later import for the same address resolves to
// this user.
func Provision(ctx context.Context, g Granter, s Signer, email string, ttl time.Duration) (*Grant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("admin: token ttl must be positive, got %s", ttl)
	}

	ctx, cancel := context.WithTimeout(ctx, GrantTimeout)
	defer cancel()

	u, err := g.GrantAdmin(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("grant admin %s: %w", email, err)
	}

	token, err := s.Sign(u.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Grant{User: *u, Token: token, ExpiresAt: time.Now().Add(ttl)}, nil
}
