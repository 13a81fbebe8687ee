package session

import (
	"context"
	"errors"
	"fmt"

	"qrattend/internal/store"
)

// Role of the logged-in user.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var (
	ErrNotLoggedIn = errors.New("no user logged in")
	ErrUnknownRole = errors.New("unknown role")
)

// Identity is the process-wide "who is logged in" state, persisted under
// the loggedInUser/role keys by the login flow and read by every page.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Load reads the persisted identity. ErrNotLoggedIn when either key is
// absent or empty.
func Load(ctx context.Context, kv store.KV) (Identity, error) {
	user, ok, err := kv.Get(ctx, store.KeyLoggedInUser)
	if err != nil {
		return Identity{}, err
	}
	if !ok || user == "" {
		return Identity{}, ErrNotLoggedIn
	}
	roleRaw, ok, err := kv.Get(ctx, store.KeyRole)
	if err != nil {
		return Identity{}, err
	}
	if !ok || roleRaw == "" {
		return Identity{}, ErrNotLoggedIn
	}
	role, err := ParseRole(roleRaw)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Username: user, Role: role}, nil
}

// Save persists the identity for Load.
func Save(ctx context.Context, kv store.KV, id Identity) error {
	if id.Username == "" {
		return errors.New("username required")
	}
	if _, err := ParseRole(string(id.Role)); err != nil {
		return err
	}
	if err := kv.Set(ctx, store.KeyLoggedInUser, id.Username); err != nil {
		return err
	}
	return kv.Set(ctx, store.KeyRole, string(id.Role))
}

// Clear removes the persisted identity.
func Clear(ctx context.Context, kv store.KV) error {
	if err := kv.Delete(ctx, store.KeyLoggedInUser); err != nil {
		return err
	}
	return kv.Delete(ctx, store.KeyRole)
}
