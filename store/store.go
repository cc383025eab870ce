package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrStorageUnavailable is returned when the persistence layer cannot be read or written
// (disabled storage, quota, permissions, network).
var ErrStorageUnavailable = errors.New("credential storage unavailable")

// ErrUnknownRole is returned when a role other than [RoleAccess] or [RoleRefresh] is used.
var ErrUnknownRole = errors.New("unknown credential role")

// Role names one of the two persisted credentials. The string value is the storage key.
type Role string

const (
	// RoleAccess is the short-lived credential sent with every authorized request.
	RoleAccess Role = "accessToken"
	// RoleRefresh is the long-lived credential sent only to the refresh endpoint.
	RoleRefresh Role = "refreshToken"
)

// Roles lists every persisted role in a stable order.
var Roles = []Role{RoleAccess, RoleRefresh}

// Valid reports whether r is one of the well-known roles.
func (r Role) Valid() bool {
	return r == RoleAccess || r == RoleRefresh
}

func (r Role) String() string {
	return string(r)
}

// Store is durable storage keyed by credential role. It performs no validation.
//
// Get returns ("", false, nil) when no value is stored. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, role Role) (string, bool, error)
	Set(ctx context.Context, role Role, value string) error
	Clear(ctx context.Context, role Role) error
	ClearAll(ctx context.Context) error
}

func unavailable(op string, role Role, err error) error {
	if role == "" {
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrStorageUnavailable, op, role, err)
}

func checkRole(role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
	return nil
}
