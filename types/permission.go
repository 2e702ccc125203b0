package types

import (
	"context"
	"time"
)

// PresetPolicy allows user to do act on target without any role object permission.
// target could be nil for actions not bound to an object.
type PresetPolicy func(user *User, act Action, target *EntityRef) bool

// PermissionChecker tells if a user may do an action on an object
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, act Action, target *EntityRef) (bool, error)

	// Invalidate forgets anything cached about user, called whenever their grants change
	Invalidate(ctx context.Context, userID int64) error
}

// PermissionSet is what a user may do on each object
type PermissionSet map[EntityRef]Action

// PermissionCache keeps computed permission sets per user.
// A set computed on one day is not valid on another, since grants expire by date.
type PermissionCache interface {
	Load(ctx context.Context, userID int64, today time.Time) (PermissionSet, bool, error)
	Save(ctx context.Context, userID int64, today time.Time, perms PermissionSet) error
	Invalidate(ctx context.Context, userID int64) error
}
