package permission

import (
	"context"
	"errors"

	"github.com/supremind/svcaccess/types"
)

type checkerWithPreset struct {
	presets []types.PresetPolicy
	store   types.Store
	types.PermissionChecker
}

func newWithPresetPolicies(c types.PermissionChecker, store types.Store, presets ...types.PresetPolicy) types.PermissionChecker {
	return &checkerWithPreset{
		presets:           presets,
		store:             store,
		PermissionChecker: c,
	}
}

func (c *checkerWithPreset) HasPermission(ctx context.Context, userID int64, act types.Action, target *types.EntityRef) (bool, error) {
	var user *types.User
	e := c.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		user, e = tx.GetUser(userID)
		return e
	})
	if errors.Is(e, types.ErrNotFound) {
		return false, nil
	}
	if e != nil {
		return false, e
	}
	if !user.IsActive {
		return false, nil
	}

	for _, p := range c.presets {
		if p(user, act, target) {
			return true, nil
		}
	}

	return c.PermissionChecker.HasPermission(ctx, userID, act, target)
}
