// Package permission answers role object permission questions for the approver workflow
package permission

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/internal/chain"
	"github.com/supremind/svcaccess/types"
)

// NewMemoryCache creates a concurrent safe in-process permission cache
func NewMemoryCache() types.PermissionCache {
	return newSyncedCache(newThinCache())
}

// New creates a permission checker reading grants from store.
// Presets are consulted before any role object permission.
func New(store types.Store, cache types.PermissionCache, clk clock.Clock, l logr.Logger, presets ...types.PresetPolicy) types.PermissionChecker {
	if cache == nil {
		cache = NewMemoryCache()
	}

	var c types.PermissionChecker
	c = &checker{
		store: store,
		cache: cache,
		clock: clk,
		log:   l,
	}
	c = newWithPresetPolicies(c, store, presets...)

	return c
}

type checker struct {
	store types.Store
	cache types.PermissionCache
	clock clock.Clock
	log   logr.Logger
}

func (c *checker) HasPermission(ctx context.Context, userID int64, act types.Action, target *types.EntityRef) (bool, error) {
	c.log.V(6).Info("has permission", "user", userID, "action", act, "target", target)

	if target == nil {
		return false, nil
	}

	perms, e := c.permissionsOf(ctx, userID)
	if e != nil {
		return false, e
	}

	return perms[*target].Includes(act), nil
}

func (c *checker) permissionsOf(ctx context.Context, userID int64) (types.PermissionSet, error) {
	today := chain.Today(c.clock.Now())

	perms, ok, e := c.cache.Load(ctx, userID, today)
	if e != nil {
		c.log.Error(e, "load cached permissions", "user", userID)
	} else if ok {
		return perms, nil
	}

	var rops []types.RoleObjectPermission
	e = c.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		rops, e = tx.ObjectPermissionsOf(userID, today)
		return e
	})
	if e != nil {
		return nil, e
	}

	perms = make(types.PermissionSet, len(rops))
	for _, rop := range rops {
		perms[rop.Target] |= rop.Permission
	}
	c.log.V(4).Info("load permissions", "user", userID, "permissions", perms)

	if e := c.cache.Save(ctx, userID, today, perms); e != nil {
		c.log.Error(e, "cache permissions", "user", userID)
	}

	return perms, nil
}

func (c *checker) Invalidate(ctx context.Context, userID int64) error {
	c.log.V(4).Info("invalidate permissions", "user", userID)
	return c.cache.Invalidate(ctx, userID)
}
