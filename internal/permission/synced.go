package permission

import (
	"context"
	"sync"
	"time"

	"github.com/supremind/svcaccess/types"
)

var _ types.PermissionCache = (*syncedCache)(nil)

type syncedCache struct {
	c types.PermissionCache
	sync.RWMutex
}

// newSyncedCache makes the given cache safe in concurrent usages
func newSyncedCache(c types.PermissionCache) *syncedCache {
	if c == nil {
		c = newThinCache()
	}
	return &syncedCache{c: c}
}

func (c *syncedCache) Load(ctx context.Context, userID int64, today time.Time) (types.PermissionSet, bool, error) {
	// thin cache drops stale days on load
	c.Lock()
	defer c.Unlock()
	return c.c.Load(ctx, userID, today)
}

func (c *syncedCache) Save(ctx context.Context, userID int64, today time.Time, perms types.PermissionSet) error {
	c.Lock()
	defer c.Unlock()
	return c.c.Save(ctx, userID, today, perms)
}

func (c *syncedCache) Invalidate(ctx context.Context, userID int64) error {
	c.Lock()
	defer c.Unlock()
	return c.c.Invalidate(ctx, userID)
}
