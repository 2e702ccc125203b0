package permission

import (
	"context"
	"time"

	"github.com/supremind/svcaccess/types"
)

var _ types.PermissionCache = (*thinCache)(nil)

type cachedSet struct {
	day   time.Time
	perms types.PermissionSet
}

// thinCache keeps permission sets in a map, it is not safe for concurrent use
type thinCache struct {
	byUser map[int64]cachedSet
}

func newThinCache() *thinCache {
	return &thinCache{
		byUser: make(map[int64]cachedSet),
	}
}

func (c *thinCache) Load(_ context.Context, userID int64, today time.Time) (types.PermissionSet, bool, error) {
	cs, ok := c.byUser[userID]
	if !ok {
		return nil, false, nil
	}
	if !cs.day.Equal(types.DateOf(today)) {
		delete(c.byUser, userID)
		return nil, false, nil
	}
	return cs.perms, true, nil
}

func (c *thinCache) Save(_ context.Context, userID int64, today time.Time, perms types.PermissionSet) error {
	c.byUser[userID] = cachedSet{day: types.DateOf(today), perms: perms}
	return nil
}

func (c *thinCache) Invalidate(_ context.Context, userID int64) error {
	delete(c.byUser, userID)
	return nil
}
