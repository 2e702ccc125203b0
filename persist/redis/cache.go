// Package redis shares computed permission sets between processes through a redis server
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/supremind/svcaccess/types"
)

const dayLayout = "2006-01-02"

var _ types.PermissionCache = (*Cache)(nil)

// Cache keeps one permission set per user, tagged with the day it was computed on
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logr.Logger
}

// CacheOption changes a Cache
type CacheOption func(*Cache)

// WithPrefix sets the prefix of keys, "svcaccess:perms:" by default
func WithPrefix(prefix string) CacheOption {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithTTL sets how long an entry lives at most, a day by default
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger of the cache
func WithLogger(l logr.Logger) CacheOption {
	return func(c *Cache) {
		c.log = l
	}
}

// Connect creates a client of the server at addr and pings it
func Connect(ctx context.Context, addr, password string, db int, opts ...CacheOption) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if e := client.Ping(ctx).Err(); e != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", addr, e)
	}

	return New(client, opts...), nil
}

// New creates a Cache over a client
func New(client redis.UniversalClient, opts ...CacheOption) *Cache {
	c := &Cache{
		client: client,
		prefix: "svcaccess:perms:",
		ttl:    24 * time.Hour,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close the client
func (c *Cache) Close() error {
	return c.client.Close()
}

// entry is how a permission set is stored, refs in their string form
type entry struct {
	Day   string                  `json:"day"`
	Perms map[string]types.Action `json:"perms"`
}

func (c *Cache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

func (c *Cache) Load(ctx context.Context, userID int64, today time.Time) (types.PermissionSet, bool, error) {
	raw, e := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(e, redis.Nil) {
		return nil, false, nil
	}
	if e != nil {
		return nil, false, fmt.Errorf("load permissions of user %d: %w", userID, e)
	}

	var en entry
	if e := json.Unmarshal(raw, &en); e != nil {
		c.log.Error(e, "drop undecodable permission set", "user", userID)
		return nil, false, c.Invalidate(ctx, userID)
	}
	if en.Day != types.DateOf(today).Format(dayLayout) {
		return nil, false, c.Invalidate(ctx, userID)
	}

	perms := make(types.PermissionSet, len(en.Perms))
	for s, act := range en.Perms {
		ref, e := types.ParseEntityRef(s)
		if e != nil {
			c.log.Error(e, "drop permission set with a bad target", "user", userID)
			return nil, false, c.Invalidate(ctx, userID)
		}
		perms[ref] = act
	}
	return perms, true, nil
}

func (c *Cache) Save(ctx context.Context, userID int64, today time.Time, perms types.PermissionSet) error {
	en := entry{
		Day:   types.DateOf(today).Format(dayLayout),
		Perms: make(map[string]types.Action, len(perms)),
	}
	for ref, act := range perms {
		en.Perms[ref.String()] = act
	}

	raw, e := json.Marshal(en)
	if e != nil {
		return fmt.Errorf("encode permissions of user %d: %w", userID, e)
	}
	if e := c.client.Set(ctx, c.key(userID), raw, c.ttl).Err(); e != nil {
		return fmt.Errorf("save permissions of user %d: %w", userID, e)
	}
	c.log.V(4).Info("permissions cached", "user", userID, "targets", len(perms))
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if e := c.client.Del(ctx, c.key(userID)).Err(); e != nil {
		return fmt.Errorf("invalidate permissions of user %d: %w", userID, e)
	}
	return nil
}
