// Package ldap keeps account tags and posix group members in an LDAP directory
package ldap

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/go-logr/logr"

	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/types"
)

// ErrGidExhausted is returned when a group model has no gid number left
var ErrGidExhausted = errors.New("no gid number left in the range of the group model")

// Config of the directory connection
type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	UserBaseDN   string

	// TagAttribute holds account tags, "tag" by default
	TagAttribute string
}

type conn interface {
	Search(*goldap.SearchRequest) (*goldap.SearchResult, error)
	Modify(*goldap.ModifyRequest) error
	Add(*goldap.AddRequest) error
}

type dialFunc func() (conn, func(), error)

var (
	_ behaviour.TagDirectory   = (*Directory)(nil)
	_ behaviour.GroupDirectory = (*Directory)(nil)
)

// Directory is a TagDirectory and a GroupDirectory backed by LDAP.
// Every call binds a fresh connection.
type Directory struct {
	cfg  Config
	dial dialFunc
	log  logr.Logger
}

// New creates a Directory
func New(cfg Config, l logr.Logger) *Directory {
	if cfg.TagAttribute == "" {
		cfg.TagAttribute = "tag"
	}
	return &Directory{cfg: cfg, dial: dialer(cfg), log: l}
}

func dialer(cfg Config) dialFunc {
	return func() (conn, func(), error) {
		c, e := goldap.DialURL(cfg.URL)
		if e != nil {
			return nil, nil, fmt.Errorf("dial ldap %s: %w", cfg.URL, e)
		}
		if cfg.BindDN != "" {
			if e := c.Bind(cfg.BindDN, cfg.BindPassword); e != nil {
				c.Close()
				return nil, nil, fmt.Errorf("bind ldap as %s: %w", cfg.BindDN, e)
			}
		}
		return c, func() { c.Close() }, nil
	}
}

func (d *Directory) with(ctx context.Context, fn func(conn) error) error {
	if e := ctx.Err(); e != nil {
		return e
	}
	c, done, e := d.dial()
	if e != nil {
		return e
	}
	defer done()
	return fn(c)
}

func (d *Directory) findOne(c conn, base, filter string, attrs ...string) (*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		base, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases, 0, 0, false,
		filter, attrs, nil,
	)
	res, e := c.Search(req)
	if e != nil {
		if goldap.IsErrorWithCode(e, goldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s under %s", types.ErrNotFound, filter, base)
		}
		return nil, e
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s under %s", types.ErrNotFound, filter, base)
	}
	return res.Entries[0], nil
}

func userFilter(username string) string {
	return fmt.Sprintf("(&(objectClass=posixAccount)(uid=%s))", goldap.EscapeFilter(username))
}

func groupFilter(group string) string {
	return fmt.Sprintf("(&(objectClass=posixGroup)(cn=%s))", goldap.EscapeFilter(group))
}

func groupDN(model *behaviour.GroupModel, group string) string {
	return fmt.Sprintf("cn=%s,%s", goldap.EscapeDN(group), model.BaseDN)
}

// modify ignores errors saying the directory is in the wanted state already
func modify(c conn, req *goldap.ModifyRequest) error {
	e := c.Modify(req)
	if goldap.IsErrorWithCode(e, goldap.LDAPResultAttributeOrValueExists) ||
		goldap.IsErrorWithCode(e, goldap.LDAPResultNoSuchAttribute) {
		return nil
	}
	return e
}

// Tags on the account of username
func (d *Directory) Tags(ctx context.Context, username string) ([]string, error) {
	var tags []string
	e := d.with(ctx, func(c conn) error {
		entry, e := d.findOne(c, d.cfg.UserBaseDN, userFilter(username), d.cfg.TagAttribute)
		if e != nil {
			return e
		}
		tags = entry.GetAttributeValues(d.cfg.TagAttribute)
		return nil
	})
	return tags, e
}

// AddTag to the account of username
func (d *Directory) AddTag(ctx context.Context, username, tag string) error {
	d.log.V(4).Info("add tag", "user", username, "tag", tag)
	return d.with(ctx, func(c conn) error {
		entry, e := d.findOne(c, d.cfg.UserBaseDN, userFilter(username), "dn")
		if e != nil {
			return e
		}
		req := goldap.NewModifyRequest(entry.DN, nil)
		req.Add(d.cfg.TagAttribute, []string{tag})
		return modify(c, req)
	})
}

// RemoveTag from the account of username
func (d *Directory) RemoveTag(ctx context.Context, username, tag string) error {
	d.log.V(4).Info("remove tag", "user", username, "tag", tag)
	return d.with(ctx, func(c conn) error {
		entry, e := d.findOne(c, d.cfg.UserBaseDN, userFilter(username), "dn")
		if e != nil {
			return e
		}
		req := goldap.NewModifyRequest(entry.DN, nil)
		req.Delete(d.cfg.TagAttribute, []string{tag})
		return modify(c, req)
	})
}

// Members of a group
func (d *Directory) Members(ctx context.Context, model *behaviour.GroupModel, group string) ([]string, error) {
	var members []string
	e := d.with(ctx, func(c conn) error {
		entry, e := d.findOne(c, model.BaseDN, groupFilter(group), "memberUid")
		if e != nil {
			return e
		}
		members = entry.GetAttributeValues("memberUid")
		return nil
	})
	return members, e
}

// AddMember to a group
func (d *Directory) AddMember(ctx context.Context, model *behaviour.GroupModel, group, username string) error {
	d.log.V(4).Info("add member", "group", groupDN(model, group), "user", username)
	return d.with(ctx, func(c conn) error {
		req := goldap.NewModifyRequest(groupDN(model, group), nil)
		req.Add("memberUid", []string{username})
		return modify(c, req)
	})
}

// RemoveMember from a group
func (d *Directory) RemoveMember(ctx context.Context, model *behaviour.GroupModel, group, username string) error {
	d.log.V(4).Info("remove member", "group", groupDN(model, group), "user", username)
	return d.with(ctx, func(c conn) error {
		req := goldap.NewModifyRequest(groupDN(model, group), nil)
		req.Delete("memberUid", []string{username})
		return modify(c, req)
	})
}

// CreateGroup creates an empty posix group with the next free gid number of the model
func (d *Directory) CreateGroup(ctx context.Context, model *behaviour.GroupModel, group, description string) (int, error) {
	var gid int
	e := d.with(ctx, func(c conn) error {
		req := goldap.NewSearchRequest(
			model.BaseDN, goldap.ScopeSingleLevel, goldap.NeverDerefAliases, 0, 0, false,
			"(objectClass=posixGroup)", []string{"gidNumber"}, nil,
		)
		res, e := c.Search(req)
		if e != nil {
			return e
		}

		gid, e = nextGid(model, res.Entries)
		if e != nil {
			return e
		}

		add := goldap.NewAddRequest(groupDN(model, group), nil)
		add.Attribute("objectClass", []string{"top", "posixGroup"})
		add.Attribute("cn", []string{group})
		add.Attribute("gidNumber", []string{strconv.Itoa(gid)})
		if description != "" {
			add.Attribute("description", []string{description})
		}
		if e := c.Add(add); e != nil {
			if goldap.IsErrorWithCode(e, goldap.LDAPResultEntryAlreadyExists) {
				return fmt.Errorf("%w: group %s", types.ErrAlreadyExists, groupDN(model, group))
			}
			return e
		}
		return nil
	})
	if e == nil {
		d.log.Info("created group", "group", groupDN(model, group), "gid", gid)
	}
	return gid, e
}

// nextGid is one past the highest gid in use below the range end, and at least the range start
func nextGid(model *behaviour.GroupModel, entries []*goldap.Entry) (int, error) {
	max := -1
	for _, entry := range entries {
		n, e := strconv.Atoi(entry.GetAttributeValue("gidNumber"))
		if e != nil {
			continue
		}
		if n < model.GidMax && n > max {
			max = n
		}
	}

	next := model.GidMin
	if max >= 0 && max+1 > next {
		next = max + 1
	}
	if next >= model.GidMax {
		return 0, fmt.Errorf("%w: %s", ErrGidExhausted, model.Name)
	}
	return next, nil
}
