package fake

import (
	"fmt"
	"sort"
	"time"

	"github.com/supremind/svcaccess/types"
)

var _ types.Tx = (*tx)(nil)

type tx struct {
	d *dataset
}

func notFound(kind types.EntityKind, id int64) error {
	return fmt.Errorf("%w: %s %d", types.ErrNotFound, kind, id)
}

func (t *tx) CreateUser(u *types.User) error {
	for _, o := range t.d.users {
		if o.Username == u.Username {
			return fmt.Errorf("%w: user %s", types.ErrAlreadyExists, u.Username)
		}
	}
	u.ID = t.d.next(types.KindUser)
	t.d.users[u.ID] = *u
	return nil
}

func (t *tx) UpdateUser(u *types.User) error {
	if _, ok := t.d.users[u.ID]; !ok {
		return notFound(types.KindUser, u.ID)
	}
	t.d.users[u.ID] = *u
	return nil
}

func (t *tx) GetUser(id int64) (*types.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, notFound(types.KindUser, id)
	}
	return &u, nil
}

func (t *tx) GetUserByName(username string) (*types.User, error) {
	for _, u := range t.d.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", types.ErrNotFound, username)
}

func (t *tx) CreateCategory(c *types.Category) error {
	for _, o := range t.d.categories {
		if o.Name == c.Name {
			return fmt.Errorf("%w: category %s", types.ErrAlreadyExists, c.Name)
		}
	}
	c.ID = t.d.next(types.KindCategory)
	t.d.categories[c.ID] = *c
	return nil
}

func (t *tx) GetCategory(id int64) (*types.Category, error) {
	c, ok := t.d.categories[id]
	if !ok {
		return nil, notFound(types.KindCategory, id)
	}
	return &c, nil
}

func (t *tx) CreateService(s *types.Service) error {
	if _, ok := t.d.categories[s.CategoryID]; !ok {
		return notFound(types.KindCategory, s.CategoryID)
	}
	for _, o := range t.d.services {
		if o.CategoryID == s.CategoryID && o.Name == s.Name {
			return fmt.Errorf("%w: service %s", types.ErrAlreadyExists, s.Name)
		}
	}
	s.ID = t.d.next(types.KindService)
	t.d.services[s.ID] = *s
	return nil
}

func (t *tx) GetService(id int64) (*types.Service, error) {
	s, ok := t.d.services[id]
	if !ok {
		return nil, notFound(types.KindService, id)
	}
	return &s, nil
}

func (t *tx) CreateRole(r *types.Role) error {
	if _, ok := t.d.services[r.ServiceID]; !ok {
		return notFound(types.KindService, r.ServiceID)
	}
	for _, o := range t.d.roles {
		if o.ServiceID == r.ServiceID && o.Name == r.Name {
			return fmt.Errorf("%w: role %s", types.ErrAlreadyExists, r.Name)
		}
	}
	r.ID = t.d.next(types.KindRole)
	t.d.roles[r.ID] = *r
	return nil
}

func (t *tx) GetRole(id int64) (*types.Role, error) {
	r, ok := t.d.roles[id]
	if !ok {
		return nil, notFound(types.KindRole, id)
	}
	return &r, nil
}

func (t *tx) CreateBehaviour(b *types.BehaviourRecord) error {
	b.ID = t.d.next("behaviour")
	rec := *b
	rec.Config = append([]byte(nil), b.Config...)
	t.d.behaviours[b.ID] = rec
	return nil
}

func (t *tx) GetBehaviour(id int64) (*types.BehaviourRecord, error) {
	b, ok := t.d.behaviours[id]
	if !ok {
		return nil, notFound("behaviour", id)
	}
	return &b, nil
}

func (t *tx) AttachBehaviour(roleID, behaviourID int64) error {
	if _, ok := t.d.roles[roleID]; !ok {
		return notFound(types.KindRole, roleID)
	}
	if _, ok := t.d.behaviours[behaviourID]; !ok {
		return notFound("behaviour", behaviourID)
	}
	for _, id := range t.d.roleBehaviours[roleID] {
		if id == behaviourID {
			return nil
		}
	}
	t.d.roleBehaviours[roleID] = append(t.d.roleBehaviours[roleID], behaviourID)
	return nil
}

func (t *tx) RoleBehaviours(roleID int64) ([]types.BehaviourRecord, error) {
	out := make([]types.BehaviourRecord, 0, len(t.d.roleBehaviours[roleID]))
	for _, id := range t.d.roleBehaviours[roleID] {
		out = append(out, t.d.behaviours[id])
	}
	return out, nil
}

func (t *tx) GetOrCreateAccess(roleID, userID int64) (*types.Access, error) {
	for _, a := range t.d.accesses {
		if a.RoleID == roleID && a.UserID == userID {
			a := a
			return &a, nil
		}
	}
	if _, ok := t.d.roles[roleID]; !ok {
		return nil, notFound(types.KindRole, roleID)
	}
	if _, ok := t.d.users[userID]; !ok {
		return nil, notFound(types.KindUser, userID)
	}

	a := types.Access{ID: t.d.next("access"), RoleID: roleID, UserID: userID}
	t.d.accesses[a.ID] = a
	return &a, nil
}

func (t *tx) GetAccess(id int64) (*types.Access, error) {
	a, ok := t.d.accesses[id]
	if !ok {
		return nil, notFound("access", id)
	}
	return &a, nil
}

// LockAccess only checks the access exists, Atomic already holds the store lock
func (t *tx) LockAccess(id int64) error {
	_, e := t.GetAccess(id)
	return e
}

func (t *tx) InsertGrant(g *types.Grant) error {
	if _, ok := t.d.accesses[g.AccessID]; !ok {
		return notFound("access", g.AccessID)
	}
	if g.PreviousGrantID != 0 {
		prev, ok := t.d.grants[g.PreviousGrantID]
		if !ok {
			return notFound(types.KindGrant, g.PreviousGrantID)
		}
		if !prev.Head {
			return types.NewConflictError(types.KindGrant, prev.ID, "grant is already superseded")
		}
		prev.Head = false
		t.d.grants[prev.ID] = prev
	}

	g.ID = t.d.next(types.KindGrant)
	g.Head = true
	t.d.grants[g.ID] = *g
	return nil
}

func (t *tx) UpdateGrant(g *types.Grant) error {
	old, ok := t.d.grants[g.ID]
	if !ok {
		return notFound(types.KindGrant, g.ID)
	}
	old.Revoked = g.Revoked
	old.RevokedAt = g.RevokedAt
	old.UserReason = g.UserReason
	old.InternalReason = g.InternalReason
	t.d.grants[g.ID] = old
	*g = old
	return nil
}

func (t *tx) GetGrant(id int64) (*types.Grant, error) {
	g, ok := t.d.grants[id]
	if !ok {
		return nil, notFound(types.KindGrant, id)
	}
	return &g, nil
}

func (t *tx) ListGrants(f types.GrantFilter) ([]*types.Grant, error) {
	out := make([]*types.Grant, 0)
	for _, g := range t.d.grants {
		if !t.grantMatches(&g, f) {
			continue
		}
		g := g
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) grantMatches(g *types.Grant, f types.GrantFilter) bool {
	a := t.d.accesses[g.AccessID]
	switch {
	case f.AccessID != 0 && g.AccessID != f.AccessID,
		f.UserID != 0 && a.UserID != f.UserID,
		f.RoleID != 0 && a.RoleID != f.RoleID,
		f.HeadOnly && !g.Head,
		f.Revoked != nil && g.Revoked != *f.Revoked,
		f.UserReason != nil && g.UserReason != *f.UserReason,
		f.LapsedAt != nil && !g.Revoked && !g.Expired(*f.LapsedAt):
		return false
	}
	return true
}

func (t *tx) InsertRequest(r *types.Request) error {
	if _, ok := t.d.accesses[r.AccessID]; !ok {
		return notFound("access", r.AccessID)
	}
	if r.PreviousGrantID != 0 {
		if _, ok := t.d.grants[r.PreviousGrantID]; !ok {
			return notFound(types.KindGrant, r.PreviousGrantID)
		}
	}
	if r.PreviousRequestID != 0 {
		prev, ok := t.d.requests[r.PreviousRequestID]
		if !ok {
			return notFound(types.KindRequest, r.PreviousRequestID)
		}
		if !prev.Head {
			return types.NewConflictError(types.KindRequest, prev.ID, "request is already superseded")
		}
		prev.Head = false
		t.d.requests[prev.ID] = prev
	}

	r.ID = t.d.next(types.KindRequest)
	r.Head = true
	t.d.requests[r.ID] = *r
	return nil
}

func (t *tx) UpdateRequest(r *types.Request) error {
	old, ok := t.d.requests[r.ID]
	if !ok {
		return notFound(types.KindRequest, r.ID)
	}
	if r.ResultingGrantID != 0 && r.ResultingGrantID != old.ResultingGrantID {
		for _, o := range t.d.requests {
			if o.ID != r.ID && o.ResultingGrantID == r.ResultingGrantID {
				return types.NewConflictError(types.KindRequest, o.ID, "grant already results from another request")
			}
		}
	}
	old.State = r.State
	old.Incomplete = r.Incomplete
	old.ResultingGrantID = r.ResultingGrantID
	old.PreviousGrantID = r.PreviousGrantID
	old.UserReason = r.UserReason
	old.InternalReason = r.InternalReason
	old.InternalComment = r.InternalComment
	t.d.requests[r.ID] = old
	*r = old
	return nil
}

func (t *tx) GetRequest(id int64) (*types.Request, error) {
	r, ok := t.d.requests[id]
	if !ok {
		return nil, notFound(types.KindRequest, id)
	}
	return &r, nil
}

func (t *tx) ListRequests(f types.RequestFilter) ([]*types.Request, error) {
	out := make([]*types.Request, 0)
	for _, r := range t.d.requests {
		a := t.d.accesses[r.AccessID]
		switch {
		case f.AccessID != 0 && r.AccessID != f.AccessID,
			f.UserID != 0 && a.UserID != f.UserID,
			f.ActiveOnly && !r.Active(),
			f.State != "" && r.State != f.State,
			f.UserReason != nil && r.UserReason != *f.UserReason,
			f.RequestedBefore != nil && !r.RequestedAt.Before(*f.RequestedBefore),
			f.PreviousGrantID != 0 && r.PreviousGrantID != f.PreviousGrantID:
			continue
		}
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) Metadata(target types.EntityRef) (types.Metadata, error) {
	return t.d.metadata[target].Clone(), nil
}

func (t *tx) ReplaceMetadata(target types.EntityRef, md types.Metadata) error {
	if len(md) == 0 {
		delete(t.d.metadata, target)
		return nil
	}
	t.d.metadata[target] = md.Clone()
	return nil
}

func (t *tx) HasJoined(behaviourID, userID int64) (bool, error) {
	_, ok := t.d.joined[joinKey{behaviour: behaviourID, user: userID}]
	return ok, nil
}

func (t *tx) RecordJoined(behaviourID, userID int64) error {
	t.d.joined[joinKey{behaviour: behaviourID, user: userID}] = struct{}{}
	return nil
}

func (t *tx) CreateObjectPermission(p *types.RoleObjectPermission) error {
	if _, ok := t.d.roles[p.RoleID]; !ok {
		return notFound(types.KindRole, p.RoleID)
	}
	for _, o := range t.d.objectPerms {
		if o.RoleID == p.RoleID && o.Permission == p.Permission && o.Target == p.Target {
			return fmt.Errorf("%w: %s on %s", types.ErrAlreadyExists, p.Permission, p.Target)
		}
	}
	p.ID = t.d.next("permission")
	t.d.objectPerms[p.ID] = *p
	return nil
}

// liveRoles maps roles to the users holding a live head grant on them
func (t *tx) liveRoles(today time.Time) map[int64][]int64 {
	out := make(map[int64][]int64)
	for _, g := range t.d.grants {
		if !g.Head || !g.Live(today) {
			continue
		}
		a := t.d.accesses[g.AccessID]
		out[a.RoleID] = append(out[a.RoleID], a.UserID)
	}
	return out
}

func (t *tx) ApproverIDs(act types.Action, targets []types.EntityRef, today time.Time) ([]int64, error) {
	wanted := make(map[types.EntityRef]bool, len(targets))
	for _, target := range targets {
		wanted[target] = true
	}

	live := t.liveRoles(today)
	seen := make(map[int64]bool)
	out := make([]int64, 0)
	for _, p := range t.d.objectPerms {
		if !p.Permission.Includes(act) || !wanted[p.Target] {
			continue
		}
		for _, uid := range live[p.RoleID] {
			if !seen[uid] {
				seen[uid] = true
				out = append(out, uid)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *tx) ObjectPermissionsOf(userID int64, today time.Time) ([]types.RoleObjectPermission, error) {
	roles := make(map[int64]bool)
	for roleID, users := range t.liveRoles(today) {
		for _, uid := range users {
			if uid == userID {
				roles[roleID] = true
			}
		}
	}

	out := make([]types.RoleObjectPermission, 0)
	for _, p := range t.d.objectPerms {
		if roles[p.RoleID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) BehaviourRequired(userID, behaviourID int64, today time.Time) (bool, error) {
	for roleID, users := range t.liveRoles(today) {
		held := false
		for _, uid := range users {
			if uid == userID {
				held = true
			}
		}
		if !held {
			continue
		}
		for _, id := range t.d.roleBehaviours[roleID] {
			if id == behaviourID {
				return true, nil
			}
		}
	}
	return false, nil
}
