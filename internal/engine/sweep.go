package engine

import (
	"context"

	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// SyncAccess disables the behaviours of active grants which lapsed, or with all set,
// brings the behaviours of every active grant in line with its state
func (m *manager) SyncAccess(ctx context.Context, all bool) error {
	_, today := m.now()
	f := types.GrantFilter{HeadOnly: true}
	if !all {
		f.LapsedAt = types.TimeP(today)
	}

	grants, e := m.grantsInScope(ctx, f)
	if e != nil {
		return e
	}

	m.log.Info("sync access", "all", all, "grants", len(grants))
	for _, g := range grants {
		m.syncGrant(ctx, g.grant, g.scope)
	}
	return nil
}

// SendExpiryNotifications warns holders of active grants about their expiry
func (m *manager) SendExpiryNotifications(ctx context.Context) error {
	_, today := m.now()
	grants, e := m.grantsInScope(ctx, types.GrantFilter{HeadOnly: true, Revoked: types.BoolP(false)})
	if e != nil {
		return e
	}

	m.log.Info("send expiry notifications", "grants", len(grants))
	for _, g := range grants {
		m.triggers.GrantExpiry(ctx, g.grant, g.scope, today)
	}
	return nil
}

func (m *manager) grantsInScope(ctx context.Context, f types.GrantFilter) ([]grantInScope, error) {
	var out []grantInScope
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		grants, e := tx.ListGrants(f)
		if e != nil {
			return e
		}
		out = make([]grantInScope, 0, len(grants))
		for _, g := range grants {
			sc, e := scopeOf(tx, g.AccessID)
			if e != nil {
				return e
			}
			out = append(out, grantInScope{grant: g, scope: sc})
		}
		return nil
	})
	return out, e
}

// RemindPending asks approvers again about requests waiting longer than the policy allows
func (m *manager) RemindPending(ctx context.Context) error {
	now, _ := m.now()
	before := now.Add(-m.policy.RemindAfter)

	type pending struct {
		req   *types.Request
		scope *notify.Scope
	}
	var reqs []pending
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		rs, e := tx.ListRequests(types.RequestFilter{
			ActiveOnly:      true,
			State:           types.RequestPending,
			RequestedBefore: &before,
		})
		if e != nil {
			return e
		}
		reqs = make([]pending, 0, len(rs))
		for _, r := range rs {
			sc, e := scopeOf(tx, r.AccessID)
			if e != nil {
				return e
			}
			reqs = append(reqs, pending{req: r, scope: sc})
		}
		return nil
	})
	if e != nil {
		return e
	}

	m.log.Info("remind pending requests", "requests", len(reqs))
	approvers := make(map[int64][]*types.User)
	for _, p := range reqs {
		roleID := p.scope.Role.ID
		if _, ok := approvers[roleID]; !ok {
			users, e := m.Approvers(ctx, roleID)
			if e != nil {
				m.log.Error(e, "resolve approvers", "role", p.scope.Role.Name)
				continue
			}
			approvers[roleID] = users
		}
		m.triggers.RemindApprovers(ctx, p.req, p.scope, approvers[roleID])
	}
	return nil
}
