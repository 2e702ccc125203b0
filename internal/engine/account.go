package engine

import (
	"context"
	"time"

	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

type grantInScope struct {
	grant   *types.Grant
	scope   *notify.Scope
	created bool
}

// SetUserActive suspends an account, revoking its grants and rejecting its requests,
// or reactivates it, undoing only what the suspension did.
func (m *manager) SetUserActive(ctx context.Context, userID int64, active bool) error {
	m.log.V(4).Info("set user active", "user", userID, "active", active)

	now, today := m.now()
	var (
		changed []grantInScope
		revoked bool
	)
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		user, e := tx.GetUser(userID)
		if e != nil {
			return e
		}
		user.IsActive = active
		if e := tx.UpdateUser(user); e != nil {
			return e
		}

		if active {
			changed, e = m.reactivate(tx, userID, now, today)
		} else {
			revoked = true
			changed, e = m.suspend(tx, userID, now)
		}
		return e
	})
	if e != nil {
		return e
	}

	m.log.Info("account activity changed", "user", userID, "active", active, "grants", len(changed))
	for _, c := range changed {
		m.syncGrant(ctx, c.grant, c.scope)
		if revoked {
			m.triggers.GrantRevoked(ctx, c.grant, c.scope)
		} else if c.created {
			m.triggers.GrantCreated(ctx, c.grant, c.scope)
		}
	}
	m.invalidate(ctx, userID)

	return nil
}

func (m *manager) suspend(tx types.Tx, userID int64, now time.Time) ([]grantInScope, error) {
	grants, e := tx.ListGrants(types.GrantFilter{UserID: userID, HeadOnly: true, Revoked: types.BoolP(false)})
	if e != nil {
		return nil, e
	}

	changed := make([]grantInScope, 0, len(grants))
	for _, g := range grants {
		if e := tx.LockAccess(g.AccessID); e != nil {
			return nil, e
		}
		g.SetRevoked(true, now)
		g.UserReason = types.SuspensionReason
		if e := tx.UpdateGrant(g); e != nil {
			return nil, e
		}
		sc, e := scopeOf(tx, g.AccessID)
		if e != nil {
			return nil, e
		}
		changed = append(changed, grantInScope{grant: g, scope: sc})
	}

	reqs, e := tx.ListRequests(types.RequestFilter{UserID: userID, ActiveOnly: true, State: types.RequestPending})
	if e != nil {
		return nil, e
	}
	for _, r := range reqs {
		r.State = types.RequestRejected
		r.UserReason = types.SuspensionReason
		if e := tx.UpdateRequest(r); e != nil {
			return nil, e
		}
	}

	return changed, nil
}

func (m *manager) reactivate(tx types.Tx, userID int64, now, today time.Time) ([]grantInScope, error) {
	grants, e := tx.ListGrants(types.GrantFilter{
		UserID:     userID,
		HeadOnly:   true,
		Revoked:    types.BoolP(true),
		UserReason: types.StringP(types.SuspensionReason),
	})
	if e != nil {
		return nil, e
	}

	// renewal reaches back to the cutoff day included
	cutoff := m.policy.ReinstateWithin.SubFrom(today)
	changed := make([]grantInScope, 0, len(grants))
	successors := make(map[int64]int64)
	for _, g := range grants {
		if e := tx.LockAccess(g.AccessID); e != nil {
			return nil, e
		}
		sc, e := scopeOf(tx, g.AccessID)
		if e != nil {
			return nil, e
		}
		if sc.Service.Disabled {
			m.log.V(4).Info("leave grant on disabled service revoked", "grant", g.ID, "service", sc.Service.Name)
			continue
		}

		var (
			touched *types.Grant
			created bool
		)
		switch {
		case !g.Expired(today):
			g.SetRevoked(false, now)
			g.UserReason = ""
			g.InternalReason = ""
			if e := tx.UpdateGrant(g); e != nil {
				return nil, e
			}
			touched = g

		case !types.DateOf(g.Expires).Before(cutoff):
			renewed := &types.Grant{
				AccessID:        g.AccessID,
				GrantedBy:       g.GrantedBy,
				GrantedAt:       now,
				Expires:         m.policy.ReinstateFor.AddTo(today),
				PreviousGrantID: g.ID,
			}
			if e := tx.InsertGrant(renewed); e != nil {
				return nil, e
			}
			md, e := tx.Metadata(types.RefOf(types.KindGrant, g.ID))
			if e != nil {
				return nil, e
			}
			if e := tx.ReplaceMetadata(types.RefOf(types.KindGrant, renewed.ID), md); e != nil {
				return nil, e
			}
			successors[g.ID] = renewed.ID
			touched, created = renewed, true

		default:
			m.log.V(4).Info("leave long expired grant revoked", "grant", g.ID, "expires", g.Expires)
			continue
		}

		changed = append(changed, grantInScope{grant: touched, scope: sc, created: created})
	}

	reqs, e := tx.ListRequests(types.RequestFilter{
		UserID:     userID,
		ActiveOnly: true,
		State:      types.RequestRejected,
		UserReason: types.StringP(types.SuspensionReason),
	})
	if e != nil {
		return nil, e
	}
	for _, r := range reqs {
		r.State = types.RequestPending
		r.Incomplete = false
		r.UserReason = ""
		// a reopened renewal continues the grant which replaced the one it asked about
		if next, ok := successors[r.PreviousGrantID]; ok {
			r.PreviousGrantID = next
		}
		if e := tx.UpdateRequest(r); e != nil {
			return nil, e
		}
	}

	return changed, nil
}
