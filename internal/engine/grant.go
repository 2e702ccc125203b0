package engine

import (
	"context"
	"fmt"

	"github.com/supremind/svcaccess/internal/chain"
	"github.com/supremind/svcaccess/internal/decision"
	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// GrantRole grants a role without a request.
// In strict mode an existing active grant must be continued explicitly, and no request may be waiting.
func (m *manager) GrantRole(ctx context.Context, in types.GrantInput) (*types.Grant, error) {
	m.log.V(4).Info("grant role", "role", in.RoleID, "user", in.UserID, "granter", in.GranterID, "previous", in.PreviousGrantID)

	if in.GranterID == in.UserID {
		return nil, types.NewValidationError("user", "you cannot grant a role to yourself")
	}

	var (
		granter *types.User
		role    *types.Role
	)
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		if role, e = tx.GetRole(in.RoleID); e != nil {
			return e
		}
		if _, e = tx.GetUser(in.UserID); e != nil {
			return e
		}
		granter, e = tx.GetUser(in.GranterID)
		return e
	})
	if e != nil {
		return nil, e
	}

	if e := m.authorize(ctx, granter.ID, types.GrantRole, role); e != nil {
		return nil, e
	}

	now, today := m.now()
	expires, e := decision.ResolveExpiry(in.Expiry, in.CustomExpiry, today)
	if e != nil {
		return nil, e
	}

	var (
		grant *types.Grant
		sc    *notify.Scope
	)
	e = m.store.Atomic(ctx, func(tx types.Tx) error {
		access, e := tx.GetOrCreateAccess(in.RoleID, in.UserID)
		if e != nil {
			return e
		}
		if e := tx.LockAccess(access.ID); e != nil {
			return e
		}

		if in.PreviousGrantID != 0 {
			prev, e := tx.GetGrant(in.PreviousGrantID)
			if e != nil {
				return e
			}
			if prev.AccessID != access.ID {
				return types.NewValidationError("previous_grant", "grant belongs to another access")
			}
		}

		if m.strict() {
			heads, e := tx.ListGrants(types.GrantFilter{AccessID: access.ID, HeadOnly: true})
			if e != nil {
				return e
			}
			if e := chain.GrantSlotFree(access.ID, heads, in.PreviousGrantID); e != nil {
				return e
			}
			active, e := tx.ListRequests(types.RequestFilter{AccessID: access.ID, ActiveOnly: true})
			if e != nil {
				return e
			}
			if e := chain.RequestSlotFree(access.ID, active, 0); e != nil {
				return e
			}
		}

		grant = &types.Grant{
			AccessID:        access.ID,
			GrantedBy:       granter.Username,
			GrantedAt:       now,
			Expires:         expires,
			PreviousGrantID: in.PreviousGrantID,
		}
		if e := tx.InsertGrant(grant); e != nil {
			return e
		}

		sc, e = scopeOf(tx, access.ID)
		return e
	})
	if e != nil {
		return nil, e
	}

	m.log.Info("role granted", "grant", grant.ID, "granter", granter.Username, "user", sc.User.Username, "role", sc.Role.Name, "service", sc.Service.Name)
	m.grantChanged(ctx, grant, sc)
	m.triggers.GrantCreated(ctx, grant, sc)

	return grant, nil
}

// RevokeGrant revokes a grant, the user reason is shown to its holder
func (m *manager) RevokeGrant(ctx context.Context, grantID int64, userReason, internalReason string) (*types.Grant, error) {
	m.log.V(4).Info("revoke grant", "grant", grantID)

	if userReason == "" {
		return nil, types.NewValidationError("user_reason", "please give a reason for revoking the grant")
	}

	grant, sc, e := m.updateGrant(ctx, grantID, func(g *types.Grant) {
		now, _ := m.now()
		g.SetRevoked(true, now)
		g.UserReason = userReason
		g.InternalReason = internalReason
	})
	if e != nil {
		return nil, e
	}

	m.log.Info("grant revoked", "grant", grant.ID, "user", sc.User.Username, "role", sc.Role.Name, "service", sc.Service.Name)
	m.grantChanged(ctx, grant, sc)
	m.triggers.GrantRevoked(ctx, grant, sc)

	return grant, nil
}

// RestoreGrant clears the revocation of a grant
func (m *manager) RestoreGrant(ctx context.Context, grantID int64) (*types.Grant, error) {
	m.log.V(4).Info("restore grant", "grant", grantID)

	grant, sc, e := m.updateGrant(ctx, grantID, func(g *types.Grant) {
		now, _ := m.now()
		g.SetRevoked(false, now)
		g.UserReason = ""
		g.InternalReason = ""
	})
	if e != nil {
		return nil, e
	}

	m.log.Info("grant restored", "grant", grant.ID, "user", sc.User.Username, "role", sc.Role.Name, "service", sc.Service.Name)
	m.grantChanged(ctx, grant, sc)

	return grant, nil
}

func (m *manager) updateGrant(ctx context.Context, grantID int64, change func(*types.Grant)) (*types.Grant, *notify.Scope, error) {
	var (
		grant *types.Grant
		sc    *notify.Scope
	)
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		g, e := tx.GetGrant(grantID)
		if e != nil {
			return e
		}
		if e := tx.LockAccess(g.AccessID); e != nil {
			return e
		}
		if grant, e = tx.GetGrant(grantID); e != nil {
			return e
		}

		change(grant)
		if e := tx.UpdateGrant(grant); e != nil {
			return e
		}

		sc, e = scopeOf(tx, grant.AccessID)
		return e
	})
	return grant, sc, e
}

// ActiveGrant returns the head of the grant chain of an access
func (m *manager) ActiveGrant(ctx context.Context, accessID int64) (*types.Grant, error) {
	var heads []*types.Grant
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		heads, e = tx.ListGrants(types.GrantFilter{AccessID: accessID, HeadOnly: true})
		return e
	})
	if e != nil {
		return nil, e
	}

	head, tied := chain.GrantHead(heads)
	if head == nil {
		return nil, fmt.Errorf("%w: no active grant for access %d", types.ErrNotFound, accessID)
	}
	if tied {
		m.log.Error(&types.ConsistencyError{AccessID: accessID, Detail: fmt.Sprintf("%d active grants", len(heads))},
			"pick active grant by tie break", "grant", head.ID)
	}
	return head, nil
}

// ActiveRequest returns the request of an access still waiting for a grant
func (m *manager) ActiveRequest(ctx context.Context, accessID int64) (*types.Request, error) {
	var active []*types.Request
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		active, e = tx.ListRequests(types.RequestFilter{AccessID: accessID, ActiveOnly: true})
		return e
	})
	if e != nil {
		return nil, e
	}

	head, tied := chain.RequestHead(active)
	if head == nil {
		return nil, fmt.Errorf("%w: no active request for access %d", types.ErrNotFound, accessID)
	}
	if tied {
		m.log.Error(&types.ConsistencyError{AccessID: accessID, Detail: fmt.Sprintf("%d active requests", len(active))},
			"pick active request by tie break", "request", head.ID)
	}
	return head, nil
}
