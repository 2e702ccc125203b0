package engine

import (
	"context"
	"fmt"

	"github.com/supremind/svcaccess/internal/chain"
	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// renewWithin is how close to its expiry a grant could be applied for again
var renewWithin = types.DaysPeriod(60)

// SubmitRequest saves a pending request, or an approved one and its grant for auto accepted roles
func (m *manager) SubmitRequest(ctx context.Context, in types.RequestInput) (*types.Request, error) {
	m.log.V(4).Info("submit request", "role", in.RoleID, "user", in.UserID,
		"previous request", in.PreviousRequestID, "previous grant", in.PreviousGrantID)

	var role *types.Role
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		role, e = tx.GetRole(in.RoleID)
		return e
	})
	if e != nil {
		return nil, e
	}

	md, e := m.cleanMetadata(ctx, role, in.Metadata)
	if e != nil {
		return nil, e
	}

	now, today := m.now()
	var (
		req   *types.Request
		grant *types.Grant
		sc    *notify.Scope
	)
	e = m.store.Atomic(ctx, func(tx types.Tx) error {
		user, e := tx.GetUser(in.UserID)
		if e != nil {
			return e
		}
		if !user.IsActive {
			return fmt.Errorf("%w: account %s is not active", types.ErrPermissionDenied, user.Username)
		}
		_, svc, e := roleScope(tx, in.RoleID)
		if e != nil {
			return e
		}
		if svc.Disabled {
			return types.NewValidationError("role", "the service is not accepting applications")
		}

		access, e := tx.GetOrCreateAccess(in.RoleID, in.UserID)
		if e != nil {
			return e
		}
		if e := tx.LockAccess(access.ID); e != nil {
			return e
		}
		if e := m.checkPrevious(tx, access, in.PreviousRequestID, in.PreviousGrantID); e != nil {
			return e
		}

		req = &types.Request{
			AccessID:          access.ID,
			RequestedBy:       user.Username,
			RequestedAt:       now,
			State:             types.RequestPending,
			PreviousGrantID:   in.PreviousGrantID,
			PreviousRequestID: in.PreviousRequestID,
		}

		if role.AutoAccept {
			grant = &types.Grant{
				AccessID:        access.ID,
				GrantedBy:       types.GrantedAutomatically,
				GrantedAt:       now,
				Expires:         today.AddDate(0, 0, m.policy.AutoAcceptGrantDays),
				PreviousGrantID: in.PreviousGrantID,
			}
			if e := tx.InsertGrant(grant); e != nil {
				return e
			}
			req.State = types.RequestApproved
			req.ResultingGrantID = grant.ID
		}

		if e := tx.InsertRequest(req); e != nil {
			return e
		}
		if e := tx.ReplaceMetadata(types.RefOf(types.KindRequest, req.ID), md); e != nil {
			return e
		}
		if grant != nil {
			if e := tx.ReplaceMetadata(types.RefOf(types.KindGrant, grant.ID), md); e != nil {
				return e
			}
		}

		sc, e = scopeOf(tx, access.ID)
		return e
	})
	if e != nil {
		return nil, e
	}

	if grant != nil {
		m.log.Info("role accepted automatically", "user", sc.User.Username, "role", sc.Role.Name, "service", sc.Service.Name, "grant", grant.ID)
		m.grantChanged(ctx, grant, sc)
		m.triggers.GrantCreated(ctx, grant, sc)
		return req, nil
	}

	approvers, e := m.Approvers(ctx, sc.Role.ID)
	if e != nil {
		m.log.Error(e, "resolve approvers", "request", req.ID, "role", sc.Role.Name)
	}
	m.triggers.RequestSubmitted(ctx, req, sc, approvers)

	return req, nil
}

func (m *manager) cleanMetadata(ctx context.Context, role *types.Role, md types.Metadata) (types.Metadata, error) {
	if m.forms == nil || role.MetadataFormID == 0 {
		return md.Clone(), nil
	}
	form, e := m.forms.Form(ctx, role.MetadataFormID)
	if e != nil {
		return nil, e
	}
	return form.Clean(md)
}

// checkPrevious validates what a new request continues, and in strict mode that it continues the active records
func (m *manager) checkPrevious(tx types.Tx, access *types.Access, prevRequestID, prevGrantID int64) error {
	if prevRequestID != 0 {
		prev, e := tx.GetRequest(prevRequestID)
		if e != nil {
			return e
		}
		if prev.AccessID != access.ID {
			return types.NewValidationError("previous_request", "request belongs to another access")
		}
		if !prev.Active() {
			return types.NewValidationError("previous_request", "please use the most recent request or grant")
		}
		if !prev.Rejected() {
			return types.NewValidationError("previous_request", "only rejected requests could be followed up")
		}
	}

	if prevGrantID != 0 {
		prev, e := tx.GetGrant(prevGrantID)
		if e != nil {
			return e
		}
		if prev.AccessID != access.ID {
			return types.NewValidationError("previous_grant", "grant belongs to another access")
		}
		if !prev.Head {
			return types.NewValidationError("previous_grant", "please use the most recent request or grant")
		}
	}

	if !m.strict() {
		return nil
	}

	active, e := tx.ListRequests(types.RequestFilter{AccessID: access.ID, ActiveOnly: true})
	if e != nil {
		return e
	}
	if e := chain.RequestSlotFree(access.ID, active, prevRequestID); e != nil {
		return e
	}

	heads, e := tx.ListGrants(types.GrantFilter{AccessID: access.ID, HeadOnly: true})
	if e != nil {
		return e
	}
	return chain.GrantSlotFree(access.ID, heads, prevGrantID)
}

// UserMayApply is false in strict mode while the user holds a grant far from expiry, or waits for a request
func (m *manager) UserMayApply(ctx context.Context, roleID, userID int64) (bool, error) {
	var may bool
	_, today := m.now()
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		_, svc, e := roleScope(tx, roleID)
		if e != nil {
			return e
		}
		if svc.Disabled {
			return nil
		}
		if !m.strict() {
			may = true
			return nil
		}

		access, e := tx.GetOrCreateAccess(roleID, userID)
		if e != nil {
			return e
		}

		heads, e := tx.ListGrants(types.GrantFilter{AccessID: access.ID, HeadOnly: true, Revoked: types.BoolP(false)})
		if e != nil {
			return e
		}
		for _, g := range heads {
			if !g.Expired(today) && types.DateOf(g.Expires).After(renewWithin.AddTo(today)) {
				return nil
			}
		}

		active, e := tx.ListRequests(types.RequestFilter{AccessID: access.ID, ActiveOnly: true})
		if e != nil {
			return e
		}
		for _, r := range active {
			if r.Pending() || r.Incomplete {
				return nil
			}
		}

		may = true
		return nil
	})

	return may, e
}
