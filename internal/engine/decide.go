package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/supremind/svcaccess/internal/chain"
	"github.com/supremind/svcaccess/internal/decision"
	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// Decide approves or rejects an active pending request.
// The request is read again under the access lock, so concurrent deciders see ErrAlreadyDecided.
func (m *manager) Decide(ctx context.Context, d types.Decision) (*types.Request, error) {
	m.log.V(4).Info("decide request", "request", d.RequestID, "approver", d.ApproverID, "outcome", d.Outcome)

	var (
		approver *types.User
		role     *types.Role
	)
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		req, e := tx.GetRequest(d.RequestID)
		if e != nil {
			return e
		}
		access, e := tx.GetAccess(req.AccessID)
		if e != nil {
			return e
		}
		if role, e = tx.GetRole(access.RoleID); e != nil {
			return e
		}
		approver, e = tx.GetUser(d.ApproverID)
		return e
	})
	if e != nil {
		return nil, e
	}

	if e := m.authorize(ctx, approver.ID, types.DecideRequest, role); e != nil {
		return nil, e
	}

	now, today := m.now()
	verdict, e := decision.Validate(d, approver, today)
	if e != nil {
		return nil, e
	}

	var (
		req   *types.Request
		grant *types.Grant
		sc    *notify.Scope
	)
	e = m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		if req, e = tx.GetRequest(d.RequestID); e != nil {
			return e
		}
		if e := tx.LockAccess(req.AccessID); e != nil {
			return e
		}
		// read again now the access is locked
		if req, e = tx.GetRequest(d.RequestID); e != nil {
			return e
		}
		if !req.Active() || !req.Pending() {
			return types.NewAlreadyDecidedError(req.ID)
		}

		if verdict.InternalComment != "" {
			req.InternalComment = verdict.InternalComment
		}

		switch {
		case verdict.Approved():
			if grant, e = m.approve(tx, req, approver, verdict, now); e != nil {
				return e
			}
		case verdict.Rejected():
			req.State = types.RequestRejected
			req.Incomplete = verdict.Outcome == types.OutcomeIncomplete
			req.UserReason = verdict.UserReason
			req.InternalReason = verdict.InternalReason
		}

		if e := tx.UpdateRequest(req); e != nil {
			return e
		}
		sc, e = scopeOf(tx, req.AccessID)
		return e
	})
	if e != nil {
		var ce *types.ConsistencyError
		if errors.As(e, &ce) {
			m.log.Error(e, "inconsistent access chain", "request", d.RequestID)
		}
		return nil, e
	}

	if verdict.Outcome == types.OutcomeNone {
		return req, nil
	}

	m.log.Info("request decided", "request", req.ID, "state", req.State, "approver", approver.Username,
		"user", sc.User.Username, "role", sc.Role.Name, "service", sc.Service.Name)
	m.triggers.RequestDecided(ctx, req, sc)
	if grant != nil {
		m.grantChanged(ctx, grant, sc)
		m.triggers.GrantCreated(ctx, grant, sc)
	}

	return req, nil
}

// approve creates the grant of req, continuing the grant req names
func (m *manager) approve(tx types.Tx, req *types.Request, approver *types.User, v *decision.Verdict, now time.Time) (*types.Grant, error) {
	if req.PreviousGrantID != 0 {
		prev, e := tx.GetGrant(req.PreviousGrantID)
		if e != nil {
			return nil, e
		}
		if prev.AccessID != req.AccessID {
			return nil, &types.ConsistencyError{
				AccessID: req.AccessID,
				Detail:   fmt.Sprintf("request %d continues grant %d of access %d", req.ID, prev.ID, prev.AccessID),
			}
		}
	}

	if m.strict() {
		heads, e := tx.ListGrants(types.GrantFilter{AccessID: req.AccessID, HeadOnly: true})
		if e != nil {
			return nil, e
		}
		if e := chain.GrantSlotFree(req.AccessID, heads, req.PreviousGrantID); e != nil {
			return nil, e
		}
	}

	grant := &types.Grant{
		AccessID:        req.AccessID,
		GrantedBy:       approver.Username,
		GrantedAt:       now,
		Expires:         v.Expires,
		PreviousGrantID: req.PreviousGrantID,
	}
	if e := tx.InsertGrant(grant); e != nil {
		return nil, e
	}

	md, e := tx.Metadata(types.RefOf(types.KindRequest, req.ID))
	if e != nil {
		return nil, e
	}
	if e := tx.ReplaceMetadata(types.RefOf(types.KindGrant, grant.ID), md); e != nil {
		return nil, e
	}

	req.State = types.RequestApproved
	req.ResultingGrantID = grant.ID
	return grant, nil
}
