package engine

import (
	"context"
	"time"

	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// syncGrant makes the behaviours of the role match the state of an active grant.
// Behaviour failures are logged, the grant stays as committed.
func (m *manager) syncGrant(ctx context.Context, g *types.Grant, sc *notify.Scope) {
	if !g.Head || m.policy.BehavioursDisabled {
		return
	}

	_, today := m.now()
	if g.Live(today) {
		m.enable(ctx, sc.User, sc.Role)
	} else {
		m.disable(ctx, sc.User, sc.Role, today)
	}
}

func (m *manager) roleBehaviours(ctx context.Context, roleID int64) ([]types.BehaviourRecord, error) {
	var recs []types.BehaviourRecord
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		recs, e = tx.RoleBehaviours(roleID)
		return e
	})
	return recs, e
}

// enable applies every behaviour of role to user
func (m *manager) enable(ctx context.Context, user *types.User, role *types.Role) {
	recs, e := m.roleBehaviours(ctx, role.ID)
	if e != nil {
		m.log.Error(e, "list role behaviours", "user", user.Username, "role", role.Name)
		return
	}

	for _, rec := range recs {
		b, e := m.behaviours.Decode(rec)
		if e != nil {
			m.log.Error(e, "decode behaviour", "behaviour", rec.ID, "kind", rec.Kind)
			continue
		}
		m.log.V(4).Info("apply behaviour", "behaviour", rec.ID, "kind", rec.Kind, "user", user.Username, "role", role.Name)
		if e := b.Apply(ctx, user, role); e != nil {
			m.log.Error(e, "apply behaviour", "behaviour", rec.ID, "kind", rec.Kind, "user", user.Username, "role", role.Name)
		}
	}
}

// disable unapplies the behaviours of role from user, unless another live grant still needs them
func (m *manager) disable(ctx context.Context, user *types.User, role *types.Role, today time.Time) {
	recs, e := m.roleBehaviours(ctx, role.ID)
	if e != nil {
		m.log.Error(e, "list role behaviours", "user", user.Username, "role", role.Name)
		return
	}

	for _, rec := range recs {
		var required bool
		e := m.store.Atomic(ctx, func(tx types.Tx) error {
			var e error
			required, e = tx.BehaviourRequired(user.ID, rec.ID, today)
			return e
		})
		if e != nil {
			m.log.Error(e, "check behaviour is required", "behaviour", rec.ID, "user", user.Username)
			continue
		}
		if required {
			m.log.V(4).Info("keep behaviour required by another grant", "behaviour", rec.ID, "user", user.Username, "role", role.Name)
			continue
		}

		b, e := m.behaviours.Decode(rec)
		if e != nil {
			m.log.Error(e, "decode behaviour", "behaviour", rec.ID, "kind", rec.Kind)
			continue
		}
		m.log.V(4).Info("unapply behaviour", "behaviour", rec.ID, "kind", rec.Kind, "user", user.Username, "role", role.Name)
		if e := b.Unapply(ctx, user, role); e != nil {
			m.log.Error(e, "unapply behaviour", "behaviour", rec.ID, "kind", rec.Kind, "user", user.Username, "role", role.Name)
		}
	}
}
