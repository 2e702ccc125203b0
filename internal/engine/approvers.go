package engine

import (
	"context"

	"github.com/supremind/svcaccess/types"
)

// Approvers are active users holding a live grant on a role allowed to decide requests for the role or its service
func (m *manager) Approvers(ctx context.Context, roleID int64) ([]*types.User, error) {
	_, today := m.now()

	var approvers []*types.User
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		role, e := tx.GetRole(roleID)
		if e != nil {
			return e
		}

		ids, e := tx.ApproverIDs(types.DecideRequest, []types.EntityRef{
			types.RefOf(types.KindRole, role.ID),
			types.RefOf(types.KindService, role.ServiceID),
		}, today)
		if e != nil {
			return e
		}

		approvers = make([]*types.User, 0, len(ids))
		for _, id := range ids {
			u, e := tx.GetUser(id)
			if e != nil {
				return e
			}
			if u.IsActive {
				approvers = append(approvers, u)
			}
		}
		return nil
	})
	if e != nil {
		return nil, e
	}

	m.log.V(4).Info("approvers", "role", roleID, "count", len(approvers))
	return approvers, nil
}
