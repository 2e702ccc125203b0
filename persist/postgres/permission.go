package postgres

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/supremind/svcaccess/types"
)

// liveHolders are users with a head grant neither revoked nor expired, per role
const liveHolders = `
	SELECT a.role_id, a.user_id
	FROM grants g JOIN accesses a ON a.id = g.access_id
	WHERE g.is_head AND NOT g.revoked AND g.expires >= $1`

type permissionRow struct {
	ID         int64  `db:"id"`
	RoleID     int64  `db:"role_id"`
	Permission int64  `db:"permission"`
	TargetKind string `db:"target_kind"`
	TargetID   int64  `db:"target_id"`
}

func (r permissionRow) toPermission() types.RoleObjectPermission {
	return types.RoleObjectPermission{
		ID:         r.ID,
		RoleID:     r.RoleID,
		Permission: types.Action(r.Permission),
		Target:     types.RefOf(types.EntityKind(r.TargetKind), r.TargetID),
	}
}

func (t *tx) CreateObjectPermission(p *types.RoleObjectPermission) error {
	row := permissionRow{
		RoleID:     p.RoleID,
		Permission: int64(p.Permission),
		TargetKind: string(p.Target.Kind),
		TargetID:   p.Target.ID,
	}
	id, e := t.insert(fmt.Sprintf("grant %s on %s", p.Permission, p.Target), `
		INSERT INTO role_object_permissions (role_id, permission, target_kind, target_id)
		VALUES (:role_id, :permission, :target_kind, :target_id)
		RETURNING id`, row)
	if e != nil {
		return e
	}
	p.ID = id
	return nil
}

func (t *tx) ApproverIDs(act types.Action, targets []types.EntityRef, today time.Time) ([]int64, error) {
	out := make([]int64, 0)
	if len(targets) == 0 {
		return out, nil
	}

	kinds := make([]string, 0, len(targets))
	ids := make([]int64, 0, len(targets))
	for _, target := range targets {
		kinds = append(kinds, string(target.Kind))
		ids = append(ids, target.ID)
	}

	e := t.SelectContext(t.ctx, &out, `
		SELECT DISTINCT h.user_id
		FROM (`+liveHolders+`) h
		JOIN role_object_permissions p ON p.role_id = h.role_id
		JOIN UNNEST($2::TEXT[], $3::BIGINT[]) AS wanted (kind, id)
			ON wanted.kind = p.target_kind AND wanted.id = p.target_id
		WHERE p.permission & $4 = $4
		ORDER BY h.user_id`,
		types.DateOf(today), pq.Array(kinds), pq.Array(ids), int64(act))
	if e != nil {
		return nil, mapError(e, "list approvers")
	}
	return out, nil
}

func (t *tx) ObjectPermissionsOf(userID int64, today time.Time) ([]types.RoleObjectPermission, error) {
	var rows []permissionRow
	e := t.SelectContext(t.ctx, &rows, `
		SELECT p.id, p.role_id, p.permission, p.target_kind, p.target_id
		FROM role_object_permissions p
		WHERE p.role_id IN (SELECT h.role_id FROM (`+liveHolders+`) h WHERE h.user_id = $2)
		ORDER BY p.id`,
		types.DateOf(today), userID)
	if e != nil {
		return nil, mapError(e, fmt.Sprintf("permissions of user %d", userID))
	}

	out := make([]types.RoleObjectPermission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPermission())
	}
	return out, nil
}

func (t *tx) BehaviourRequired(userID, behaviourID int64, today time.Time) (bool, error) {
	var required bool
	e := t.get(fmt.Sprintf("behaviour %d of user %d", behaviourID, userID), &required, `
		SELECT EXISTS (
			SELECT 1
			FROM (`+liveHolders+`) h
			JOIN role_behaviours rb ON rb.role_id = h.role_id
			WHERE h.user_id = $2 AND rb.behaviour_id = $3
		)`,
		types.DateOf(today), userID, behaviourID)
	return required, e
}
