package postgres

import (
	"fmt"
	"strings"

	"github.com/supremind/svcaccess/types"
)

const grantColumns = `g.id, g.access_id, g.granted_by, g.granted_at, g.expires, g.revoked, g.revoked_at,
	g.user_reason, g.internal_reason, COALESCE(g.previous_grant_id, 0) AS previous_grant_id, g.is_head`

const requestColumns = `r.id, r.access_id, r.requested_by, r.requested_at, r.state, r.incomplete,
	COALESCE(r.resulting_grant_id, 0) AS resulting_grant_id,
	COALESCE(r.previous_grant_id, 0) AS previous_grant_id,
	COALESCE(r.previous_request_id, 0) AS previous_request_id,
	r.user_reason, r.internal_reason, r.internal_comment, r.is_head`

// conditions collects where clauses with positional arguments
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, args ...interface{}) {
	for _, arg := range args {
		c.args = append(c.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(c.args)), 1)
	}
	c.clauses = append(c.clauses, clause)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (t *tx) GetOrCreateAccess(roleID, userID int64) (*types.Access, error) {
	if _, e := t.exec("create access", `
		INSERT INTO accesses (role_id, user_id) VALUES ($1, $2)
		ON CONFLICT (role_id, user_id) DO NOTHING`, roleID, userID); e != nil {
		return nil, e
	}

	var a types.Access
	e := t.get(fmt.Sprintf("access of user %d on role %d", userID, roleID), &a,
		`SELECT id, role_id, user_id FROM accesses WHERE role_id = $1 AND user_id = $2`, roleID, userID)
	if e != nil {
		return nil, e
	}
	return &a, nil
}

func (t *tx) GetAccess(id int64) (*types.Access, error) {
	var a types.Access
	if e := t.get(fmt.Sprintf("access %d", id), &a, `SELECT id, role_id, user_id FROM accesses WHERE id = $1`, id); e != nil {
		return nil, e
	}
	return &a, nil
}

func (t *tx) LockAccess(id int64) error {
	var locked int64
	return t.get(fmt.Sprintf("access %d", id), &locked, `SELECT id FROM accesses WHERE id = $1 FOR UPDATE`, id)
}

// supersede makes the previous record of a chain stop being its head
func (t *tx) supersede(table string, kind types.EntityKind, id int64) error {
	n, e := t.exec("supersede "+string(kind), `UPDATE `+table+` SET is_head = FALSE WHERE id = $1 AND is_head`, id)
	if e != nil {
		return e
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if e := t.get("find "+string(kind), &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id); e != nil {
		return e
	}
	if !exists {
		return fmt.Errorf("%w: %s %d", types.ErrNotFound, kind, id)
	}
	return types.NewConflictError(kind, id, string(kind)+" is already superseded")
}

func (t *tx) InsertGrant(g *types.Grant) error {
	if g.PreviousGrantID != 0 {
		if e := t.supersede("grants", types.KindGrant, g.PreviousGrantID); e != nil {
			return e
		}
	}

	g.Head = true
	id, e := t.insert("insert grant", `
		INSERT INTO grants (access_id, granted_by, granted_at, expires, revoked, revoked_at,
			user_reason, internal_reason, previous_grant_id, is_head)
		VALUES (:access_id, :granted_by, :granted_at, :expires, :revoked, :revoked_at,
			:user_reason, :internal_reason, NULLIF(:previous_grant_id, 0), TRUE)
		RETURNING id`, g)
	if e != nil {
		return e
	}
	g.ID = id
	return nil
}

func (t *tx) UpdateGrant(g *types.Grant) error {
	n, e := t.exec("update grant", `
		UPDATE grants SET revoked = $2, revoked_at = $3, user_reason = $4, internal_reason = $5
		WHERE id = $1`,
		g.ID, g.Revoked, g.RevokedAt, g.UserReason, g.InternalReason)
	if e != nil {
		return e
	}
	if n == 0 {
		return fmt.Errorf("%w: grant %d", types.ErrNotFound, g.ID)
	}
	return nil
}

func (t *tx) GetGrant(id int64) (*types.Grant, error) {
	var g types.Grant
	if e := t.get(fmt.Sprintf("grant %d", id), &g, `SELECT `+grantColumns+` FROM grants g WHERE g.id = $1`, id); e != nil {
		return nil, e
	}
	return &g, nil
}

func (t *tx) ListGrants(f types.GrantFilter) ([]*types.Grant, error) {
	c := &conditions{}
	if f.AccessID != 0 {
		c.add("g.access_id = ?", f.AccessID)
	}
	if f.UserID != 0 {
		c.add("a.user_id = ?", f.UserID)
	}
	if f.RoleID != 0 {
		c.add("a.role_id = ?", f.RoleID)
	}
	if f.HeadOnly {
		c.add("g.is_head")
	}
	if f.Revoked != nil {
		c.add("g.revoked = ?", *f.Revoked)
	}
	if f.UserReason != nil {
		c.add("g.user_reason = ?", *f.UserReason)
	}
	if f.LapsedAt != nil {
		c.add("(g.revoked OR g.expires < ?)", types.DateOf(*f.LapsedAt))
	}

	out := make([]*types.Grant, 0)
	e := t.SelectContext(t.ctx, &out, `
		SELECT `+grantColumns+`
		FROM grants g JOIN accesses a ON a.id = g.access_id`+c.where()+`
		ORDER BY g.id`, c.args...)
	if e != nil {
		return nil, mapError(e, "list grants")
	}
	return out, nil
}

func (t *tx) InsertRequest(r *types.Request) error {
	if r.PreviousRequestID != 0 {
		if e := t.supersede("requests", types.KindRequest, r.PreviousRequestID); e != nil {
			return e
		}
	}

	r.Head = true
	id, e := t.insert("insert request", `
		INSERT INTO requests (access_id, requested_by, requested_at, state, incomplete, resulting_grant_id,
			previous_grant_id, previous_request_id, user_reason, internal_reason, internal_comment, is_head)
		VALUES (:access_id, :requested_by, :requested_at, :state, :incomplete, NULLIF(:resulting_grant_id, 0),
			NULLIF(:previous_grant_id, 0), NULLIF(:previous_request_id, 0), :user_reason, :internal_reason, :internal_comment, TRUE)
		RETURNING id`, r)
	if e != nil {
		return e
	}
	r.ID = id
	return nil
}

func (t *tx) UpdateRequest(r *types.Request) error {
	n, e := t.exec("update request", `
		UPDATE requests SET state = $2, incomplete = $3, resulting_grant_id = NULLIF($4::BIGINT, 0),
			user_reason = $5, internal_reason = $6, internal_comment = $7, previous_grant_id = NULLIF($8::BIGINT, 0)
		WHERE id = $1`,
		r.ID, r.State, r.Incomplete, r.ResultingGrantID, r.UserReason, r.InternalReason, r.InternalComment, r.PreviousGrantID)
	if e != nil {
		return e
	}
	if n == 0 {
		return fmt.Errorf("%w: request %d", types.ErrNotFound, r.ID)
	}

	updated, e := t.GetRequest(r.ID)
	if e != nil {
		return e
	}
	*r = *updated
	return nil
}

func (t *tx) GetRequest(id int64) (*types.Request, error) {
	var r types.Request
	if e := t.get(fmt.Sprintf("request %d", id), &r, `SELECT `+requestColumns+` FROM requests r WHERE r.id = $1`, id); e != nil {
		return nil, e
	}
	return &r, nil
}

func (t *tx) ListRequests(f types.RequestFilter) ([]*types.Request, error) {
	c := &conditions{}
	if f.AccessID != 0 {
		c.add("r.access_id = ?", f.AccessID)
	}
	if f.UserID != 0 {
		c.add("a.user_id = ?", f.UserID)
	}
	if f.ActiveOnly {
		c.add("r.is_head AND r.resulting_grant_id IS NULL")
	}
	if f.State != "" {
		c.add("r.state = ?", f.State)
	}
	if f.UserReason != nil {
		c.add("r.user_reason = ?", *f.UserReason)
	}
	if f.RequestedBefore != nil {
		c.add("r.requested_at < ?", *f.RequestedBefore)
	}
	if f.PreviousGrantID != 0 {
		c.add("r.previous_grant_id = ?", f.PreviousGrantID)
	}

	out := make([]*types.Request, 0)
	e := t.SelectContext(t.ctx, &out, `
		SELECT `+requestColumns+`
		FROM requests r JOIN accesses a ON a.id = r.access_id`+c.where()+`
		ORDER BY r.id`, c.args...)
	if e != nil {
		return nil, mapError(e, "list requests")
	}
	return out, nil
}
