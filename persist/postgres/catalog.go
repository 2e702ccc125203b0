package postgres

import (
	"fmt"

	"github.com/supremind/svcaccess/types"
)

const userColumns = `id, username, email, full_name, is_active, is_staff, service_user`

func (t *tx) CreateUser(u *types.User) error {
	id, e := t.insert("create user", `
		INSERT INTO users (username, email, full_name, is_active, is_staff, service_user)
		VALUES (:username, :email, :full_name, :is_active, :is_staff, :service_user)
		RETURNING id`, u)
	if e != nil {
		return e
	}
	u.ID = id
	return nil
}

func (t *tx) UpdateUser(u *types.User) error {
	n, e := t.exec("update user", `
		UPDATE users SET email = $2, full_name = $3, is_active = $4, is_staff = $5, service_user = $6
		WHERE id = $1`,
		u.ID, u.Email, u.FullName, u.IsActive, u.IsStaff, u.ServiceUser)
	if e != nil {
		return e
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", types.ErrNotFound, u.ID)
	}
	return nil
}

func (t *tx) GetUser(id int64) (*types.User, error) {
	var u types.User
	if e := t.get(fmt.Sprintf("user %d", id), &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); e != nil {
		return nil, e
	}
	return &u, nil
}

func (t *tx) GetUserByName(username string) (*types.User, error) {
	var u types.User
	if e := t.get("user "+username, &u, `SELECT `+userColumns+` FROM users WHERE username = $1`, username); e != nil {
		return nil, e
	}
	return &u, nil
}

func (t *tx) CreateCategory(c *types.Category) error {
	id, e := t.insert("create category", `
		INSERT INTO categories (name, long_name, position)
		VALUES (:name, :long_name, :position)
		RETURNING id`, c)
	if e != nil {
		return e
	}
	c.ID = id
	return nil
}

func (t *tx) GetCategory(id int64) (*types.Category, error) {
	var c types.Category
	if e := t.get(fmt.Sprintf("category %d", id), &c, `SELECT id, name, long_name, position FROM categories WHERE id = $1`, id); e != nil {
		return nil, e
	}
	return &c, nil
}

func (t *tx) CreateService(s *types.Service) error {
	id, e := t.insert("create service", `
		INSERT INTO services (category_id, name, summary, description, approver_message, hidden, position, disabled)
		VALUES (:category_id, :name, :summary, :description, :approver_message, :hidden, :position, :disabled)
		RETURNING id`, s)
	if e != nil {
		return e
	}
	s.ID = id
	return nil
}

func (t *tx) GetService(id int64) (*types.Service, error) {
	var s types.Service
	e := t.get(fmt.Sprintf("service %d", id), &s, `
		SELECT id, category_id, name, summary, description, approver_message, hidden, position, disabled
		FROM services WHERE id = $1`, id)
	if e != nil {
		return nil, e
	}
	return &s, nil
}

func (t *tx) CreateRole(r *types.Role) error {
	id, e := t.insert("create role", `
		INSERT INTO roles (service_id, name, description, hidden, auto_accept, position, metadata_form_id)
		VALUES (:service_id, :name, :description, :hidden, :auto_accept, :position, :metadata_form_id)
		RETURNING id`, r)
	if e != nil {
		return e
	}
	r.ID = id
	return nil
}

func (t *tx) GetRole(id int64) (*types.Role, error) {
	var r types.Role
	e := t.get(fmt.Sprintf("role %d", id), &r, `
		SELECT id, service_id, name, description, hidden, auto_accept, position, metadata_form_id
		FROM roles WHERE id = $1`, id)
	if e != nil {
		return nil, e
	}
	return &r, nil
}

func (t *tx) CreateBehaviour(b *types.BehaviourRecord) error {
	config := b.Config
	if len(config) == 0 {
		config = []byte(`{}`)
	}
	var id int64
	e := t.QueryRowxContext(t.ctx, `INSERT INTO behaviours (kind, config) VALUES ($1, $2) RETURNING id`, b.Kind, string(config)).Scan(&id)
	if e != nil {
		return mapError(e, "create behaviour")
	}
	b.ID = id
	return nil
}

func (t *tx) GetBehaviour(id int64) (*types.BehaviourRecord, error) {
	var b types.BehaviourRecord
	if e := t.get(fmt.Sprintf("behaviour %d", id), &b, `SELECT id, kind, config FROM behaviours WHERE id = $1`, id); e != nil {
		return nil, e
	}
	return &b, nil
}

func (t *tx) AttachBehaviour(roleID, behaviourID int64) error {
	_, e := t.exec("attach behaviour", `
		INSERT INTO role_behaviours (role_id, behaviour_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, behaviourID)
	return e
}

func (t *tx) RoleBehaviours(roleID int64) ([]types.BehaviourRecord, error) {
	out := make([]types.BehaviourRecord, 0)
	e := t.SelectContext(t.ctx, &out, `
		SELECT b.id, b.kind, b.config
		FROM behaviours b JOIN role_behaviours rb ON rb.behaviour_id = b.id
		WHERE rb.role_id = $1
		ORDER BY b.id`, roleID)
	if e != nil {
		return nil, mapError(e, "list role behaviours")
	}
	return out, nil
}
