package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supremind/svcaccess/types"
)

// loader checks an entity exists
type loader func(tx types.Tx, id int64) error

func defaultLoaders() map[types.EntityKind]loader {
	return map[types.EntityKind]loader{
		types.KindCategory: func(tx types.Tx, id int64) error { _, e := tx.GetCategory(id); return e },
		types.KindService:  func(tx types.Tx, id int64) error { _, e := tx.GetService(id); return e },
		types.KindRole:     func(tx types.Tx, id int64) error { _, e := tx.GetRole(id); return e },
		types.KindRequest:  func(tx types.Tx, id int64) error { _, e := tx.GetRequest(id); return e },
		types.KindGrant:    func(tx types.Tx, id int64) error { _, e := tx.GetGrant(id); return e },
		types.KindUser:     func(tx types.Tx, id int64) error { _, e := tx.GetUser(id); return e },
	}
}

func (m *manager) resolve(tx types.Tx, ref types.EntityRef) error {
	load, ok := m.loaders[ref.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownEntity, ref.Kind)
	}
	return load(tx, ref.ID)
}

func (m *manager) RegisterUser(ctx context.Context, user *types.User) error {
	m.log.V(4).Info("register user", "username", user.Username)
	return m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.CreateUser(user)
	})
}

func (m *manager) CreateCategory(ctx context.Context, cat *types.Category) error {
	m.log.V(4).Info("create category", "name", cat.Name)
	if cat.Name == "" {
		return types.NewValidationError("name", "this field is required")
	}
	return m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.CreateCategory(cat)
	})
}

func (m *manager) CreateService(ctx context.Context, svc *types.Service) error {
	m.log.V(4).Info("create service", "category", svc.CategoryID, "name", svc.Name)
	if svc.Name == "" {
		return types.NewValidationError("name", "this field is required")
	}
	return m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.CreateService(svc)
	})
}

func (m *manager) CreateRole(ctx context.Context, role *types.Role) error {
	m.log.V(4).Info("create role", "service", role.ServiceID, "name", role.Name)
	if role.Name == "" {
		return types.NewValidationError("name", "this field is required")
	}
	return m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.CreateRole(role)
	})
}

// CreateBehaviour accepts config as raw json or any value marshalling to it
func (m *manager) CreateBehaviour(ctx context.Context, kind string, config interface{}) (*types.BehaviourRecord, error) {
	m.log.V(4).Info("create behaviour", "kind", kind)

	var raw []byte
	switch c := config.(type) {
	case []byte:
		raw = c
	case json.RawMessage:
		raw = c
	default:
		var e error
		if raw, e = json.Marshal(config); e != nil {
			return nil, types.NewValidationError("config", e.Error())
		}
	}

	rec := &types.BehaviourRecord{Kind: kind, Config: raw}
	if _, e := m.behaviours.Decode(*rec); e != nil {
		return nil, e
	}

	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.CreateBehaviour(rec)
	})
	if e != nil {
		return nil, e
	}
	return rec, nil
}

func (m *manager) AttachBehaviour(ctx context.Context, roleID, behaviourID int64) error {
	m.log.V(4).Info("attach behaviour", "role", roleID, "behaviour", behaviourID)
	return m.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.AttachBehaviour(roleID, behaviourID)
	})
}

func (m *manager) AddObjectPermission(ctx context.Context, roleID int64, act types.Action, target types.EntityRef) (*types.RoleObjectPermission, error) {
	m.log.V(4).Info("add object permission", "role", roleID, "action", act, "target", target)

	if act == 0 {
		return nil, types.NewValidationError("permission", "this field is required")
	}

	rop := &types.RoleObjectPermission{RoleID: roleID, Permission: act, Target: target}
	var holders []int64
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		if _, e := tx.GetRole(roleID); e != nil {
			return e
		}
		if e := m.resolve(tx, target); e != nil {
			return e
		}
		if e := tx.CreateObjectPermission(rop); e != nil {
			return e
		}

		var e error
		holders, e = roleHolders(tx, roleID)
		return e
	})
	if e != nil {
		return nil, e
	}

	for _, uid := range holders {
		m.invalidate(ctx, uid)
	}
	return rop, nil
}

// roleHolders lists users with an active grant on role, whatever its state
func roleHolders(tx types.Tx, roleID int64) ([]int64, error) {
	grants, e := tx.ListGrants(types.GrantFilter{RoleID: roleID, HeadOnly: true})
	if e != nil {
		return nil, e
	}

	seen := make(map[int64]bool, len(grants))
	out := make([]int64, 0, len(grants))
	for _, g := range grants {
		access, e := tx.GetAccess(g.AccessID)
		if e != nil {
			return nil, e
		}
		if !seen[access.UserID] {
			seen[access.UserID] = true
			out = append(out, access.UserID)
		}
	}
	return out, nil
}
