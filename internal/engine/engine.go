// Package engine runs the access lifecycle over a Store
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/internal/chain"
	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/types"
)

// Config holds the collaborators of the engine, Store, Behaviours, Permissions and Links are required
type Config struct {
	Store       types.Store
	Notifier    types.Notifier
	Escalator   types.Escalator
	Behaviours  types.BehaviourDecoder
	Forms       types.FormRegistry
	Permissions types.PermissionChecker
	Links       types.LinkBuilder
	Clock       clock.Clock
	Log         logr.Logger
	Policy      types.Policy
}

var _ types.Manager = (*manager)(nil)

type manager struct {
	store      types.Store
	behaviours types.BehaviourDecoder
	forms      types.FormRegistry
	triggers   *notify.Triggers
	clock      clock.Clock
	log        logr.Logger
	policy     types.Policy
	loaders    map[types.EntityKind]loader
	types.PermissionChecker
}

// New creates a Manager
func New(cfg Config) types.Manager {
	m := &manager{
		store:             cfg.Store,
		behaviours:        cfg.Behaviours,
		forms:             cfg.Forms,
		clock:             cfg.Clock,
		log:               cfg.Log,
		policy:            cfg.Policy,
		loaders:           defaultLoaders(),
		PermissionChecker: cfg.Permissions,
	}
	m.triggers = notify.New(cfg.Notifier, cfg.Escalator, cfg.Links, &m.policy, cfg.Clock, cfg.Log.WithName("notify"))

	return m
}

func (m *manager) strict() bool {
	return !m.policy.MultipleRequestsAllowed
}

func (m *manager) now() (now, today time.Time) {
	now = m.clock.Now().UTC()
	return now, chain.Today(now)
}

// scopeOf loads everything around an access
func scopeOf(tx types.Tx, accessID int64) (*notify.Scope, error) {
	access, e := tx.GetAccess(accessID)
	if e != nil {
		return nil, e
	}
	user, e := tx.GetUser(access.UserID)
	if e != nil {
		return nil, e
	}
	role, e := tx.GetRole(access.RoleID)
	if e != nil {
		return nil, e
	}
	svc, e := tx.GetService(role.ServiceID)
	if e != nil {
		return nil, e
	}
	cat, e := tx.GetCategory(svc.CategoryID)
	if e != nil {
		return nil, e
	}

	return &notify.Scope{
		Access:   access,
		User:     user,
		Role:     role,
		Service:  svc,
		Category: cat,
	}, nil
}

// roleScope loads a role and its service
func roleScope(tx types.Tx, roleID int64) (*types.Role, *types.Service, error) {
	role, e := tx.GetRole(roleID)
	if e != nil {
		return nil, nil, e
	}
	svc, e := tx.GetService(role.ServiceID)
	if e != nil {
		return nil, nil, e
	}
	return role, svc, nil
}

// authorize checks user may do act on the role, directly or through its service
func (m *manager) authorize(ctx context.Context, userID int64, act types.Action, role *types.Role) error {
	for _, target := range []types.EntityRef{
		types.RefOf(types.KindRole, role.ID),
		types.RefOf(types.KindService, role.ServiceID),
	} {
		target := target
		ok, e := m.HasPermission(ctx, userID, act, &target)
		if e != nil {
			return e
		}
		if ok {
			return nil
		}
	}

	return fmt.Errorf("%w: user %d may not %s on role %d", types.ErrPermissionDenied, userID, act, role.ID)
}

// invalidate forgets cached permissions of user, a stale cache only lasts until the next day
func (m *manager) invalidate(ctx context.Context, userID int64) {
	if e := m.Invalidate(ctx, userID); e != nil {
		m.log.Error(e, "invalidate cached permissions", "user", userID)
	}
}

// grantChanged runs the side effects of a committed grant mutation
func (m *manager) grantChanged(ctx context.Context, g *types.Grant, sc *notify.Scope) {
	m.syncGrant(ctx, g, sc)
	m.invalidate(ctx, sc.User.ID)
}
