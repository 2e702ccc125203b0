// Package svcaccess manages requests for roles on catalog services, the grants decided on them,
// and the side effects applied while grants are active
package svcaccess

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/internal/engine"
	"github.com/supremind/svcaccess/internal/notify"
	"github.com/supremind/svcaccess/internal/permission"
	"github.com/supremind/svcaccess/types"
)

// New creates an access Manager
func New(ctx context.Context, opts ...ManagerOption) (types.Manager, error) {
	cfg := &ManagerConfig{
		policy: types.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.store == nil {
		return nil, errors.New("empty store")
	}
	if cfg.log == nil {
		l := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))
		cfg.log = &l
	}
	if cfg.clock == nil {
		cfg.clock = clock.WallClock
	}
	if cfg.notifier == nil {
		cfg.notifier = discard{}
	}
	if cfg.links == nil {
		cfg.links = notify.DefaultLinks("")
	}
	if cfg.behaviours == nil {
		cfg.behaviours = behaviour.NewRegistry(behaviour.Backends{Ledger: behaviour.StoreLedger(cfg.store)})
	}

	l := *cfg.log
	checker := permission.New(cfg.store, cfg.cache, cfg.clock, l.WithName("permission"), cfg.presets...)

	return engine.New(engine.Config{
		Store:       cfg.store,
		Notifier:    cfg.notifier,
		Escalator:   cfg.escalator,
		Behaviours:  cfg.behaviours,
		Forms:       cfg.forms,
		Permissions: checker,
		Links:       cfg.links,
		Clock:       cfg.clock,
		Log:         l.WithName("engine"),
		Policy:      cfg.policy,
	}), nil
}

// WithStore sets where the catalog and the access chains are kept, it is required
func WithStore(s types.Store) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.store = s
	}
}

// WithLogger sets logger for all components
func WithLogger(l logr.Logger) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.log = &l
	}
}

// WithClock sets where the current time comes from
func WithClock(c clock.Clock) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.clock = c
	}
}

// WithNotifier sets how users are notified,
// notifications are dropped if not set
func WithNotifier(n types.Notifier) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.notifier = n
	}
}

// WithEscalator sets who looks at requests nobody could approve
func WithEscalator(e types.Escalator) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.escalator = e
	}
}

// WithBehaviours sets how persisted behaviours are run,
// built in behaviours without any backend are used if not set
func WithBehaviours(d types.BehaviourDecoder) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.behaviours = d
	}
}

// WithForms sets the metadata forms of roles
// metadata is saved as submitted if not set
func WithForms(f types.FormRegistry) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.forms = f
	}
}

// WithPermissionCache sets where computed permissions are cached, in process if not set
func WithPermissionCache(c types.PermissionCache) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.cache = c
	}
}

// WithPresetPolicies adds preset policies consulted before role object permissions
func WithPresetPolicies(presets ...types.PresetPolicy) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.presets = append(cfg.presets, presets...)
	}
}

// WithPolicy replaces the default strict policy
func WithPolicy(p types.Policy) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.policy = p
	}
}

// WithLinks sets how links in notifications are rendered
func WithLinks(lb types.LinkBuilder) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.links = lb
	}
}

// ManagerConfig works together with ManagerOption to control the initialization of the manager
type ManagerConfig struct {
	store      types.Store
	log        *logr.Logger
	clock      clock.Clock
	notifier   types.Notifier
	escalator  types.Escalator
	behaviours types.BehaviourDecoder
	forms      types.FormRegistry
	cache      types.PermissionCache
	presets    []types.PresetPolicy
	policy     types.Policy
	links      types.LinkBuilder
}

// ManagerOption controls how to init a manager
type ManagerOption func(*ManagerConfig)

type discard struct{}

func (discard) Notify(context.Context, types.Notification) error { return nil }

func (discard) NotifyIfNotExists(context.Context, types.Notification) (bool, error) {
	return false, nil
}

func (discard) MarkSeen(context.Context, types.EntityRef) error { return nil }
