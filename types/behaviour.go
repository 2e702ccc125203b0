package types

import "context"

// Behaviour is a side effect applied to a user while they hold a role.
// Apply and Unapply are idempotent.
type Behaviour interface {
	Kind() string
	Apply(ctx context.Context, user *User, role *Role) error
	Unapply(ctx context.Context, user *User, role *Role) error
}

// BehaviourRecord is the persisted form of a behaviour
type BehaviourRecord struct {
	ID     int64  `db:"id" json:"id"`
	Kind   string `db:"kind" json:"kind"`
	Config []byte `db:"config" json:"config"`
}

// BehaviourDecoder turns persisted behaviours into runnable ones
type BehaviourDecoder interface {
	Decode(BehaviourRecord) (Behaviour, error)
}
