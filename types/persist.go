package types

import (
	"context"
	"time"
)

// Store persists the catalog and the access chains.
// All reads and writes happen inside Atomic; fn's changes are committed only if it returns nil.
type Store interface {
	Atomic(ctx context.Context, fn func(Tx) error) error
}

// Tx is a unit of work on a Store
type Tx interface {
	CatalogTx
	ChainTx
	PermissionTx

	// Metadata attached to target, nil if there is none
	Metadata(target EntityRef) (Metadata, error)

	// ReplaceMetadata drops all metadata of target and saves md instead
	ReplaceMetadata(target EntityRef, md Metadata) error

	// HasJoined tells if the user was already subscribed by the behaviour
	HasJoined(behaviourID, userID int64) (bool, error)

	// RecordJoined remembers that the behaviour subscribed the user
	RecordJoined(behaviourID, userID int64) error
}

// CatalogTx reads and writes catalog records and users
type CatalogTx interface {
	CreateUser(*User) error
	UpdateUser(*User) error
	GetUser(id int64) (*User, error)
	GetUserByName(username string) (*User, error)

	CreateCategory(*Category) error
	GetCategory(id int64) (*Category, error)
	CreateService(*Service) error
	GetService(id int64) (*Service, error)
	CreateRole(*Role) error
	GetRole(id int64) (*Role, error)

	CreateBehaviour(*BehaviourRecord) error
	GetBehaviour(id int64) (*BehaviourRecord, error)
	AttachBehaviour(roleID, behaviourID int64) error
	RoleBehaviours(roleID int64) ([]BehaviourRecord, error)
}

// ChainTx reads and writes accesses, grants and requests
type ChainTx interface {
	// GetOrCreateAccess returns the single access of user on role
	GetOrCreateAccess(roleID, userID int64) (*Access, error)
	GetAccess(id int64) (*Access, error)

	// LockAccess serializes writers on the chains of one access until the end of the Tx
	LockAccess(id int64) error

	// InsertGrant saves a new grant as the head of its chain.
	// The previous grant, if any, stops being a head in the same Tx.
	InsertGrant(*Grant) error

	// UpdateGrant saves the revocation fields of a grant
	UpdateGrant(*Grant) error
	GetGrant(id int64) (*Grant, error)
	ListGrants(GrantFilter) ([]*Grant, error)

	// InsertRequest saves a new request as the head of its chain.
	// The previous request, if any, stops being a head in the same Tx.
	InsertRequest(*Request) error

	// UpdateRequest saves decision fields, the resulting grant and the previous grant of a request
	UpdateRequest(*Request) error
	GetRequest(id int64) (*Request, error)
	ListRequests(RequestFilter) ([]*Request, error)
}

// PermissionTx answers role-object permission questions with set queries
type PermissionTx interface {
	CreateObjectPermission(*RoleObjectPermission) error

	// ApproverIDs lists users holding a live head grant on a role which has act on any of targets
	ApproverIDs(act Action, targets []EntityRef, today time.Time) ([]int64, error)

	// ObjectPermissionsOf lists permissions user holds through live head grants
	ObjectPermissionsOf(userID int64, today time.Time) ([]RoleObjectPermission, error)

	// BehaviourRequired tells if user holds a live head grant on any role carrying the behaviour
	BehaviourRequired(userID, behaviourID int64, today time.Time) (bool, error)
}

// GrantFilter selects grants, zero fields match anything
type GrantFilter struct {
	AccessID int64
	UserID   int64
	RoleID   int64
	HeadOnly bool
	Revoked  *bool

	// UserReason matches revocation reasons exactly
	UserReason *string

	// LapsedAt selects grants revoked or expired before the date
	LapsedAt *time.Time
}

// RequestFilter selects requests, zero fields match anything
type RequestFilter struct {
	AccessID   int64
	UserID     int64
	ActiveOnly bool
	State      RequestState
	UserReason *string

	// RequestedBefore selects requests made strictly before the time
	RequestedBefore *time.Time

	// PreviousGrantID selects requests continuing the grant
	PreviousGrantID int64
}

// BoolP returns a pointer to b
func BoolP(b bool) *bool { return &b }

// StringP returns a pointer to s
func StringP(s string) *string { return &s }

// TimeP returns a pointer to t
func TimeP(t time.Time) *time.Time { return &t }
