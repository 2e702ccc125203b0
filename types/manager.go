package types

import (
	"context"
	"time"
)

// Manager is the top level interface for end use.
// It runs the access lifecycle: requests, decisions, grants and their side effects.
type Manager interface {
	Cataloger
	Lifecycle
	Sweeper
	PermissionChecker

	// Approvers of requests for the role
	Approvers(ctx context.Context, roleID int64) ([]*User, error)

	// Metadata attached to target
	Metadata(ctx context.Context, target EntityRef) (Metadata, error)

	// CopyMetadata replaces metadata of to with metadata of from
	CopyMetadata(ctx context.Context, from, to EntityRef) error
}

// Cataloger manages services, roles and the users known to this module
type Cataloger interface {
	RegisterUser(ctx context.Context, user *User) error
	CreateCategory(ctx context.Context, cat *Category) error
	CreateService(ctx context.Context, svc *Service) error
	CreateRole(ctx context.Context, role *Role) error

	// CreateBehaviour saves a behaviour of kind, config is validated by decoding it
	CreateBehaviour(ctx context.Context, kind string, config interface{}) (*BehaviourRecord, error)
	AttachBehaviour(ctx context.Context, roleID, behaviourID int64) error

	// AddObjectPermission gives holders of role the permission on target
	AddObjectPermission(ctx context.Context, roleID int64, act Action, target EntityRef) (*RoleObjectPermission, error)
}

// Lifecycle moves accesses through requests and grants
type Lifecycle interface {
	// SubmitRequest creates a request, or a grant right away for auto accepted roles
	SubmitRequest(ctx context.Context, in RequestInput) (*Request, error)

	// Decide approves or rejects a pending request
	Decide(ctx context.Context, d Decision) (*Request, error)

	// GrantRole grants a role without a request
	GrantRole(ctx context.Context, in GrantInput) (*Grant, error)

	// RevokeGrant revokes a grant with a reason shown to the user
	RevokeGrant(ctx context.Context, grantID int64, userReason, internalReason string) (*Grant, error)

	// RestoreGrant clears the revocation of a grant
	RestoreGrant(ctx context.Context, grantID int64) (*Grant, error)

	// SetUserActive suspends or reactivates an account and its accesses
	SetUserActive(ctx context.Context, userID int64, active bool) error

	ActiveGrant(ctx context.Context, accessID int64) (*Grant, error)
	ActiveRequest(ctx context.Context, accessID int64) (*Request, error)

	// UserMayApply tells if the user could apply for the role now
	UserMayApply(ctx context.Context, roleID, userID int64) (bool, error)
}

// Sweeper runs the periodic jobs
type Sweeper interface {
	// SyncAccess disables behaviours of lapsed grants, or re-syncs every active grant if all is set
	SyncAccess(ctx context.Context, all bool) error
	SendExpiryNotifications(ctx context.Context) error
	RemindPending(ctx context.Context) error
}

// RequestInput is a user's application for a role
type RequestInput struct {
	RoleID int64
	UserID int64

	// continue from one of these, both optional
	PreviousRequestID int64
	PreviousGrantID   int64

	Metadata Metadata
}

// Outcome of a decision
type Outcome string

// decision outcomes
const (
	OutcomeNone       Outcome = ""
	OutcomeApprove    Outcome = "APPROVED"
	OutcomeReject     Outcome = "REJECTED"
	OutcomeIncomplete Outcome = "INCOMPLETE"
)

// ExpiryChoice is how long an approved grant lasts
type ExpiryChoice string

// expiry choices offered to approvers
const (
	ExpiryUnset      ExpiryChoice = ""
	ExpirySixMonths  ExpiryChoice = "6m"
	ExpiryOneYear    ExpiryChoice = "1y"
	ExpiryTwoYears   ExpiryChoice = "2y"
	ExpiryThreeYears ExpiryChoice = "3y"
	ExpiryFiveYears  ExpiryChoice = "5y"
	ExpiryTenYears   ExpiryChoice = "10y"
	ExpiryCustom     ExpiryChoice = "custom"
)

// Decision is an approver's verdict on a request
type Decision struct {
	RequestID  int64
	ApproverID int64
	Outcome    Outcome

	Expiry       ExpiryChoice
	CustomExpiry time.Time

	UserReason      string
	InternalReason  string
	InternalComment string
}

// GrantInput is a manager's direct grant of a role
type GrantInput struct {
	RoleID    int64
	UserID    int64
	GranterID int64

	// PreviousGrantID must name the active grant if there is one
	PreviousGrantID int64

	Expiry       ExpiryChoice
	CustomExpiry time.Time
}
