package types

import (
	"context"
	"time"
)

// NotificationType is the template key of a notification
type NotificationType string

// notification types
const (
	NotifyRequestConfirm     NotificationType = "request_confirm"
	NotifyRequestPending     NotificationType = "request_pending"
	NotifyRequestRejected    NotificationType = "request_rejected"
	NotifyGrantCreated       NotificationType = "grant_created"
	NotifyGrantExpiring      NotificationType = "grant_expiring"
	NotifyGrantExpired       NotificationType = "grant_expired"
	NotifyGrantRevoked       NotificationType = "grant_revoked"
	NotifyManualIntervention NotificationType = "manual_intervention_required"
)

// Notification is one message to a user about a target
type Notification struct {
	Type   NotificationType `json:"type" bson:"type"`
	UserID int64            `json:"user_id" bson:"user_id"`
	Target EntityRef        `json:"target" bson:"target"`
	Link   string           `json:"link" bson:"link"`

	// Stage tells apart repeated notifications of one type on one target, like expiry reminders
	Stage string `json:"stage,omitempty" bson:"stage,omitempty"`
}

// Notifier delivers notifications, content and transport are up to the implementation
type Notifier interface {
	Notify(ctx context.Context, n Notification) error

	// NotifyIfNotExists sends n only if the same type, user, target and stage was never sent
	NotifyIfNotExists(ctx context.Context, n Notification) (bool, error)

	// MarkSeen marks every notification about target as followed
	MarkSeen(ctx context.Context, target EntityRef) error
}

// Escalation asks humans outside the approver pool to look at a request
type Escalation struct {
	RequestID int64     `json:"request_id"`
	RoleID    int64     `json:"role_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Service   string    `json:"service"`
	Link      string    `json:"link"`
	At        time.Time `json:"at"`
}

// Escalator is the channel used when a request has no approvers
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

// LinkBuilder renders links embedded in notifications
type LinkBuilder interface {
	ServiceLink(category *Category, service *Service) string
	RequestDecideLink(request *Request) string
	GrantLink(category *Category, service *Service, grant *Grant) string
}
