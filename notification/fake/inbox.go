// Package fake keeps notifications and escalations in memory
package fake

import (
	"context"
	"sync"

	"github.com/supremind/svcaccess/types"
)

var (
	_ types.Notifier  = (*Inbox)(nil)
	_ types.Escalator = (*Inbox)(nil)
)

// Record is a delivered notification
type Record struct {
	types.Notification
	Seen bool
}

// Inbox records notifications, it should not be used in real works
type Inbox struct {
	records     []Record
	escalations []types.Escalation
	sync.Mutex
}

// NewInbox creates an empty inbox
func NewInbox() *Inbox {
	return &Inbox{}
}

// Notify records n
func (i *Inbox) Notify(_ context.Context, n types.Notification) error {
	i.Lock()
	defer i.Unlock()
	i.records = append(i.records, Record{Notification: n})
	return nil
}

// NotifyIfNotExists records n unless an equal one was recorded
func (i *Inbox) NotifyIfNotExists(_ context.Context, n types.Notification) (bool, error) {
	i.Lock()
	defer i.Unlock()
	for _, r := range i.records {
		if r.Type == n.Type && r.UserID == n.UserID && r.Target == n.Target && r.Stage == n.Stage {
			return false, nil
		}
	}
	i.records = append(i.records, Record{Notification: n})
	return true, nil
}

// MarkSeen marks records about target
func (i *Inbox) MarkSeen(_ context.Context, target types.EntityRef) error {
	i.Lock()
	defer i.Unlock()
	for k := range i.records {
		if i.records[k].Target == target {
			i.records[k].Seen = true
		}
	}
	return nil
}

// Escalate records e
func (i *Inbox) Escalate(_ context.Context, e types.Escalation) error {
	i.Lock()
	defer i.Unlock()
	i.escalations = append(i.escalations, e)
	return nil
}

// Records of a type, or all of them if typ is empty
func (i *Inbox) Records(typ types.NotificationType) []Record {
	i.Lock()
	defer i.Unlock()
	out := make([]Record, 0)
	for _, r := range i.records {
		if typ == "" || r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// Escalations recorded so far
func (i *Inbox) Escalations() []types.Escalation {
	i.Lock()
	defer i.Unlock()
	return append([]types.Escalation(nil), i.escalations...)
}

// Reset forgets everything
func (i *Inbox) Reset() {
	i.Lock()
	defer i.Unlock()
	i.records = nil
	i.escalations = nil
}
