// Package mgo keeps the notification inbox in mongodb
package mgo

import (
	"context"
	"time"

	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/types"
)

var _ types.Notifier = (*Inbox)(nil)

// Inbox is a Notifier storing notifications in a mongodb collection.
// Delivery is up to whoever reads the collection, or a wrapping publisher.
type Inbox struct {
	*collection
}

// NewInbox uses the given mongodb collection as the notification inbox
func NewInbox(coll *mgo.Collection, opts ...CollectionOption) (*Inbox, error) {
	c := &Inbox{&collection{Collection: coll, log: logr.Discard(), clock: clock.WallClock}}
	for _, opt := range opts {
		opt(c.collection)
	}

	ss := c.copySession()
	defer ss.closeSession()

	if e := ss.EnsureIndex(mgo.Index{Key: []string{"user_id", "type", "target.kind", "target.id", "stage"}}); e != nil {
		return nil, e
	}
	if e := ss.EnsureIndex(mgo.Index{Key: []string{"target.kind", "target.id", "followed_at"}}); e != nil {
		return nil, e
	}

	return c, nil
}

type notificationDO struct {
	ID         bson.ObjectId          `bson:"_id,omitempty"`
	Type       types.NotificationType `bson:"type"`
	UserID     int64                  `bson:"user_id"`
	Target     types.EntityRef        `bson:"target"`
	Link       string                 `bson:"link"`
	Stage      string                 `bson:"stage"`
	CreatedAt  time.Time              `bson:"created_at"`
	FollowedAt *time.Time             `bson:"followed_at"`
}

func (d *notificationDO) asNotification() types.Notification {
	return types.Notification{
		Type:   d.Type,
		UserID: d.UserID,
		Target: d.Target,
		Link:   d.Link,
		Stage:  d.Stage,
	}
}

func identity(n types.Notification) bson.M {
	return bson.M{
		"user_id":     n.UserID,
		"type":        n.Type,
		"target.kind": n.Target.Kind,
		"target.id":   n.Target.ID,
		"stage":       n.Stage,
	}
}

// Notify inserts n
func (i *Inbox) Notify(ctx context.Context, n types.Notification) error {
	if e := ctx.Err(); e != nil {
		return e
	}
	ss := i.copySession()
	defer ss.closeSession()

	i.log.V(4).Info("insert notification", "notification", n)
	return parseMgoError(ss.Insert(&notificationDO{
		ID:        bson.NewObjectId(),
		Type:      n.Type,
		UserID:    n.UserID,
		Target:    n.Target,
		Link:      n.Link,
		Stage:     n.Stage,
		CreatedAt: i.clock.Now(),
	}))
}

// NotifyIfNotExists inserts n unless one with the same user, type, target and stage is stored
func (i *Inbox) NotifyIfNotExists(ctx context.Context, n types.Notification) (bool, error) {
	if e := ctx.Err(); e != nil {
		return false, e
	}
	ss := i.copySession()
	defer ss.closeSession()

	// target is built from the dotted selector fields on insert
	info, e := ss.Upsert(identity(n), bson.M{"$setOnInsert": bson.M{
		"link":        n.Link,
		"created_at":  i.clock.Now(),
		"followed_at": nil,
	}})
	if e != nil {
		return false, parseMgoError(e)
	}

	created := info.UpsertedId != nil
	i.log.V(4).Info("upsert notification", "notification", n, "created", created)
	return created, nil
}

// MarkSeen stamps every unfollowed notification about target
func (i *Inbox) MarkSeen(ctx context.Context, target types.EntityRef) error {
	if e := ctx.Err(); e != nil {
		return e
	}
	ss := i.copySession()
	defer ss.closeSession()

	info, e := ss.UpdateAll(
		bson.M{"target.kind": target.Kind, "target.id": target.ID, "followed_at": nil},
		bson.M{"$set": bson.M{"followed_at": i.clock.Now()}},
	)
	if e != nil {
		return parseMgoError(e)
	}
	i.log.V(4).Info("mark notifications seen", "target", target, "updated", info.Updated)
	return nil
}

// Unread notifications of a user, oldest first
func (i *Inbox) Unread(ctx context.Context, userID int64) ([]types.Notification, error) {
	if e := ctx.Err(); e != nil {
		return nil, e
	}
	ss := i.copySession()
	defer ss.closeSession()

	iter := ss.Find(bson.M{"user_id": userID, "followed_at": nil}).Sort("created_at").Iter()
	defer iter.Close()

	out := make([]types.Notification, 0)
	var do notificationDO
	for iter.Next(&do) {
		out = append(out, do.asNotification())
		do = notificationDO{}
	}
	if e := iter.Err(); e != nil {
		return nil, parseMgoError(e)
	}
	return out, nil
}
