package types

import (
	"fmt"
	"strconv"
	"strings"
)

// EntityKind names a kind of record which could be pointed at by permissions, notifications and metadata
type EntityKind string

// known entity kinds
const (
	KindCategory EntityKind = "category"
	KindService  EntityKind = "service"
	KindRole     EntityKind = "role"
	KindRequest  EntityKind = "request"
	KindGrant    EntityKind = "grant"
	KindUser     EntityKind = "user"
)

// EntityRef points at a record by kind and id
type EntityRef struct {
	Kind EntityKind `json:"kind" bson:"kind"`
	ID   int64      `json:"id" bson:"id"`
}

// RefOf creates an EntityRef
func RefOf(kind EntityKind, id int64) EntityRef {
	return EntityRef{Kind: kind, ID: id}
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// ParseEntityRef parses the string form of an EntityRef, like "role:12"
func ParseEntityRef(s string) (EntityRef, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return EntityRef{}, fmt.Errorf("%w: %s", ErrUnknownEntity, s)
	}
	id, e := strconv.ParseInt(parts[1], 10, 64)
	if e != nil {
		return EntityRef{}, fmt.Errorf("%w: %s", ErrUnknownEntity, s)
	}
	return EntityRef{Kind: EntityKind(parts[0]), ID: id}, nil
}
