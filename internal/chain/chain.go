// Package chain picks the active record of grant and request chains, and guards their heads
package chain

import (
	"fmt"
	"sort"
	"time"

	"github.com/supremind/svcaccess/types"
)

// GrantHead picks the active grant among the heads of one access.
// More than one head is an anomaly in strict mode, tied reports if a tie-break was needed.
func GrantHead(heads []*types.Grant) (head *types.Grant, tied bool) {
	switch len(heads) {
	case 0:
		return nil, false
	case 1:
		return heads[0], false
	}

	sorted := make([]*types.Grant, len(heads))
	copy(sorted, heads)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Revoked != b.Revoked {
			return !a.Revoked
		}
		if !a.Revoked && !a.Expires.Equal(b.Expires) {
			return a.Expires.After(b.Expires)
		}
		if !a.GrantedAt.Equal(b.GrantedAt) {
			return a.GrantedAt.After(b.GrantedAt)
		}
		return a.ID > b.ID
	})

	return sorted[0], true
}

// RequestHead picks the active request among the active heads of one access.
// Pending requests win, then the earliest requested.
func RequestHead(heads []*types.Request) (head *types.Request, tied bool) {
	switch len(heads) {
	case 0:
		return nil, false
	case 1:
		return heads[0], false
	}

	sorted := make([]*types.Request, len(heads))
	copy(sorted, heads)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Pending() != b.Pending() {
			return a.Pending()
		}
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		return a.ID < b.ID
	})

	return sorted[0], true
}

// GrantSlotFree checks a new grant continuing previousID could become the head of the access.
// heads are the current grant heads of the access.
func GrantSlotFree(accessID int64, heads []*types.Grant, previousID int64) error {
	if len(heads) > 1 {
		return &types.ConsistencyError{AccessID: accessID, Detail: fmt.Sprintf("%d active grants", len(heads))}
	}
	if len(heads) == 1 && heads[0].ID != previousID {
		return types.NewConflictError(types.KindGrant, heads[0].ID, "there is already an active grant for this access")
	}
	return nil
}

// RequestSlotFree checks a new request continuing previousID could become the active request of the access.
// active are the current active requests of the access.
func RequestSlotFree(accessID int64, active []*types.Request, previousID int64) error {
	if len(active) > 1 {
		return &types.ConsistencyError{AccessID: accessID, Detail: fmt.Sprintf("%d active requests", len(active))}
	}
	if len(active) == 1 && active[0].ID != previousID {
		return types.NewConflictError(types.KindRequest, active[0].ID, "there is already an active request for this access")
	}
	return nil
}

// Today is the date of now in UTC
func Today(now time.Time) time.Time {
	return types.DateOf(now)
}
