package types

import (
	"fmt"
	"strings"
)

// Action is a permission a role may carry over a catalog object.
// Actions are power of twos to achieve efficient set operations, like union, intersection, complement.
// An action is also a union of actions
type Action uint32

// known permissions
const (
	DecideRequest Action = 1 << iota
	ViewUsers
	SendMessage
	GrantRole

	None Action = 0
)

// AllActions is union of all known permissions
var AllActions = DecideRequest | ViewUsers | SendMessage | GrantRole

var actionNames = map[Action]string{
	DecideRequest: "decide_request",
	ViewUsers:     "view_users_role",
	SendMessage:   "send_message_role",
	GrantRole:     "grant_role",
}

// ParseAction parses the codename of a single permission
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return None, fmt.Errorf("%w: %s", ErrUnknownAction, name)
}

// Single tells if a is exactly one known permission
func (a Action) Single() bool {
	_, ok := actionNames[a]
	return ok
}

// IsIn tells if all actions in a are members of b: a is subset of b
func (a Action) IsIn(b Action) bool {
	return a|b == b
}

// Includes tells if all actions in b are members of a: a is superset of b
func (a Action) Includes(b Action) bool {
	return b.IsIn(a)
}

// Difference returns set of actions belong to a but not b: complement of b in a
func (a Action) Difference(b Action) Action {
	return a &^ b
}

// Split a union of actions to slice of single actions
func (a Action) Split() []Action {
	out := make([]Action, 0)
	op := Action(1)
	for op <= a && op != 0 {
		if op&a > 0 {
			out = append(out, op)
		}
		op <<= 1
	}
	return out
}

func (a Action) String() string {
	as := a.Split()
	ns := make([]string, 0, len(as))
	for _, a := range as {
		n, ok := actionNames[a]
		if !ok {
			n = "unknown"
		}
		ns = append(ns, n)
	}
	return strings.Join(ns, "|")
}
