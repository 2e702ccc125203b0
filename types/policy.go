package types

import (
	"regexp"
	"time"
)

// Policy tunes the access lifecycle
type Policy struct {
	// MultipleRequestsAllowed turns off the one active request and one active grant per access rule
	MultipleRequestsAllowed bool

	// AutoAcceptGrantDays is the lifetime of grants created for auto accepted roles
	AutoAcceptGrantDays int

	// ReinstateWithin is how long after expiry a grant revoked by suspension is renewed on reactivation
	ReinstateWithin Period

	// ReinstateFor is the lifetime of such renewed grants
	ReinstateFor Period

	// RemindAfter is how long a request waits before approvers are reminded
	RemindAfter time.Duration

	// ExpiryNotices are how long before expiry users are warned
	ExpiryNotices []Period

	// BehavioursDisabled skips all behaviours, used while importing existing accesses
	BehavioursDisabled bool

	// QuietUsers match usernames never told about their grants, like training accounts
	QuietUsers *regexp.Regexp
}

// SuspensionReason tags grants and requests revoked or rejected when an account is suspended
const SuspensionReason = "Account was suspended"

// DefaultPolicy is the strict policy
func DefaultPolicy() Policy {
	return Policy{
		AutoAcceptGrantDays: 365,
		ReinstateWithin:     YearsPeriod(2),
		ReinstateFor:        DaysPeriod(30),
		RemindAfter:         7 * 24 * time.Hour,
		ExpiryNotices:       []Period{MonthsPeriod(2), DaysPeriod(14), DaysPeriod(2)},
		QuietUsers:          regexp.MustCompile(`^train\d{3}$`),
	}
}

// Quiet tells if user should not be notified about their grants
func (p *Policy) Quiet(user *User) bool {
	return p.QuietUsers != nil && p.QuietUsers.MatchString(user.Username)
}
