// Package decision validates approvers' decisions and resolves the expiry of approved grants
package decision

import (
	"time"

	"github.com/supremind/svcaccess/types"
)

var expiryPeriods = map[types.ExpiryChoice]types.Period{
	types.ExpirySixMonths:  types.MonthsPeriod(6),
	types.ExpiryOneYear:    types.YearsPeriod(1),
	types.ExpiryTwoYears:   types.YearsPeriod(2),
	types.ExpiryThreeYears: types.YearsPeriod(3),
	types.ExpiryFiveYears:  types.YearsPeriod(5),
	types.ExpiryTenYears:   types.YearsPeriod(10),
}

// Verdict is a decision which passed validation
type Verdict struct {
	Outcome         types.Outcome
	Expires         time.Time
	UserReason      string
	InternalReason  string
	InternalComment string
}

// Approved tells if the verdict creates a grant
func (v *Verdict) Approved() bool {
	return v.Outcome == types.OutcomeApprove
}

// Rejected tells if the verdict rejects the request, incomplete or not
func (v *Verdict) Rejected() bool {
	return v.Outcome == types.OutcomeReject || v.Outcome == types.OutcomeIncomplete
}

// Validate checks d made by approver, on today
func Validate(d types.Decision, approver *types.User, today time.Time) (*Verdict, error) {
	ve := &types.ValidationError{}
	v := &Verdict{Outcome: d.Outcome}
	if approver.IsStaff {
		v.InternalComment = d.InternalComment
	}

	switch d.Outcome {
	case types.OutcomeNone:
		if !approver.IsStaff {
			ve.Add("outcome", "this field is required")
		}

	case types.OutcomeApprove:
		expires, e := ResolveExpiry(d.Expiry, d.CustomExpiry, today)
		if e != nil {
			return nil, e
		}
		v.Expires = expires

	case types.OutcomeReject, types.OutcomeIncomplete:
		if d.UserReason == "" && !approver.IsStaff {
			ve.Add("user_reason", "please give a reason for rejecting the request")
		}
		v.UserReason = d.UserReason
		v.InternalReason = d.InternalReason

	default:
		ve.Add("outcome", "unknown outcome "+string(d.Outcome))
	}

	if e := ve.OrNil(); e != nil {
		return nil, e
	}
	return v, nil
}

// ResolveExpiry turns an expiry choice into the expiry date of a grant created on today
func ResolveExpiry(choice types.ExpiryChoice, custom, today time.Time) (time.Time, error) {
	today = types.DateOf(today)

	switch choice {
	case types.ExpiryUnset:
		return time.Time{}, types.NewValidationError("expires", "please select an expiry date")

	case types.ExpiryCustom:
		if custom.IsZero() {
			return time.Time{}, types.NewValidationError("expires_custom", "please give an expiry date")
		}
		custom = types.DateOf(custom)
		if custom.Before(today) {
			return time.Time{}, types.NewValidationError("expires_custom", "expiry date must be in the future")
		}
		return custom, nil
	}

	p, ok := expiryPeriods[choice]
	if !ok {
		return time.Time{}, types.NewValidationError("expires", "unknown expiry choice "+string(choice))
	}
	return p.AddTo(today), nil
}
