package types

import "time"

// RequestState is the decision state of a request
type RequestState string

// request states
const (
	RequestPending  RequestState = "PENDING"
	RequestApproved RequestState = "APPROVED"
	RequestRejected RequestState = "REJECTED"
)

// Request asks for a role, and optionally continues a previous request or grant
type Request struct {
	ID                int64        `db:"id" json:"id"`
	AccessID          int64        `db:"access_id" json:"access_id"`
	RequestedBy       string       `db:"requested_by" json:"requested_by"`
	RequestedAt       time.Time    `db:"requested_at" json:"requested_at"`
	State             RequestState `db:"state" json:"state"`
	Incomplete        bool         `db:"incomplete" json:"incomplete"`
	ResultingGrantID  int64        `db:"resulting_grant_id" json:"resulting_grant_id,omitempty"`
	PreviousGrantID   int64        `db:"previous_grant_id" json:"previous_grant_id,omitempty"`
	PreviousRequestID int64        `db:"previous_request_id" json:"previous_request_id,omitempty"`
	UserReason        string       `db:"user_reason" json:"user_reason"`
	InternalReason    string       `db:"internal_reason" json:"internal_reason"`
	InternalComment   string       `db:"internal_comment" json:"internal_comment"`

	// Head is true while no request names this one as its previous request
	Head bool `db:"is_head" json:"is_head"`
}

// Active requests head their chain and have not produced a grant
func (r *Request) Active() bool {
	return r.Head && r.ResultingGrantID == 0
}

// Pending tells if the request waits for a decision
func (r *Request) Pending() bool {
	return r.State == RequestPending
}

// Rejected tells if the request was rejected, incomplete or not
func (r *Request) Rejected() bool {
	return r.State == RequestRejected
}
