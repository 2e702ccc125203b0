package types

import "time"

// GrantStatus is derived from a grant's fields and the current date
type GrantStatus string

// grant statuses
const (
	GrantActive   GrantStatus = "ACTIVE"
	GrantExpiring GrantStatus = "EXPIRING"
	GrantExpired  GrantStatus = "EXPIRED"
	GrantRevoked  GrantStatus = "REVOKED"
)

// ExpiringWithin is how close to its expiry date a grant is reported as expiring
var ExpiringWithin = MonthsPeriod(2)

// GrantedAutomatically is recorded as the granter of auto accepted requests
const GrantedAutomatically = "automatic"

// Grant is one link in the chain of grants of an access.
// Only the revocation fields change after creation.
type Grant struct {
	ID              int64      `db:"id" json:"id"`
	AccessID        int64      `db:"access_id" json:"access_id"`
	GrantedBy       string     `db:"granted_by" json:"granted_by"`
	GrantedAt       time.Time  `db:"granted_at" json:"granted_at"`
	Expires         time.Time  `db:"expires" json:"expires"`
	Revoked         bool       `db:"revoked" json:"revoked"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	UserReason      string     `db:"user_reason" json:"user_reason"`
	InternalReason  string     `db:"internal_reason" json:"internal_reason"`
	PreviousGrantID int64      `db:"previous_grant_id" json:"previous_grant_id,omitempty"`

	// Head is true while no grant names this one as its previous grant
	Head bool `db:"is_head" json:"is_head"`
}

// Active grants are the heads of their chains
func (g *Grant) Active() bool {
	return g.Head
}

// Expired tells if the grant has passed its expiry date
func (g *Grant) Expired(today time.Time) bool {
	return DateOf(g.Expires).Before(DateOf(today))
}

// Expiring tells if the grant is about to expire
func (g *Grant) Expiring(today time.Time) bool {
	return !g.Expired(today) && DateOf(g.Expires).Before(ExpiringWithin.AddTo(DateOf(today)))
}

// Live grants are neither revoked nor expired
func (g *Grant) Live(today time.Time) bool {
	return !g.Revoked && !g.Expired(today)
}

// Status of the grant at today
func (g *Grant) Status(today time.Time) GrantStatus {
	switch {
	case g.Revoked:
		return GrantRevoked
	case g.Expired(today):
		return GrantExpired
	case g.Expiring(today):
		return GrantExpiring
	default:
		return GrantActive
	}
}

// SetRevoked toggles revocation, keeping RevokedAt in step
func (g *Grant) SetRevoked(revoked bool, now time.Time) {
	switch {
	case revoked && !g.Revoked:
		at := now
		g.RevokedAt = &at
	case !revoked:
		g.RevokedAt = nil
	}
	g.Revoked = revoked
}
