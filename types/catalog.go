package types

// Category groups services in the catalog
type Category struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	LongName string `db:"long_name" json:"long_name"`
	Position int    `db:"position" json:"position"`
}

// Service belongs to a category, and is what users ask for access to
type Service struct {
	ID              int64  `db:"id" json:"id"`
	CategoryID      int64  `db:"category_id" json:"category_id"`
	Name            string `db:"name" json:"name"`
	Summary         string `db:"summary" json:"summary"`
	Description     string `db:"description" json:"description"`
	ApproverMessage string `db:"approver_message" json:"approver_message"`
	Hidden          bool   `db:"hidden" json:"hidden"`
	Position        int    `db:"position" json:"position"`
	Disabled        bool   `db:"disabled" json:"disabled"`
}

// Role is a named level of access to a service
type Role struct {
	ID             int64  `db:"id" json:"id"`
	ServiceID      int64  `db:"service_id" json:"service_id"`
	Name           string `db:"name" json:"name"`
	Description    string `db:"description" json:"description"`
	Hidden         bool   `db:"hidden" json:"hidden"`
	AutoAccept     bool   `db:"auto_accept" json:"auto_accept"`
	Position       int    `db:"position" json:"position"`
	MetadataFormID int64  `db:"metadata_form_id" json:"metadata_form_id"`
}

// User is the subset of an account this module reads
type User struct {
	ID          int64  `db:"id" json:"id"`
	Username    string `db:"username" json:"username"`
	Email       string `db:"email" json:"email"`
	FullName    string `db:"full_name" json:"full_name"`
	IsActive    bool   `db:"is_active" json:"is_active"`
	IsStaff     bool   `db:"is_staff" json:"is_staff"`
	ServiceUser bool   `db:"service_user" json:"service_user"`
}

// Access anchors all grants and requests of one user for one role
type Access struct {
	ID     int64 `db:"id" json:"id"`
	RoleID int64 `db:"role_id" json:"role_id"`
	UserID int64 `db:"user_id" json:"user_id"`
}

// RoleObjectPermission gives holders of an active grant on Role the Permission over Target
type RoleObjectPermission struct {
	ID         int64     `db:"id" json:"id"`
	RoleID     int64     `db:"role_id" json:"role_id"`
	Permission Action    `db:"-" json:"permission"`
	Target     EntityRef `db:"-" json:"target"`
}

// Metadata is a free form key value bag attached to a request or a grant
type Metadata map[string]interface{}

// Clone returns a shallow copy
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
