package behaviour

import (
	"context"
	"fmt"

	"github.com/supremind/svcaccess/types"
)

// DirectoryAttribute adds the user to a group of the identity provider.
// The group defaults to the role name.
type DirectoryAttribute struct {
	Group string `json:"group,omitempty"`

	idp IdentityProvider
}

func decodeDirectoryAttribute(_ int64, config []byte, b *Backends) (types.Behaviour, error) {
	da := &DirectoryAttribute{idp: b.Identity}
	if len(config) > 0 {
		if e := unmarshal(config, da); e != nil {
			return nil, e
		}
	}
	return da, nil
}

// Kind of the behaviour
func (da *DirectoryAttribute) Kind() string { return KindDirectoryAttribute }

func (da *DirectoryAttribute) group(role *types.Role) string {
	if da.Group != "" {
		return da.Group
	}
	return role.Name
}

// Apply adds the user to the group if they are not a member
func (da *DirectoryAttribute) Apply(ctx context.Context, user *types.User, role *types.Role) error {
	if da.idp == nil {
		return fmt.Errorf("%w: identity provider", types.ErrBackendNotConfigured)
	}
	groups, e := da.idp.UserGroups(ctx, user.Username)
	if e != nil {
		return e
	}
	group := da.group(role)
	if contains(groups, group) {
		return nil
	}
	return da.idp.AddUserToGroup(ctx, user.Username, group)
}

// Unapply removes the user from the group if they are a member
func (da *DirectoryAttribute) Unapply(ctx context.Context, user *types.User, role *types.Role) error {
	if da.idp == nil {
		return fmt.Errorf("%w: identity provider", types.ErrBackendNotConfigured)
	}
	groups, e := da.idp.UserGroups(ctx, user.Username)
	if e != nil {
		return e
	}
	group := da.group(role)
	if !contains(groups, group) {
		return nil
	}
	return da.idp.RemoveUserFromGroup(ctx, user.Username, group)
}
