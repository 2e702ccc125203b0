package behaviour

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/supremind/svcaccess/types"
)

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// LdapTag adds a tag to the directory account of the user
type LdapTag struct {
	Tag string `json:"tag"`

	dir TagDirectory
}

func decodeLdapTag(_ int64, config []byte, b *Backends) (types.Behaviour, error) {
	lt := &LdapTag{dir: b.Tags}
	if e := unmarshal(config, lt); e != nil {
		return nil, e
	}
	if !tagPattern.MatchString(lt.Tag) {
		return nil, types.NewValidationError("tag", "tag must contain letters, numbers, _, : and -")
	}
	return lt, nil
}

// Kind of the behaviour
func (lt *LdapTag) Kind() string { return KindLdapTag }

// Apply adds the tag if it is missing
func (lt *LdapTag) Apply(ctx context.Context, user *types.User, _ *types.Role) error {
	if lt.dir == nil {
		return fmt.Errorf("%w: tag directory", types.ErrBackendNotConfigured)
	}
	tags, e := lt.dir.Tags(ctx, user.Username)
	if e != nil {
		return e
	}
	if contains(tags, lt.Tag) {
		return nil
	}
	return lt.dir.AddTag(ctx, user.Username, lt.Tag)
}

// Unapply removes the tag if it is there
func (lt *LdapTag) Unapply(ctx context.Context, user *types.User, _ *types.Role) error {
	if lt.dir == nil {
		return fmt.Errorf("%w: tag directory", types.ErrBackendNotConfigured)
	}
	tags, e := lt.dir.Tags(ctx, user.Username)
	if e != nil {
		return e
	}
	if !contains(tags, lt.Tag) {
		return nil
	}
	return lt.dir.RemoveTag(ctx, user.Username, lt.Tag)
}

func (lt *LdapTag) String() string {
	return fmt.Sprintf("LDAP Tag <%s>", lt.Tag)
}

// LdapGroup adds the user to a posix group of a configured group model
type LdapGroup struct {
	Model string `json:"ldap_model"`
	Group string `json:"group_name"`

	model *GroupModel
	dir   GroupDirectory
}

func decodeLdapGroup(_ int64, config []byte, b *Backends) (types.Behaviour, error) {
	lg := &LdapGroup{dir: b.Groups}
	if e := unmarshal(config, lg); e != nil {
		return nil, e
	}

	ve := &types.ValidationError{}
	if lg.Group == "" {
		ve.Add("group_name", "this field is required")
	}
	if b.Models != nil {
		model, ok := b.Models.Lookup(lg.Model)
		if !ok {
			ve.Add("ldap_model", "not a valid LDAP model")
		}
		lg.model = model
	} else {
		ve.Add("ldap_model", "no LDAP group models are configured")
	}
	if e := ve.OrNil(); e != nil {
		return nil, e
	}
	return lg, nil
}

// Kind of the behaviour
func (lg *LdapGroup) Kind() string { return KindLdapGroup }

// Apply adds the user to the group if they are not a member
func (lg *LdapGroup) Apply(ctx context.Context, user *types.User, _ *types.Role) error {
	if lg.dir == nil {
		return fmt.Errorf("%w: group directory", types.ErrBackendNotConfigured)
	}
	members, e := lg.dir.Members(ctx, lg.model, lg.Group)
	if e != nil {
		return e
	}
	if contains(members, user.Username) {
		return nil
	}
	return lg.dir.AddMember(ctx, lg.model, lg.Group, user.Username)
}

// Unapply removes the user from the group if they are a member
func (lg *LdapGroup) Unapply(ctx context.Context, user *types.User, _ *types.Role) error {
	if lg.dir == nil {
		return fmt.Errorf("%w: group directory", types.ErrBackendNotConfigured)
	}
	members, e := lg.dir.Members(ctx, lg.model, lg.Group)
	if e != nil {
		return e
	}
	if !contains(members, user.Username) {
		return nil
	}
	return lg.dir.RemoveMember(ctx, lg.model, lg.Group, user.Username)
}

func (lg *LdapGroup) String() string {
	base := lg.Model
	if lg.model != nil {
		base = lg.model.BaseDN
	}
	return fmt.Sprintf("LDAP Group <cn=%s,%s>", strings.ToLower(lg.Group), base)
}
