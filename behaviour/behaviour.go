// Package behaviour holds the side effects applied to users while they hold a role
package behaviour

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supremind/svcaccess/types"
)

// behaviour kinds
const (
	KindLdapTag            = "ldap_tag"
	KindLdapGroup          = "ldap_group"
	KindJoinMailingList    = "join_mailing_list"
	KindDirectoryAttribute = "directory_attribute"
)

// TagDirectory reads and writes the tags on directory accounts
type TagDirectory interface {
	Tags(ctx context.Context, username string) ([]string, error)
	AddTag(ctx context.Context, username, tag string) error
	RemoveTag(ctx context.Context, username, tag string) error
}

// GroupDirectory reads and writes posix group members
type GroupDirectory interface {
	Members(ctx context.Context, model *GroupModel, group string) ([]string, error)
	AddMember(ctx context.Context, model *GroupModel, group, username string) error
	RemoveMember(ctx context.Context, model *GroupModel, group, username string) error
}

// MailSender sends plain text mails
type MailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// IdentityProvider manages group membership in the identity provider
type IdentityProvider interface {
	UserGroups(ctx context.Context, username string) ([]string, error)
	AddUserToGroup(ctx context.Context, username, group string) error
	RemoveUserFromGroup(ctx context.Context, username, group string) error
}

// JoinLedger remembers who a behaviour subscribed already
type JoinLedger interface {
	HasJoined(ctx context.Context, behaviourID, userID int64) (bool, error)
	RecordJoined(ctx context.Context, behaviourID, userID int64) error
}

// Backends are what behaviours act on, a nil backend fails the behaviours needing it
type Backends struct {
	Tags     TagDirectory
	Groups   GroupDirectory
	Models   *GroupRegistry
	Mail     MailSender
	MailTo   []string
	Ledger   JoinLedger
	Identity IdentityProvider
}

// Decoder builds a runnable behaviour from its persisted config
type Decoder func(id int64, config []byte, b *Backends) (types.Behaviour, error)

var _ types.BehaviourDecoder = (*Registry)(nil)

// Registry dispatches persisted behaviours to their implementation by kind
type Registry struct {
	backends *Backends
	decoders map[string]Decoder
}

// NewRegistry creates a registry knowing all built in behaviours
func NewRegistry(b Backends) *Registry {
	r := &Registry{
		backends: &b,
		decoders: make(map[string]Decoder),
	}
	r.Register(KindLdapTag, decodeLdapTag)
	r.Register(KindLdapGroup, decodeLdapGroup)
	r.Register(KindJoinMailingList, decodeJoinMailingList)
	r.Register(KindDirectoryAttribute, decodeDirectoryAttribute)
	return r
}

// Register a decoder for kind, replacing any previous one
func (r *Registry) Register(kind string, d Decoder) {
	r.decoders[kind] = d
}

// Decode a persisted behaviour
func (r *Registry) Decode(rec types.BehaviourRecord) (types.Behaviour, error) {
	d, ok := r.decoders[rec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownBehaviour, rec.Kind)
	}
	return d(rec.ID, rec.Config, r.backends)
}

func unmarshal(config []byte, v interface{}) error {
	if e := json.Unmarshal(config, v); e != nil {
		return types.NewValidationError("config", e.Error())
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, o := range ss {
		if o == s {
			return true
		}
	}
	return false
}
