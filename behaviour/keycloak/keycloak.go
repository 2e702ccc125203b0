// Package keycloak manages group membership in a Keycloak realm
package keycloak

import (
	"context"
	"fmt"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-logr/logr"

	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/types"
)

// Config of the Keycloak admin connection
type Config struct {
	ServerURL string
	Realm     string
	UserRealm string
	Username  string
	Password  string
}

type client interface {
	LoginAdmin(ctx context.Context, username, password, realm string) (*gocloak.JWT, error)
	GetUsers(ctx context.Context, token, realm string, params gocloak.GetUsersParams) ([]*gocloak.User, error)
	GetGroups(ctx context.Context, token, realm string, params gocloak.GetGroupsParams) ([]*gocloak.Group, error)
	GetUserGroups(ctx context.Context, token, realm, userID string, params gocloak.GetGroupsParams) ([]*gocloak.Group, error)
	AddUserToGroup(ctx context.Context, token, realm, userID, groupID string) error
	DeleteUserFromGroup(ctx context.Context, token, realm, userID, groupID string) error
}

var _ behaviour.IdentityProvider = (*Provider)(nil)

// Provider is an IdentityProvider backed by Keycloak
type Provider struct {
	cfg Config
	kc  client
	log logr.Logger
}

// New creates a Provider
func New(cfg Config, l logr.Logger) *Provider {
	if cfg.UserRealm == "" {
		cfg.UserRealm = cfg.Realm
	}
	return &Provider{cfg: cfg, kc: gocloak.NewClient(cfg.ServerURL), log: l}
}

func (p *Provider) token(ctx context.Context) (string, error) {
	jwt, e := p.kc.LoginAdmin(ctx, p.cfg.Username, p.cfg.Password, p.cfg.UserRealm)
	if e != nil {
		return "", fmt.Errorf("keycloak login: %w", e)
	}
	return jwt.AccessToken, nil
}

func (p *Provider) userID(ctx context.Context, token, username string) (string, error) {
	users, e := p.kc.GetUsers(ctx, token, p.cfg.Realm, gocloak.GetUsersParams{
		Username: gocloak.StringP(username),
		Exact:    gocloak.BoolP(true),
	})
	if e != nil {
		return "", e
	}
	for _, u := range users {
		if u.ID != nil && gocloak.PString(u.Username) == username {
			return *u.ID, nil
		}
	}
	return "", fmt.Errorf("%w: keycloak user %s", types.ErrNotFound, username)
}

func (p *Provider) groupID(ctx context.Context, token, name string) (string, error) {
	groups, e := p.kc.GetGroups(ctx, token, p.cfg.Realm, gocloak.GetGroupsParams{
		Search: gocloak.StringP(name),
	})
	if e != nil {
		return "", e
	}
	for _, g := range groups {
		if g.ID != nil && gocloak.PString(g.Name) == name {
			return *g.ID, nil
		}
	}
	return "", fmt.Errorf("%w: keycloak group %s", types.ErrNotFound, name)
}

// UserGroups lists names of the groups username is a member of
func (p *Provider) UserGroups(ctx context.Context, username string) ([]string, error) {
	token, e := p.token(ctx)
	if e != nil {
		return nil, e
	}
	uid, e := p.userID(ctx, token, username)
	if e != nil {
		return nil, e
	}
	groups, e := p.kc.GetUserGroups(ctx, token, p.cfg.Realm, uid, gocloak.GetGroupsParams{})
	if e != nil {
		return nil, e
	}

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, gocloak.PString(g.Name))
	}
	return names, nil
}

// AddUserToGroup joins username to group
func (p *Provider) AddUserToGroup(ctx context.Context, username, group string) error {
	p.log.V(4).Info("add user to group", "user", username, "group", group)
	return p.membership(ctx, username, group, p.kc.AddUserToGroup)
}

// RemoveUserFromGroup drops username from group
func (p *Provider) RemoveUserFromGroup(ctx context.Context, username, group string) error {
	p.log.V(4).Info("remove user from group", "user", username, "group", group)
	return p.membership(ctx, username, group, p.kc.DeleteUserFromGroup)
}

func (p *Provider) membership(ctx context.Context, username, group string, change func(ctx context.Context, token, realm, userID, groupID string) error) error {
	token, e := p.token(ctx)
	if e != nil {
		return e
	}
	uid, e := p.userID(ctx, token, username)
	if e != nil {
		return e
	}
	gid, e := p.groupID(ctx, token, group)
	if e != nil {
		return e
	}
	return change(ctx, token, p.cfg.Realm, uid, gid)
}
