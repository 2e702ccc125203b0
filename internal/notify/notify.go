// Package notify fires notifications after access chain mutations are committed
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"github.com/supremind/svcaccess/types"
)

// Scope is everything a notification about one access needs
type Scope struct {
	Access   *types.Access
	User     *types.User
	Role     *types.Role
	Service  *types.Service
	Category *types.Category
}

// Triggers sends the notifications of the access lifecycle.
// Failures are logged, they never undo a committed change.
type Triggers struct {
	notifier  types.Notifier
	escalator types.Escalator
	links     types.LinkBuilder
	policy    *types.Policy
	clock     clock.Clock
	log       logr.Logger
}

// New creates Triggers, a nil escalator drops escalations with an error log
func New(n types.Notifier, esc types.Escalator, links types.LinkBuilder, policy *types.Policy, clk clock.Clock, l logr.Logger) *Triggers {
	return &Triggers{
		notifier:  n,
		escalator: esc,
		links:     links,
		policy:    policy,
		clock:     clk,
		log:       l,
	}
}

func (t *Triggers) send(ctx context.Context, n types.Notification) {
	t.log.V(4).Info("notify", "type", n.Type, "user", n.UserID, "target", n.Target)
	if e := t.notifier.Notify(ctx, n); e != nil {
		t.log.Error(e, "send notification", "type", n.Type, "user", n.UserID, "target", n.Target)
	}
}

func (t *Triggers) sendOnce(ctx context.Context, n types.Notification) {
	created, e := t.notifier.NotifyIfNotExists(ctx, n)
	if e != nil {
		t.log.Error(e, "send notification", "type", n.Type, "user", n.UserID, "target", n.Target)
		return
	}
	t.log.V(4).Info("notify once", "type", n.Type, "user", n.UserID, "target", n.Target, "sent", created)
}

// RequestSubmitted confirms a pending request to its user, and asks approvers to decide it.
// With no approver other than the user, the request is escalated.
func (t *Triggers) RequestSubmitted(ctx context.Context, req *types.Request, sc *Scope, approvers []*types.User) {
	if !req.Active() || !req.Pending() {
		return
	}

	target := types.RefOf(types.KindRequest, req.ID)
	t.send(ctx, types.Notification{
		Type:   types.NotifyRequestConfirm,
		UserID: sc.User.ID,
		Target: target,
		Link:   t.links.ServiceLink(sc.Category, sc.Service),
	})
	t.RemindApprovers(ctx, req, sc, approvers)
}

// RemindApprovers asks approvers to decide req, or escalates it if there is nobody to ask
func (t *Triggers) RemindApprovers(ctx context.Context, req *types.Request, sc *Scope, approvers []*types.User) {
	target := types.RefOf(types.KindRequest, req.ID)
	link := t.links.RequestDecideLink(req)

	asked := 0
	for _, approver := range approvers {
		if approver.ID == sc.User.ID {
			continue
		}
		t.send(ctx, types.Notification{
			Type:   types.NotifyRequestPending,
			UserID: approver.ID,
			Target: target,
			Link:   link,
		})
		asked++
	}
	if asked > 0 {
		return
	}

	if t.escalator == nil {
		t.log.Error(nil, "request has no approvers and no escalation channel", "request", req.ID, "role", sc.Role.Name, "service", sc.Service.Name)
		return
	}
	e := t.escalator.Escalate(ctx, types.Escalation{
		RequestID: req.ID,
		RoleID:    sc.Role.ID,
		Username:  sc.User.Username,
		Role:      sc.Role.Name,
		Service:   sc.Service.Name,
		Link:      link,
		At:        t.clock.Now(),
	})
	if e != nil {
		t.log.Error(e, "escalate request", "request", req.ID)
	}
}

// RequestDecided marks notifications about the request seen, and tells the user about rejections once
func (t *Triggers) RequestDecided(ctx context.Context, req *types.Request, sc *Scope) {
	target := types.RefOf(types.KindRequest, req.ID)
	if e := t.notifier.MarkSeen(ctx, target); e != nil {
		t.log.Error(e, "mark notifications seen", "target", target)
	}

	if req.Rejected() && req.Active() {
		t.sendOnce(ctx, types.Notification{
			Type:   types.NotifyRequestRejected,
			UserID: sc.User.ID,
			Target: target,
			Link:   t.links.ServiceLink(sc.Category, sc.Service),
		})
	}
}

// GrantCreated tells the user about a new active grant
func (t *Triggers) GrantCreated(ctx context.Context, g *types.Grant, sc *Scope) {
	if !g.Head || t.policy.Quiet(sc.User) {
		return
	}
	t.send(ctx, types.Notification{
		Type:   types.NotifyGrantCreated,
		UserID: sc.User.ID,
		Target: types.RefOf(types.KindGrant, g.ID),
		Link:   t.links.GrantLink(sc.Category, sc.Service, g),
	})
}

// GrantRevoked tells the user about the revocation of an active grant, once
func (t *Triggers) GrantRevoked(ctx context.Context, g *types.Grant, sc *Scope) {
	if !g.Head || !g.Revoked || t.policy.Quiet(sc.User) {
		return
	}
	t.sendOnce(ctx, types.Notification{
		Type:   types.NotifyGrantRevoked,
		UserID: sc.User.ID,
		Target: types.RefOf(types.KindGrant, g.ID),
		Link:   t.links.ServiceLink(sc.Category, sc.Service),
	})
}

// GrantExpiry warns the user about an expired or expiring grant.
// Each configured notice is sent at most once, the closest one to the expiry wins.
func (t *Triggers) GrantExpiry(ctx context.Context, g *types.Grant, sc *Scope, today time.Time) {
	if !g.Head || g.Revoked || t.policy.Quiet(sc.User) {
		return
	}

	n := types.Notification{
		UserID: sc.User.ID,
		Target: types.RefOf(types.KindGrant, g.ID),
		Link:   t.links.ServiceLink(sc.Category, sc.Service),
	}

	if g.Expired(today) {
		n.Type = types.NotifyGrantExpired
		t.sendOnce(ctx, n)
		return
	}

	stage, ok := Stage(g.Expires, today, t.policy.ExpiryNotices)
	if !ok {
		return
	}
	n.Type = types.NotifyGrantExpiring
	n.Stage = stage.String()
	t.sendOnce(ctx, n)
}

// Stage finds the shortest notice whose window before deadline contains today
func Stage(deadline, today time.Time, notices []types.Period) (types.Period, bool) {
	deadline = types.DateOf(deadline)
	today = types.DateOf(today)

	sorted := make([]types.Period, len(notices))
	copy(sorted, notices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AddTo(today).Before(sorted[j].AddTo(today))
	})

	for _, p := range sorted {
		if !today.Before(p.SubFrom(deadline)) {
			return p, true
		}
	}
	return types.Period{}, false
}

// DefaultLinks renders links relative to base
func DefaultLinks(base string) types.LinkBuilder {
	return &links{base: strings.TrimRight(base, "/")}
}

type links struct {
	base string
}

func (l *links) ServiceLink(cat *types.Category, svc *types.Service) string {
	return fmt.Sprintf("%s/services/%s/%s/", l.base, cat.Name, svc.Name)
}

func (l *links) RequestDecideLink(req *types.Request) string {
	return fmt.Sprintf("%s/requests/%d/decide/", l.base, req.ID)
}

func (l *links) GrantLink(cat *types.Category, svc *types.Service, g *types.Grant) string {
	return fmt.Sprintf("%s/services/%s/%s/?grant=%d", l.base, cat.Name, svc.Name, g.ID)
}
