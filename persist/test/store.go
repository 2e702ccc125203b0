package test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/types"
)

var newStore func() types.Store

// TestStore registers a factory of empty stores for StoreCases
func TestStore(factory func() types.Store) {
	newStore = factory
}

var (
	today     = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
	nextYear  = today.AddDate(1, 0, 0)
)

type fixture struct {
	alice, bob, carol, dave *types.User
	cat                     *types.Category
	svc                     *types.Service
	member, manager         *types.Role
}

func atomic(s types.Store, fn func(types.Tx) error) error {
	return s.Atomic(context.Background(), fn)
}

func mustAtomic(s types.Store, fn func(types.Tx)) {
	ExpectWithOffset(1, atomic(s, func(tx types.Tx) error {
		fn(tx)
		return nil
	})).To(Succeed())
}

func seed(s types.Store) *fixture {
	f := &fixture{
		alice: &types.User{Username: "alice", Email: "alice@example.org", IsActive: true},
		bob:   &types.User{Username: "bob", Email: "bob@example.org", IsActive: true},
		carol: &types.User{Username: "carol", Email: "carol@example.org", IsActive: true},
		dave:  &types.User{Username: "dave", Email: "dave@example.org", IsActive: true},
		cat:   &types.Category{Name: "group_workspaces", LongName: "Group Workspaces"},
	}
	mustAtomic(s, func(tx types.Tx) {
		for _, u := range []*types.User{f.alice, f.bob, f.carol, f.dave} {
			Expect(tx.CreateUser(u)).To(Succeed())
		}
		Expect(tx.CreateCategory(f.cat)).To(Succeed())
		f.svc = &types.Service{CategoryID: f.cat.ID, Name: "gws-climate"}
		Expect(tx.CreateService(f.svc)).To(Succeed())
		f.member = &types.Role{ServiceID: f.svc.ID, Name: "USER"}
		Expect(tx.CreateRole(f.member)).To(Succeed())
		f.manager = &types.Role{ServiceID: f.svc.ID, Name: "MANAGER"}
		Expect(tx.CreateRole(f.manager)).To(Succeed())
	})
	return f
}

func grantOn(tx types.Tx, role *types.Role, user *types.User, g types.Grant) *types.Grant {
	a, e := tx.GetOrCreateAccess(role.ID, user.ID)
	Expect(e).To(Succeed())
	g.AccessID = a.ID
	if g.GrantedAt.IsZero() {
		g.GrantedAt = today
	}
	Expect(tx.InsertGrant(&g)).To(Succeed())
	return &g
}

// StoreCases are the behaviours every Store implementation must have
var StoreCases = Describe("store", func() {
	var (
		s types.Store
		f *fixture
	)

	BeforeEach(func() {
		s = newStore()
		f = seed(s)
	})

	Describe("catalog", func() {
		It("reads back what it saved", func() {
			mustAtomic(s, func(tx types.Tx) {
				u, e := tx.GetUserByName("alice")
				Expect(e).To(Succeed())
				Expect(u).To(Equal(f.alice))

				svc, e := tx.GetService(f.svc.ID)
				Expect(e).To(Succeed())
				Expect(svc).To(Equal(f.svc))

				r, e := tx.GetRole(f.member.ID)
				Expect(e).To(Succeed())
				Expect(r).To(Equal(f.member))
			})
		})

		It("refuses duplicated names", func() {
			e := atomic(s, func(tx types.Tx) error {
				return tx.CreateRole(&types.Role{ServiceID: f.svc.ID, Name: "USER"})
			})
			Expect(errors.Is(e, types.ErrAlreadyExists)).To(BeTrue())

			e = atomic(s, func(tx types.Tx) error {
				return tx.CreateUser(&types.User{Username: "alice"})
			})
			Expect(errors.Is(e, types.ErrAlreadyExists)).To(BeTrue())
		})

		It("reports missing records", func() {
			e := atomic(s, func(tx types.Tx) error {
				_, e := tx.GetUser(999)
				return e
			})
			Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
		})

		It("updates users", func() {
			mustAtomic(s, func(tx types.Tx) {
				f.alice.IsActive = false
				Expect(tx.UpdateUser(f.alice)).To(Succeed())
				u, e := tx.GetUser(f.alice.ID)
				Expect(e).To(Succeed())
				Expect(u.IsActive).To(BeFalse())
			})
		})

		It("attaches behaviours once", func() {
			mustAtomic(s, func(tx types.Tx) {
				b := &types.BehaviourRecord{Kind: "ldap_tag", Config: []byte(`{"tag":"gws"}`)}
				Expect(tx.CreateBehaviour(b)).To(Succeed())
				Expect(tx.AttachBehaviour(f.member.ID, b.ID)).To(Succeed())
				Expect(tx.AttachBehaviour(f.member.ID, b.ID)).To(Succeed())

				bs, e := tx.RoleBehaviours(f.member.ID)
				Expect(e).To(Succeed())
				Expect(bs).To(HaveLen(1))
				Expect(bs[0].Kind).To(Equal("ldap_tag"))
				Expect(string(bs[0].Config)).To(MatchJSON(`{"tag":"gws"}`))
			})
		})
	})

	Describe("transactions", func() {
		It("rolls back everything on errors", func() {
			boom := errors.New("boom")
			e := atomic(s, func(tx types.Tx) error {
				Expect(tx.CreateUser(&types.User{Username: "eve"})).To(Succeed())
				grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				return boom
			})
			Expect(e).To(MatchError(boom))

			mustAtomic(s, func(tx types.Tx) {
				_, e := tx.GetUserByName("eve")
				Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
				gs, e := tx.ListGrants(types.GrantFilter{UserID: f.alice.ID})
				Expect(e).To(Succeed())
				Expect(gs).To(BeEmpty())
			})
		})
	})

	Describe("accesses", func() {
		It("keeps one access per role and user", func() {
			mustAtomic(s, func(tx types.Tx) {
				a1, e := tx.GetOrCreateAccess(f.member.ID, f.alice.ID)
				Expect(e).To(Succeed())
				a2, e := tx.GetOrCreateAccess(f.member.ID, f.alice.ID)
				Expect(e).To(Succeed())
				Expect(a2).To(Equal(a1))
				Expect(tx.LockAccess(a1.ID)).To(Succeed())

				a3, e := tx.GetOrCreateAccess(f.manager.ID, f.alice.ID)
				Expect(e).To(Succeed())
				Expect(a3.ID).NotTo(Equal(a1.ID))
			})
		})
	})

	Describe("grant chains", func() {
		It("moves the head along the chain", func() {
			mustAtomic(s, func(tx types.Tx) {
				g1 := grantOn(tx, f.member, f.alice, types.Grant{GrantedBy: "bob", Expires: nextYear})
				Expect(g1.Head).To(BeTrue())

				g2 := grantOn(tx, f.member, f.alice, types.Grant{GrantedBy: "bob", Expires: nextYear, PreviousGrantID: g1.ID})

				heads, e := tx.ListGrants(types.GrantFilter{AccessID: g1.AccessID, HeadOnly: true})
				Expect(e).To(Succeed())
				Expect(heads).To(HaveLen(1))
				Expect(heads[0].ID).To(Equal(g2.ID))
				Expect(heads[0].PreviousGrantID).To(Equal(g1.ID))

				old, e := tx.GetGrant(g1.ID)
				Expect(e).To(Succeed())
				Expect(old.Head).To(BeFalse())
			})
		})

		It("refuses a second successor", func() {
			var g1 *types.Grant
			mustAtomic(s, func(tx types.Tx) {
				g1 = grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear, PreviousGrantID: g1.ID})
			})

			e := atomic(s, func(tx types.Tx) error {
				return tx.InsertGrant(&types.Grant{AccessID: g1.AccessID, GrantedAt: today, Expires: nextYear, PreviousGrantID: g1.ID})
			})
			Expect(errors.Is(e, types.ErrConflict)).To(BeTrue())
		})

		It("saves revocations", func() {
			mustAtomic(s, func(tx types.Tx) {
				g := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				g.SetRevoked(true, today.Add(time.Hour))
				g.UserReason = "left the project"
				Expect(tx.UpdateGrant(g)).To(Succeed())

				got, e := tx.GetGrant(g.ID)
				Expect(e).To(Succeed())
				Expect(got.Revoked).To(BeTrue())
				Expect(got.RevokedAt).NotTo(BeNil())
				Expect(got.UserReason).To(Equal("left the project"))

				revoked, e := tx.ListGrants(types.GrantFilter{Revoked: types.BoolP(true), UserReason: types.StringP("left the project")})
				Expect(e).To(Succeed())
				Expect(revoked).To(HaveLen(1))
			})
		})

		It("finds lapsed grants", func() {
			mustAtomic(s, func(tx types.Tx) {
				live := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				expired := grantOn(tx, f.member, f.bob, types.Grant{Expires: yesterday})
				revoked := grantOn(tx, f.member, f.carol, types.Grant{Expires: nextYear, Revoked: true})

				lapsed, e := tx.ListGrants(types.GrantFilter{HeadOnly: true, LapsedAt: types.TimeP(today)})
				Expect(e).To(Succeed())
				ids := make([]int64, 0)
				for _, g := range lapsed {
					ids = append(ids, g.ID)
				}
				Expect(ids).To(ConsistOf(expired.ID, revoked.ID))
				Expect(ids).NotTo(ContainElement(live.ID))

				byRole, e := tx.ListGrants(types.GrantFilter{RoleID: f.member.ID, UserID: f.alice.ID})
				Expect(e).To(Succeed())
				Expect(byRole).To(HaveLen(1))
			})
		})
	})

	Describe("request chains", func() {
		It("tracks active requests", func() {
			mustAtomic(s, func(tx types.Tx) {
				a, e := tx.GetOrCreateAccess(f.member.ID, f.alice.ID)
				Expect(e).To(Succeed())

				r1 := &types.Request{AccessID: a.ID, RequestedBy: "alice", RequestedAt: today, State: types.RequestPending}
				Expect(tx.InsertRequest(r1)).To(Succeed())
				Expect(r1.Head).To(BeTrue())

				r1.State = types.RequestRejected
				r1.Incomplete = true
				r1.UserReason = "more details please"
				Expect(tx.UpdateRequest(r1)).To(Succeed())

				r2 := &types.Request{AccessID: a.ID, RequestedBy: "alice", RequestedAt: today.Add(time.Hour), State: types.RequestPending, PreviousRequestID: r1.ID}
				Expect(tx.InsertRequest(r2)).To(Succeed())

				active, e := tx.ListRequests(types.RequestFilter{AccessID: a.ID, ActiveOnly: true})
				Expect(e).To(Succeed())
				Expect(active).To(HaveLen(1))
				Expect(active[0].ID).To(Equal(r2.ID))

				g := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				r2.State = types.RequestApproved
				r2.ResultingGrantID = g.ID
				Expect(tx.UpdateRequest(r2)).To(Succeed())

				active, e = tx.ListRequests(types.RequestFilter{AccessID: a.ID, ActiveOnly: true})
				Expect(e).To(Succeed())
				Expect(active).To(BeEmpty())

				rejected, e := tx.ListRequests(types.RequestFilter{UserID: f.alice.ID, State: types.RequestRejected})
				Expect(e).To(Succeed())
				Expect(rejected).To(HaveLen(1))
				Expect(rejected[0].Incomplete).To(BeTrue())
				Expect(rejected[0].Head).To(BeFalse())
			})
		})

		It("filters by age and previous grant", func() {
			mustAtomic(s, func(tx types.Tx) {
				g := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				old := &types.Request{AccessID: g.AccessID, RequestedAt: today.AddDate(0, 0, -10), State: types.RequestPending, PreviousGrantID: g.ID}
				Expect(tx.InsertRequest(old)).To(Succeed())

				a, e := tx.GetOrCreateAccess(f.member.ID, f.bob.ID)
				Expect(e).To(Succeed())
				fresh := &types.Request{AccessID: a.ID, RequestedAt: today, State: types.RequestPending}
				Expect(tx.InsertRequest(fresh)).To(Succeed())

				stale, e := tx.ListRequests(types.RequestFilter{RequestedBefore: types.TimeP(today.AddDate(0, 0, -7))})
				Expect(e).To(Succeed())
				Expect(stale).To(HaveLen(1))
				Expect(stale[0].ID).To(Equal(old.ID))

				renewing, e := tx.ListRequests(types.RequestFilter{PreviousGrantID: g.ID})
				Expect(e).To(Succeed())
				Expect(renewing).To(HaveLen(1))
			})
		})

		It("moves a request onto a successor grant", func() {
			mustAtomic(s, func(tx types.Tx) {
				g1 := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear})
				r := &types.Request{AccessID: g1.AccessID, RequestedAt: today, State: types.RequestPending, PreviousGrantID: g1.ID}
				Expect(tx.InsertRequest(r)).To(Succeed())
				g2 := grantOn(tx, f.member, f.alice, types.Grant{Expires: nextYear, PreviousGrantID: g1.ID})

				r.PreviousGrantID = g2.ID
				Expect(tx.UpdateRequest(r)).To(Succeed())

				got, e := tx.GetRequest(r.ID)
				Expect(e).To(Succeed())
				Expect(got.PreviousGrantID).To(Equal(g2.ID))
				Expect(got.State).To(Equal(types.RequestPending))
			})
		})
	})

	Describe("metadata", func() {
		It("replaces metadata as a whole", func() {
			ref := types.RefOf(types.KindRequest, 42)
			mustAtomic(s, func(tx types.Tx) {
				Expect(tx.Metadata(ref)).To(BeEmpty())
				Expect(tx.ReplaceMetadata(ref, types.Metadata{"project": "climate", "size": "10TB"})).To(Succeed())
				Expect(tx.ReplaceMetadata(ref, types.Metadata{"project": "weather"})).To(Succeed())

				md, e := tx.Metadata(ref)
				Expect(e).To(Succeed())
				Expect(md).To(Equal(types.Metadata{"project": "weather"}))
			})
		})
	})

	Describe("permission queries", func() {
		BeforeEach(func() {
			mustAtomic(s, func(tx types.Tx) {
				Expect(tx.CreateObjectPermission(&types.RoleObjectPermission{
					RoleID: f.manager.ID, Permission: types.DecideRequest, Target: types.RefOf(types.KindRole, f.member.ID),
				})).To(Succeed())
				Expect(tx.CreateObjectPermission(&types.RoleObjectPermission{
					RoleID: f.manager.ID, Permission: types.ViewUsers, Target: types.RefOf(types.KindService, f.svc.ID),
				})).To(Succeed())

				grantOn(tx, f.manager, f.alice, types.Grant{Expires: nextYear})
				grantOn(tx, f.manager, f.bob, types.Grant{Expires: nextYear, Revoked: true})
				grantOn(tx, f.manager, f.carol, types.Grant{Expires: yesterday})
				old := grantOn(tx, f.manager, f.dave, types.Grant{Expires: nextYear})
				grantOn(tx, f.manager, f.dave, types.Grant{Expires: yesterday, PreviousGrantID: old.ID})
			})
		})

		It("refuses duplicated permissions", func() {
			e := atomic(s, func(tx types.Tx) error {
				return tx.CreateObjectPermission(&types.RoleObjectPermission{
					RoleID: f.manager.ID, Permission: types.DecideRequest, Target: types.RefOf(types.KindRole, f.member.ID),
				})
			})
			Expect(errors.Is(e, types.ErrAlreadyExists)).To(BeTrue())
		})

		It("finds approvers through live head grants only", func() {
			mustAtomic(s, func(tx types.Tx) {
				ids, e := tx.ApproverIDs(types.DecideRequest, []types.EntityRef{
					types.RefOf(types.KindRole, f.member.ID),
					types.RefOf(types.KindService, f.svc.ID),
				}, today)
				Expect(e).To(Succeed())
				Expect(ids).To(Equal([]int64{f.alice.ID}))

				ids, e = tx.ApproverIDs(types.DecideRequest, []types.EntityRef{types.RefOf(types.KindRole, f.manager.ID)}, today)
				Expect(e).To(Succeed())
				Expect(ids).To(BeEmpty())
			})
		})

		It("lists permissions of a user", func() {
			mustAtomic(s, func(tx types.Tx) {
				perms, e := tx.ObjectPermissionsOf(f.alice.ID, today)
				Expect(e).To(Succeed())
				Expect(perms).To(HaveLen(2))

				perms, e = tx.ObjectPermissionsOf(f.bob.ID, today)
				Expect(e).To(Succeed())
				Expect(perms).To(BeEmpty())
			})
		})

		It("knows which behaviours are still required", func() {
			mustAtomic(s, func(tx types.Tx) {
				b := &types.BehaviourRecord{Kind: "ldap_tag", Config: []byte(`{"tag":"gws"}`)}
				Expect(tx.CreateBehaviour(b)).To(Succeed())
				Expect(tx.AttachBehaviour(f.manager.ID, b.ID)).To(Succeed())

				Expect(tx.BehaviourRequired(f.alice.ID, b.ID, today)).To(BeTrue())
				Expect(tx.BehaviourRequired(f.bob.ID, b.ID, today)).To(BeFalse())
				Expect(tx.BehaviourRequired(f.carol.ID, b.ID, today)).To(BeFalse())
				Expect(tx.BehaviourRequired(f.dave.ID, b.ID, today)).To(BeFalse())
			})
		})
	})

	Describe("join ledger", func() {
		It("remembers joined users", func() {
			mustAtomic(s, func(tx types.Tx) {
				Expect(tx.HasJoined(1, f.alice.ID)).To(BeFalse())
				Expect(tx.RecordJoined(1, f.alice.ID)).To(Succeed())
				Expect(tx.RecordJoined(1, f.alice.ID)).To(Succeed())
				Expect(tx.HasJoined(1, f.alice.ID)).To(BeTrue())
			})
		})
	})
})
