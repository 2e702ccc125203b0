package engine

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/types"
)

var _ = Describe("account suspension", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(types.DefaultPolicy())
	})

	It("revokes grants and rejects requests, then restores them", func() {
		g1 := en.insertGrant(en.user, en.alice, &types.Grant{Expires: today.AddDate(0, 0, 180)})
		req := en.submit(en.manager, en.alice, nil)

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, false)).To(Succeed())

		suspended := en.grant(g1.ID)
		Expect(suspended.Revoked).To(BeTrue())
		Expect(suspended.RevokedAt).NotTo(BeNil())
		Expect(suspended.UserReason).To(Equal(types.SuspensionReason))
		rejected := en.request(req.ID)
		Expect(rejected.State).To(Equal(types.RequestRejected))
		Expect(rejected.UserReason).To(Equal(types.SuspensionReason))

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		restored := en.grant(g1.ID)
		Expect(restored.Revoked).To(BeFalse())
		Expect(restored.RevokedAt).To(BeNil())
		Expect(restored.UserReason).To(BeEmpty())
		Expect(restored.Expires).To(Equal(today.AddDate(0, 0, 180)))
		Expect(restored.Head).To(BeTrue())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))

		reopened := en.request(req.ID)
		Expect(reopened.State).To(Equal(types.RequestPending))
		Expect(reopened.UserReason).To(BeEmpty())
	})

	It("renews grants which expired less than two years ago", func() {
		g2 := en.insertGrant(en.user, en.alice, &types.Grant{
			Expires:    today.AddDate(0, 0, -365),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})
		Expect(en.store.Atomic(ctx, func(tx types.Tx) error {
			return tx.ReplaceMetadata(types.RefOf(types.KindGrant, g2.ID), types.Metadata{"project": "cmip6"})
		})).To(Succeed())

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		g3, e := en.mgr.ActiveGrant(ctx, g2.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(g3.ID).NotTo(Equal(g2.ID))
		Expect(g3.PreviousGrantID).To(Equal(g2.ID))
		Expect(g3.Expires).To(Equal(today.AddDate(0, 0, 30)))
		Expect(g3.Revoked).To(BeFalse())
		Expect(g3.GrantedBy).To(Equal(g2.GrantedBy))

		old := en.grant(g2.ID)
		Expect(old.Revoked).To(BeTrue())
		Expect(old.Head).To(BeFalse())

		md, e := en.mgr.Metadata(ctx, types.RefOf(types.KindGrant, g3.ID))
		Expect(e).NotTo(HaveOccurred())
		Expect(md).To(Equal(types.Metadata{"project": "cmip6"}))
		Expect(en.inbox.Records(types.NotifyGrantCreated)).To(HaveLen(1))
	})

	It("leaves grants which expired long ago", func() {
		g3 := en.insertGrant(en.user, en.alice, &types.Grant{
			Expires:    today.AddDate(0, 0, -731),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		active, e := en.mgr.ActiveGrant(ctx, g3.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(g3.ID))
		Expect(active.Revoked).To(BeTrue())
	})

	It("renews grants which expired exactly two years ago", func() {
		// no leap day lies within the two years before this date
		later := time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC)
		en.clock.Advance(later.Sub(start))
		day := types.DateOf(later)

		edge := en.insertGrant(en.user, en.alice, &types.Grant{
			Expires:    day.AddDate(0, 0, -730),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})
		beyond := en.insertGrant(en.manager, en.alice, &types.Grant{
			Expires:    day.AddDate(0, 0, -731),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		renewed, e := en.mgr.ActiveGrant(ctx, edge.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(renewed.ID).NotTo(Equal(edge.ID))
		Expect(renewed.PreviousGrantID).To(Equal(edge.ID))
		Expect(renewed.Expires).To(Equal(day.AddDate(0, 0, 30)))

		kept, e := en.mgr.ActiveGrant(ctx, beyond.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(kept.ID).To(Equal(beyond.ID))
		Expect(kept.Revoked).To(BeTrue())
	})

	It("leaves grants on disabled services revoked", func() {
		closed := &types.Service{CategoryID: en.cat.ID, Name: "gws-closed", Disabled: true}
		Expect(en.mgr.CreateService(ctx, closed)).To(Succeed())
		role := &types.Role{ServiceID: closed.ID, Name: "USER"}
		Expect(en.mgr.CreateRole(ctx, role)).To(Succeed())

		g := en.insertGrant(role, en.alice, &types.Grant{
			Expires:    today.AddDate(0, 0, 180),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})
		expired := en.insertGrant(en.orphan, en.alice, &types.Grant{
			Expires:    today.AddDate(0, 0, -30),
			Revoked:    true,
			UserReason: types.SuspensionReason,
		})

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		kept := en.grant(g.ID)
		Expect(kept.Revoked).To(BeTrue())
		Expect(kept.UserReason).To(Equal(types.SuspensionReason))
		Expect(kept.Head).To(BeTrue())
		Expect(en.tags.of("alice")).To(BeEmpty())

		renewed, e := en.mgr.ActiveGrant(ctx, expired.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(renewed.PreviousGrantID).To(Equal(expired.ID))
	})

	It("moves reopened renewals onto the renewed grant", func() {
		g2 := en.insertGrant(en.user, en.alice, &types.Grant{Expires: today.AddDate(0, 0, 20)})
		req, e := en.mgr.SubmitRequest(ctx, types.RequestInput{
			RoleID:          en.user.ID,
			UserID:          en.alice.ID,
			PreviousGrantID: g2.ID,
		})
		Expect(e).NotTo(HaveOccurred())

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, false)).To(Succeed())
		en.clock.Advance(100 * 24 * time.Hour)
		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		g3, e := en.mgr.ActiveGrant(ctx, g2.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(g3.PreviousGrantID).To(Equal(g2.ID))

		reopened := en.request(req.ID)
		Expect(reopened.State).To(Equal(types.RequestPending))
		Expect(reopened.PreviousGrantID).To(Equal(g3.ID))

		decided := en.approve(reopened, types.ExpiryOneYear)
		Expect(decided.State).To(Equal(types.RequestApproved))
		g4 := en.grant(decided.ResultingGrantID)
		Expect(g4.PreviousGrantID).To(Equal(g3.ID))
		Expect(g4.Head).To(BeTrue())
		Expect(en.grant(g3.ID).Head).To(BeFalse())
	})

	It("leaves grants revoked for other reasons", func() {
		g := en.insertGrant(en.user, en.alice, &types.Grant{Expires: today.AddDate(1, 0, 0)})
		_, e := en.mgr.RevokeGrant(ctx, g.ID, "misuse", "")
		Expect(e).NotTo(HaveOccurred())

		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, false)).To(Succeed())
		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, true)).To(Succeed())

		again := en.grant(g.ID)
		Expect(again.Revoked).To(BeTrue())
		Expect(again.UserReason).To(Equal("misuse"))
	})

	It("takes away approval rights", func() {
		ref := types.RefOf(types.KindService, en.svc.ID)
		ok, e := en.mgr.HasPermission(ctx, en.bob.ID, types.DecideRequest, &ref)
		Expect(e).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		Expect(en.mgr.SetUserActive(ctx, en.bob.ID, false)).To(Succeed())
		ok, e = en.mgr.HasPermission(ctx, en.bob.ID, types.DecideRequest, &ref)
		Expect(e).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		approvers, e := en.mgr.Approvers(ctx, en.user.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(approvers).To(BeEmpty())
	})
})
