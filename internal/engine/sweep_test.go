package engine

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/types"
)

const day = 24 * time.Hour

var _ = Describe("sweeps", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(types.DefaultPolicy())
	})

	It("disables lapsed grants", func() {
		g, e := en.mgr.GrantRole(ctx, types.GrantInput{
			RoleID:       en.user.ID,
			UserID:       en.alice.ID,
			GranterID:    en.bob.ID,
			Expiry:       types.ExpiryCustom,
			CustomExpiry: today.AddDate(0, 0, 10),
		})
		Expect(e).NotTo(HaveOccurred())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))

		Expect(en.mgr.SyncAccess(ctx, false)).To(Succeed())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))

		en.clock.Advance(11 * day)
		Expect(en.mgr.SyncAccess(ctx, false)).To(Succeed())
		Expect(en.tags.of("alice")).To(BeEmpty())
		Expect(en.grant(g.ID).Status(types.DateOf(en.clock.Now()))).To(Equal(types.GrantExpired))
	})

	It("brings every grant back in line", func() {
		en.insertGrant(en.user, en.alice, &types.Grant{Expires: today.AddDate(1, 0, 0)})
		Expect(en.tags.of("alice")).To(BeEmpty())

		Expect(en.mgr.SyncAccess(ctx, true)).To(Succeed())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))
	})

	It("skips behaviours while they are disabled", func() {
		p := types.DefaultPolicy()
		p.BehavioursDisabled = true
		en = newEnv(p)

		en.submit(en.auto, en.alice, nil)
		Expect(en.tags.of("alice")).To(BeEmpty())
	})

	It("warns about expiry once per notice", func() {
		en.insertGrant(en.user, en.alice, &types.Grant{Expires: today.AddDate(0, 0, 20)})
		en.insertGrant(en.user, en.trainee, &types.Grant{Expires: today.AddDate(0, 0, 20)})
		en.insertGrant(en.auto, en.alice, &types.Grant{Expires: today.AddDate(1, 0, 0)})

		Expect(en.mgr.SendExpiryNotifications(ctx)).To(Succeed())
		Expect(en.mgr.SendExpiryNotifications(ctx)).To(Succeed())
		expiring := en.inbox.Records(types.NotifyGrantExpiring)
		Expect(expiring).To(HaveLen(1))
		Expect(expiring[0].UserID).To(Equal(en.alice.ID))
		Expect(expiring[0].Stage).To(Equal("2mo"))

		en.clock.Advance(7 * day)
		Expect(en.mgr.SendExpiryNotifications(ctx)).To(Succeed())
		Expect(en.inbox.Records(types.NotifyGrantExpiring)).To(HaveLen(2))

		en.clock.Advance(14 * day)
		Expect(en.mgr.SendExpiryNotifications(ctx)).To(Succeed())
		Expect(en.mgr.SendExpiryNotifications(ctx)).To(Succeed())
		Expect(en.inbox.Records(types.NotifyGrantExpired)).To(HaveLen(1))
	})

	It("reminds approvers of old requests", func() {
		req := en.submit(en.user, en.alice, nil)
		en.inbox.Reset()

		Expect(en.mgr.RemindPending(ctx)).To(Succeed())
		Expect(en.inbox.Records(types.NotifyRequestPending)).To(BeEmpty())

		en.clock.Advance(8 * day)
		Expect(en.mgr.RemindPending(ctx)).To(Succeed())
		reminders := en.inbox.Records(types.NotifyRequestPending)
		Expect(reminders).To(HaveLen(1))
		Expect(reminders[0].UserID).To(Equal(en.bob.ID))
		Expect(reminders[0].Target).To(Equal(types.RefOf(types.KindRequest, req.ID)))
	})
})

var _ = Describe("catalog and metadata", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(types.DefaultPolicy())
	})

	It("validates behaviours when they are created", func() {
		_, e := en.mgr.CreateBehaviour(ctx, "teleport", map[string]string{})
		Expect(errors.Is(e, types.ErrUnknownBehaviour)).To(BeTrue())

		_, e = en.mgr.CreateBehaviour(ctx, "ldap_tag", []byte(`{"tag": "no spaces please"}`))
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())
	})

	It("validates permission targets", func() {
		_, e := en.mgr.AddObjectPermission(ctx, en.user.ID, types.DecideRequest, types.RefOf(types.KindService, 404))
		Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())

		_, e = en.mgr.AddObjectPermission(ctx, en.user.ID, types.DecideRequest, types.EntityRef{Kind: "planet", ID: 1})
		Expect(errors.Is(e, types.ErrUnknownEntity)).To(BeTrue())
	})

	It("gives holders new permissions right away", func() {
		_, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.alice.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
		Expect(e).NotTo(HaveOccurred())

		target := types.RefOf(types.KindRole, en.orphan.ID)
		ok, e := en.mgr.HasPermission(ctx, en.alice.ID, types.DecideRequest, &target)
		Expect(e).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		_, e = en.mgr.AddObjectPermission(ctx, en.user.ID, types.DecideRequest, target)
		Expect(e).NotTo(HaveOccurred())
		ok, e = en.mgr.HasPermission(ctx, en.alice.ID, types.DecideRequest, &target)
		Expect(e).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("replaces metadata when copying", func() {
		first := en.submit(en.user, en.alice, types.Metadata{"a": "1", "b": "2"})
		second := en.submit(en.auto, en.alice, types.Metadata{"c": "3"})
		from := types.RefOf(types.KindRequest, first.ID)
		to := types.RefOf(types.KindRequest, second.ID)

		Expect(en.mgr.CopyMetadata(ctx, from, to)).To(Succeed())
		md, e := en.mgr.Metadata(ctx, to)
		Expect(e).NotTo(HaveOccurred())
		Expect(md).To(Equal(types.Metadata{"a": "1", "b": "2"}))

		e = en.mgr.CopyMetadata(ctx, from, types.RefOf(types.KindGrant, 404))
		Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
	})
})
