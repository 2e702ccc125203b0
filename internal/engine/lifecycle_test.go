package engine

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/types"
)

var _ = Describe("requests and decisions", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(types.DefaultPolicy())
	})

	It("notifies the requester and the approvers", func() {
		req := en.submit(en.user, en.alice, types.Metadata{"reason": "climate research"})
		Expect(req.State).To(Equal(types.RequestPending))
		Expect(req.Active()).To(BeTrue())
		Expect(req.RequestedBy).To(Equal("alice"))

		confirms := en.inbox.Records(types.NotifyRequestConfirm)
		Expect(confirms).To(HaveLen(1))
		Expect(confirms[0].UserID).To(Equal(en.alice.ID))

		pending := en.inbox.Records(types.NotifyRequestPending)
		Expect(pending).To(HaveLen(1))
		Expect(pending[0].UserID).To(Equal(en.bob.ID))
		Expect(pending[0].Target).To(Equal(types.RefOf(types.KindRequest, req.ID)))
		Expect(en.inbox.Escalations()).To(BeEmpty())
	})

	It("escalates requests without approvers", func() {
		req := en.submit(en.orphan, en.alice, nil)
		Expect(en.inbox.Records(types.NotifyRequestPending)).To(BeEmpty())
		Expect(en.inbox.Escalations()).To(HaveLen(1))
		Expect(en.inbox.Escalations()[0].RequestID).To(Equal(req.ID))
	})

	It("finds approvers through the service", func() {
		approvers, e := en.mgr.Approvers(ctx, en.user.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(approvers).To(HaveLen(1))
		Expect(approvers[0].Username).To(Equal("bob"))

		approvers, e = en.mgr.Approvers(ctx, en.orphan.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(approvers).To(BeEmpty())
	})

	It("approves requests into grants", func() {
		req := en.submit(en.user, en.alice, types.Metadata{"reason": "climate research"})
		decided := en.approve(req, types.ExpiryOneYear)

		Expect(decided.State).To(Equal(types.RequestApproved))
		Expect(decided.ResultingGrantID).NotTo(BeZero())
		Expect(decided.Active()).To(BeFalse())

		g := en.grant(decided.ResultingGrantID)
		Expect(g.Head).To(BeTrue())
		Expect(g.GrantedBy).To(Equal("bob"))
		Expect(g.Expires).To(Equal(today.AddDate(1, 0, 0)))
		Expect(g.PreviousGrantID).To(BeZero())

		md, e := en.mgr.Metadata(ctx, types.RefOf(types.KindGrant, g.ID))
		Expect(e).NotTo(HaveOccurred())
		Expect(md).To(Equal(types.Metadata{"reason": "climate research"}))

		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))
		Expect(en.inbox.Records(types.NotifyGrantCreated)).To(HaveLen(1))
		for _, r := range en.inbox.Records(types.NotifyRequestPending) {
			Expect(r.Seen).To(BeTrue())
		}

		ok, e := en.mgr.HasPermission(ctx, en.alice.ID, types.DecideRequest, &types.EntityRef{Kind: types.KindService, ID: en.svc.ID})
		Expect(e).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("refuses to decide a request twice", func() {
		req := en.submit(en.user, en.alice, nil)
		en.approve(req, types.ExpirySixMonths)

		_, e := en.mgr.Decide(ctx, types.Decision{
			RequestID:  req.ID,
			ApproverID: en.bob.ID,
			Outcome:    types.OutcomeApprove,
			Expiry:     types.ExpirySixMonths,
		})
		Expect(errors.Is(e, types.ErrAlreadyDecided)).To(BeTrue())
		Expect(errors.Is(e, types.ErrConflict)).To(BeTrue())
	})

	It("lets one of concurrent deciders win", func() {
		req := en.submit(en.user, en.alice, nil)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			decided int
			lost    int
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, e := en.mgr.Decide(ctx, types.Decision{
					RequestID:  req.ID,
					ApproverID: en.bob.ID,
					Outcome:    types.OutcomeApprove,
					Expiry:     types.ExpiryOneYear,
				})
				mu.Lock()
				defer mu.Unlock()
				if e == nil {
					decided++
				} else {
					Expect(errors.Is(e, types.ErrAlreadyDecided)).To(BeTrue())
					lost++
				}
			}()
		}
		wg.Wait()
		Expect(decided).To(Equal(1))
		Expect(lost).To(Equal(3))
	})

	It("only lets approvers decide", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.Decide(ctx, types.Decision{
			RequestID:  req.ID,
			ApproverID: en.alice.ID,
			Outcome:    types.OutcomeApprove,
			Expiry:     types.ExpiryOneYear,
		})
		Expect(errors.Is(e, types.ErrPermissionDenied)).To(BeTrue())
	})

	It("needs a reason to reject", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.Decide(ctx, types.Decision{RequestID: req.ID, ApproverID: en.bob.ID, Outcome: types.OutcomeReject})
		var ve *types.ValidationError
		Expect(errors.As(e, &ve)).To(BeTrue())
		Expect(ve.Fields).To(HaveKey("user_reason"))

		decided, e := en.mgr.Decide(ctx, types.Decision{
			RequestID:      req.ID,
			ApproverID:     en.bob.ID,
			Outcome:        types.OutcomeIncomplete,
			UserReason:     "which project is it for?",
			InternalReason: "unknown project",
		})
		Expect(e).NotTo(HaveOccurred())
		Expect(decided.State).To(Equal(types.RequestRejected))
		Expect(decided.Incomplete).To(BeTrue())
		Expect(decided.Active()).To(BeTrue())
		Expect(en.inbox.Records(types.NotifyRequestRejected)).To(HaveLen(1))
	})

	It("rejects custom expiry dates in the past", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.Decide(ctx, types.Decision{
			RequestID:    req.ID,
			ApproverID:   en.bob.ID,
			Outcome:      types.OutcomeApprove,
			Expiry:       types.ExpiryCustom,
			CustomExpiry: today.AddDate(0, 0, -1),
		})
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())
		Expect(en.request(req.ID).Pending()).To(BeTrue())
	})

	It("lets staff leave only an internal comment", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.Decide(ctx, types.Decision{RequestID: req.ID, ApproverID: en.staff.ID, InternalComment: "checked"})
		Expect(errors.Is(e, types.ErrPermissionDenied)).To(BeTrue())

		_, e = en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.manager.ID, UserID: en.staff.ID, GranterID: en.admin.ID, Expiry: types.ExpiryOneYear})
		Expect(e).NotTo(HaveOccurred())

		decided, e := en.mgr.Decide(ctx, types.Decision{RequestID: req.ID, ApproverID: en.staff.ID, InternalComment: "checked"})
		Expect(e).NotTo(HaveOccurred())
		Expect(decided.Pending()).To(BeTrue())
		Expect(decided.InternalComment).To(Equal("checked"))

		_, e = en.mgr.Decide(ctx, types.Decision{RequestID: req.ID, ApproverID: en.bob.ID, InternalComment: "checked"})
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())
	})

	It("follows up rejected requests", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.Decide(ctx, types.Decision{RequestID: req.ID, ApproverID: en.bob.ID, Outcome: types.OutcomeReject, UserReason: "no"})
		Expect(e).NotTo(HaveOccurred())

		_, e = en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID})
		var ce *types.ConflictError
		Expect(errors.As(e, &ce)).To(BeTrue())
		Expect(ce.Target()).To(Equal(types.RefOf(types.KindRequest, req.ID)))

		next, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID, PreviousRequestID: req.ID})
		Expect(e).NotTo(HaveOccurred())
		Expect(en.request(req.ID).Head).To(BeFalse())

		_, e = en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID, PreviousRequestID: req.ID})
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())

		active, e := en.mgr.ActiveRequest(ctx, next.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(next.ID))
	})

	It("refuses a second active request", func() {
		first := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID})
		var ce *types.ConflictError
		Expect(errors.As(e, &ce)).To(BeTrue())
		Expect(ce.ID).To(Equal(first.ID))
	})

	It("renews grants through requests continuing them", func() {
		first := en.approve(en.submit(en.user, en.alice, nil), types.ExpirySixMonths)

		_, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID})
		var ce *types.ConflictError
		Expect(errors.As(e, &ce)).To(BeTrue())
		Expect(ce.Target()).To(Equal(types.RefOf(types.KindGrant, first.ResultingGrantID)))

		renewal, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID, PreviousGrantID: first.ResultingGrantID})
		Expect(e).NotTo(HaveOccurred())
		renewed := en.approve(renewal, types.ExpiryTwoYears)

		g := en.grant(renewed.ResultingGrantID)
		Expect(g.PreviousGrantID).To(Equal(first.ResultingGrantID))
		Expect(en.grant(first.ResultingGrantID).Head).To(BeFalse())

		active, e := en.mgr.ActiveGrant(ctx, g.AccessID)
		Expect(e).NotTo(HaveOccurred())
		Expect(active.ID).To(Equal(g.ID))
	})

	It("accepts roles automatically", func() {
		req := en.submit(en.auto, en.alice, types.Metadata{"project": "cmip6"})
		Expect(req.State).To(Equal(types.RequestApproved))
		Expect(req.ResultingGrantID).NotTo(BeZero())

		g := en.grant(req.ResultingGrantID)
		Expect(g.GrantedBy).To(Equal(types.GrantedAutomatically))
		Expect(g.Expires).To(Equal(today.AddDate(1, 0, 0)))
		Expect(g.Head).To(BeTrue())

		md, e := en.mgr.Metadata(ctx, types.RefOf(types.KindGrant, g.ID))
		Expect(e).NotTo(HaveOccurred())
		Expect(md).To(Equal(types.Metadata{"project": "cmip6"}))

		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))
		Expect(en.inbox.Records(types.NotifyRequestPending)).To(BeEmpty())
	})

	It("cleans metadata with the role form", func() {
		role := &types.Role{ServiceID: en.svc.ID, Name: "PROJECT", MetadataFormID: 7}
		Expect(en.mgr.CreateRole(ctx, role)).To(Succeed())

		_, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: role.ID, UserID: en.alice.ID, Metadata: types.Metadata{"note": "hi"}})
		var ve *types.ValidationError
		Expect(errors.As(e, &ve)).To(BeTrue())
		Expect(ve.Fields).To(HaveKey("project"))

		req := en.submit(role, en.alice, types.Metadata{"project": "cmip6", "note": "hi"})
		md, e := en.mgr.Metadata(ctx, types.RefOf(types.KindRequest, req.ID))
		Expect(e).NotTo(HaveOccurred())
		Expect(md).To(Equal(types.Metadata{"project": "cmip6"}))
	})

	It("turns away suspended users and disabled services", func() {
		Expect(en.mgr.SetUserActive(ctx, en.alice.ID, false)).To(Succeed())
		_, e := en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: en.user.ID, UserID: en.alice.ID})
		Expect(errors.Is(e, types.ErrPermissionDenied)).To(BeTrue())

		closed := &types.Service{CategoryID: en.cat.ID, Name: "gws-closed", Disabled: true}
		Expect(en.mgr.CreateService(ctx, closed)).To(Succeed())
		role := &types.Role{ServiceID: closed.ID, Name: "USER"}
		Expect(en.mgr.CreateRole(ctx, role)).To(Succeed())
		_, e = en.mgr.SubmitRequest(ctx, types.RequestInput{RoleID: role.ID, UserID: en.bob.ID})
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())
	})

	Context("when multiple requests are allowed", func() {
		BeforeEach(func() {
			p := types.DefaultPolicy()
			p.MultipleRequestsAllowed = true
			en = newEnv(p)
		})

		It("keeps several active requests", func() {
			first := en.submit(en.user, en.alice, nil)
			second := en.submit(en.user, en.alice, nil)

			active, e := en.mgr.ActiveRequest(ctx, first.AccessID)
			Expect(e).NotTo(HaveOccurred())
			Expect(active.ID).To(Equal(first.ID))
			Expect(second.Active()).To(BeTrue())

			may, e := en.mgr.UserMayApply(ctx, en.user.ID, en.alice.ID)
			Expect(e).NotTo(HaveOccurred())
			Expect(may).To(BeTrue())
		})
	})
})

var _ = Describe("grants", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(types.DefaultPolicy())
	})

	It("lets exactly one of concurrent grants win", func() {
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			won    []*types.Grant
			losers []error
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				g, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.alice.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
				mu.Lock()
				defer mu.Unlock()
				if e == nil {
					won = append(won, g)
				} else {
					losers = append(losers, e)
				}
			}()
		}
		wg.Wait()

		Expect(won).To(HaveLen(1))
		Expect(losers).To(HaveLen(1))
		var ce *types.ConflictError
		Expect(errors.As(losers[0], &ce)).To(BeTrue())
		Expect(ce.Target()).To(Equal(types.RefOf(types.KindGrant, won[0].ID)))
	})

	It("needs the grant role permission", func() {
		_, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.bob.ID, GranterID: en.alice.ID, Expiry: types.ExpiryOneYear})
		Expect(errors.Is(e, types.ErrPermissionDenied)).To(BeTrue())

		_, e = en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.bob.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())
	})

	It("conflicts with waiting requests", func() {
		req := en.submit(en.user, en.alice, nil)
		_, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.alice.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
		var ce *types.ConflictError
		Expect(errors.As(e, &ce)).To(BeTrue())
		Expect(ce.Target()).To(Equal(types.RefOf(types.KindRequest, req.ID)))
	})

	It("revokes and restores", func() {
		g, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.alice.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
		Expect(e).NotTo(HaveOccurred())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))

		_, e = en.mgr.RevokeGrant(ctx, g.ID, "", "")
		Expect(errors.Is(e, types.ErrValidation)).To(BeTrue())

		revoked, e := en.mgr.RevokeGrant(ctx, g.ID, "left the project", "asked by PI")
		Expect(e).NotTo(HaveOccurred())
		Expect(revoked.Revoked).To(BeTrue())
		Expect(revoked.RevokedAt).NotTo(BeNil())
		Expect(revoked.Status(today)).To(Equal(types.GrantRevoked))
		Expect(en.tags.of("alice")).To(BeEmpty())
		Expect(en.inbox.Records(types.NotifyGrantRevoked)).To(HaveLen(1))

		restored, e := en.mgr.RestoreGrant(ctx, g.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(restored.Revoked).To(BeFalse())
		Expect(restored.RevokedAt).To(BeNil())
		Expect(restored.UserReason).To(BeEmpty())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))
	})

	It("keeps behaviours another grant still needs", func() {
		g, e := en.mgr.GrantRole(ctx, types.GrantInput{RoleID: en.user.ID, UserID: en.alice.ID, GranterID: en.bob.ID, Expiry: types.ExpiryOneYear})
		Expect(e).NotTo(HaveOccurred())
		en.submit(en.auto, en.alice, nil)

		_, e = en.mgr.RevokeGrant(ctx, g.ID, "left the project", "")
		Expect(e).NotTo(HaveOccurred())
		Expect(en.tags.of("alice")).To(ConsistOf("gws_climate"))
	})

	It("reports accesses without grants", func() {
		a := en.access(en.user, en.alice)
		_, e := en.mgr.ActiveGrant(ctx, a.ID)
		Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
		_, e = en.mgr.ActiveRequest(ctx, a.ID)
		Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
	})

	It("tells when users may apply", func() {
		may, e := en.mgr.UserMayApply(ctx, en.user.ID, en.alice.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(may).To(BeTrue())

		req := en.submit(en.user, en.alice, nil)
		may, e = en.mgr.UserMayApply(ctx, en.user.ID, en.alice.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(may).To(BeFalse())

		en.approve(req, types.ExpiryOneYear)
		may, e = en.mgr.UserMayApply(ctx, en.user.ID, en.alice.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(may).To(BeFalse())

		en.clock.Advance(320 * 24 * time.Hour)
		may, e = en.mgr.UserMayApply(ctx, en.user.ID, en.alice.ID)
		Expect(e).NotTo(HaveOccurred())
		Expect(may).To(BeTrue())
	})
})
