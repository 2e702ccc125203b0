package types_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	. "github.com/supremind/svcaccess/types"
)

var _ = Describe("grant", func() {
	today := date(2024, 5, 10)

	DescribeTable("status",
		func(g Grant, want GrantStatus) {
			Expect(g.Status(today)).To(Equal(want))
		},
		Entry("far from expiry", Grant{Expires: date(2025, 5, 10)}, GrantActive),
		Entry("expires in exactly two months", Grant{Expires: date(2024, 7, 10)}, GrantActive),
		Entry("expires within two months", Grant{Expires: date(2024, 7, 9)}, GrantExpiring),
		Entry("expires today", Grant{Expires: today}, GrantExpiring),
		Entry("expired yesterday", Grant{Expires: date(2024, 5, 9)}, GrantExpired),
		Entry("revoked wins over expired", Grant{Expires: date(2020, 1, 1), Revoked: true}, GrantRevoked),
	)

	It("keeps revoked at in step with revoked", func() {
		g := &Grant{}
		now := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)

		g.SetRevoked(true, now)
		Expect(g.Revoked).To(BeTrue())
		Expect(*g.RevokedAt).To(Equal(now))

		g.SetRevoked(true, now.Add(time.Hour))
		Expect(*g.RevokedAt).To(Equal(now))

		g.SetRevoked(false, now)
		Expect(g.Revoked).To(BeFalse())
		Expect(g.RevokedAt).To(BeNil())
	})
})

var _ = Describe("request", func() {
	It("is active only as an undecided head", func() {
		Expect((&Request{Head: true}).Active()).To(BeTrue())
		Expect((&Request{Head: true, ResultingGrantID: 3}).Active()).To(BeFalse())
		Expect((&Request{Head: false}).Active()).To(BeFalse())
	})
})

var _ = Describe("errors", func() {
	It("matches conflicts", func() {
		var e error = NewConflictError(KindGrant, 7, "active grant exists")
		Expect(errors.Is(e, ErrConflict)).To(BeTrue())
		Expect(errors.Is(e, ErrAlreadyDecided)).To(BeFalse())

		var ce *ConflictError
		Expect(errors.As(e, &ce)).To(BeTrue())
		Expect(ce.Target()).To(Equal(RefOf(KindGrant, 7)))
	})

	It("matches already decided requests as conflicts", func() {
		e := NewAlreadyDecidedError(3)
		Expect(errors.Is(e, ErrConflict)).To(BeTrue())
		Expect(errors.Is(e, ErrAlreadyDecided)).To(BeTrue())
	})

	It("collects validation problems", func() {
		ve := &ValidationError{}
		Expect(ve.OrNil()).To(BeNil())
		ve.Add("user_reason", "required")
		Expect(errors.Is(ve.OrNil(), ErrValidation)).To(BeTrue())
		Expect(ve.Error()).To(ContainSubstring("user_reason: required"))
	})

	It("parses entity refs", func() {
		Expect(ParseEntityRef("role:12")).To(Equal(RefOf(KindRole, 12)))
		_, e := ParseEntityRef("role")
		Expect(errors.Is(e, ErrUnknownEntity)).To(BeTrue())
	})
})
