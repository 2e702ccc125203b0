package mgo

import (
	"context"
	"os"
	"testing"

	"github.com/globalsign/mgo"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/types"
)

func TestInbox(t *testing.T) {
	if os.Getenv("SVCACCESS_TEST_MONGO") == "" {
		t.Skip("SVCACCESS_TEST_MONGO is not set")
	}
	RegisterFailHandler(Fail)
	RunSpecs(t, "mgo inbox")
}

var (
	db    *mgo.Database
	inbox *Inbox
	ctx   = context.Background()
)

var _ = BeforeSuite(func() {
	ss, e := mgo.Dial(os.Getenv("SVCACCESS_TEST_MONGO"))
	Expect(e).To(Succeed())
	db = ss.DB("svcaccess-test")

	inbox, e = NewInbox(db.C("notifications"), WithLogger(logr.Discard()))
	Expect(e).To(Succeed())
})

var _ = AfterSuite(func() {
	db.C("notifications").RemoveAll(nil)
	db.Session.Close()
})

var _ = Describe("mgo inbox", func() {
	BeforeEach(func() {
		_, e := db.C("notifications").RemoveAll(nil)
		Expect(e).To(Succeed())
	})

	request := types.RefOf(types.KindRequest, 7)

	It("stores notifications", func() {
		Expect(inbox.Notify(ctx, types.Notification{Type: types.NotifyRequestPending, UserID: 1, Target: request})).To(Succeed())
		Expect(inbox.Notify(ctx, types.Notification{Type: types.NotifyRequestPending, UserID: 1, Target: request})).To(Succeed())
		Expect(inbox.Unread(ctx, 1)).To(HaveLen(2))
	})

	It("sends once if asked", func() {
		n := types.Notification{Type: types.NotifyGrantExpiring, UserID: 2, Target: types.RefOf(types.KindGrant, 3), Stage: "2w"}
		Expect(inbox.NotifyIfNotExists(ctx, n)).To(BeTrue())
		Expect(inbox.NotifyIfNotExists(ctx, n)).To(BeFalse())

		n.Stage = "2d"
		Expect(inbox.NotifyIfNotExists(ctx, n)).To(BeTrue())
		Expect(inbox.Unread(ctx, 2)).To(HaveLen(2))
	})

	It("marks notifications about a target as seen", func() {
		Expect(inbox.Notify(ctx, types.Notification{Type: types.NotifyRequestPending, UserID: 1, Target: request})).To(Succeed())
		Expect(inbox.Notify(ctx, types.Notification{Type: types.NotifyRequestPending, UserID: 1, Target: types.RefOf(types.KindRequest, 8)})).To(Succeed())

		Expect(inbox.MarkSeen(ctx, request)).To(Succeed())
		Expect(inbox.MarkSeen(ctx, request)).To(Succeed())

		unread, e := inbox.Unread(ctx, 1)
		Expect(e).To(Succeed())
		Expect(unread).To(HaveLen(1))
		Expect(unread[0].Target.ID).To(BeEquivalentTo(8))
	})
})
