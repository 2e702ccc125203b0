package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/supremind/svcaccess/notification/fake"
	"github.com/supremind/svcaccess/types"
)

func TestPublisher(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "amqp publisher")
}

type published struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	declared  []string
	published []published
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.published = append(c.published, published{key: key, msg: msg})
	return nil
}

var _ = Describe("amqp publisher", func() {
	var (
		ctx   = context.Background()
		ch    *fakeChannel
		inbox *fake.Inbox
		p     *Publisher
		now   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		ch = &fakeChannel{}
		inbox = fake.NewInbox()
		var e error
		p, e = New(ch, inbox, WithClock(testclock.NewClock(now)))
		Expect(e).To(Succeed())
		Expect(ch.declared).To(Equal([]string{NotificationQueue, EscalationQueue}))
	})

	It("records then publishes notifications", func() {
		n := types.Notification{Type: types.NotifyGrantCreated, UserID: 3, Target: types.RefOf(types.KindGrant, 9), Link: "/grants/9"}
		Expect(p.Notify(ctx, n)).To(Succeed())
		Expect(inbox.Records(types.NotifyGrantCreated)).To(HaveLen(1))
		Expect(ch.published).To(HaveLen(1))

		msg := ch.published[0].msg
		Expect(ch.published[0].key).To(Equal(NotificationQueue))
		Expect(msg.ContentType).To(Equal("application/json"))
		Expect(msg.DeliveryMode).To(Equal(amqp.Persistent))

		var ev struct {
			ID   string             `json:"id"`
			Kind string             `json:"kind"`
			Data types.Notification `json:"data"`
		}
		Expect(json.Unmarshal(msg.Body, &ev)).To(Succeed())
		Expect(ev.ID).NotTo(BeEmpty())
		Expect(ev.Kind).To(Equal("grant_created"))
		Expect(ev.Data).To(Equal(n))
	})

	It("publishes deduplicated notifications once", func() {
		n := types.Notification{Type: types.NotifyGrantExpired, UserID: 3, Target: types.RefOf(types.KindGrant, 9)}
		Expect(p.NotifyIfNotExists(ctx, n)).To(BeTrue())
		Expect(p.NotifyIfNotExists(ctx, n)).To(BeFalse())
		Expect(ch.published).To(HaveLen(1))
	})

	It("escalates to its own queue", func() {
		Expect(p.Escalate(ctx, types.Escalation{RequestID: 4, Role: "USER", Service: "gws-climate"})).To(Succeed())
		Expect(ch.published).To(HaveLen(1))
		Expect(ch.published[0].key).To(Equal(EscalationQueue))
	})

	It("marks seen through the inner notifier", func() {
		target := types.RefOf(types.KindRequest, 4)
		Expect(p.Notify(ctx, types.Notification{Type: types.NotifyRequestPending, UserID: 1, Target: target})).To(Succeed())
		Expect(p.MarkSeen(ctx, target)).To(Succeed())
		Expect(inbox.Records("")[0].Seen).To(BeTrue())
	})
})
