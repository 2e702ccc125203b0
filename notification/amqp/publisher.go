// Package amqp publishes notification and escalation events to RabbitMQ
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/juju/clock"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/supremind/svcaccess/types"
)

// default queue names
const (
	NotificationQueue = "svcaccess.notifications"
	EscalationQueue   = "svcaccess.escalations"
)

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var (
	_ types.Notifier  = (*Publisher)(nil)
	_ types.Escalator = (*Publisher)(nil)
)

// Publisher records notifications in an inner Notifier, then publishes them for delivery.
// Escalations are published to their own queue.
type Publisher struct {
	inner       types.Notifier
	ch          channel
	queue       string
	escalations string
	clock       clock.Clock
	log         logr.Logger
}

// Option configures a Publisher
type Option func(*Publisher)

// WithQueues overrides the queue names
func WithQueues(notifications, escalations string) Option {
	return func(p *Publisher) {
		p.queue = notifications
		p.escalations = escalations
	}
}

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(p *Publisher) {
		p.log = l
	}
}

// WithClock sets the clock stamping events
func WithClock(clk clock.Clock) Option {
	return func(p *Publisher) {
		p.clock = clk
	}
}

// New declares the queues on ch and creates a Publisher.
// inner keeps the record of what was sent, it is required for NotifyIfNotExists and MarkSeen.
func New(ch channel, inner types.Notifier, opts ...Option) (*Publisher, error) {
	if inner == nil {
		return nil, errors.New("empty inner notifier")
	}
	p := &Publisher{
		inner:       inner,
		ch:          ch,
		queue:       NotificationQueue,
		escalations: EscalationQueue,
		clock:       clock.WallClock,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, q := range []string{p.queue, p.escalations} {
		if _, e := ch.QueueDeclare(q, true, false, false, false, nil); e != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, e)
		}
	}
	return p, nil
}

// Dial connects to RabbitMQ and opens a channel
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, e := amqp.Dial(url)
	if e != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", e)
	}
	ch, e := conn.Channel()
	if e != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", e)
	}
	return conn, ch, nil
}

type event struct {
	ID   string      `json:"id"`
	Kind string      `json:"kind"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

func (p *Publisher) publish(ctx context.Context, queue, kind string, data interface{}) error {
	body, e := json.Marshal(event{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   p.clock.Now(),
		Data: data,
	})
	if e != nil {
		return e
	}

	p.log.V(4).Info("publish", "queue", queue, "kind", kind)
	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    p.clock.Now(),
		Body:         body,
	})
}

// Notify records and publishes n
func (p *Publisher) Notify(ctx context.Context, n types.Notification) error {
	if e := p.inner.Notify(ctx, n); e != nil {
		return e
	}
	return p.publish(ctx, p.queue, string(n.Type), n)
}

// NotifyIfNotExists publishes n only if the inner notifier had not recorded it
func (p *Publisher) NotifyIfNotExists(ctx context.Context, n types.Notification) (bool, error) {
	created, e := p.inner.NotifyIfNotExists(ctx, n)
	if e != nil || !created {
		return created, e
	}
	return true, p.publish(ctx, p.queue, string(n.Type), n)
}

// MarkSeen is handled by the inner notifier
func (p *Publisher) MarkSeen(ctx context.Context, target types.EntityRef) error {
	return p.inner.MarkSeen(ctx, target)
}

// Escalate publishes e to the escalation queue
func (p *Publisher) Escalate(ctx context.Context, e types.Escalation) error {
	p.log.Info("escalate request without approvers", "request", e.RequestID, "role", e.Role, "service", e.Service)
	return p.publish(ctx, p.escalations, "escalation", e)
}
