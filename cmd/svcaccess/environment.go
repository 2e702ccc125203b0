package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/globalsign/mgo"
	"github.com/go-logr/logr"

	"github.com/supremind/svcaccess"
	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/behaviour/keycloak"
	"github.com/supremind/svcaccess/behaviour/ldap"
	"github.com/supremind/svcaccess/behaviour/mail"
	"github.com/supremind/svcaccess/config"
	"github.com/supremind/svcaccess/form"
	"github.com/supremind/svcaccess/internal/notify"
	amqpnotify "github.com/supremind/svcaccess/notification/amqp"
	mgonotify "github.com/supremind/svcaccess/notification/mgo"
	"github.com/supremind/svcaccess/persist/postgres"
	"github.com/supremind/svcaccess/persist/redis"
	"github.com/supremind/svcaccess/types"
)

// environment connects the backends named by the config, lazily, and closes them at exit
type environment struct {
	cfg     *config.Config
	log     logr.Logger
	pg      *postgres.Store
	closers []func() error
}

func (env *environment) close() {
	for i := len(env.closers) - 1; i >= 0; i-- {
		if e := env.closers[i](); e != nil {
			env.log.Error(e, "close backend")
		}
	}
}

func (env *environment) store(ctx context.Context) (*postgres.Store, error) {
	if env.pg != nil {
		return env.pg, nil
	}
	if env.cfg.Postgres.DSN == "" {
		return nil, errors.New("SVCACCESS_POSTGRES_DSN is not set")
	}

	pg, e := postgres.Connect(ctx, env.cfg.Postgres.DSN, postgres.WithLogger(env.log.WithName("postgres")))
	if e != nil {
		return nil, e
	}
	env.pg = pg
	env.closers = append(env.closers, pg.Close)
	return pg, nil
}

func (env *environment) directory() (*ldap.Directory, *behaviour.GroupRegistry, error) {
	if env.cfg.LDAP.URL == "" {
		return nil, nil, errors.New("SVCACCESS_LDAP_URL is not set")
	}
	models, e := env.cfg.LDAP.Groups()
	if e != nil {
		return nil, nil, e
	}
	return ldap.New(env.cfg.LDAP.Config, env.log.WithName("ldap")), models, nil
}

func (env *environment) backends(store types.Store) (behaviour.Backends, error) {
	b := behaviour.Backends{
		Ledger: behaviour.StoreLedger(store),
	}

	if env.cfg.LDAP.URL != "" {
		dir, models, e := env.directory()
		if e != nil {
			return b, e
		}
		b.Tags = dir
		b.Groups = dir
		b.Models = models
	}
	if env.cfg.SMTP.Host != "" {
		b.Mail = mail.New(env.cfg.SMTP, env.log.WithName("mail"))
	}
	if env.cfg.MailingListAddress != "" {
		b.MailTo = []string{env.cfg.MailingListAddress}
	}
	if env.cfg.Keycloak.ServerURL != "" {
		b.Identity = keycloak.New(env.cfg.Keycloak, env.log.WithName("keycloak"))
	}
	return b, nil
}

// notifier stores notifications in mongodb, and publishes them to rabbitmq when configured.
// Both are nil without a mongodb url.
func (env *environment) notifier() (types.Notifier, types.Escalator, error) {
	if env.cfg.Mongo.URL == "" {
		if env.cfg.RabbitMQ.URL != "" {
			return nil, nil, errors.New("publishing to rabbitmq needs SVCACCESS_MONGO_URL for the inbox")
		}
		env.log.Info("no notification inbox configured, notifications are dropped")
		return nil, nil, nil
	}

	session, e := mgo.Dial(env.cfg.Mongo.URL)
	if e != nil {
		return nil, nil, fmt.Errorf("dial mongodb: %w", e)
	}
	env.closers = append(env.closers, func() error { session.Close(); return nil })

	inbox, e := mgonotify.NewInbox(session.DB(env.cfg.Mongo.Database).C(env.cfg.Mongo.Collection),
		mgonotify.WithLogger(env.log.WithName("inbox")))
	if e != nil {
		return nil, nil, e
	}
	if env.cfg.RabbitMQ.URL == "" {
		return inbox, nil, nil
	}

	conn, ch, e := amqpnotify.Dial(env.cfg.RabbitMQ.URL)
	if e != nil {
		return nil, nil, e
	}
	env.closers = append(env.closers, conn.Close)

	opts := []amqpnotify.Option{amqpnotify.WithLogger(env.log.WithName("amqp"))}
	if env.cfg.RabbitMQ.NotificationQueue != "" || env.cfg.RabbitMQ.EscalationQueue != "" {
		nq, eq := env.cfg.RabbitMQ.NotificationQueue, env.cfg.RabbitMQ.EscalationQueue
		if nq == "" {
			nq = amqpnotify.NotificationQueue
		}
		if eq == "" {
			eq = amqpnotify.EscalationQueue
		}
		opts = append(opts, amqpnotify.WithQueues(nq, eq))
	}
	pub, e := amqpnotify.New(ch, inbox, opts...)
	if e != nil {
		return nil, nil, e
	}
	return pub, pub, nil
}

func (env *environment) manager(ctx context.Context) (types.Manager, error) {
	store, e := env.store(ctx)
	if e != nil {
		return nil, e
	}

	backends, e := env.backends(store)
	if e != nil {
		return nil, e
	}

	opts := []svcaccess.ManagerOption{
		svcaccess.WithStore(store),
		svcaccess.WithLogger(env.log),
		svcaccess.WithPolicy(env.cfg.Policy),
		svcaccess.WithBehaviours(behaviour.NewRegistry(backends)),
		svcaccess.WithLinks(notify.DefaultLinks(env.cfg.BaseURL)),
	}

	notifier, escalator, e := env.notifier()
	if e != nil {
		return nil, e
	}
	if notifier != nil {
		opts = append(opts, svcaccess.WithNotifier(notifier))
	}
	if escalator != nil {
		opts = append(opts, svcaccess.WithEscalator(escalator))
	}

	if env.cfg.Redis.Addr != "" {
		cache, e := redis.Connect(ctx, env.cfg.Redis.Addr, env.cfg.Redis.Password, env.cfg.Redis.DB,
			redis.WithTTL(env.cfg.Redis.TTL), redis.WithLogger(env.log.WithName("redis")))
		if e != nil {
			return nil, e
		}
		env.closers = append(env.closers, cache.Close)
		opts = append(opts, svcaccess.WithPermissionCache(cache))
	}

	if env.cfg.FormsFile != "" {
		forms, e := form.Load(env.cfg.FormsFile)
		if e != nil {
			return nil, e
		}
		opts = append(opts, svcaccess.WithForms(forms))
	}

	if len(env.cfg.SuperUsers) > 0 {
		opts = append(opts, svcaccess.WithPresetPolicies(svcaccess.SuperUser(env.cfg.SuperUsers...)))
	}

	return svcaccess.New(ctx, opts...)
}
