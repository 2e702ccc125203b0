// Package config reads the settings of the svcaccess process from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/behaviour/keycloak"
	"github.com/supremind/svcaccess/behaviour/ldap"
	"github.com/supremind/svcaccess/behaviour/mail"
	"github.com/supremind/svcaccess/types"
)

// Prefix of every environment variable read
const Prefix = "SVCACCESS_"

// Config of the process, a section with an empty address is not connected
type Config struct {
	Postgres Postgres
	Redis    Redis
	Mongo    Mongo
	RabbitMQ RabbitMQ
	SMTP     mail.Config
	LDAP     LDAP
	Keycloak keycloak.Config
	Policy   types.Policy

	// BaseURL prefixes links in notifications
	BaseURL string

	// FormsFile lists the metadata forms in yaml
	FormsFile string

	// MailingListAddress receives the subscription commands of mailing list behaviours
	MailingListAddress string

	// SuperUsers may do anything, by username
	SuperUsers []string
}

// Postgres section
type Postgres struct {
	DSN string
}

// Redis section, permissions are cached in process without an address
type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Mongo section, keeping the notification inbox
type Mongo struct {
	URL        string
	Database   string
	Collection string
}

// RabbitMQ section, publishing notifications and escalations
type RabbitMQ struct {
	URL               string
	NotificationQueue string
	EscalationQueue   string
}

// LDAP section
type LDAP struct {
	ldap.Config

	// GroupsFile holds the group models in yaml
	GroupsFile string
}

// Groups loads the group models, an empty registry without a file
func (l LDAP) Groups() (*behaviour.GroupRegistry, error) {
	if l.GroupsFile == "" {
		return behaviour.NewGroupRegistry()
	}
	return behaviour.LoadGroupRegistry(l.GroupsFile)
}

// Load reads envFile into the environment if it exists, then reads the config from the environment.
// Variables already set take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if e := godotenv.Load(envFile); e != nil && !errors.Is(e, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, e)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv reads the config through lookup
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	r := &reader{lookup: lookup}

	c := &Config{
		Postgres: Postgres{
			DSN: r.str("POSTGRES_DSN", ""),
		},
		Redis: Redis{
			Addr:     r.str("REDIS_ADDR", ""),
			Password: r.str("REDIS_PASSWORD", ""),
			DB:       r.integer("REDIS_DB", 0),
			TTL:      r.duration("REDIS_TTL", 24*time.Hour),
		},
		Mongo: Mongo{
			URL:        r.str("MONGO_URL", ""),
			Database:   r.str("MONGO_DATABASE", "svcaccess"),
			Collection: r.str("MONGO_COLLECTION", "notifications"),
		},
		RabbitMQ: RabbitMQ{
			URL:               r.str("RABBITMQ_URL", ""),
			NotificationQueue: r.str("RABBITMQ_NOTIFICATION_QUEUE", ""),
			EscalationQueue:   r.str("RABBITMQ_ESCALATION_QUEUE", ""),
		},
		SMTP: mail.Config{
			Host:     r.str("SMTP_HOST", ""),
			Port:     r.integer("SMTP_PORT", 25),
			Username: r.str("SMTP_USERNAME", ""),
			Password: r.str("SMTP_PASSWORD", ""),
			From:     r.str("SMTP_FROM", ""),
		},
		LDAP: LDAP{
			Config: ldap.Config{
				URL:          r.str("LDAP_URL", ""),
				BindDN:       r.str("LDAP_BIND_DN", ""),
				BindPassword: r.str("LDAP_BIND_PASSWORD", ""),
				UserBaseDN:   r.str("LDAP_USER_BASE_DN", ""),
				TagAttribute: r.str("LDAP_TAG_ATTRIBUTE", ""),
			},
			GroupsFile: r.str("LDAP_GROUPS_FILE", ""),
		},
		Keycloak: keycloak.Config{
			ServerURL: r.str("KEYCLOAK_URL", ""),
			Realm:     r.str("KEYCLOAK_REALM", "master"),
			UserRealm: r.str("KEYCLOAK_USER_REALM", ""),
			Username:  r.str("KEYCLOAK_USERNAME", ""),
			Password:  r.str("KEYCLOAK_PASSWORD", ""),
		},
		BaseURL:            strings.TrimSuffix(r.str("BASE_URL", ""), "/"),
		FormsFile:          r.str("FORMS_FILE", ""),
		MailingListAddress: r.str("MAILING_LIST_ADDRESS", ""),
		SuperUsers:         r.list("SUPERUSERS"),
	}
	c.Policy = r.policy()

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(r.errs...))
	}
	return c, nil
}

// reader collects every malformed variable instead of stopping at the first
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(name string) (string, bool) {
	v, ok := r.lookup(Prefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) fail(name string, e error) {
	r.errs = append(r.errs, fmt.Errorf("%s%s: %w", Prefix, name, e))
}

func (r *reader) str(name, def string) string {
	if v, ok := r.raw(name); ok {
		return v
	}
	return def
}

func (r *reader) list(name string) []string {
	v, ok := r.raw(name)
	if !ok {
		return nil
	}
	out := make([]string, 0)
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *reader) integer(name string, def int) int {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	n, e := strconv.Atoi(v)
	if e != nil {
		r.fail(name, e)
		return def
	}
	return n
}

func (r *reader) boolean(name string, def bool) bool {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	b, e := strconv.ParseBool(v)
	if e != nil {
		r.fail(name, e)
		return def
	}
	return b
}

func (r *reader) duration(name string, def time.Duration) time.Duration {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	if p, e := types.ParsePeriod(v); e == nil {
		return p.AddTo(time.Time{}).Sub(time.Time{})
	}
	d, e := time.ParseDuration(v)
	if e != nil {
		r.fail(name, e)
		return def
	}
	return d
}

func (r *reader) period(name string, def types.Period) types.Period {
	v, ok := r.raw(name)
	if !ok {
		return def
	}
	p, e := types.ParsePeriod(v)
	if e != nil {
		r.fail(name, e)
		return def
	}
	return p
}

func (r *reader) policy() types.Policy {
	p := types.DefaultPolicy()
	p.MultipleRequestsAllowed = r.boolean("MULTIPLE_REQUESTS_ALLOWED", p.MultipleRequestsAllowed)
	p.AutoAcceptGrantDays = r.integer("AUTO_ACCEPT_GRANT_DAYS", p.AutoAcceptGrantDays)
	p.ReinstateWithin = r.period("REINSTATE_WITHIN", p.ReinstateWithin)
	p.ReinstateFor = r.period("REINSTATE_FOR", p.ReinstateFor)
	p.RemindAfter = r.duration("REMIND_AFTER", p.RemindAfter)
	p.BehavioursDisabled = r.boolean("BEHAVIOURS_DISABLED", p.BehavioursDisabled)

	if v, ok := r.raw("EXPIRY_NOTICES"); ok {
		notices, e := types.ParsePeriods(v)
		if e != nil {
			r.fail("EXPIRY_NOTICES", e)
		} else {
			p.ExpiryNotices = notices
		}
	}

	if v, ok := r.raw("QUIET_USERS"); ok {
		re, e := regexp.Compile(v)
		if e != nil {
			r.fail("QUIET_USERS", e)
		} else {
			p.QuietUsers = re
		}
	}
	return p
}
