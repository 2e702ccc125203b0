package config_test

import (
	"os"
	"testing"
	"time"

	. "github.com/supremind/svcaccess/config"
	"github.com/supremind/svcaccess/types"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "config test suit")
}

func lookupIn(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

var _ = Describe("config", func() {
	It("falls back to the strict default policy", func() {
		c, e := FromEnv(lookupIn(nil))
		Expect(e).To(Succeed())
		Expect(c.Policy.MultipleRequestsAllowed).To(BeFalse())
		Expect(c.Policy.ExpiryNotices).To(Equal(types.DefaultPolicy().ExpiryNotices))
		Expect(c.Policy.Quiet(&types.User{Username: "train042"})).To(BeTrue())
		Expect(c.Mongo.Collection).To(Equal("notifications"))
		Expect(c.Redis.TTL).To(Equal(24 * time.Hour))
		Expect(c.SMTP.Port).To(Equal(25))
	})

	It("reads every section", func() {
		c, e := FromEnv(lookupIn(map[string]string{
			"SVCACCESS_POSTGRES_DSN":              "postgres://localhost/svcaccess",
			"SVCACCESS_REDIS_DB":                  "3",
			"SVCACCESS_SMTP_PORT":                 "587",
			"SVCACCESS_KEYCLOAK_URL":              "https://id.example.org",
			"SVCACCESS_MULTIPLE_REQUESTS_ALLOWED": "true",
			"SVCACCESS_REINSTATE_FOR":             "2mo",
			"SVCACCESS_REMIND_AFTER":              "3d",
			"SVCACCESS_QUIET_USERS":               "^demo",
			"SVCACCESS_BASE_URL":                  "https://accounts.example.org/",
			"SVCACCESS_SUPERUSERS":                "root, admin,,",
		}))
		Expect(e).To(Succeed())
		Expect(c.Postgres.DSN).To(Equal("postgres://localhost/svcaccess"))
		Expect(c.Redis.DB).To(Equal(3))
		Expect(c.SMTP.Port).To(Equal(587))
		Expect(c.Keycloak.ServerURL).To(Equal("https://id.example.org"))
		Expect(c.Policy.MultipleRequestsAllowed).To(BeTrue())
		Expect(c.Policy.ReinstateFor).To(Equal(types.MonthsPeriod(2)))
		Expect(c.Policy.RemindAfter).To(Equal(72 * time.Hour))
		Expect(c.Policy.Quiet(&types.User{Username: "demo1"})).To(BeTrue())
		Expect(c.Policy.Quiet(&types.User{Username: "train042"})).To(BeFalse())
		Expect(c.BaseURL).To(Equal("https://accounts.example.org"))
		Expect(c.SuperUsers).To(Equal([]string{"root", "admin"}))
	})

	table.DescribeTable("refuses malformed values",
		func(name, value string) {
			_, e := FromEnv(lookupIn(map[string]string{name: value}))
			Expect(e).To(HaveOccurred())
			Expect(e.Error()).To(ContainSubstring(name))
		},
		table.Entry("integer", "SVCACCESS_REDIS_DB", "zero"),
		table.Entry("boolean", "SVCACCESS_BEHAVIOURS_DISABLED", "sometimes"),
		table.Entry("duration", "SVCACCESS_REMIND_AFTER", "soon"),
		table.Entry("period", "SVCACCESS_REINSTATE_WITHIN", "2 years"),
		table.Entry("periods", "SVCACCESS_EXPIRY_NOTICES", "2mo,later"),
		table.Entry("regexp", "SVCACCESS_QUIET_USERS", "(train"),
	)

	Context("with an env file", func() {
		vars := []string{"SVCACCESS_POSTGRES_DSN", "SVCACCESS_REDIS_ADDR", "SVCACCESS_EXPIRY_NOTICES", "SVCACCESS_LDAP_GROUPS_FILE"}

		BeforeEach(func() {
			Expect(os.Setenv("SVCACCESS_REDIS_ADDR", "cache:6379")).To(Succeed())
		})

		AfterEach(func() {
			for _, v := range vars {
				Expect(os.Unsetenv(v)).To(Succeed())
			}
		})

		It("loads the file without overriding the environment", func() {
			c, e := Load("testdata/test.env")
			Expect(e).To(Succeed())
			Expect(c.Postgres.DSN).To(HavePrefix("postgres://svcaccess@localhost"))
			Expect(c.Redis.Addr).To(Equal("cache:6379"))
			Expect(c.Policy.ExpiryNotices).To(Equal([]types.Period{types.MonthsPeriod(1), types.DaysPeriod(7)}))

			groups, e := c.LDAP.Groups()
			Expect(e).To(Succeed())
			Expect(groups.Names()).To(ContainElements("gws", "services"))
		})

		It("ignores a missing file", func() {
			c, e := Load("testdata/missing.env")
			Expect(e).To(Succeed())
			Expect(c.Redis.Addr).To(Equal("cache:6379"))
		})
	})
})
