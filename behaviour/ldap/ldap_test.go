package ldap

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/supremind/svcaccess/behaviour"
	"github.com/supremind/svcaccess/types"
)

func TestLdap(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ldap directory test suit")
}

type fakeConn struct {
	entries   []*goldap.Entry
	modifies  []*goldap.ModifyRequest
	adds      []*goldap.AddRequest
	modifyErr error
}

func (c *fakeConn) Search(*goldap.SearchRequest) (*goldap.SearchResult, error) {
	return &goldap.SearchResult{Entries: c.entries}, nil
}

func (c *fakeConn) Modify(req *goldap.ModifyRequest) error {
	c.modifies = append(c.modifies, req)
	return c.modifyErr
}

func (c *fakeConn) Add(req *goldap.AddRequest) error {
	c.adds = append(c.adds, req)
	return nil
}

var _ = Describe("ldap directory", func() {
	var (
		ctx   = context.Background()
		fc    *fakeConn
		d     *Directory
		model = &behaviour.GroupModel{Name: "gws", BaseDN: "ou=gws,dc=example,dc=org", GidMin: 100, GidMax: 103}
	)

	BeforeEach(func() {
		fc = &fakeConn{}
		d = New(Config{UserBaseDN: "ou=users,dc=example,dc=org"}, logr.Discard())
		d.dial = func() (conn, func(), error) { return fc, func() {}, nil }
	})

	It("reads tags of an account", func() {
		fc.entries = []*goldap.Entry{goldap.NewEntry("uid=alice,ou=users,dc=example,dc=org", map[string][]string{"tag": {"a", "b"}})}
		Expect(d.Tags(ctx, "alice")).To(Equal([]string{"a", "b"}))
	})

	It("reports missing accounts", func() {
		_, e := d.Tags(ctx, "ghost")
		Expect(errors.Is(e, types.ErrNotFound)).To(BeTrue())
	})

	It("adds tags to the found account", func() {
		fc.entries = []*goldap.Entry{goldap.NewEntry("uid=alice,ou=users,dc=example,dc=org", nil)}
		Expect(d.AddTag(ctx, "alice", "gws")).To(Succeed())
		Expect(fc.modifies).To(HaveLen(1))
		Expect(fc.modifies[0].DN).To(Equal("uid=alice,ou=users,dc=example,dc=org"))
	})

	It("treats existing values as done", func() {
		fc.modifyErr = goldap.NewError(goldap.LDAPResultAttributeOrValueExists, errors.New("exists"))
		Expect(d.AddMember(ctx, model, "gws_climate", "alice")).To(Succeed())
		Expect(fc.modifies[0].DN).To(Equal("cn=gws_climate,ou=gws,dc=example,dc=org"))

		fc.modifyErr = goldap.NewError(goldap.LDAPResultNoSuchAttribute, errors.New("missing"))
		Expect(d.RemoveMember(ctx, model, "gws_climate", "alice")).To(Succeed())
	})

	Describe("gid allocation", func() {
		group := func(gid string) *goldap.Entry {
			return goldap.NewEntry("cn=x,ou=gws,dc=example,dc=org", map[string][]string{"gidNumber": {gid}})
		}

		It("starts at the range start", func() {
			Expect(d.CreateGroup(ctx, model, "gws_new", "")).To(Equal(100))
			Expect(fc.adds).To(HaveLen(1))
		})

		It("continues after the highest gid in range", func() {
			fc.entries = []*goldap.Entry{group("100"), group("101"), group("9999")}
			Expect(d.CreateGroup(ctx, model, "gws_new", "new workspace")).To(Equal(102))
		})

		It("fails when the range is used up", func() {
			fc.entries = []*goldap.Entry{group("102")}
			_, e := d.CreateGroup(ctx, model, "gws_new", "")
			Expect(errors.Is(e, ErrGidExhausted)).To(BeTrue())
			Expect(fc.adds).To(BeEmpty())
		})
	})
})
