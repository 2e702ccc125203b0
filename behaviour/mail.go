package behaviour

import (
	"context"
	"fmt"
	"strings"

	"github.com/supremind/svcaccess/types"
)

// JoinMailingList subscribes the user to a mailing list the first time it is applied.
// Users unsubscribe themselves, so Unapply does nothing.
type JoinMailingList struct {
	ListName string `json:"list_name"`

	id     int64
	mail   MailSender
	to     []string
	ledger JoinLedger
}

func decodeJoinMailingList(id int64, config []byte, b *Backends) (types.Behaviour, error) {
	jl := &JoinMailingList{id: id, mail: b.Mail, to: b.MailTo, ledger: b.Ledger}
	if e := unmarshal(config, jl); e != nil {
		return nil, e
	}
	if strings.TrimSpace(jl.ListName) == "" {
		return nil, types.NewValidationError("list_name", "this field is required")
	}
	return jl, nil
}

// Kind of the behaviour
func (jl *JoinMailingList) Kind() string { return KindJoinMailingList }

// Apply sends the subscribe command once per user, service users are never subscribed
func (jl *JoinMailingList) Apply(ctx context.Context, user *types.User, _ *types.Role) error {
	if user.ServiceUser {
		return nil
	}
	if jl.mail == nil || jl.ledger == nil {
		return fmt.Errorf("%w: mailing list", types.ErrBackendNotConfigured)
	}

	joined, e := jl.ledger.HasJoined(ctx, jl.id, user.ID)
	if e != nil {
		return e
	}
	if joined {
		return nil
	}

	list := strings.ToLower(jl.ListName)
	subject := fmt.Sprintf("Adding %s (%s) to %s mailing list", user.Email, user.FullName, list)
	body := fmt.Sprintf("add %s %s %s", list, user.Email, user.FullName)
	if e := jl.mail.Send(ctx, jl.to, subject, body); e != nil {
		return e
	}

	return jl.ledger.RecordJoined(ctx, jl.id, user.ID)
}

// Unapply does nothing
func (jl *JoinMailingList) Unapply(context.Context, *types.User, *types.Role) error {
	return nil
}

func (jl *JoinMailingList) String() string {
	return fmt.Sprintf("Join Mailing List <%s>", jl.ListName)
}

// StoreLedger keeps the join ledger in store
func StoreLedger(store types.Store) JoinLedger {
	return &storeLedger{store: store}
}

type storeLedger struct {
	store types.Store
}

func (l *storeLedger) HasJoined(ctx context.Context, behaviourID, userID int64) (bool, error) {
	var joined bool
	e := l.store.Atomic(ctx, func(tx types.Tx) error {
		var e error
		joined, e = tx.HasJoined(behaviourID, userID)
		return e
	})
	return joined, e
}

func (l *storeLedger) RecordJoined(ctx context.Context, behaviourID, userID int64) error {
	return l.store.Atomic(ctx, func(tx types.Tx) error {
		return tx.RecordJoined(behaviourID, userID)
	})
}
