package engine

import (
	"context"

	"github.com/supremind/svcaccess/types"
)

func (m *manager) Metadata(ctx context.Context, target types.EntityRef) (types.Metadata, error) {
	var md types.Metadata
	e := m.store.Atomic(ctx, func(tx types.Tx) error {
		if e := m.resolve(tx, target); e != nil {
			return e
		}
		var e error
		md, e = tx.Metadata(target)
		return e
	})
	return md, e
}

// CopyMetadata drops the metadata of to, then copies every key of from
func (m *manager) CopyMetadata(ctx context.Context, from, to types.EntityRef) error {
	m.log.V(4).Info("copy metadata", "from", from, "to", to)

	return m.store.Atomic(ctx, func(tx types.Tx) error {
		if e := m.resolve(tx, from); e != nil {
			return e
		}
		if e := m.resolve(tx, to); e != nil {
			return e
		}
		md, e := tx.Metadata(from)
		if e != nil {
			return e
		}
		return tx.ReplaceMetadata(to, md)
	})
}
