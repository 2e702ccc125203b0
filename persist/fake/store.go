package fake

import (
	"context"
	"sync"

	"github.com/supremind/svcaccess/types"
)

var _ types.Store = (*store)(nil)

// store keeps everything in memory, transactions are serialized by one mutex
type store struct {
	data *dataset
	sync.Mutex
}

// NewStore returns a fake store which should not be used in real works
func NewStore() *store {
	return &store{data: newDataset()}
}

// Atomic runs fn with the store locked, and restores the previous state if fn fails
func (s *store) Atomic(ctx context.Context, fn func(types.Tx) error) (err error) {
	s.Lock()
	defer s.Unlock()

	if e := ctx.Err(); e != nil {
		return e
	}

	snapshot := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = snapshot
			panic(r)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(&tx{d: s.data})
}

type joinKey struct {
	behaviour int64
	user      int64
}

type dataset struct {
	seq map[types.EntityKind]int64

	users          map[int64]types.User
	categories     map[int64]types.Category
	services       map[int64]types.Service
	roles          map[int64]types.Role
	behaviours     map[int64]types.BehaviourRecord
	roleBehaviours map[int64][]int64
	objectPerms    map[int64]types.RoleObjectPermission
	accesses       map[int64]types.Access
	grants         map[int64]types.Grant
	requests       map[int64]types.Request
	metadata       map[types.EntityRef]types.Metadata
	joined         map[joinKey]struct{}
}

func newDataset() *dataset {
	return &dataset{
		seq:            make(map[types.EntityKind]int64),
		users:          make(map[int64]types.User),
		categories:     make(map[int64]types.Category),
		services:       make(map[int64]types.Service),
		roles:          make(map[int64]types.Role),
		behaviours:     make(map[int64]types.BehaviourRecord),
		roleBehaviours: make(map[int64][]int64),
		objectPerms:    make(map[int64]types.RoleObjectPermission),
		accesses:       make(map[int64]types.Access),
		grants:         make(map[int64]types.Grant),
		requests:       make(map[int64]types.Request),
		metadata:       make(map[types.EntityRef]types.Metadata),
		joined:         make(map[joinKey]struct{}),
	}
}

func (d *dataset) next(kind types.EntityKind) int64 {
	d.seq[kind]++
	return d.seq[kind]
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.seq {
		c.seq[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.services {
		c.services[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.behaviours {
		c.behaviours[k] = v
	}
	for k, v := range d.roleBehaviours {
		c.roleBehaviours[k] = append([]int64(nil), v...)
	}
	for k, v := range d.objectPerms {
		c.objectPerms[k] = v
	}
	for k, v := range d.accesses {
		c.accesses[k] = v
	}
	for k, v := range d.grants {
		c.grants[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.metadata {
		c.metadata[k] = v.Clone()
	}
	for k := range d.joined {
		c.joined[k] = struct{}{}
	}
	return c
}
