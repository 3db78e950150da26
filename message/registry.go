package message

import (
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MinID is the smallest identifier available to application messages.
// Lower identifiers are reserved for transport control messages.
const MinID uint32 = 101

// Registry errors.
var (
	ErrReservedID    = errors.New("message: identifier is reserved")
	ErrDuplicateID   = errors.New("message: identifier already registered")
	ErrDuplicateType = errors.New("message: type already registered")
	ErrNotRegistered = errors.New("message: not registered")
	ErrInvalidType   = errors.New("message: nil message")
)

// Factory returns a fresh, zero-valued message ready to be filled by
// UnmarshalFrame. Every call must return a distinct instance of the same
// concrete type.
type Factory func() Message

type entry struct {
	typ     reflect.Type
	factory Factory
}

// Registry maps message types to their wire identifiers and back. Both peers
// must populate equivalent registries before any frame is exchanged.
//
// Registration is expected to happen once during setup; lookups are safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint32]entry
	byType map[reflect.Type]uint32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint32]entry),
		byType: make(map[reflect.Type]uint32),
	}
}

// Register binds the type produced by factory to id. Registering the same
// pair again is a no-op.
func (r *Registry) Register(id uint32, factory Factory) error {
	if id < MinID {
		return errors.Wrapf(ErrReservedID, "id %d, minimum is %d", id, MinID)
	}
	if factory == nil {
		return errors.Wrapf(ErrInvalidType, "id %d", id)
	}

	sample := factory()
	if sample == nil {
		return errors.Wrapf(ErrInvalidType, "id %d", id)
	}
	typ := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID[id]; ok {
		if e.typ == typ {
			return nil
		}
		return errors.Wrapf(ErrDuplicateID, "id %d is bound to %s", id, e.typ)
	}
	if bound, ok := r.byType[typ]; ok {
		return errors.Wrapf(ErrDuplicateType, "%s is bound to id %d", typ, bound)
	}

	r.byID[id] = entry{typ: typ, factory: factory}
	r.byType[typ] = id

	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level setup where a conflict is a programming error.
func (r *Registry) MustRegister(id uint32, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// IDFor returns the identifier bound to typ.
func (r *Registry) IDFor(typ reflect.Type) (uint32, error) {
	r.mu.RLock()
	id, ok := r.byType[typ]
	r.mu.RUnlock()

	if !ok {
		return 0, errors.Wrapf(ErrNotRegistered, "type %s", typ)
	}
	return id, nil
}

// IDOf returns the identifier bound to the concrete type of m.
func (r *Registry) IDOf(m Message) (uint32, error) {
	if m == nil {
		return 0, errors.Wrap(ErrNotRegistered, "nil message")
	}
	return r.IDFor(reflect.TypeOf(m))
}

// TypeFor returns the type bound to id.
func (r *Registry) TypeFor(id uint32) (reflect.Type, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.typ, nil
}

// New returns a fresh instance of the type bound to id.
func (r *Registry) New(id uint32) (Message, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.factory(), nil
}

// IDs returns the registered identifiers in ascending order.
func (r *Registry) IDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) lookup(id uint32) (entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return entry{}, errors.Wrapf(ErrNotRegistered, "id %d", id)
	}
	return e, nil
}
