package message

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookups(t *testing.T) {
	r := newTestRegistry()

	id, err := r.IDOf(&move{})
	require.NoError(t, err)
	assert.Equal(t, moveID, id)

	id, err = r.IDFor(reflect.TypeOf(&chat{}))
	require.NoError(t, err)
	assert.Equal(t, chatID, id)

	typ, err := r.TypeFor(pingID)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(&ping{}), typ)

	m, err := r.New(snapshotID)
	require.NoError(t, err)
	assert.IsType(t, &snapshot{}, m)

	assert.Equal(t, []uint32{pingID, moveID, chatID, snapshotID}, r.IDs())
}

func TestRegistry_NewReturnsFreshInstances(t *testing.T) {
	r := newTestRegistry()

	a, err := r.New(moveID)
	require.NoError(t, err)
	b, err := r.New(moveID)
	require.NoError(t, err)

	a.(*move).Entity = 9
	assert.Equal(t, uint32(0), b.(*move).Entity)
}

func TestRegistry_SameTypeDifferentID(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(200, func() Message { return new(move) })
	assert.True(t, errors.Is(err, ErrDuplicateType))

	id, err := r.IDOf(&move{})
	require.NoError(t, err)
	assert.Equal(t, moveID, id, "failed registration must not rebind")
}

func TestRegistry_SameIDDifferentType(t *testing.T) {
	r := newTestRegistry()

	err := r.Register(moveID, func() Message { return new(shortMove) })
	assert.True(t, errors.Is(err, ErrDuplicateID))

	_, err = r.IDOf(&shortMove{})
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestRegistry_SamePairTwice(t *testing.T) {
	r := newTestRegistry()
	assert.NoError(t, r.Register(moveID, func() Message { return new(move) }))
}

func TestRegistry_ReservedID(t *testing.T) {
	r := NewRegistry()

	for _, id := range []uint32{0, 1, MinID - 1} {
		err := r.Register(id, func() Message { return new(ping) })
		assert.True(t, errors.Is(err, ErrReservedID), "id %d", id)
	}
	assert.NoError(t, r.Register(MinID, func() Message { return new(ping) }))
}

func TestRegistry_InvalidFactory(t *testing.T) {
	r := NewRegistry()

	assert.True(t, errors.Is(r.Register(150, nil), ErrInvalidType))
	assert.True(t, errors.Is(r.Register(150, func() Message { return nil }), ErrInvalidType))
}

func TestRegistry_Unregistered(t *testing.T) {
	r := newTestRegistry()

	_, err := r.IDOf(&shortMove{})
	assert.True(t, errors.Is(err, ErrNotRegistered))

	_, err = r.IDOf(nil)
	assert.True(t, errors.Is(err, ErrNotRegistered))

	_, err = r.TypeFor(999)
	assert.True(t, errors.Is(err, ErrNotRegistered))

	_, err = r.New(999)
	assert.True(t, errors.Is(err, ErrNotRegistered))
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := newTestRegistry()
	assert.Panics(t, func() {
		r.MustRegister(pingID, func() Message { return new(chat) })
	})
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, err := r.IDOf(&chat{}); err != nil {
					t.Error(err)
					return
				}
				if _, err := r.New(pingID); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
