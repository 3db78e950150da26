package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32Reader_Feed(t *testing.T) {
	r := NewUint32Reader()

	chunk := bytes.NewReader([]byte{0x00, 0x00})
	assert.False(t, r.Feed(chunk))
	assert.Equal(t, 0, chunk.Len())

	_, err := r.Value()
	assert.True(t, errors.Is(err, ErrIncompleteRead))

	chunk = bytes.NewReader([]byte{0x01, 0x02, 0xAA, 0xBB})
	assert.True(t, r.Feed(chunk))
	assert.Equal(t, 2, chunk.Len(), "reader must leave the rest of the chunk")

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0102), v)
}

func TestUint32Reader_ByteAtATime(t *testing.T) {
	r := NewUint32Reader()
	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	for i, b := range in {
		done := r.Feed(bytes.NewReader([]byte{b}))
		assert.Equal(t, i == len(in)-1, done, "byte %d", i)
	}

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestFieldReader_IdempotentCompletion(t *testing.T) {
	r := NewInt64Reader()

	require.True(t, r.Feed(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0x03, 0xE8})))

	extra := bytes.NewReader([]byte{0xFF, 0xFF})
	assert.True(t, r.Feed(extra))
	assert.Equal(t, 2, extra.Len(), "completed reader must not consume bytes")

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v)
}

func TestFieldReader_EmptyChunk(t *testing.T) {
	r := NewUint32Reader()
	assert.False(t, r.Feed(bytes.NewReader(nil)))
	assert.False(t, r.Done())
}

func TestFieldReader_Reset(t *testing.T) {
	r := NewUint32Reader()
	require.True(t, r.Feed(bytes.NewReader([]byte{0, 0, 0, 7})))

	r.Reset()
	assert.False(t, r.Done())
	_, err := r.Value()
	assert.True(t, errors.Is(err, ErrIncompleteRead))

	require.True(t, r.Feed(bytes.NewReader([]byte{0, 0, 0, 9})))
	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), v)
}

func TestInt64Reader_Negative(t *testing.T) {
	r := NewInt64Reader()
	require.True(t, r.Feed(bytes.NewReader(bytes.Repeat([]byte{0xFF}, 8))))

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestBlockReader(t *testing.T) {
	r := NewBlockReader(5)
	assert.Equal(t, 5, r.Len())

	assert.False(t, r.Feed(bytes.NewReader([]byte("he"))))
	assert.False(t, r.Feed(bytes.NewReader([]byte("l"))))

	rest := bytes.NewReader([]byte("lo world"))
	assert.True(t, r.Feed(rest))
	assert.Equal(t, len(" world"), rest.Len())

	v, err := r.Value()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(v))
}
