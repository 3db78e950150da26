package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyPayloadHeader(t *testing.T) {
	f := New(101, 1000)
	require.NoError(t, f.UpdateHeader())

	b, err := Serialize(f)
	require.NoError(t, err)

	want := []byte{
		0, 0, 0, 12, // length
		0, 0, 0, 101, // type id
		0, 0, 0, 0, 0, 0, 0x03, 0xE8, // timestamp
	}
	assert.Equal(t, want, b)
	assert.Equal(t, 12, f.Length())
	assert.Empty(t, f.Payload())
}

func TestFrame_FieldsRoundTrip(t *testing.T) {
	f := New(200, 42)
	f.WriteUint8(7)
	f.WriteBool(true)
	f.WriteBool(false)
	f.WriteInt32(-5)
	f.WriteUint32(math.MaxUint32)
	f.WriteInt64(math.MinInt64)
	f.WriteUint64(1 << 60)
	f.WriteFloat32(1.5)
	f.WriteFloat64(-2.25)
	f.WriteBytes([]byte{1, 2, 3})
	f.WriteBytes(nil)
	f.WriteString("héllo")
	f.WriteString("")
	require.NoError(t, f.UpdateHeader())

	in := Received(f.TypeID(), f.Timestamp(), append([]byte(nil), f.Payload()...))

	assert.Equal(t, uint8(7), in.ReadUint8())
	assert.True(t, in.ReadBool())
	assert.False(t, in.ReadBool())
	assert.Equal(t, int32(-5), in.ReadInt32())
	assert.Equal(t, uint32(math.MaxUint32), in.ReadUint32())
	assert.Equal(t, int64(math.MinInt64), in.ReadInt64())
	assert.Equal(t, uint64(1<<60), in.ReadUint64())
	assert.Equal(t, float32(1.5), in.ReadFloat32())
	assert.Equal(t, -2.25, in.ReadFloat64())
	assert.Equal(t, []byte{1, 2, 3}, in.ReadBytes())
	assert.Nil(t, in.ReadBytes())
	assert.Equal(t, "héllo", in.ReadString())
	assert.Equal(t, "", in.ReadString())

	require.NoError(t, in.Err())
	assert.Equal(t, 0, in.Remaining())
}

func TestFrame_LengthCountsPayload(t *testing.T) {
	f := New(101, 0)
	f.WriteInt64(1)
	f.WriteString("abc")
	require.NoError(t, f.UpdateHeader())

	b, err := Serialize(f)
	require.NoError(t, err)

	assert.Equal(t, HeaderRemainder+8+4+3, f.Length())
	assert.Equal(t, uint32(f.Length()), byteOrder.Uint32(b))
	assert.Len(t, b, LengthSize+f.Length())
}

func TestFrame_UpdateHeaderIdempotent(t *testing.T) {
	f := New(150, 99)
	f.WriteUint32(3)
	require.NoError(t, f.UpdateHeader())
	first, err := Serialize(f)
	require.NoError(t, err)
	first = append([]byte(nil), first...)

	require.NoError(t, f.UpdateHeader())
	second, err := Serialize(f)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFrame_WriteAfterFinalize(t *testing.T) {
	f := New(101, 0)
	require.NoError(t, f.UpdateHeader())

	f.WriteUint32(1)
	assert.True(t, errors.Is(f.Err(), ErrFinalized))
	assert.Equal(t, 12, f.Length(), "rejected write must not grow the payload")

	_, err := Serialize(f)
	assert.True(t, errors.Is(err, ErrFinalized))
}

func TestFrame_ReadOnOutbound(t *testing.T) {
	f := New(101, 0)
	f.WriteUint32(1)
	_ = f.ReadUint32()

	assert.True(t, errors.Is(f.Err(), ErrWrongMode))
	assert.True(t, errors.Is(f.UpdateHeader(), ErrWrongMode))
}

func TestFrame_WriteOnInbound(t *testing.T) {
	f := Received(101, 0, []byte{0, 0, 0, 1})
	f.WriteUint32(2)

	assert.True(t, errors.Is(f.Err(), ErrWrongMode))
	assert.True(t, errors.Is(f.UpdateHeader(), ErrWrongMode))
}

func TestFrame_ShortPayloadIsSticky(t *testing.T) {
	f := Received(101, 0, []byte{0, 0, 0, 1, 0xFF})

	assert.Equal(t, uint32(1), f.ReadUint32())
	assert.Equal(t, uint64(0), f.ReadUint64())
	assert.True(t, errors.Is(f.Err(), ErrShortPayload))

	// later reads stay failed even if enough bytes would remain
	assert.Equal(t, uint8(0), f.ReadUint8())
	assert.Equal(t, 1, f.Remaining())
}

func TestFrame_ReadBytesLengthBeyondPayload(t *testing.T) {
	f := Received(101, 0, []byte{0xFF, 0xFF, 0xFF, 0xFF, 1, 2})

	assert.Nil(t, f.ReadBytes())
	assert.True(t, errors.Is(f.Err(), ErrShortPayload))
}

func TestFrame_GrowBeyondInitialCapacity(t *testing.T) {
	f := New(101, 0)
	block := make([]byte, 10*defaultPayloadCap)
	for i := range block {
		block[i] = byte(i)
	}
	f.WriteBytes(block)
	f.WriteUint8(9)
	require.NoError(t, f.UpdateHeader())

	in := Received(101, 0, f.Payload())
	assert.Equal(t, block, in.ReadBytes())
	assert.Equal(t, uint8(9), in.ReadUint8())
	require.NoError(t, in.Err())
}
