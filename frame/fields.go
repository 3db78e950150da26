package frame

import (
	"math"

	"github.com/pkg/errors"
)

// WriteUint8 appends one byte.
func (f *Frame) WriteUint8(v uint8) {
	if b := f.grow(1); b != nil {
		b[0] = v
	}
}

// WriteBool appends a boolean as one byte.
func (f *Frame) WriteBool(v bool) {
	var u uint8
	if v {
		u = 1
	}
	f.WriteUint8(u)
}

// WriteUint32 appends a 4-byte integer.
func (f *Frame) WriteUint32(v uint32) {
	if b := f.grow(4); b != nil {
		byteOrder.PutUint32(b, v)
	}
}

// WriteInt32 appends a 4-byte signed integer.
func (f *Frame) WriteInt32(v int32) {
	f.WriteUint32(uint32(v))
}

// WriteUint64 appends an 8-byte integer.
func (f *Frame) WriteUint64(v uint64) {
	if b := f.grow(8); b != nil {
		byteOrder.PutUint64(b, v)
	}
}

// WriteInt64 appends an 8-byte signed integer.
func (f *Frame) WriteInt64(v int64) {
	f.WriteUint64(uint64(v))
}

// WriteFloat32 appends the IEEE-754 bits of v.
func (f *Frame) WriteFloat32(v float32) {
	f.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends the IEEE-754 bits of v.
func (f *Frame) WriteFloat64(v float64) {
	f.WriteUint64(math.Float64bits(v))
}

// WriteBytes appends v prefixed with its length as a 4-byte integer. Nil and
// empty slices share one encoding and both read back as nil.
func (f *Frame) WriteBytes(v []byte) {
	if uint64(len(v)) > math.MaxUint32 {
		f.fail(errors.Wrapf(ErrFrameTooLarge, "field of %d bytes", len(v)))
		return
	}
	f.WriteUint32(uint32(len(v)))
	if b := f.grow(len(v)); b != nil {
		copy(b, v)
	}
}

// WriteString appends v like WriteBytes.
func (f *Frame) WriteString(v string) {
	if uint64(len(v)) > math.MaxUint32 {
		f.fail(errors.Wrapf(ErrFrameTooLarge, "field of %d bytes", len(v)))
		return
	}
	f.WriteUint32(uint32(len(v)))
	if b := f.grow(len(v)); b != nil {
		copy(b, v)
	}
}

// ReadUint8 consumes one byte.
func (f *Frame) ReadUint8() uint8 {
	if b := f.next(1); b != nil {
		return b[0]
	}
	return 0
}

// ReadBool consumes a boolean written by WriteBool.
func (f *Frame) ReadBool() bool {
	return f.ReadUint8() != 0
}

// ReadUint32 consumes a 4-byte integer.
func (f *Frame) ReadUint32() uint32 {
	if b := f.next(4); b != nil {
		return byteOrder.Uint32(b)
	}
	return 0
}

// ReadInt32 consumes a 4-byte signed integer.
func (f *Frame) ReadInt32() int32 {
	return int32(f.ReadUint32())
}

// ReadUint64 consumes an 8-byte integer.
func (f *Frame) ReadUint64() uint64 {
	if b := f.next(8); b != nil {
		return byteOrder.Uint64(b)
	}
	return 0
}

// ReadInt64 consumes an 8-byte signed integer.
func (f *Frame) ReadInt64() int64 {
	return int64(f.ReadUint64())
}

// ReadFloat32 consumes a float written by WriteFloat32.
func (f *Frame) ReadFloat32() float32 {
	return math.Float32frombits(f.ReadUint32())
}

// ReadFloat64 consumes a float written by WriteFloat64.
func (f *Frame) ReadFloat64() float64 {
	return math.Float64frombits(f.ReadUint64())
}

// ReadBytes consumes a length-prefixed block. The result is a copy and is
// nil for an empty block, whether it was written from nil or []byte{}.
func (f *Frame) ReadBytes() []byte {
	n := f.ReadUint32()
	if f.err != nil || n == 0 {
		return nil
	}
	b := f.next(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadString consumes a string written by WriteString.
func (f *Frame) ReadString() string {
	n := f.ReadUint32()
	if f.err != nil || n == 0 {
		return ""
	}
	return string(f.next(int(n)))
}
