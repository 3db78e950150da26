// Package frame implements the binary frame format used on the wire:
// a fixed header carrying the frame length, the message type identifier and
// a creation timestamp, followed by a payload of sequentially written fields.
//
// Wire layout (big-endian):
//
//	0      4        8           16
//	+------+--------+-----------+----------------------+
//	|length|type_id | timestamp | payload[length-12]   |
//	+------+--------+-----------+----------------------+
//
// length counts every byte after the length field itself.
package frame

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Header layout.
const (
	LengthSize    = 4
	TypeIDSize    = 4
	TimestampSize = 8

	// HeaderSize is the size of the fixed header region.
	HeaderSize = LengthSize + TypeIDSize + TimestampSize
	// HeaderRemainder is the part of the header counted by the length field.
	HeaderRemainder = TypeIDSize + TimestampSize
)

var byteOrder = binary.BigEndian

// Errors reported by frame operations.
var (
	// ErrFinalized is recorded when a field is written after UpdateHeader.
	ErrFinalized = errors.New("frame: write after finalization")
	// ErrWrongMode is recorded when a frame being written is read from, or
	// a received frame is written to.
	ErrWrongMode = errors.New("frame: read and write mixed on one frame")
	// ErrShortPayload is recorded when a read needs more bytes than remain.
	ErrShortPayload = errors.New("frame: payload too short")
	// ErrNotFinalized is returned when serializing a frame whose header was
	// never written.
	ErrNotFinalized = errors.New("frame: header not written")
	// ErrFrameTooLarge is returned when a frame exceeds the length limit.
	ErrFrameTooLarge = errors.New("frame: frame too large")
)

type state uint8

const (
	writing state = iota
	finalized
	reading
)

// defaultPayloadCap is the initial payload capacity of an outbound frame.
const defaultPayloadCap = 64

// Frame is one wire frame. An outbound frame is built with New, filled with
// Write* calls and sealed with UpdateHeader. An inbound frame comes out of an
// Assembler (or Received) and is consumed with Read* calls in the order the
// fields were written.
//
// Field errors are sticky: the first failure is kept, later field calls do
// nothing, and the error is reported by Err and UpdateHeader.
type Frame struct {
	typeID    uint32
	timestamp int64

	// outbound: header region followed by payload; inbound: payload only.
	buf []byte
	off int

	state state
	err   error
}

// New returns an empty outbound frame. Its write cursor starts right after
// the header region.
func New(typeID uint32, timestamp int64) *Frame {
	return &Frame{
		typeID:    typeID,
		timestamp: timestamp,
		buf:       make([]byte, HeaderSize, HeaderSize+defaultPayloadCap),
		state:     writing,
	}
}

// Received returns an inbound frame over payload. The frame takes ownership
// of the slice.
func Received(typeID uint32, timestamp int64, payload []byte) *Frame {
	return &Frame{
		typeID:    typeID,
		timestamp: timestamp,
		buf:       payload,
		state:     reading,
	}
}

// TypeID returns the message type identifier.
func (f *Frame) TypeID() uint32 { return f.typeID }

// Timestamp returns the creation time in Unix milliseconds.
func (f *Frame) Timestamp() int64 { return f.timestamp }

// Err returns the first field error, if any.
func (f *Frame) Err() error { return f.err }

// Finalized reports whether UpdateHeader succeeded on this frame.
func (f *Frame) Finalized() bool { return f.state == finalized }

// Payload returns the payload bytes. The slice aliases the frame.
func (f *Frame) Payload() []byte {
	if f.state == reading {
		return f.buf
	}
	return f.buf[HeaderSize:]
}

// Length returns the value of the wire length field for this frame.
func (f *Frame) Length() int {
	return HeaderRemainder + len(f.Payload())
}

// Remaining returns the number of payload bytes not yet read.
func (f *Frame) Remaining() int {
	if f.state != reading {
		return 0
	}
	return len(f.buf) - f.off
}

// UpdateHeader writes length, type identifier and timestamp into the header
// region and seals the frame against further writes. Calling it again is a
// no-op.
func (f *Frame) UpdateHeader() error {
	if f.err != nil {
		return f.err
	}

	switch f.state {
	case reading:
		return ErrWrongMode
	case finalized:
		return nil
	}

	length := len(f.buf) - LengthSize
	if length > math.MaxInt32 {
		return errors.Wrapf(ErrFrameTooLarge, "length %d", length)
	}

	byteOrder.PutUint32(f.buf[0:], uint32(length))
	byteOrder.PutUint32(f.buf[LengthSize:], f.typeID)
	byteOrder.PutUint64(f.buf[LengthSize+TypeIDSize:], uint64(f.timestamp))
	f.state = finalized

	return nil
}

// fail records err unless an earlier error is already recorded.
func (f *Frame) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

// grow extends the payload by n bytes and returns them for writing, or nil
// when the frame cannot be written.
func (f *Frame) grow(n int) []byte {
	if f.err != nil {
		return nil
	}

	switch f.state {
	case finalized:
		f.fail(ErrFinalized)
		return nil
	case reading:
		f.fail(ErrWrongMode)
		return nil
	}

	l := len(f.buf)
	if cap(f.buf)-l < n {
		buf := make([]byte, l, 2*cap(f.buf)+n)
		copy(buf, f.buf)
		f.buf = buf
	}
	f.buf = f.buf[:l+n]

	return f.buf[l:]
}

// next consumes n payload bytes, or returns nil when they are not available.
func (f *Frame) next(n int) []byte {
	if f.err != nil {
		return nil
	}

	if f.state != reading {
		f.fail(ErrWrongMode)
		return nil
	}

	if left := len(f.buf) - f.off; n < 0 || left < n {
		f.fail(errors.Wrapf(ErrShortPayload, "need %d bytes, %d left", n, left))
		return nil
	}

	b := f.buf[f.off : f.off+n]
	f.off += n

	return b
}
