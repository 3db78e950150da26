package frame

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrCorruptLength is returned when a length field implies a negative
// payload. The stream cannot be resynchronized after it.
var ErrCorruptLength = errors.New("frame: corrupt length field")

// DefaultMaxLength is the default upper bound on a frame's length field.
const DefaultMaxLength = 1024 * 1024

type phase uint8

const (
	awaitingLength phase = iota
	awaitingHeader
	awaitingPayload
)

func (p phase) String() string {
	switch p {
	case awaitingLength:
		return "awaiting length"
	case awaitingHeader:
		return "awaiting header"
	case awaitingPayload:
		return "awaiting payload"
	}
	return "unknown"
}

type assemblerOptions struct {
	maxLength int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*assemblerOptions)

// MaxLength limits the length field of incoming frames. Larger frames fail
// with ErrFrameTooLarge. Values <= 0 select DefaultMaxLength.
func MaxLength(n int) AssemblerOption {
	return func(o *assemblerOptions) {
		o.maxLength = n
	}
}

// Assembler rebuilds frames from a byte stream delivered in chunks of any
// size. It keeps the partially read frame between Feed calls and never waits
// for input.
//
// An Assembler serves exactly one connection direction and must not be
// used from several goroutines at once.
type Assembler struct {
	opts assemblerOptions

	phase     phase
	length    *Uint32Reader
	typeID    *Uint32Reader
	timestamp *Int64Reader
	payload   *BlockReader

	declared int
	err      error
}

// NewAssembler returns an Assembler waiting for the first length field.
func NewAssembler(opt ...AssemblerOption) *Assembler {
	var opts assemblerOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.maxLength <= 0 {
		opts.maxLength = DefaultMaxLength
	}

	return &Assembler{
		opts:      opts,
		phase:     awaitingLength,
		length:    NewUint32Reader(),
		typeID:    NewUint32Reader(),
		timestamp: NewInt64Reader(),
	}
}

// Feed consumes the whole chunk and returns every frame completed by it, in
// stream order. Bytes of an unfinished frame are kept for the next call.
//
// A non-nil error means the stream is corrupt. Frames completed before the
// corruption are still returned; every later call returns the same error.
func (a *Assembler) Feed(chunk []byte) ([]*Frame, error) {
	if a.err != nil {
		return nil, a.err
	}

	var (
		out []*Frame
		r   = bytes.NewReader(chunk)
	)

	for r.Len() > 0 {
		f, err := a.step(r)
		if err != nil {
			a.err = err
			return out, err
		}
		if f != nil {
			out = append(out, f)
		}
	}

	return out, nil
}

// Buffered reports whether part of a frame has been consumed but the frame
// is not complete yet.
func (a *Assembler) Buffered() bool {
	if a.phase != awaitingLength {
		return true
	}
	return a.length.remaining != len(a.length.buf)
}

// Err returns the error that stopped the assembler, if any.
func (a *Assembler) Err() error {
	return a.err
}

// step advances the active phase with bytes from r and returns a frame when
// one is completed.
func (a *Assembler) step(r *bytes.Reader) (*Frame, error) {
	switch a.phase {
	case awaitingLength:
		if !a.length.Feed(r) {
			return nil, nil
		}
		n, err := a.length.Value()
		if err != nil {
			return nil, err
		}
		if err = a.checkLength(n); err != nil {
			return nil, err
		}
		a.declared = int(n)
		a.phase = awaitingHeader

	case awaitingHeader:
		if !a.typeID.Feed(r) || !a.timestamp.Feed(r) {
			return nil, nil
		}
		size := a.declared - HeaderRemainder
		if size == 0 {
			return a.emit(nil)
		}
		a.payload = NewBlockReader(size)
		a.phase = awaitingPayload

	case awaitingPayload:
		if !a.payload.Feed(r) {
			return nil, nil
		}
		payload, err := a.payload.Value()
		if err != nil {
			return nil, err
		}
		return a.emit(payload)

	default:
		return nil, errors.Errorf("frame: assembler in invalid phase %d", a.phase)
	}

	return nil, nil
}

func (a *Assembler) checkLength(n uint32) error {
	// The wire field is a signed 32-bit integer.
	if int32(n) < HeaderRemainder {
		return errors.Wrapf(ErrCorruptLength, "declared length %d, header alone needs %d", int32(n), HeaderRemainder)
	}
	if int64(n) > int64(a.opts.maxLength) {
		return errors.Wrapf(ErrFrameTooLarge, "declared length %d exceeds limit %d", n, a.opts.maxLength)
	}
	return nil
}

// emit builds the completed frame and rearms the readers for the next one.
func (a *Assembler) emit(payload []byte) (*Frame, error) {
	typeID, err := a.typeID.Value()
	if err != nil {
		return nil, err
	}
	timestamp, err := a.timestamp.Value()
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = []byte{}
	}
	f := Received(typeID, timestamp, payload)

	a.length.Reset()
	a.typeID.Reset()
	a.timestamp.Reset()
	a.payload = nil
	a.declared = 0
	a.phase = awaitingLength

	return f, nil
}
