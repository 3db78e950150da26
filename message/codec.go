// Package message maps typed application messages onto frames. A Registry
// assigns every message type a wire identifier, a Codec writes and reads
// message fields through frames, and a Decoder rebuilds messages from a
// chunked byte stream.
package message

import (
	"bytes"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/simwire/frame"
)

// Message is implemented by every type carried over the wire. Fields must be
// read back in exactly the order and with exactly the types they were
// written.
type Message interface {
	// MarshalFrame writes the message fields into f.
	MarshalFrame(f *frame.Frame)
	// UnmarshalFrame reads the message fields from f. Read failures are
	// collected by the frame and checked by the caller.
	UnmarshalFrame(f *frame.Frame)
}

// ErrTrailingBytes is returned when a message leaves payload bytes unread,
// which means the peers disagree about its field layout.
var ErrTrailingBytes = errors.New("message: unread payload bytes")

// StreamError marks a failure that makes the rest of a connection's byte
// stream untrustworthy. The connection must be closed.
type StreamError struct {
	err error
}

func (e *StreamError) Error() string { return "stream: " + e.err.Error() }

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error { return e.err }

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *StreamError) Cause() error { return e.err }

// IsStreamError reports whether err ends the connection it came from.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

func streamError(err error) error {
	if err == nil || IsStreamError(err) {
		return err
	}
	return &StreamError{err: err}
}

type codecOptions struct {
	clock     func() int64
	separator frame.Separator
}

// CodecOption configures a Codec.
type CodecOption func(*codecOptions)

// WithClock sets the source of frame timestamps, in Unix milliseconds.
func WithClock(clock func() int64) CodecOption {
	return func(o *codecOptions) {
		o.clock = clock
	}
}

// WithSeparator sets how finalized frames are turned into wire bytes.
func WithSeparator(s frame.Separator) CodecOption {
	return func(o *codecOptions) {
		o.separator = s
	}
}

func unixMilli() int64 {
	return time.Now().UnixMilli()
}

// Codec encodes and decodes registered messages. It holds no per-connection
// state and is safe for concurrent use once its registry is populated.
type Codec struct {
	registry *Registry
	opts     codecOptions
}

// NewCodec returns a Codec resolving message types through registry.
func NewCodec(registry *Registry, opt ...CodecOption) *Codec {
	var opts codecOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.clock == nil {
		opts.clock = unixMilli
	}
	if opts.separator == nil {
		opts.separator = frame.StreamSeparator{}
	}

	return &Codec{registry: registry, opts: opts}
}

// Registry returns the registry the codec resolves types with.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// EncodeFrame writes m into a new finalized frame.
func (c *Codec) EncodeFrame(m Message) (*frame.Frame, error) {
	if isNilPointer(m) {
		return nil, errors.Wrapf(ErrInvalidType, "encode nil %T", m)
	}

	id, err := c.registry.IDOf(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode")
	}

	f := frame.New(id, c.opts.clock())
	m.MarshalFrame(f)
	if err = f.UpdateHeader(); err != nil {
		return nil, errors.Wrapf(err, "encode id %d", id)
	}

	return f, nil
}

// Encode returns the wire bytes of m.
func (c *Codec) Encode(m Message) ([]byte, error) {
	f, err := c.EncodeFrame(m)
	if err != nil {
		return nil, err
	}

	regions, err := c.opts.separator.Separate(f)
	if err != nil {
		return nil, errors.Wrapf(err, "encode id %d", f.TypeID())
	}

	if len(regions) == 1 {
		return regions[0], nil
	}
	return bytes.Join(regions, nil), nil
}

// Decode builds the message carried by f. Every failure is a StreamError:
// an unknown identifier or a field mismatch means the peers disagree about
// the protocol.
func (c *Codec) Decode(f *frame.Frame) (Message, error) {
	m, err := c.registry.New(f.TypeID())
	if err != nil {
		return nil, streamError(errors.Wrap(err, "decode"))
	}

	m.UnmarshalFrame(f)
	if err = f.Err(); err != nil {
		return nil, streamError(errors.Wrapf(err, "decode id %d", f.TypeID()))
	}
	if n := f.Remaining(); n != 0 {
		return nil, streamError(errors.Wrapf(ErrTrailingBytes, "decode id %d: %d bytes left", f.TypeID(), n))
	}

	return m, nil
}

// isNilPointer reports whether m holds a typed nil pointer.
func isNilPointer(m Message) bool {
	if m == nil {
		return false
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
