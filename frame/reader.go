package frame

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrIncompleteRead is returned when a field value is requested before all
// of its bytes have been fed.
var ErrIncompleteRead = errors.New("frame: incomplete read")

// fieldReader accumulates a fixed number of bytes across any number of Feed
// calls. Once remaining reaches zero the buffer is frozen until Reset.
type fieldReader struct {
	buf       []byte
	remaining int
}

func newFieldReader(size int) fieldReader {
	return fieldReader{buf: make([]byte, size), remaining: size}
}

// Feed copies as many bytes as are still missing from r, advancing r past
// them. It reports whether the field is now complete. Feeding a complete
// field is a no-op.
func (f *fieldReader) Feed(r *bytes.Reader) bool {
	if f.remaining == 0 {
		return true
	}

	// bytes.Reader copies min(len(p), r.Len()) and never blocks.
	n, _ := r.Read(f.buf[len(f.buf)-f.remaining:])
	f.remaining -= n

	return f.remaining == 0
}

// Done reports whether the field is complete.
func (f *fieldReader) Done() bool {
	return f.remaining == 0
}

// Reset makes the reader wait for a full field again.
func (f *fieldReader) Reset() {
	f.remaining = len(f.buf)
}

func (f *fieldReader) bytes() ([]byte, error) {
	if f.remaining != 0 {
		return nil, errors.Wrapf(ErrIncompleteRead, "%d of %d bytes missing", f.remaining, len(f.buf))
	}
	return f.buf, nil
}

// Uint32Reader reads one 4-byte big-endian integer.
type Uint32Reader struct {
	fieldReader
}

// NewUint32Reader returns a reader waiting for 4 bytes.
func NewUint32Reader() *Uint32Reader {
	return &Uint32Reader{newFieldReader(4)}
}

// Value returns the decoded integer.
func (r *Uint32Reader) Value() (uint32, error) {
	b, err := r.bytes()
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

// Int64Reader reads one 8-byte big-endian integer.
type Int64Reader struct {
	fieldReader
}

// NewInt64Reader returns a reader waiting for 8 bytes.
func NewInt64Reader() *Int64Reader {
	return &Int64Reader{newFieldReader(8)}
}

// Value returns the decoded integer.
func (r *Int64Reader) Value() (int64, error) {
	b, err := r.bytes()
	if err != nil {
		return 0, err
	}
	return int64(byteOrder.Uint64(b)), nil
}

// BlockReader reads a raw block whose size is known up front, typically
// computed from an already decoded length field.
type BlockReader struct {
	fieldReader
}

// NewBlockReader returns a reader waiting for size bytes.
func NewBlockReader(size int) *BlockReader {
	return &BlockReader{newFieldReader(size)}
}

// Value returns the accumulated block. The slice is owned by the reader
// until Reset is called or the reader is discarded.
func (r *BlockReader) Value() ([]byte, error) {
	return r.bytes()
}

// Len returns the target size of the block.
func (r *BlockReader) Len() int {
	return len(r.buf)
}
