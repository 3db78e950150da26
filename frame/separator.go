package frame

// Separator turns a finalized frame into the byte regions handed to the
// transport. Concatenated in order, the regions form the frame's wire bytes.
type Separator interface {
	Separate(f *Frame) ([][]byte, error)
}

// StreamSeparator is the Separator for byte-stream transports such as TCP.
// It always yields a single region.
type StreamSeparator struct{}

// Separate implements Separator.
func (StreamSeparator) Separate(f *Frame) ([][]byte, error) {
	b, err := Serialize(f)
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

// Serialize returns the wire bytes of a finalized frame. The returned slice
// aliases the frame's buffer and must not be modified.
func Serialize(f *Frame) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.state != finalized {
		return nil, ErrNotFinalized
	}
	return f.buf, nil
}
