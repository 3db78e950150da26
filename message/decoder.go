package message

import (
	"github.com/Zereker/simwire/frame"
)

// Decoder turns one connection's incoming byte chunks into messages. It owns
// its Assembler and must not be shared between connections or goroutines.
type Decoder struct {
	codec     *Codec
	assembler *frame.Assembler
	err       error
}

// NewDecoder returns a Decoder for a single connection.
func (c *Codec) NewDecoder(opt ...frame.AssemblerOption) *Decoder {
	return &Decoder{
		codec:     c,
		assembler: frame.NewAssembler(opt...),
	}
}

// Feed consumes chunk and returns the messages it completes, in arrival
// order. Any error is a StreamError: messages decoded before the failure are
// returned with it, and every later call returns the same error.
func (d *Decoder) Feed(chunk []byte) ([]Message, error) {
	if d.err != nil {
		return nil, d.err
	}

	frames, err := d.assembler.Feed(chunk)

	msgs := make([]Message, 0, len(frames))
	for _, f := range frames {
		m, decodeErr := d.codec.Decode(f)
		if decodeErr != nil {
			d.err = decodeErr
			return msgs, d.err
		}
		msgs = append(msgs, m)
	}

	if err != nil {
		d.err = streamError(err)
		return msgs, d.err
	}

	return msgs, nil
}

// Buffered reports whether a partial frame is waiting for more bytes.
func (d *Decoder) Buffered() bool {
	return d.assembler.Buffered()
}

// Err returns the error that stopped the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}
