package simwire

import (
	"sync"

	"github.com/Zereker/simwire/frame"
	"github.com/Zereker/simwire/message"
)

// Demux decodes chunks for many connections identified by number, for
// event-driven transports that deliver reads through a single callback.
// Every connection gets its own decoder, so partial frames never mix.
//
// Feed may be called concurrently for different connections, but calls for
// the same connection must be serialized by the caller.
type Demux struct {
	codec   *message.Codec
	logger  Logger
	metrics *Metrics
	limit   int

	mu       sync.Mutex
	decoders map[uint64]*message.Decoder
}

// NewDemux returns a Demux decoding with codec. Of the connection options it
// honors LoggerOption, MetricsOption and MaxFrameSizeOption.
func NewDemux(codec *message.Codec, opt ...Option) *Demux {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	setDefaults(&opts)

	return &Demux{
		codec:    codec,
		logger:   opts.logger,
		metrics:  opts.metrics,
		limit:    opts.maxFrameLength,
		decoders: make(map[uint64]*message.Decoder),
	}
}

// Feed consumes a chunk received on connection id and returns the messages
// it completes, in arrival order. A returned error is a stream error: the
// connection's state has been dropped and the caller must close it.
func (d *Demux) Feed(id uint64, chunk []byte) ([]message.Message, error) {
	dec := d.decoder(id)

	msgs, err := dec.Feed(chunk)
	d.metrics.received(len(chunk), len(msgs))

	if err != nil {
		d.Drop(id)
		d.metrics.streamError()
		d.logger.Warn("corrupt stream", "conn_id", id, "error", err)
	}

	return msgs, err
}

// Drop discards the state of connection id and reports whether a partial
// frame was pending.
func (d *Demux) Drop(id uint64) bool {
	d.mu.Lock()
	dec, ok := d.decoders[id]
	delete(d.decoders, id)
	d.mu.Unlock()

	return ok && dec.Buffered()
}

// Len returns the number of connections with decoder state.
func (d *Demux) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.decoders)
}

func (d *Demux) decoder(id uint64) *message.Decoder {
	d.mu.Lock()
	defer d.mu.Unlock()

	dec, ok := d.decoders[id]
	if !ok {
		dec = d.codec.NewDecoder(frame.MaxLength(d.limit))
		d.decoders[id] = dec
	}
	return dec
}
