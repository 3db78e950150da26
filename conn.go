// Package simwire carries framed simulation messages over TCP.
// Every connection owns a frame assembler fed with whatever chunks the
// socket returns, so frames may arrive split or batched in any way. It
// supports asynchronous writes, idle deadlines and per-connection ingress
// throttling.
package simwire

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/simwire/frame"
	"github.com/Zereker/simwire/message"
)

// Errors returned by connection operations.
var (
	// ErrInvalidRegistry is returned when no message registry is provided.
	ErrInvalidRegistry = errors.New("invalid message registry")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Conn is one framed TCP connection. Incoming bytes are fed to the
// connection's own decoder; outgoing messages are encoded by the caller's
// goroutine and written by the write loop.
type Conn struct {
	id      uint64
	rawConn *net.TCPConn
	reader  io.Reader
	codec   *message.Codec
	decoder *message.Decoder
	logger  Logger
	metrics *Metrics

	opts options

	sendMsg chan []byte
	closed  atomic.Bool
	done    chan struct{} // closed by Close, stops Run
}

// Default configuration values.
const (
	// defaultBufferSize is the default size of the message channel buffer.
	defaultBufferSize = 1
	// defaultReadBufferSize is the default number of bytes per socket read.
	defaultReadBufferSize = 4096
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = time.Second * 30
)

// NewConn creates a new connection wrapper around the given TCP connection.
// It applies the provided options and validates them before returning.
// Returns an error if required options (registry, onMessage) are missing.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// Dial connects to addr and returns a client connection. Run must be called
// to start exchanging messages.
func Dial(ctx context.Context, addr string, opt ...Option) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	tcp := raw.(*net.TCPConn)
	_ = tcp.SetNoDelay(true)

	conn, err := NewConn(tcp, opt...)
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}

	return conn, nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.registry == nil {
		return ErrInvalidRegistry
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	setDefaults(opts)

	return nil
}

// setDefaults fills every optional field that was left unset.
func setDefaults(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxFrameLength <= 0 {
		opts.maxFrameLength = frame.DefaultMaxLength
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

func (o options) codecOptions() []message.CodecOption {
	if o.clock == nil {
		return nil
	}
	return []message.CodecOption{message.WithClock(o.clock)}
}

// newConnWithOptions creates a new Conn with the given options.
func newConnWithOptions(c *net.TCPConn, opts options) *Conn {
	codec := message.NewCodec(opts.registry, opts.codecOptions()...)

	var reader io.Reader = c
	if opts.readRate > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(opts.readRate), opts.readRate)
		reader = ratelimit.Reader(c, bucket)
	}

	return &Conn{
		rawConn: c,
		reader:  reader,
		codec:   codec,
		decoder: codec.NewDecoder(frame.MaxLength(opts.maxFrameLength)),
		logger:  loggerWith(opts.logger, "remote_addr", c.RemoteAddr().String()),
		metrics: opts.metrics,
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
		done:    make(chan struct{}),
	}
}

// ID returns the identifier the server assigned to the connection, or 0 for
// dialed connections.
func (c *Conn) ID() uint64 {
	return c.id
}

// Run starts the connection's read and write loops.
// It blocks until an error occurs or the context is canceled.
// The connection is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established")
	c.logger.Debug("connection options",
		"buffer_size", c.opts.bufferSize,
		"max_frame_length", c.opts.maxFrameLength,
		"read_buffer_size", c.opts.readBufferSize,
		"read_rate", c.opts.readRate,
		"heartbeat", c.opts.heartbeat)

	c.metrics.connOpened()
	defer c.metrics.connClosed()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// Unblock a pending read once either loop stops.
	group.Go(func() error {
		select {
		case <-child.Done():
		case <-c.done:
			cancel()
		}
		_ = c.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if c.decoder.Buffered() {
		c.logger.Debug("connection closed with a partial frame pending")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed")
	}

	return err
}

// Close gracefully closes the connection.
// It stops Run and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	close(c.done)
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ErrBufferFull is returned when the send buffer is full and cannot accept more messages.
// This error indicates backpressure - the receiver is not consuming messages fast enough.
var ErrBufferFull = errors.New("send buffer full")

// Write encodes m and queues it without blocking.
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - encoding error: m is not registered or failed to write its fields
func (c *Conn) Write(m message.Message) error {
	data, err := c.encode(m)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking encodes m and waits until it is queued or ctx is done.
func (c *Conn) WriteBlocking(ctx context.Context, m message.Message) error {
	data, err := c.encode(m)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout encodes m and waits up to timeout for room in the send
// buffer, returning ErrBufferFull when none frees up.
func (c *Conn) WriteTimeout(m message.Message, timeout time.Duration) error {
	data, err := c.encode(m)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- data:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

func (c *Conn) encode(m message.Message) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return c.codec.Encode(m)
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop feeds socket chunks to the decoder and hands every decoded
// message to the message handler. Stream errors end the loop regardless of
// the error callback.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, c.opts.readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))

		// A cancel that raced the line above had its deadline overwritten.
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.reader.Read(buf)
		if n > 0 {
			if feedErr := c.feed(buf[:n]); feedErr != nil {
				return feedErr
			}
		}

		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, io.EOF) {
			if c.decoder.Buffered() {
				return errors.Wrap(io.ErrUnexpectedEOF, "peer closed mid-frame")
			}
			return err
		}

		c.logger.Debug("read error", "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}
}

// feed decodes one chunk and dispatches the resulting messages.
func (c *Conn) feed(chunk []byte) error {
	msgs, err := c.decoder.Feed(chunk)
	c.metrics.received(len(chunk), len(msgs))

	for _, m := range msgs {
		if handlerErr := c.opts.onMessage(m); handlerErr != nil {
			return handlerErr
		}
	}

	if err != nil {
		c.metrics.streamError()
		c.logger.Warn("corrupt stream", "error", err)
		return err
	}

	return nil
}

// writeLoop continuously sends messages from the send channel to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

// write sends data to the connection with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	n, err := c.rawConn.Write(data)
	if err != nil {
		c.logger.Debug("write error", "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
		return nil
	}

	c.metrics.sent(n)

	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	_ = c.rawConn.Close()
}
