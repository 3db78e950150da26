package simwire

import (
	"time"

	"github.com/Zereker/simwire/message"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	registry *message.Registry
	clock    func() int64
	logger   Logger
	metrics  *Metrics

	onMessage func(m message.Message) error
	// onError is called when an I/O error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	// Stream errors always close the connection.
	onError func(error) ErrorAction

	bufferSize     int           // size of buffered send channel
	maxFrameLength int           // maximum value of a frame's length field
	readBufferSize int           // bytes requested per socket read
	readRate       int64         // bytes per second, 0 means unlimited
	heartbeat      time.Duration // read/write deadline is heartbeat * 2
}

// Option is a function that configures connection options.
type Option func(*options)

// RegistryOption sets the message registry used to encode and decode frames.
// It is required, and both peers must use equivalent registries.
func RegistryOption(r *message.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// ClockOption sets the timestamp source for outgoing frames, in Unix
// milliseconds.
func ClockOption(clock func() int64) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more messages to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// This determines the read/write deadline timeout (heartbeat * 2).
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MaxFrameSizeOption sets the largest frame length accepted from the peer.
// A larger frame is a stream error and closes the connection.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameLength = size
	}
}

// ReadBufferSizeOption sets how many bytes are requested from the socket per
// read. Frames may span any number of reads.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// ReadRateOption caps the ingress of a connection to bytesPerSec.
func ReadRateOption(bytesPerSec int64) Option {
	return func(o *options) {
		o.readRate = bytesPerSec
	}
}

// OnErrorOption returns an Option that sets the I/O error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// It is invoked for each decoded message, in arrival order.
func OnMessageOption(cb func(message.Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption attaches Prometheus collectors to the connection.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
