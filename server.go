package simwire

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/Zereker/simwire/message"
)

// Handler receives the messages of every connection accepted by a Server.
// Calls for one connection are sequential and in arrival order; calls for
// different connections run concurrently.
type Handler interface {
	// OnMessage is called for each message decoded from conn. A non-nil
	// error closes conn.
	OnMessage(conn *Conn, m message.Message) error
}

// OpenHandler is implemented by handlers that want to know about new
// connections before their first message.
type OpenHandler interface {
	OnOpen(conn *Conn)
}

// CloseHandler is implemented by handlers that want to know when a
// connection stopped, and why.
type CloseHandler interface {
	OnClose(conn *Conn, err error)
}

// Server represents a TCP server that listens for incoming connections.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	connOpts        []Option

	nextID atomic.Uint64

	mu          sync.Mutex
	shutdown    bool
	conns       map[uint64]*Conn
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, running connections keep going for up to
// this duration before they are stopped together with the accept loop.
// Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// ServerConnOptions sets the options applied to every accepted connection.
// They must include RegistryOption. OnMessageOption is overridden by the
// handler passed to Serve.
func ServerConnOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener:    listener,
		logger:      slog.Default(),
		conns:       make(map[uint64]*Conn),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts connections and runs each of them until it fails or ctx is
// canceled, dispatching decoded messages to handler.
// It blocks until the context is canceled or an unrecoverable error occurs.
// If ServerShutdownTimeoutOption is set, the server waits up to the specified
// duration before stopping. Call Close() to bypass the timeout and shut down
// immediately.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	// Connections outlive ctx until the shutdown timeout has passed.
	connCtx, stopConns := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConns()

	// Start a goroutine to handle context cancellation
	go func() {
		<-ctx.Done()
		defer stopConns()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
				// Timeout expired, proceed with shutdown
			case <-s.shutdownNow:
				// Close() was called, skip remaining timeout
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		raw, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			// Check if it's a temporary error
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", raw.RemoteAddr())
		_ = raw.SetNoDelay(true)

		conn, err := s.newConn(raw, handler)
		if err != nil {
			s.logger.Error("rejecting connection", "remote_addr", raw.RemoteAddr(), "error", err)
			_ = raw.Close()
			continue
		}

		go s.run(connCtx, conn, handler)
	}
}

// newConn builds and tracks the Conn for an accepted socket.
func (s *Server) newConn(raw *net.TCPConn, handler Handler) (*Conn, error) {
	var conn *Conn
	onMessage := OnMessageOption(func(m message.Message) error {
		return handler.OnMessage(conn, m)
	})

	opts := append(append([]Option(nil), s.connOpts...), onMessage)
	conn, err := NewConn(raw, opts...)
	if err != nil {
		return nil, err
	}

	conn.id = s.nextID.Add(1)
	conn.logger = loggerWith(conn.logger, "conn_id", conn.id)

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()

	return conn, nil
}

func (s *Server) run(ctx context.Context, conn *Conn, handler Handler) {
	if h, ok := handler.(OpenHandler); ok {
		h.OnOpen(conn)
	}

	err := conn.Run(ctx)

	s.mu.Lock()
	delete(s.conns, conn.id)
	s.mu.Unlock()

	if h, ok := handler.(CloseHandler); ok {
		h.OnClose(conn, err)
	}
}

// Conns returns a snapshot of the running connections.
func (s *Server) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast queues m on every running connection except the one with id
// skip (0 skips none). Connections whose buffer is full miss the message;
// their errors are returned together.
func (s *Server) Broadcast(m message.Message, skip uint64) error {
	var result *multierror.Error
	for _, c := range s.Conns() {
		if c.id == skip {
			continue
		}
		if err := c.Write(m); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "conn %d", c.id))
		}
	}
	return result.ErrorOrNil()
}

// Close stops the server by closing the underlying listener and every
// running connection.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked Accept calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	// Signal to bypass any pending shutdown timeout
	select {
	case s.shutdownNow <- struct{}{}:
	default:
		// Channel already has a signal or no one is listening
	}

	var result *multierror.Error
	if err := s.listener.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close listener"))
	}
	for _, c := range s.Conns() {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close conn %d", c.id))
		}
	}

	return result.ErrorOrNil()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
