// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler serves one transaction opened by a peer. The transaction is
// closed when ServeTxn returns.
type Handler interface {
	ServeTxn(ctx context.Context, t *Txn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, t *Txn)

// ServeTxn calls f(ctx, t).
func (f HandlerFunc) ServeTxn(ctx context.Context, t *Txn) { f(ctx, t) }

// Server accepts stream connections and serves every transaction the peers
// open on them with a Handler.
type Server struct {
	listener    net.Listener
	handler     Handler
	logger      zerolog.Logger
	metrics     *Metrics
	connOpts    []ConnOption
	idleTimeout time.Duration

	mu       sync.Mutex
	shutdown bool
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// ServerMetricsOption records the traffic of every connection in m.
func ServerMetricsOption(m *Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// ServerConnOption applies opts to every accepted connection.
func ServerConnOption(opts ...ConnOption) ServerOption {
	return func(s *Server) { s.connOpts = append(s.connOpts, opts...) }
}

// ServerIdleTimeoutOption closes a connection when nothing arrives on it for
// d. Zero disables the timeout.
func ServerIdleTimeoutOption(d time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = d }
}

// NewServer returns a Server accepting from ln.
func NewServer(ln net.Listener, h Handler, opts ...ServerOption) *Server {
	s := &Server{
		listener: ln,
		handler:  h,
		logger:   zerolog.Nop(),
		conns:    make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections until ctx is done or Close is called, serving
// each on its own goroutine. It waits for open connections to wind down
// before returning. A failed Accept closes the server and is returned.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Stringer("addr", s.listener.Addr()).Msg("server started")

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closed() {
				s.logger.Info().Stringer("addr", s.listener.Addr()).Msg("server stopped")
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error().Err(err).Msg("accept error")
			_ = s.Close()
			return err
		}

		s.logger.Debug().Stringer("remote_addr", nc.RemoteAddr()).Msg("accepted connection")
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		s.metrics.connectionAccepted()

		var stream io.ReadWriteCloser = nc
		if s.idleTimeout > 0 {
			stream = &idleConn{Conn: nc, timeout: s.idleTimeout}
		}
		opts := append([]ConnOption{WithMetrics(s.metrics)}, s.connOpts...)
		c := NewConn(stream, opts...)
		if !s.track(c) {
			_ = c.Close()
			return ctx.Err()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serveConn(ctx, c, nc.RemoteAddr())
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, c *Conn, remote net.Addr) {
	log := s.logger.With().Stringer("remote_addr", remote).Logger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Serve(gctx)
	})
	g.Go(func() error {
		var hg sync.WaitGroup
		defer hg.Wait()
		for {
			t, err := c.Accept(gctx)
			if err != nil {
				return nil
			}
			log.Debug().Stringer("txn", t.ID()).Msg("transaction opened")
			hg.Add(1)
			go func() {
				defer hg.Done()
				defer t.Close()
				s.handler.ServeTxn(gctx, t)
			}()
		}
	})

	err := g.Wait()
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, ErrConnClosed), errors.Is(err, context.Canceled):
		log.Debug().Msg("connection closed")
	default:
		log.Warn().Err(err).Msg("connection failed")
	}
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	err := s.listener.Close()
	for c := range conns {
		_ = c.Close()
	}
	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// idleConn arms a read deadline before every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
