// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"context"
	"io"
	"sync"

	"code.hybscloud.com/mtcp"
)

// connOptions holds the configuration for a connection.
type connOptions struct {
	maxMessageSize int
	framing        []mtcp.Option
	metrics        *Metrics
	acceptBacklog  int
}

// ConnOption configures a Conn.
type ConnOption func(*connOptions)

// WithMaxMessageSize caps the application payload of received messages.
func WithMaxMessageSize(size int) ConnOption {
	return func(o *connOptions) { o.maxMessageSize = size }
}

// WithFraming passes options to the underlying MTCP States.
func WithFraming(opts ...mtcp.Option) ConnOption {
	return func(o *connOptions) { o.framing = append(o.framing, opts...) }
}

// WithMetrics records the connection's traffic in m.
func WithMetrics(m *Metrics) ConnOption {
	return func(o *connOptions) { o.metrics = m }
}

// WithAcceptBacklog sets how many peer-opened transactions may wait for
// Accept before the receive path stalls.
func WithAcceptBacklog(n int) ConnOption {
	return func(o *connOptions) { o.acceptBacklog = n }
}

// Conn multiplexes transactions over one stream in the goroutine-per-
// connection model: Serve runs the receive path, transactions are opened
// with Open (this side initiates) or Accept (the peer initiated), and each
// Txn is used from its own goroutine.
//
// The stream must be in blocking mode. For event-loop use drive a Sender and
// a Demux directly.
type Conn struct {
	stream io.ReadWriter

	wmu    sync.Mutex // one writer at a time
	sender *Sender

	demux   *Demux
	metrics *Metrics

	accepted  chan *Txn
	done      chan struct{}
	closeOnce sync.Once
	err       error // terminal condition, readable after done is closed
}

// NewConn wraps an established stream.
func NewConn(stream io.ReadWriter, opts ...ConnOption) *Conn {
	o := connOptions{acceptBacklog: 16}
	for _, fn := range opts {
		fn(&o)
	}

	c := &Conn{
		stream:   stream,
		sender:   NewSender(stream, o.framing...),
		demux:    NewDemux(stream, o.maxMessageSize, o.framing...),
		metrics:  o.metrics,
		accepted: make(chan *Txn, o.acceptBacklog),
		done:     make(chan struct{}),
	}
	c.demux.send = c.send
	c.demux.metrics = o.metrics
	c.demux.OnOpen(c.enqueueAccepted)
	return c
}

// Open starts a transaction under a fresh random id.
func (c *Conn) Open() (*Txn, error) {
	return c.OpenID(NewTxnID())
}

// OpenID starts a transaction under id. It fails with ErrTxnInUse while a
// transaction with the same id is open on this connection.
func (c *Conn) OpenID(id TxnID) (*Txn, error) {
	return c.demux.Open(id)
}

// Accept returns the next transaction opened by the peer.
func (c *Conn) Accept(ctx context.Context) (*Txn, error) {
	select {
	case t := <-c.accepted:
		return t, nil
	case <-c.done:
		return nil, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Serve runs the receive path until the stream ends, fails or ctx is done,
// queuing every received payload on its transaction. When it returns the
// connection is closed and every transaction torn down. A peer closing the
// stream between messages yields io.EOF.
func (c *Conn) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.shutdown(ctx.Err()) })
	defer stop()

	err := c.demux.Deliver()
	c.shutdown(err)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close closes the stream and tears down every transaction with
// ErrConnClosed. Safe to call multiple times.
func (c *Conn) Close() error {
	return c.shutdown(ErrConnClosed)
}

// Err returns the condition that ended the connection, or nil while open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Len returns the number of open transactions.
func (c *Conn) Len() int {
	return c.demux.Len()
}

func (c *Conn) shutdown(err error) (cerr error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = ErrConnClosed
		}
		c.err = err
		close(c.done)
		c.demux.Close(err)
		if cl, ok := c.stream.(io.Closer); ok {
			cerr = cl.Close()
		}
	})
	return
}

func (c *Conn) send(id TxnID, payload []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	select {
	case <-c.done:
		return 0, c.err
	default:
	}
	n, err := c.sender.SendInTransaction(id, payload)
	if err != nil {
		if o := mtcp.Classify(err); o != mtcp.OutcomeRetry && o != mtcp.OutcomeSizeViolation {
			// The stream lost its alignment mid-message.
			c.shutdown(err)
		}
		return n, err
	}
	c.metrics.messageSent()
	return n, nil
}

func (c *Conn) enqueueAccepted(t *Txn) {
	select {
	case c.accepted <- t:
	case <-c.done:
	}
}
