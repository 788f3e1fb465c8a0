// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"io"
	"sync"
)

// Conn carries messages over one stream for a peer that runs a single
// exchange per connection, so no transaction identity is needed on the wire.
//
// Sends are serialized by one writer lock and receives by one reader lock;
// a send and a receive may run concurrently. Each direction owns its State,
// which Conn resets after every finished message.
type Conn struct {
	stream io.ReadWriter

	wmu sync.Mutex
	w   *Writer

	rmu sync.Mutex
	r   *Reader
}

// NewConn wraps stream. The stream must already be connected; its blocking
// mode is whatever the caller configured.
func NewConn(stream io.ReadWriter, opts ...Option) *Conn {
	return &Conn{
		stream: stream,
		w:      NewWriter(stream, opts...),
		r:      NewReader(stream, opts...),
	}
}

// SendMessage sends p as one message. See State.SendMessage.
func (c *Conn) SendMessage(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.Write(p)
}

// ReceiveMessage receives one message into buf. See State.ReceiveMessage.
// After a size violation every later call returns ErrDesynchronized.
func (c *Conn) ReceiveMessage(buf []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return c.r.Read(buf)
}

// Blocking reports whether the underlying stream is in blocking mode.
func (c *Conn) Blocking() bool {
	return c.r.st.Blocking()
}

// Close closes the underlying stream if it is an io.Closer.
func (c *Conn) Close() error {
	if cl, ok := c.stream.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
