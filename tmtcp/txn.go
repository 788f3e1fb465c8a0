// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"context"
	"sync"

	"code.hybscloud.com/mtcp"
)

// Txn is one transaction context on a connection: the queue of payloads
// received for its id and the means to send in it.
type Txn struct {
	id TxnID
	d  *Demux

	mu     sync.Mutex
	seq    uint64   // messages routed to this transaction
	queue  [][]byte // received, not yet consumed
	ready  chan struct{}
	done   chan struct{} // closed once closed or torn down
	err    error
	closed bool
}

func newTxn(d *Demux, id TxnID) *Txn {
	return &Txn{id: id, d: d, ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// ID returns the transaction id.
func (t *Txn) ID() TxnID { return t.id }

// Seq returns how many messages have been routed to t so far.
func (t *Txn) Seq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Send sends payload in this transaction. It needs a Txn that belongs to a
// Conn; a standalone Demux has no send path.
func (t *Txn) Send(payload []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrTxnClosed
	}
	if t.d.send == nil {
		return 0, mtcp.ErrInvalidArgument
	}
	return t.d.send(t.id, payload)
}

// Recv returns the next payload received in this transaction, in the order
// sent by the peer. It waits until one arrives, the transaction is closed
// (ErrTxnClosed once the queue is drained), the connection ends (its
// terminal error) or ctx is done. Concurrent Recv calls each take a
// different payload; all of them return once t ends.
func (t *Txn) Recv(ctx context.Context) ([]byte, error) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			p := t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
			more := len(t.queue) > 0
			t.mu.Unlock()
			if more {
				// pass the token on to another waiter
				t.wake()
			}
			return p, nil
		}
		if t.err != nil {
			err := t.err
			t.mu.Unlock()
			return nil, err
		}
		t.mu.Unlock()

		select {
		case <-t.ready:
		case <-t.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close ends the transaction locally and frees its id for reuse. Payloads
// already queued can still be drained with Recv.
func (t *Txn) Close() error {
	if !t.fail(ErrTxnClosed) {
		return nil
	}
	t.d.remove(t)
	return nil
}

// push queues a received payload.
func (t *Txn) push(p []byte) {
	t.mu.Lock()
	if !t.closed {
		t.queue = append(t.queue, p)
	}
	t.mu.Unlock()
	t.wake()
}

// fail closes t with err; it reports whether t was still open.
func (t *Txn) fail(err error) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	t.err = err
	close(t.done)
	t.mu.Unlock()
	return true
}

func (t *Txn) wake() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}
