// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"io"
	"sync"

	"code.hybscloud.com/mtcp"
)

// DefaultMaxMessageSize is the largest application payload accepted when
// none is configured.
const DefaultMaxMessageSize = 1024 * 1024

// Demux routes the messages of one connection to their transactions.
//
// The receive path (ReceiveDemultiplexed, Deliver) is serialized by its own
// lock, since only one message can be in flight on a stream. The
// id-to-transaction table has a second, short-held lock so transactions can
// be opened and closed while a receive is waiting on the stream.
type Demux struct {
	rmu  sync.Mutex // receive path: st, buf, rerr
	st   *mtcp.State
	buf  []byte
	rerr error

	mu     sync.Mutex // txns, closed
	txns   map[TxnID]*Txn
	closed bool
	err    error

	send    func(TxnID, []byte) (int, error)
	onOpen  func(*Txn)
	metrics *Metrics
}

// NewDemux returns a Demux reading from r. Messages whose payload exceeds
// maxMessageSize (DefaultMaxMessageSize when <= 0) are size violations.
func NewDemux(r io.Reader, maxMessageSize int, opts ...mtcp.Option) *Demux {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Demux{
		st:   mtcp.NewRecvState(r, opts...),
		buf:  make([]byte, IDLen+maxMessageSize),
		txns: make(map[TxnID]*Txn),
	}
}

// OnOpen registers fn to be called, on the receive path, for every
// transaction opened implicitly by the peer.
func (d *Demux) OnOpen(fn func(*Txn)) {
	d.onOpen = fn
}

// ReceiveDemultiplexed receives one message, strips its transaction id and
// routes it to the transaction already open under that id, opening a new
// one when the id has not been seen. The returned payload is a copy owned
// by the caller; it is not queued on the transaction.
//
// Errors follow mtcp.State.ReceiveMessage. A size violation or transport
// failure is sticky: the stream cannot be realigned, so every later call
// returns the same condition. ErrShortEnvelope leaves the stream aligned.
func (d *Demux) ReceiveDemultiplexed() (*Txn, []byte, error) {
	d.rmu.Lock()
	defer d.rmu.Unlock()

	if d.rerr != nil {
		return nil, nil, d.rerr
	}
	n, err := d.st.ReceiveMessage(d.buf)
	switch mtcp.Classify(err) {
	case mtcp.OutcomeOK:
		d.st.Reset()
	case mtcp.OutcomeRetry:
		return nil, nil, err
	case mtcp.OutcomeSizeViolation:
		d.metrics.sizeViolation()
		d.rerr = mtcp.ErrDesynchronized
		return nil, nil, err
	default:
		if d.st.Phase() == mtcp.Complete {
			d.rerr = err
		}
		return nil, nil, err
	}

	id, payload, err := DecodeEnvelope(d.buf[:n])
	if err != nil {
		return nil, nil, err
	}
	t, err := d.route(id)
	if err != nil {
		return nil, nil, err
	}
	d.metrics.messageReceived()

	out := make([]byte, len(payload))
	copy(out, payload)
	return t, out, nil
}

// Deliver receives messages and queues each payload on its transaction
// until the stream stops. It returns the condition that stopped it; a
// retry-needed condition leaves everything open so Deliver can be called
// again, anything else tears down every transaction.
func (d *Demux) Deliver() error {
	for {
		t, p, err := d.ReceiveDemultiplexed()
		if err != nil {
			if mtcp.Classify(err) != mtcp.OutcomeRetry {
				d.Close(err)
			}
			return err
		}
		t.push(p)
	}
}

func (d *Demux) route(id TxnID) (*Txn, error) {
	d.mu.Lock()
	if d.closed {
		err := d.err
		d.mu.Unlock()
		return nil, err
	}
	t, ok := d.txns[id]
	if !ok {
		t = newTxn(d, id)
		d.txns[id] = t
		d.metrics.txnOpened()
	}
	d.mu.Unlock()

	t.mu.Lock()
	t.seq++
	t.mu.Unlock()

	if !ok && d.onOpen != nil {
		d.onOpen(t)
	}
	return t, nil
}

// Open registers a transaction opened by this side under id.
func (d *Demux) Open(id TxnID) (*Txn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, d.err
	}
	if _, ok := d.txns[id]; ok {
		return nil, ErrTxnInUse
	}
	t := newTxn(d, id)
	d.txns[id] = t
	d.metrics.txnOpened()
	return t, nil
}

// Lookup returns the open transaction with id, if any.
func (d *Demux) Lookup(id TxnID) (*Txn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.txns[id]
	return t, ok
}

// Len returns the number of open transactions.
func (d *Demux) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.txns)
}

func (d *Demux) remove(t *Txn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.txns[t.id]; ok && cur == t {
		delete(d.txns, t.id)
		d.metrics.txnClosed()
	}
}

// Close tears down every transaction with err (ErrConnClosed when nil);
// their Recv calls return err once drained. Later opens fail with err.
func (d *Demux) Close(err error) {
	if err == nil {
		err = ErrConnClosed
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.err = err
	txns := d.txns
	d.txns = make(map[TxnID]*Txn)
	d.mu.Unlock()

	for _, t := range txns {
		t.fail(err)
		d.metrics.txnClosed()
	}
}
