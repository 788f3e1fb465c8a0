// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"io"
)

// Forwarder relays messages from a source stream to a destination stream
// while preserving message boundaries, e.g. a local proxy passing messages
// between an application and a remote peer.
//
// Semantics:
//   - One call to ForwardOnce processes at most one message.
//   - Two-phase state machine per message:
//     1) Receive a whole message from src into an internal buffer
//     (may return early with partial progress and ErrWouldBlock or ErrMore).
//     2) Send that same payload as exactly one message to dst
//     (may return early with partial progress and ErrWouldBlock or ErrMore).
//   - Returns (n, nil) when a whole message of n payload bytes has been
//     forwarded to dst.
//   - Returns (n, ErrWouldBlock|ErrMore) when the current phase is incomplete;
//     n is the progress of that phase.
//
// Limits and buffer sizing:
//   - The internal payload buffer is allocated during construction based on
//     WithReadLimit. If ReadLimit is zero, 64KiB is used.
//   - A message larger than the buffer fails with ErrTooLong; the source
//     stream is desynchronized afterwards and further calls return
//     ErrDesynchronized.
//
// Retry rule:
//   - On ErrWouldBlock or ErrMore, the caller must retry ForwardOnce on the SAME
//     Forwarder instance to complete the in-flight message.
type Forwarder struct {
	rs *State // receive side, bound to src
	ws *State // send side, bound to dst

	// Internal payload buffer reused across messages.
	buf []byte

	// Per-message state.
	need  int   // payload length of the current message
	state uint8 // 0: receive, 1: send
	err   error // sticky failure
}

// NewForwarder constructs a Forwarder that relays messages from src to dst.
func NewForwarder(dst io.Writer, src io.Reader, opts ...Option) *Forwarder {
	rs := NewRecvState(src, opts...)
	ws := NewSendState(dst, opts...)
	capHint := int(rs.readLimit)
	if capHint <= 0 {
		capHint = defaultScratchLen
	}
	return &Forwarder{rs: rs, ws: ws, buf: make([]byte, capHint)}
}

// ForwardOnce forwards at most one message. See Forwarder docs for semantics.
func (f *Forwarder) ForwardOnce() (n int, err error) {
	if f.err != nil {
		return 0, f.err
	}

	// Phase 0: receive a whole message.
	if f.state == 0 {
		rn, re := f.rs.ReceiveMessage(f.buf)
		switch Classify(re) {
		case OutcomeOK:
			f.rs.Reset()
			f.need = rn
			f.state = 1
		case OutcomeRetry:
			return rn, re
		case OutcomeClosed:
			f.rs.Reset()
			return 0, re
		case OutcomeSizeViolation:
			f.err = ErrDesynchronized
			return 0, re
		default:
			if f.rs.Phase() == Complete {
				f.err = re
			}
			return 0, re
		}
	}

	// Phase 1: send the payload as one message.
	wn, we := f.ws.SendMessage(f.buf[:f.need])
	if we != nil {
		if Classify(we) != OutcomeRetry && f.ws.Phase() == Complete {
			f.err = we
		}
		return wn, we
	}
	f.ws.Reset()
	f.state = 0
	f.need = 0
	return wn, nil
}
