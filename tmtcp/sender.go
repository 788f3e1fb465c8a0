// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"io"

	"code.hybscloud.com/mtcp"
)

// Sender sends messages tagged with a transaction id. It holds the send
// side State of one connection and is not safe for concurrent use.
type Sender struct {
	st  *mtcp.State
	err error // sticky transport failure

	// envelope of the in-flight message, built once per message
	buf  []byte
	id   TxnID
	plen int
}

// NewSender returns a Sender writing to w.
func NewSender(w io.Writer, opts ...mtcp.Option) *Sender {
	return &Sender{st: mtcp.NewSendState(w, opts...)}
}

// SendInTransaction prepends id to payload and sends the result as one MTCP
// message. Resumption and error semantics are those of
// mtcp.State.SendMessage: after (n, mtcp.ErrWouldBlock) the caller repeats
// the call with the same id and payload.
//
// n counts application payload bytes only; neither the length prefix nor
// the id is included. A transport error may leave a partial message on the
// stream, so every later call returns it again.
func (s *Sender) SendInTransaction(id TxnID, payload []byte) (n int, err error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.st.Phase() == mtcp.Idle {
		s.buf = EncodeEnvelope(s.buf[:0], id, payload)
		s.id = id
		s.plen = len(payload)
	} else if s.id != id || s.plen != len(payload) {
		return 0, mtcp.ErrInvalidArgument
	}

	wn, err := s.st.SendMessage(s.buf)
	if wn -= IDLen; wn < 0 {
		wn = 0
	}
	switch mtcp.Classify(err) {
	case mtcp.OutcomeOK:
		s.st.Reset()
	case mtcp.OutcomeRetry:
	default:
		if s.st.Phase() == mtcp.Complete {
			s.err = err
		} else {
			s.st.Reset()
		}
	}
	return wn, err
}

// Blocking reports whether the underlying stream is in blocking mode.
func (s *Sender) Blocking() bool {
	return s.st.Blocking()
}
