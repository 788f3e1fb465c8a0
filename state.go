// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"io"
	"time"
)

// PrefixLen is the size of the big-endian length field preceding every message.
const PrefixLen = 4

// MaxPayloadLen is the largest payload the 4-octet prefix can announce.
const MaxPayloadLen = 1<<32 - 1

// Phase is the position of a State in its per-message state machine.
type Phase uint8

const (
	// Idle is the only valid starting phase; a fresh or Reset State is Idle.
	Idle Phase = iota
	// PrefixPending means the 4-octet length prefix is partially transferred.
	PrefixPending
	// PayloadPending means the prefix is resolved and payload bytes remain.
	PayloadPending
	// Complete is terminal: the message finished or failed unrecoverably.
	Complete
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PrefixPending:
		return "prefix-pending"
	case PayloadPending:
		return "payload-pending"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// BlockingModer is implemented by streams that know whether they are in
// blocking mode. The framing layer never changes the mode; it only asks.
type BlockingModer interface {
	Blocking() bool
}

type direction uint8

const (
	dirSend direction = iota + 1
	dirRecv
)

// State is the resumable progress record of one message in one direction.
//
// A State is created with NewSendState or NewRecvState, passed unchanged to
// every resumption call for the same message, and Reset before the next
// message. It is not safe for concurrent use: concurrent operations need
// their own States, and at most one send and one receive may be in flight
// per stream.
type State struct {
	rd  io.Reader
	wr  io.Writer
	dir direction

	readLimit           int64
	retryDelay          time.Duration
	timeoutAsWouldBlock bool

	// per-message progress
	phase   Phase
	prefix  [PrefixLen]byte
	prefixN int
	length  int64 // payload length of the current message
	offset  int64 // payload bytes transferred so far
}

// NewSendState returns an Idle State that sends messages to w.
func NewSendState(w io.Writer, opts ...Option) *State {
	s := newState(opts...)
	s.wr = w
	s.dir = dirSend
	return s
}

// NewRecvState returns an Idle State that receives messages from r.
func NewRecvState(r io.Reader, opts ...Option) *State {
	s := newState(opts...)
	s.rd = r
	s.dir = dirRecv
	return s
}

func newState(opts ...Option) *State {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &State{
		readLimit:           int64(o.ReadLimit),
		retryDelay:          o.RetryDelay,
		timeoutAsWouldBlock: o.TimeoutAsWouldBlock,
	}
}

// Reset discards all per-message progress and returns the State to Idle.
// The bound stream and options are kept.
func (s *State) Reset() {
	s.phase = Idle
	s.prefix = [PrefixLen]byte{}
	s.prefixN = 0
	s.length = 0
	s.offset = 0
}

// Phase reports the current phase.
func (s *State) Phase() Phase { return s.phase }

// Len reports the payload length of the current message. It is known once
// the phase has reached PayloadPending.
func (s *State) Len() int { return int(s.length) }

// Transferred reports how many payload bytes of the current message have
// been transferred so far.
func (s *State) Transferred() int { return int(s.offset) }

// Blocking reports whether the stream bound to s operates in blocking mode.
// A stream implementing BlockingModer answers for itself; otherwise the
// retry policy decides (WithNonblock and WithTimeoutAsWouldBlock mean
// non-blocking).
func (s *State) Blocking() bool {
	var stream any
	switch s.dir {
	case dirSend:
		stream = s.wr
	case dirRecv:
		stream = s.rd
	}
	if m, ok := stream.(BlockingModer); ok {
		return m.Blocking()
	}
	return s.retryDelay >= 0
}
