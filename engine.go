// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"runtime"
	"time"
)

// SendMessage sends p as one message: a 4-octet big-endian length prefix
// followed by the payload.
//
// In blocking mode the call returns only when the whole message has been
// written or the stream failed. In non-blocking mode a would-block write
// returns (n, ErrWouldBlock) with the progress kept in s; the caller must call
// SendMessage again with the same s and the same p.
//
// n is the number of payload bytes of this message transferred so far; the
// prefix is never counted. On success n == len(p).
func (s *State) SendMessage(p []byte) (n int, err error) {
	if s.wr == nil || s.dir != dirSend {
		return 0, ErrInvalidArgument
	}

	switch s.phase {
	case Complete:
		return 0, ErrStateComplete
	case Idle:
		if int64(len(p)) > MaxPayloadLen {
			return 0, ErrTooLong
		}
		s.length = int64(len(p))
		binary.BigEndian.PutUint32(s.prefix[:], uint32(s.length))
		s.phase = PrefixPending
	}
	if s.length != int64(len(p)) {
		// The caller changed the message buffer mid-message.
		return int(s.offset), ErrInvalidArgument
	}

	for s.phase == PrefixPending {
		wn, we := s.writeOnce(s.prefix[s.prefixN:])
		s.prefixN += wn
		if s.prefixN == PrefixLen {
			s.phase = PayloadPending
		}
		if we != nil {
			return s.sendFailed(we)
		}
	}

	for s.phase == PayloadPending {
		if s.offset == s.length {
			s.phase = Complete
			break
		}
		wn, we := s.writeOnce(p[s.offset:])
		s.offset += int64(wn)
		if we != nil {
			return s.sendFailed(we)
		}
	}

	return int(s.offset), nil
}

// ReceiveMessage receives one message into buf. len(buf) is the buffer
// capacity.
//
// It resolves the 4-octet length prefix first, then reads exactly that many
// payload bytes into buf. Outcomes:
//   - (length, nil): the whole message is in buf[:length].
//   - (n, ErrWouldBlock): non-blocking mode, incomplete; call again with the
//     same s and buf. n counts payload bytes received so far.
//   - (0, ErrTooLong): the announced length exceeds len(buf) or the read
//     limit. buf is not written. The prefix has been consumed, so the stream
//     is no longer aligned on a message boundary.
//   - (0, io.EOF): the peer closed before any byte of the next message.
//   - (0, io.ErrUnexpectedEOF): the peer closed mid-message.
//   - (0, err): transport error from the underlying reader.
func (s *State) ReceiveMessage(buf []byte) (n int, err error) {
	if s.rd == nil || s.dir != dirRecv {
		return 0, ErrInvalidArgument
	}

	switch s.phase {
	case Complete:
		return 0, ErrStateComplete
	case Idle:
		s.phase = PrefixPending
	}

	for s.phase == PrefixPending {
		rn, re := s.readOnce(s.prefix[s.prefixN:])
		s.prefixN += rn
		if s.prefixN == PrefixLen {
			if e := s.resolvePrefix(len(buf)); e != nil {
				return 0, e
			}
		}
		if re != nil {
			if re == io.EOF && s.phase == PayloadPending {
				// EOF arrived with the last prefix byte; the payload loop
				// decides whether that is a truncation.
				break
			}
			return s.recvFailed(re)
		}
	}

	for s.phase == PayloadPending {
		if int64(len(buf)) < s.length {
			// The caller shrank the buffer mid-message.
			return int(s.offset), ErrInvalidArgument
		}
		if s.offset == s.length {
			s.phase = Complete
			break
		}
		rn, re := s.readOnce(buf[s.offset:s.length])
		s.offset += int64(rn)
		if re != nil {
			if re == io.EOF && s.offset == s.length {
				continue
			}
			return s.recvFailed(re)
		}
	}

	return int(s.length), nil
}

func (s *State) resolvePrefix(capacity int) error {
	s.length = int64(binary.BigEndian.Uint32(s.prefix[:]))
	if s.readLimit > 0 && s.length > s.readLimit {
		s.phase = Complete
		return ErrTooLong
	}
	if s.length > int64(capacity) {
		s.phase = Complete
		return ErrTooLong
	}
	s.phase = PayloadPending
	return nil
}

func (s *State) sendFailed(err error) (int, error) {
	if isRetry(err) {
		return int(s.offset), err
	}
	s.phase = Complete
	return int(s.offset), err
}

func (s *State) recvFailed(err error) (int, error) {
	if isRetry(err) {
		return int(s.offset), err
	}
	started := s.prefixN > 0
	s.phase = Complete
	if err == io.EOF {
		if started {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, io.EOF
	}
	return 0, err
}

func isRetry(err error) bool {
	return err == ErrWouldBlock || err == ErrMore
}

// translate maps expired deadlines to ErrWouldBlock when configured.
func (s *State) translate(err error) error {
	if err == nil || !s.timeoutAsWouldBlock {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrWouldBlock
	}
	return err
}

func (s *State) waitOnceOnWouldBlock() bool {
	// returns whether the caller should retry
	if !s.Blocking() {
		return false
	}
	if s.retryDelay <= 0 {
		// Cooperative yield to avoid burning a full core when emulating
		// blocking on top of a non-blocking stream.
		runtime.Gosched()
		return true
	}
	time.Sleep(s.retryDelay)
	return true
}

func (s *State) readOnce(p []byte) (n int, err error) {
	for {
		n, err = s.rd.Read(p)
		// Guard against broken Readers that violate the io.Reader contract by
		// returning (0, nil) on a non-empty buffer. Without this, the state
		// machine can spin indefinitely.
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		err = s.translate(err)
		if !isRetry(err) {
			return n, err
		}
		if n > 0 {
			if s.Blocking() {
				return n, nil
			}
			return n, err
		}
		if !s.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (s *State) writeOnce(p []byte) (n int, err error) {
	for {
		n, err = s.wr.Write(p)
		// Guard against broken Writers that violate the io.Writer contract by
		// returning (0, nil) on a non-empty buffer.
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrShortWrite
		}
		err = s.translate(err)
		if !isRetry(err) {
			return n, err
		}
		if n > 0 {
			if s.Blocking() {
				return n, nil
			}
			return n, err
		}
		if !s.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}
