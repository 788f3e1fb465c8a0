// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"errors"
	"io"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports a nil stream, a State used in the wrong
	// direction, or a resumption call whose arguments differ from the call
	// that started the message.
	ErrInvalidArgument = errors.New("mtcp: invalid argument")

	// ErrTooLong reports a size violation: the decoded length prefix exceeds
	// the receive buffer or the configured read limit, or a payload does not
	// fit in the 4-octet prefix. The stream is desynchronized after a receive
	// side ErrTooLong.
	ErrTooLong = errors.New("mtcp: message too long")

	// ErrStateComplete reports a Send/Receive on a State that already
	// finished its message. Call Reset before starting the next one.
	ErrStateComplete = errors.New("mtcp: state already completed a message")

	// ErrDesynchronized is returned by Conn after a size violation consumed a
	// length prefix without its payload.
	ErrDesynchronized = errors.New("mtcp: stream desynchronized")
)

// These are provided as package-level aliases so callers can reference the
// semantic control-flow errors without importing iox directly.
var (
	// ErrWouldBlock means “no further progress without waiting”.
	//
	// It is the retry-needed signal: the message is incomplete and the same
	// call must be repeated with the same State and arguments once the stream
	// is ready again. Progress already made is kept in the State.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore means “this completion is usable and more completions will follow”.
	// The engine treats it like ErrWouldBlock when the underlying stream
	// returns it without finishing the message.
	ErrMore = iox.ErrMore
)

// Outcome enumerates what a Send/Receive call means to the caller.
type Outcome uint8

const (
	// OutcomeOK means the whole message was transferred.
	OutcomeOK Outcome = iota
	// OutcomeRetry means the call must be repeated with identical arguments.
	OutcomeRetry
	// OutcomeClosed means the peer closed the stream (zero bytes delivered).
	OutcomeClosed
	// OutcomeSizeViolation means the announced length did not fit the buffer.
	OutcomeSizeViolation
	// OutcomeTransportError means the underlying stream failed.
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetry:
		return "retry"
	case OutcomeClosed:
		return "closed"
	case OutcomeSizeViolation:
		return "size-violation"
	case OutcomeTransportError:
		return "transport-error"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by SendMessage or ReceiveMessage to its
// Outcome. Callers abandon the connection on OutcomeTransportError and
// OutcomeSizeViolation, shut down gracefully on OutcomeClosed, and loop on
// OutcomeRetry.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrWouldBlock), errors.Is(err, ErrMore):
		return OutcomeRetry
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return OutcomeClosed
	case errors.Is(err, ErrTooLong):
		return OutcomeSizeViolation
	default:
		return OutcomeTransportError
	}
}
