// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mtcp implements Message TCP: a message (reliable datagram)
// abstraction on top of a byte stream such as TCP.
//
// Semantics and design:
//   - Framing: every message is a 4-octet big-endian length N followed by N
//     payload octets. No magic, version or checksum.
//   - Resumable state: a State records how much of the prefix and payload of
//     one message has been transferred. The same State is passed to every
//     resumption call for that message and Reset before the next one.
//   - Non-blocking first: iox.ErrWouldBlock and iox.ErrMore from the
//     underlying stream are surfaced as control-flow signals (re-exposed as
//     mtcp.ErrWouldBlock / mtcp.ErrMore) in non-blocking mode. In blocking
//     mode the engine yields or sleeps and retries until the message is done.
//   - Outcomes: success, retry-needed, orderly close (io.EOF /
//     io.ErrUnexpectedEOF), size violation (ErrTooLong) and transport error.
//     Classify maps an error to its Outcome.
//
// The package never dials, listens, accepts, changes blocking mode or closes
// streams on its own; those belong to the caller.
package mtcp

import (
	"io"
)

// defaultScratchLen caps Reader.WriteTo messages when no read limit is set.
const defaultScratchLen = 64 * 1024

// NewReader returns a Reader that returns one message per Read.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{st: NewRecvState(r, opts...)}
}

// NewWriter returns a Writer that sends each Write as one message.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{st: NewSendState(w, opts...)}
}

// NewReadWriter returns an io.ReadWriter that reads and writes messages.
func NewReadWriter(r io.Reader, w io.Writer, opts ...Option) *ReadWriter {
	return &ReadWriter{Reader: NewReader(r, opts...), Writer: NewWriter(w, opts...)}
}

// NewPipe returns a synchronous in-memory message pipe.
func NewPipe(opts ...Option) (reader *Reader, writer *Writer) {
	r, w := io.Pipe()
	return NewReader(r, opts...), NewWriter(w, opts...)
}

// Reader reads messages. Each Read returns exactly one whole message; p must
// be large enough to hold it or Read fails with ErrTooLong and the Reader
// becomes unusable.
type Reader struct {
	st  *State
	err error

	// reusable scratch buffer and pending region for WriteTo
	rbuf  []byte
	wtOff int
	wtLen int
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.st.ReceiveMessage(p)
	r.settle(err)
	return n, err
}

func (r *Reader) settle(err error) {
	switch Classify(err) {
	case OutcomeOK, OutcomeClosed:
		r.st.Reset()
	case OutcomeSizeViolation:
		r.err = ErrDesynchronized
	case OutcomeTransportError:
		if r.st.Phase() == Complete {
			r.err = err
		}
	}
}

// WriteTo implements io.WriterTo. It copies message payloads to dst until
// the stream ends, one message at a time, through a scratch buffer sized by
// the read limit (64KiB when unset). Boundaries are not reproduced on dst
// unless dst is itself a Writer.
//
// Non-blocking semantics: ErrWouldBlock / ErrMore from either side return
// immediately with the bytes written so far; the next WriteTo call resumes
// the same message, including a partially drained dst write.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	if r.rbuf == nil {
		capHint := int(r.st.readLimit)
		if capHint <= 0 {
			capHint = defaultScratchLen
		}
		r.rbuf = make([]byte, capHint)
	}

	var total int64
	for {
		if r.wtOff < r.wtLen {
			wn, we := drain(dst, r.rbuf[r.wtOff:r.wtLen])
			r.wtOff += wn
			total += int64(wn)
			if we != nil {
				return total, we
			}
			r.wtOff, r.wtLen = 0, 0
		}

		n, err := r.Read(r.rbuf)
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
		r.wtOff, r.wtLen = 0, n
	}
}

// drain writes p to dst honoring short writes.
func drain(dst io.Writer, p []byte) (int, error) {
	off := 0
	for off < len(p) {
		wn, we := dst.Write(p[off:])
		off += wn
		if we != nil {
			return off, we
		}
		if wn == 0 {
			// Avoid potential infinite loop on pathological writers.
			return off, io.ErrShortWrite
		}
	}
	return off, nil
}

// Writer writes messages. Each Write sends p as one message.
type Writer struct {
	st  *State
	err error

	// reusable scratch buffer for ReadFrom; wpend > 0 marks a chunk whose
	// message is still in flight
	wbuf  []byte
	wpend int
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.st.SendMessage(p)
	switch Classify(err) {
	case OutcomeOK:
		w.st.Reset()
	case OutcomeRetry:
	default:
		if w.st.Phase() == Complete {
			w.err = err
		}
	}
	return n, err
}

// ReadFrom implements io.ReaderFrom.
//
// Semantics:
//   - Chunk-to-message: each chunk read from src (a successful src.Read call) is encoded
//     as a single message. This does not preserve upstream application message boundaries.
//
// Non-blocking semantics: if src.Read or the underlying writer returns ErrWouldBlock
// or ErrMore, ReadFrom returns immediately with the progress count and the same error;
// the next call finishes the in-flight chunk before reading more from src.
func (w *Writer) ReadFrom(src io.Reader) (int64, error) {
	// Reuse a per-writer buffer to keep the steady state allocation free.
	if w.wbuf == nil {
		w.wbuf = make([]byte, 32*1024)
	}

	var total int64
	for {
		if w.wpend > 0 {
			before := w.st.Transferred()
			wn, we := w.Write(w.wbuf[:w.wpend])
			total += int64(wn - before)
			if we != nil {
				return total, we
			}
			w.wpend = 0
		}

		n, er := src.Read(w.wbuf)
		if n > 0 {
			w.wpend = n
			continue
		}
		switch er {
		case nil:
			// Guard against sources returning (0, nil) forever.
			return total, io.ErrNoProgress
		case io.EOF:
			return total, nil
		default:
			return total, er
		}
	}
}

// ReadWriter groups Reader and Writer.
type ReadWriter struct {
	*Reader
	*Writer
}
