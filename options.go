// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"time"
)

// Options configures framing behavior.
type Options struct {
	// ReadLimit caps the maximum accepted payload size (bytes) on receive,
	// independently of the buffer capacity. Zero means no limit.
	ReadLimit int

	// RetryDelay controls how the engine handles iox.ErrWouldBlock from the underlying stream:
	//   - negative: nonblock, return ErrWouldBlock immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration

	// TimeoutAsWouldBlock maps net.Error timeouts (expired read/write
	// deadlines) to ErrWouldBlock so a deadline-driven loop can resume the
	// message later. It implies nonblocking mode.
	TimeoutAsWouldBlock bool
}

var defaultOptions = Options{
	ReadLimit:  0,
	RetryDelay: 0, // default: block (yield and retry)
}

type Option func(*Options)

func WithReadLimit(limit int) Option {
	return func(o *Options) { o.ReadLimit = limit }
}

// WithRetryDelay sets the retry/wait policy used when the underlying stream returns iox.ErrWouldBlock.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on iox.ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior (return iox.ErrWouldBlock immediately).
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}

// WithTimeoutAsWouldBlock reports expired deadlines on a net.Conn as
// ErrWouldBlock, keeping partial progress in the State.
func WithTimeoutAsWouldBlock() Option {
	return func(o *Options) {
		o.TimeoutAsWouldBlock = true
		o.RetryDelay = -1
	}
}
