// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import "errors"

var (
	// ErrShortEnvelope reports a message too short to carry a transaction id.
	ErrShortEnvelope = errors.New("tmtcp: message shorter than transaction id")

	// ErrTxnClosed reports use of a transaction after Close.
	ErrTxnClosed = errors.New("tmtcp: transaction closed")

	// ErrTxnInUse reports opening a transaction id that is still open on the
	// connection. Reusing an id before its transaction is closed is a
	// protocol violation.
	ErrTxnInUse = errors.New("tmtcp: transaction id in use")

	// ErrConnClosed reports use of a connection after Close.
	ErrConnClosed = errors.New("tmtcp: connection closed")
)
