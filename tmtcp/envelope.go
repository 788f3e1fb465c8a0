// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tmtcp implements Transaction MTCP: many independent transactions
// multiplexed over one MTCP connection.
//
// Wire format: every TMTCP message is an MTCP message whose payload starts
// with a 16-octet transaction id followed by the application payload:
//
//	[4-octet big-endian N][16-octet TxnID][N-16 octets of payload]
//
// The id is chosen by the side that opens the transaction and must be unique
// among the transactions open on that connection. Messages of different
// transactions are serialized on the wire; the Demux routes each received
// message to its transaction afterwards.
//
// A peer that runs a single transaction per connection does not need this
// package: plain mtcp.Conn is enough, and NilTxnID serves as the constant id
// when such a peer talks to a TMTCP server.
package tmtcp

import (
	uuid "github.com/satori/go.uuid"
)

// IDLen is the wire width of a transaction id.
const IDLen = 16

// TxnID identifies a transaction on one connection.
type TxnID [IDLen]byte

// NilTxnID is the constant id used by single-transaction peers.
var NilTxnID = TxnID{}

// NewTxnID returns a fresh random id.
func NewTxnID() TxnID {
	return TxnID(uuid.NewV4())
}

// ParseTxnID parses the canonical textual form produced by String.
func ParseTxnID(s string) (TxnID, error) {
	u, err := uuid.FromString(s)
	if err != nil {
		return NilTxnID, err
	}
	return TxnID(u), nil
}

func (id TxnID) String() string {
	return uuid.UUID(id).String()
}

func (id TxnID) IsNil() bool {
	return id == NilTxnID
}

// EncodeEnvelope appends the envelope of payload in transaction id to dst.
func EncodeEnvelope(dst []byte, id TxnID, payload []byte) []byte {
	dst = append(dst, id[:]...)
	return append(dst, payload...)
}

// DecodeEnvelope splits an MTCP message into its transaction id and
// application payload. The payload aliases msg.
func DecodeEnvelope(msg []byte) (TxnID, []byte, error) {
	if len(msg) < IDLen {
		return NilTxnID, nil, ErrShortEnvelope
	}
	var id TxnID
	copy(id[:], msg[:IDLen])
	return id, msg[IDLen:], nil
}
