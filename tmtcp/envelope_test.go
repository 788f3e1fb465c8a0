// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tmtcp

import (
	"bytes"
	"testing"
)

func TestEnvelope_Layout(t *testing.T) {
	id := TxnID{0: 0xde, 15: 0xad}
	env := EncodeEnvelope(nil, id, []byte("PING"))
	if len(env) != IDLen+4 {
		t.Fatalf("len=%d want %d", len(env), IDLen+4)
	}
	if !bytes.Equal(env[:IDLen], id[:]) || string(env[IDLen:]) != "PING" {
		t.Fatalf("envelope % x", env)
	}

	gotID, payload, err := DecodeEnvelope(env)
	if err != nil || gotID != id || string(payload) != "PING" {
		t.Fatalf("decode got (%v, %q, %v)", gotID, payload, err)
	}
}

func TestEnvelope_EmptyPayload(t *testing.T) {
	id := NewTxnID()
	gotID, payload, err := DecodeEnvelope(EncodeEnvelope(nil, id, nil))
	if err != nil || gotID != id || len(payload) != 0 {
		t.Fatalf("got (%v, %q, %v)", gotID, payload, err)
	}
}

func TestEnvelope_Short(t *testing.T) {
	for _, n := range []int{0, 1, IDLen - 1} {
		if _, _, err := DecodeEnvelope(make([]byte, n)); err != ErrShortEnvelope {
			t.Fatalf("len %d: err=%v want ErrShortEnvelope", n, err)
		}
	}
}

func TestTxnID_TextForm(t *testing.T) {
	id := NewTxnID()
	if id.IsNil() {
		t.Fatal("fresh id is nil")
	}
	if id == NewTxnID() {
		t.Fatal("two fresh ids collided")
	}
	parsed, err := ParseTxnID(id.String())
	if err != nil || parsed != id {
		t.Fatalf("parse %q got (%v, %v)", id.String(), parsed, err)
	}
	if _, err := ParseTxnID("not-an-id"); err == nil {
		t.Fatal("garbage parsed")
	}
	if !NilTxnID.IsNil() || NilTxnID.String() != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("nil id %q", NilTxnID.String())
	}
}
