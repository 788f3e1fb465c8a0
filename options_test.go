// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp_test

import (
	"testing"
	"time"

	"code.hybscloud.com/mtcp"
)

func TestOptions_RetryPolicy(t *testing.T) {
	var o mtcp.Options
	mtcp.WithNonblock()(&o)
	if o.RetryDelay >= 0 {
		t.Fatalf("WithNonblock: RetryDelay=%v want negative", o.RetryDelay)
	}
	mtcp.WithBlock()(&o)
	if o.RetryDelay != 0 {
		t.Fatalf("WithBlock: RetryDelay=%v want 0", o.RetryDelay)
	}
	mtcp.WithRetryDelay(5 * time.Millisecond)(&o)
	if o.RetryDelay != 5*time.Millisecond {
		t.Fatalf("WithRetryDelay: RetryDelay=%v", o.RetryDelay)
	}
	// Unrelated fields should remain untouched.
	if o.ReadLimit != 0 || o.TimeoutAsWouldBlock {
		t.Fatalf("unrelated fields changed: %+v", o)
	}
}

func TestOptions_TimeoutAsWouldBlockImpliesNonblock(t *testing.T) {
	var o mtcp.Options
	mtcp.WithReadLimit(128)(&o)
	mtcp.WithTimeoutAsWouldBlock()(&o)
	if !o.TimeoutAsWouldBlock || o.RetryDelay >= 0 {
		t.Fatalf("got %+v", o)
	}
	if o.ReadLimit != 128 {
		t.Fatalf("ReadLimit=%d want 128", o.ReadLimit)
	}
}

func TestOptions_DefaultIsBlocking(t *testing.T) {
	if !mtcp.NewSendState(nil).Blocking() {
		t.Fatal("default policy should block")
	}
}
