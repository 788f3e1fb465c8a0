// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/mtcp"
)

// --- Core framing ---

func TestRoundTrip_Sizes(t *testing.T) {
	var raw bytes.Buffer
	w := mtcp.NewWriter(&raw)
	r := mtcp.NewReader(&raw)

	msgs := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{'a'}, 253),
		bytes.Repeat([]byte{'b'}, 65536),
		bytes.Repeat([]byte{'c'}, 1<<20),
	}
	for i, m := range msgs {
		n, err := w.Write(m)
		if err != nil || n != len(m) {
			t.Fatalf("write[%d]: (%d, %v)", i, n, err)
		}
	}
	if got, want := raw.Len(), 5*mtcp.PrefixLen+5+253+65536+1<<20; got != want {
		t.Fatalf("wire length %d want %d", got, want)
	}
	for i, m := range msgs {
		buf := make([]byte, len(m))
		n, err := r.Read(buf)
		if err != nil || n != len(m) {
			t.Fatalf("read[%d]: (%d, %v)", i, n, err)
		}
		if !bytes.Equal(buf, m) {
			t.Fatalf("read[%d]: payload mismatch", i)
		}
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("after last message: %v want io.EOF", err)
	}
}

func TestReader_SizeViolationDesynchronizes(t *testing.T) {
	var raw bytes.Buffer
	w := mtcp.NewWriter(&raw)
	_, _ = w.Write([]byte("too long for you"))
	_, _ = w.Write([]byte("ok"))

	r := mtcp.NewReader(&raw)
	buf := make([]byte, 4)
	if _, err := r.Read(buf); !errors.Is(err, mtcp.ErrTooLong) {
		t.Fatalf("first read: %v want ErrTooLong", err)
	}
	if _, err := r.Read(buf); !errors.Is(err, mtcp.ErrDesynchronized) {
		t.Fatalf("second read: %v want ErrDesynchronized", err)
	}
}

func TestReader_ReadLimit(t *testing.T) {
	var raw bytes.Buffer
	_, _ = mtcp.NewWriter(&raw).Write([]byte("0123456789"))
	r := mtcp.NewReader(&raw, mtcp.WithReadLimit(8))
	if _, err := r.Read(make([]byte, 64)); !errors.Is(err, mtcp.ErrTooLong) {
		t.Fatalf("err=%v want ErrTooLong", err)
	}
}

func TestWriter_StickyTransportError(t *testing.T) {
	boom := errors.New("broken pipe")
	w := mtcp.NewWriter(errWriter{err: boom})
	if _, err := w.Write([]byte("a")); err != boom {
		t.Fatalf("err=%v", err)
	}
	if _, err := w.Write([]byte("b")); err != boom {
		t.Fatalf("second write err=%v want sticky boom", err)
	}
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestPipe(t *testing.T) {
	r, w := mtcp.NewPipe()
	msgs := []string{"yowp", "", "bwang"}
	go func() {
		for _, m := range msgs {
			if _, err := w.Write([]byte(m)); err != nil {
				t.Errorf("write %q: %v", m, err)
				return
			}
		}
	}()
	buf := make([]byte, 16)
	for _, want := range msgs {
		n, err := r.Read(buf)
		if err != nil || string(buf[:n]) != want {
			t.Fatalf("got (%q, %v) want %q", buf[:n], err, want)
		}
	}
}

func TestReadWriter(t *testing.T) {
	var raw bytes.Buffer
	rw := mtcp.NewReadWriter(&raw, &raw)
	if _, err := rw.Write([]byte("echo")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	n, err := rw.Read(buf)
	if err != nil || string(buf[:n]) != "echo" {
		t.Fatalf("got (%q, %v)", buf[:n], err)
	}
}

// --- Smoke over real streams ---

func TestSmoke_NetPipeRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	w := mtcp.NewWriter(c1)
	r := mtcp.NewReader(c2)
	msg := []byte("hello, mtcp")
	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := w.Write(msg)
		if err != nil || n != len(msg) {
			t.Errorf("write: (%d, %v)", n, err)
		}
	}()
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil || !bytes.Equal(buf[:n], msg) {
		t.Fatalf("read: (%q, %v)", buf[:n], err)
	}
	<-done
}

// The exchange a client and server run against each other: the client sends
// its lines, the server answers each one reversed, both over loopback TCP.
func TestLoopbackTCP_ClientServerScenario(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	defer ln.Close()

	lines := []string{"yowp", "bwang", "foo bar", "whupple snout"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		nc, err := ln.Accept()
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		c := mtcp.NewConn(nc)
		defer c.Close()
		buf := make([]byte, 256)
		for {
			n, err := c.ReceiveMessage(buf)
			if err == io.EOF {
				return
			}
			if err != nil {
				t.Errorf("server receive: %v", err)
				return
			}
			if _, err := c.SendMessage([]byte(reverse(string(buf[:n])))); err != nil {
				t.Errorf("server send: %v", err)
				return
			}
		}
	}()

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := mtcp.NewConn(nc)
	if !c.Blocking() {
		t.Fatal("a plain net.Conn should be driven in blocking mode")
	}
	buf := make([]byte, 256)
	for _, line := range lines {
		if _, err := c.SendMessage([]byte(line)); err != nil {
			t.Fatalf("send %q: %v", line, err)
		}
		n, err := c.ReceiveMessage(buf)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got := string(buf[:n]); got != reverse(line) {
			t.Fatalf("reply %q want %q", got, reverse(line))
		}
	}
	_ = c.Close()
	wg.Wait()
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// --- Non-blocking resumption through the public API ---

// halfWriter accepts one byte per call and would-block in between.
type halfWriter struct {
	buf     bytes.Buffer
	blocked bool
}

func (w *halfWriter) Write(p []byte) (int, error) {
	if w.blocked = !w.blocked; w.blocked {
		return 0, iox.ErrWouldBlock
	}
	return w.buf.Write(p[:1])
}

func TestWriter_NonblockingResume(t *testing.T) {
	hw := &halfWriter{}
	w := mtcp.NewWriter(hw, mtcp.WithNonblock())
	msg := []byte("foo bar")
	retries := 0
	for {
		n, err := w.Write(msg)
		if err == nil {
			if n != len(msg) {
				t.Fatalf("n=%d want %d", n, len(msg))
			}
			break
		}
		if mtcp.Classify(err) != mtcp.OutcomeRetry {
			t.Fatalf("err=%v", err)
		}
		retries++
	}
	if retries == 0 {
		t.Fatal("expected at least one retry")
	}

	r := mtcp.NewReader(&hw.buf)
	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "foo bar" {
		t.Fatalf("got (%q, %v)", buf[:n], err)
	}
}

func TestErrorAliases(t *testing.T) {
	if mtcp.ErrWouldBlock != iox.ErrWouldBlock || mtcp.ErrMore != iox.ErrMore {
		t.Fatal("control-flow errors must be the iox sentinels")
	}
	for _, err := range []error{mtcp.ErrInvalidArgument, mtcp.ErrTooLong, mtcp.ErrStateComplete, mtcp.ErrDesynchronized} {
		if !strings.HasPrefix(err.Error(), "mtcp: ") {
			t.Fatalf("%q lacks the package prefix", err)
		}
	}
}
