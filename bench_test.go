// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mtcp

import (
	"io"
	"testing"

	"code.hybscloud.com/iox"
)

// --- Benchmark fakes (allocation-free) ---

// sliceWriter writes into a preallocated byte slice without allocating.
type sliceWriter struct {
	buf []byte
	off int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.off:], p)
	w.off += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// replayReader replays a fixed wire buffer in a loop, at most chunkLimit
// bytes per call, optionally would-blocking when it cannot fill p.
type replayReader struct {
	b          []byte
	off        int
	chunkLimit int
	wouldBlock bool
}

func (r *replayReader) Read(p []byte) (int, error) {
	c := r.chunkLimit
	if c <= 0 || c > len(p) {
		c = len(p)
	}
	if r.off >= len(r.b) {
		r.off = 0
	}
	c = min(c, len(r.b)-r.off)
	n := copy(p, r.b[r.off:r.off+c])
	r.off += n
	if r.wouldBlock && n < len(p) {
		return n, iox.ErrWouldBlock
	}
	return n, nil
}

func TestAllocs_SendReceive_SteadyState(t *testing.T) {
	payload := make([]byte, 512)
	sink := &sliceWriter{buf: make([]byte, PrefixLen+len(payload))}
	ss := NewSendState(sink)
	rs := NewRecvState(&replayReader{b: wire(payload)})
	buf := make([]byte, len(payload))

	allocs := testing.AllocsPerRun(1000, func() {
		sink.off = 0
		ss.Reset()
		_, _ = ss.SendMessage(payload)
		rs.Reset()
		_, _ = rs.ReceiveMessage(buf)
	})
	if allocs != 0 {
		t.Fatalf("allocs/op = %v want 0", allocs)
	}
}

func TestAllocs_Reader_WriteTo(t *testing.T) {
	sr := &scriptedReader{steps: []readStep{
		{b: []byte{0, 0, 0, 4}},
		{b: []byte("DATA"), err: io.EOF},
	}}
	r := NewReader(sr)
	_, _ = r.WriteTo(io.Discard) // allocates the scratch buffer

	allocs := testing.AllocsPerRun(1000, func() {
		sr.step, sr.off = 0, 0
		_, _ = r.WriteTo(io.Discard)
	})
	if allocs != 0 {
		t.Fatalf("allocs/op = %v want 0", allocs)
	}
}

func TestAllocs_Writer_ReadFrom(t *testing.T) {
	sink := &sliceWriter{buf: make([]byte, 128)}
	w := NewWriter(sink)
	src := &scriptedReader{steps: []readStep{{b: make([]byte, 32), err: io.EOF}}}
	_, _ = w.ReadFrom(&scriptedReader{}) // allocates the scratch buffer

	allocs := testing.AllocsPerRun(1000, func() {
		sink.off = 0
		src.step, src.off = 0, 0
		_, _ = w.ReadFrom(src)
	})
	if allocs != 0 {
		t.Fatalf("allocs/op = %v want 0", allocs)
	}
}

func benchmarkSend(b *testing.B, size int) {
	payload := make([]byte, size)
	sink := &sliceWriter{buf: make([]byte, PrefixLen+size)}
	s := NewSendState(sink)
	b.SetBytes(int64(size))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sink.off = 0
		s.Reset()
		if _, err := s.SendMessage(payload); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkReceive(b *testing.B, size, chunk int, nonblock bool) {
	src := &replayReader{b: wire(make([]byte, size)), chunkLimit: chunk, wouldBlock: nonblock}
	var opts []Option
	if nonblock {
		opts = append(opts, WithNonblock())
	}
	s := NewRecvState(src, opts...)
	buf := make([]byte, size)
	b.SetBytes(int64(size))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Reset()
		for {
			_, err := s.ReceiveMessage(buf)
			if err == nil {
				break
			}
			if err != iox.ErrWouldBlock {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkSend_64B(b *testing.B)  { benchmarkSend(b, 64) }
func BenchmarkSend_4KB(b *testing.B)  { benchmarkSend(b, 4096) }
func BenchmarkSend_64KB(b *testing.B) { benchmarkSend(b, 64*1024) }

func BenchmarkReceive_64B(b *testing.B)  { benchmarkReceive(b, 64, 0, false) }
func BenchmarkReceive_4KB(b *testing.B)  { benchmarkReceive(b, 4096, 0, false) }
func BenchmarkReceive_64KB(b *testing.B) { benchmarkReceive(b, 64*1024, 0, false) }

func BenchmarkReceive_4KB_Chunk512_WouldBlock(b *testing.B) {
	benchmarkReceive(b, 4096, 512, true)
}

func BenchmarkForwardOnce_4KB(b *testing.B) {
	size := 4096
	src := &replayReader{b: wire(make([]byte, size))}
	f := NewForwarder(io.Discard, src)
	b.SetBytes(int64(size))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.ForwardOnce(); err != nil {
			b.Fatal(err)
		}
	}
}
