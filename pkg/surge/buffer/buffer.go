// Package buffer provides the byte-queue and token-scanning primitives the
// HTTP engine parses against.
package buffer

import (
	"bytes"

	"github.com/valyala/bytebufferpool"
)

// crlf is the HTTP line delimiter.
var crlf = []byte("\r\n")

// headerEnd terminates an HTTP header block.
var headerEnd = []byte("\r\n\r\n")

// Buf is a growable byte queue. Writers append at the tail; the parser
// consumes tokens from the head. Consumed bytes are reclaimed lazily so a
// suspension mid-request never loses data that arrived in an earlier read.
//
// Backing storage comes from bytebufferpool; call Release when the queue is
// retired so the storage returns to the pool.
//
// Design:
// - Append-only writes, offset-based reads (no copying on consume)
// - Delimited scanning (CRLF lines, arbitrary separators) without allocation
// - Compact-on-demand keeps memory bounded across pipelined requests
type Buf struct {
	bb  *bytebufferpool.ByteBuffer
	off int // read offset into bb.B
}

// New returns an empty queue backed by pooled storage.
func New() *Buf {
	return &Buf{bb: bytebufferpool.Get()}
}

// NewWith returns a queue pre-loaded with data. The bytes are copied.
func NewWith(data []byte) *Buf {
	b := New()
	b.bb.Write(data)
	return b
}

// Len returns the number of unread bytes. A released queue reads as empty.
func (b *Buf) Len() int {
	if b.bb == nil {
		return 0
	}
	return len(b.bb.B) - b.off
}

// Bytes returns the unread window. The slice is only valid until the next
// Write, Skip or Release.
func (b *Buf) Bytes() []byte {
	return b.bb.B[b.off:]
}

// Write appends data to the tail of the queue.
func (b *Buf) Write(data []byte) (int, error) {
	b.compactIfNeeded()
	return b.bb.Write(data)
}

// WriteString appends a string to the tail of the queue.
func (b *Buf) WriteString(s string) (int, error) {
	b.compactIfNeeded()
	return b.bb.WriteString(s)
}

// Skip consumes n unread bytes. It panics if n exceeds Len; the parser only
// ever skips what it has already scanned.
func (b *Buf) Skip(n int) {
	if n > b.Len() {
		panic("buffer: skip past end of queue")
	}
	b.off += n
}

// Index reports the offset of sep within the unread window, or -1.
func (b *Buf) Index(sep []byte) int {
	return bytes.Index(b.Bytes(), sep)
}

// IndexByte reports the offset of c within the unread window, or -1.
func (b *Buf) IndexByte(c byte) int {
	return bytes.IndexByte(b.Bytes(), c)
}

// HasHeaderEnd reports whether the unread window contains the \r\n\r\n
// header-block terminator.
func (b *Buf) HasHeaderEnd() bool {
	return b.Index(headerEnd) >= 0
}

// Line consumes and returns the next CRLF-delimited token, without the
// delimiter. ok is false when no complete line is buffered yet; nothing is
// consumed in that case. The returned slice is valid until the next Write.
func (b *Buf) Line() (line []byte, ok bool) {
	i := b.Index(crlf)
	if i < 0 {
		return nil, false
	}
	line = b.Bytes()[:i]
	b.off += i + len(crlf)
	return line, true
}

// PeekLine returns the next CRLF-delimited token without consuming it.
// n is the total number of bytes the line occupies including the delimiter.
func (b *Buf) PeekLine() (line []byte, n int, ok bool) {
	i := b.Index(crlf)
	if i < 0 {
		return nil, 0, false
	}
	return b.Bytes()[:i], i + len(crlf), true
}

// Take consumes up to n bytes from the head of the queue and returns them as
// a packet. If fewer than n bytes are buffered, the whole unread window is
// taken. Bytes past n stay queued; this is the boundary split that feeds the
// next pipelined request.
func (b *Buf) Take(n int) *Packet {
	if n > b.Len() {
		n = b.Len()
	}
	p := NewPacket(b.Bytes()[:n])
	b.off += n
	return p
}

// TakeAll consumes the entire unread window.
func (b *Buf) TakeAll() *Packet {
	return b.Take(b.Len())
}

// Reset discards all buffered bytes, keeping the backing storage.
func (b *Buf) Reset() {
	b.bb.Reset()
	b.off = 0
}

// Release discards the queue and returns its storage to the pool. The Buf
// must not be used afterwards.
func (b *Buf) Release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
	}
}

// compactIfNeeded slides unread bytes to the front once the dead prefix
// dominates the buffer, keeping growth bounded on long-lived connections.
func (b *Buf) compactIfNeeded() {
	if b.off == 0 {
		return
	}
	if b.off < 4096 && b.off <= len(b.bb.B)/2 {
		return
	}
	n := copy(b.bb.B, b.bb.B[b.off:])
	b.bb.B = b.bb.B[:n]
	b.off = 0
}
