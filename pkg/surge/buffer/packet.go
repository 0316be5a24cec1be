package buffer

import "github.com/valyala/bytebufferpool"

// Packet is a framed byte chunk moving through the receive pipeline. A packet
// may be split at any byte boundary without changing meaning; when a body
// packet extends past the last byte of the current request, the tail is split
// off and becomes the connection's next input.
type Packet struct {
	bb   *bytebufferpool.ByteBuffer
	last bool
}

// NewPacket returns a packet holding a copy of data.
func NewPacket(data []byte) *Packet {
	p := &Packet{bb: bytebufferpool.Get()}
	p.bb.Write(data)
	return p
}

// EndPacket returns the zero-length end-of-stream marker.
func EndPacket() *Packet {
	return &Packet{bb: bytebufferpool.Get(), last: true}
}

// Data returns the packet payload.
func (p *Packet) Data() []byte {
	return p.bb.B
}

// Len returns the payload length.
func (p *Packet) Len() int {
	return len(p.bb.B)
}

// Last reports whether this packet is the end-of-stream marker.
func (p *Packet) Last() bool {
	return p.last
}

// Split divides the packet at offset n. The receiver keeps the first n bytes;
// the returned packet carries the tail. Split(0) moves everything.
func (p *Packet) Split(n int) *Packet {
	if n < 0 || n > p.Len() {
		panic("buffer: split offset out of range")
	}
	tail := NewPacket(p.bb.B[n:])
	p.bb.B = p.bb.B[:n]
	return tail
}

// Release returns the packet storage to the pool. The packet must not be
// used afterwards.
func (p *Packet) Release() {
	if p.bb != nil {
		bytebufferpool.Put(p.bb)
		p.bb = nil
	}
}
