package buffer

import (
	"bytes"
	"testing"
)

func TestLineScanning(t *testing.T) {
	b := NewWith([]byte("GET / HTTP/1.1\r\nHost: x\r\n"))
	defer b.Release()

	line, ok := b.Line()
	if !ok || string(line) != "GET / HTTP/1.1" {
		t.Fatalf("line = %q, %v", line, ok)
	}
	line, ok = b.Line()
	if !ok || string(line) != "Host: x" {
		t.Fatalf("line = %q, %v", line, ok)
	}
	if _, ok = b.Line(); ok {
		t.Error("line reported on empty queue")
	}
}

func TestPartialLineNotConsumed(t *testing.T) {
	b := NewWith([]byte("incomplete"))
	defer b.Release()

	if _, ok := b.Line(); ok {
		t.Fatal("incomplete line consumed")
	}
	if b.Len() != len("incomplete") {
		t.Errorf("len = %d after failed scan", b.Len())
	}
	b.Write([]byte(" line\r\n"))
	line, ok := b.Line()
	if !ok || string(line) != "incomplete line" {
		t.Errorf("line = %q, %v", line, ok)
	}
}

func TestHasHeaderEnd(t *testing.T) {
	b := NewWith([]byte("GET / HTTP/1.1\r\nHost: x\r\n"))
	defer b.Release()
	if b.HasHeaderEnd() {
		t.Error("header end found early")
	}
	b.Write([]byte("\r\n"))
	if !b.HasHeaderEnd() {
		t.Error("header end not found")
	}
}

func TestTakeSplitsAtBoundary(t *testing.T) {
	b := NewWith([]byte("hellonext-request"))
	defer b.Release()

	p := b.Take(5)
	defer p.Release()
	if string(p.Data()) != "hello" {
		t.Errorf("packet = %q", p.Data())
	}
	if string(b.Bytes()) != "next-request" {
		t.Errorf("tail = %q", b.Bytes())
	}
}

func TestTakeCapsAtAvailable(t *testing.T) {
	b := NewWith([]byte("abc"))
	defer b.Release()
	p := b.Take(100)
	defer p.Release()
	if p.Len() != 3 {
		t.Errorf("len = %d, want 3", p.Len())
	}
	if b.Len() != 0 {
		t.Errorf("queue len = %d, want 0", b.Len())
	}
}

func TestWriteStraddlesReads(t *testing.T) {
	b := New()
	defer b.Release()

	var got bytes.Buffer
	// Interleave writes and consumes the way a connection does across
	// suspensions.
	for i := 0; i < 100; i++ {
		b.Write([]byte("0123456789"))
		p := b.Take(7)
		got.Write(p.Data())
		p.Release()
	}
	p := b.TakeAll()
	got.Write(p.Data())
	p.Release()

	want := bytes.Repeat([]byte("0123456789"), 100)
	if !bytes.Equal(got.Bytes(), want) {
		t.Error("bytes lost or reordered across compactions")
	}
}

func TestPacketSplit(t *testing.T) {
	p := NewPacket([]byte("hello world"))
	defer p.Release()
	tail := p.Split(5)
	defer tail.Release()
	if string(p.Data()) != "hello" {
		t.Errorf("head = %q", p.Data())
	}
	if string(tail.Data()) != " world" {
		t.Errorf("tail = %q", tail.Data())
	}
}

func TestEndPacket(t *testing.T) {
	p := EndPacket()
	defer p.Release()
	if !p.Last() || p.Len() != 0 {
		t.Errorf("end packet = len %d, last %v", p.Len(), p.Last())
	}
}

func TestIndexAcrossConsumption(t *testing.T) {
	b := NewWith([]byte("aaa\r\n\r\nbbb"))
	defer b.Release()
	if i := b.Index([]byte("\r\n\r\n")); i != 3 {
		t.Errorf("index = %d, want 3", i)
	}
	b.Skip(4)
	if i := b.Index([]byte("\r\n")); i != 1 {
		t.Errorf("index after skip = %d, want 1", i)
	}
}
