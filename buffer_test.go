package gio

import (
	"strings"
	"testing"
)

func TestBufferAppendRetrieve(t *testing.T) {
	b := NewBuffer()
	if b.ReadableBytes() != 0 {
		t.Fatalf("new buffer should have 0 readable bytes, got %d", b.ReadableBytes())
	}
	b.AppendString("hello")
	if b.ReadableBytes() != 5 {
		t.Fatalf("expected 5 readable bytes, got %d", b.ReadableBytes())
	}
	if got := string(b.Peek()); got != "hello" {
		t.Fatalf("peek = %q, want %q", got, "hello")
	}
	b.Retrieve(5)
	if b.ReadableBytes() != 0 {
		t.Fatalf("expected 0 readable bytes after full retrieve, got %d", b.ReadableBytes())
	}
	if b.PrependableBytes() != kCheapPrepend {
		t.Fatalf("cursors should reset to kCheapPrepend once drained, got prependable=%d", b.PrependableBytes())
	}
}

func TestBufferRetrieveAllAsStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "x", strings.Repeat("ab", 1000)} {
		b := NewBuffer()
		b.AppendString(s)
		if got := b.RetrieveAllAsString(); got != s {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(s))
		}
	}
}

func TestBufferGrowBeyondInitialCapacity(t *testing.T) {
	b := NewBufferSize(4)
	data := strings.Repeat("z", 100)
	b.AppendString(data)
	if b.ReadableBytes() != len(data) {
		t.Fatalf("readable = %d, want %d", b.ReadableBytes(), len(data))
	}
	if got := b.RetrieveAllAsString(); got != data {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestBufferSlidesInsteadOfGrowingWhenPrependableSuffices(t *testing.T) {
	b := NewBufferSize(1024)
	b.AppendString(strings.Repeat("a", 900))
	b.Retrieve(800)
	// 100 bytes stay readable and prependable has grown to 808; writing more
	// than the 124 writable bytes, but less than writable+prependable,
	// should slide rather than reallocate.
	capBefore := len(b.buf)
	b.AppendString(strings.Repeat("b", 900))
	if b.ReadableBytes() != 1000 {
		t.Fatalf("readable = %d, want 1000", b.ReadableBytes())
	}
	if len(b.buf) != capBefore {
		t.Fatalf("buffer reallocated to %d bytes, want it to stay at %d", len(b.buf), capBefore)
	}
}

func TestBufferRetrievePartial(t *testing.T) {
	b := NewBuffer()
	b.AppendString("abcdef")
	b.Retrieve(2)
	if got := b.RetrieveAllAsString(); got != "cdef" {
		t.Fatalf("got %q, want %q", got, "cdef")
	}
}
