package gio

import (
	"golang.org/x/sys/unix"
)

// kCheapPrepend is the reserved prefix every Buffer carries so that a
// protocol layer can prepend a short header without reallocating.
const kCheapPrepend = 8

// kInitialBufferSize is the writable capacity a freshly constructed Buffer
// starts with, not counting the prepend region.
const kInitialBufferSize = 1024

// spillSize is the size of the secondary scatter-read segment readFromFd
// uses once the buffer's own writable tail is exhausted.
const spillSize = 64 * 1024

// Buffer is a growable byte buffer with read/write cursors, modeled after
// the core's memory layout:
//
//	| prependable bytes | readable bytes (content) | writable bytes |
//	0      <=      readerIndex  <=  writerIndex   <=   len(buf)
//
// A Buffer is not safe for concurrent use; each Connection owns its input
// and output Buffer exclusively from its assigned loop's thread.
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// NewBuffer returns an empty Buffer with room for kInitialBufferSize
// writable bytes beyond the cheap-prepend region.
func NewBuffer() *Buffer {
	return NewBufferSize(kInitialBufferSize)
}

// NewBufferSize is like NewBuffer but with an explicit initial writable
// capacity.
func NewBufferSize(initialSize int) *Buffer {
	return &Buffer{
		buf:         make([]byte, kCheapPrepend+initialSize),
		readerIndex: kCheapPrepend,
		writerIndex: kCheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes that can be appended without
// growing the buffer.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the number of bytes currently reclaimable ahead
// of the readable region.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns the readable region without consuming it. The returned
// slice aliases the Buffer's storage and is only valid until the next
// mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// Retrieve advances the reader cursor by min(n, ReadableBytes()). If the
// cursors meet, both reset to kCheapPrepend so later appends reuse the
// whole buffer instead of drifting toward its end.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readerIndex += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll discards every readable byte.
func (b *Buffer) RetrieveAll() {
	b.readerIndex = kCheapPrepend
	b.writerIndex = kCheapPrepend
}

// RetrieveAsString consumes up to n readable bytes and returns a copy.
func (b *Buffer) RetrieveAsString(n int) string {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	s := string(b.buf[b.readerIndex : b.readerIndex+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes every readable byte and returns a copy.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// EnsureWritable grows or slides the buffer so that at least n bytes are
// writable, per the core's growth policy.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// Append copies data to the writable tail, growing the buffer if needed.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.writerIndex:], data)
	b.writerIndex += len(data)
}

// AppendString is a convenience wrapper around Append.
func (b *Buffer) AppendString(s string) {
	b.Append([]byte(s))
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+kCheapPrepend {
		grown := make([]byte, b.writerIndex+n)
		copy(grown, b.buf)
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[kCheapPrepend:], b.buf[b.readerIndex:b.writerIndex])
	b.readerIndex = kCheapPrepend
	b.writerIndex = b.readerIndex + readable
}

// ReadFromFd performs a scatter-read from fd: the writable tail is filled
// first, and if that is exhausted a 64 KiB spill buffer absorbs the rest,
// which is then appended in one copy. It returns the OS-level byte count
// (negative on error, with errno in err) exactly as the raw syscall would.
func (b *Buffer) ReadFromFd(fd int) (n int, err error) {
	var spill [spillSize]byte
	writable := b.WritableBytes()
	iovs := make([][]byte, 0, 2)
	iovs = append(iovs, b.buf[b.writerIndex:])
	if writable < spillSize {
		iovs = append(iovs, spill[:])
	}
	nread, err := readv(fd, iovs)
	if err != nil {
		return nread, err
	}
	if nread <= writable {
		b.writerIndex += nread
	} else {
		b.writerIndex = len(b.buf)
		b.Append(spill[:nread-writable])
	}
	return nread, nil
}

// readv wraps the readv(2) syscall over the given segments, returning the
// total bytes read across all of them.
func readv(fd int, iovs [][]byte) (int, error) {
	n, err := unix.Readv(fd, iovs)
	return n, err
}
