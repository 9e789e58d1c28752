package protocol

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// objectPool is a small generic wrapper over sync.Pool, grounded on the
// reusable-object-pool idiom the wider pack reaches for around
// higher-throughput network codecs (typed Get/Put instead of callers
// doing their own any-to-T assertions at every call site).
type objectPool[T any] struct {
	pool sync.Pool
}

func newObjectPool[T any](create func() T) *objectPool[T] {
	return &objectPool[T]{pool: sync.Pool{New: func() any { return create() }}}
}

func (p *objectPool[T]) get() T  { return p.pool.Get().(T) }
func (p *objectPool[T]) put(v T) { p.pool.Put(v) }

var (
	encoders = newObjectPool(func() *zstd.Encoder {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	})
	decoders = newObjectPool(func() *zstd.Decoder {
		dec, _ := zstd.NewReader(nil)
		return dec
	})
)
