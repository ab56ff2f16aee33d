package bloom

import (
	"context"

	"firefly-live/internal/cache"
)

// seeds for the K hash functions. Small primes are enough here: a false
// positive only ever costs one extra cache lookup downstream.
var seeds = [...]int64{3, 5, 7, 11, 13, 31}

// DefaultBitSize is 1<<24 bits (~2MB), sized for tens of millions of
// subject ids at a tolerable false-positive rate.
const DefaultBitSize int64 = 1 << 24

// Filter is an additive bloom filter over a shared bit vector. No deletes:
// once an element's bits are set they stay set, so MightContain never
// reports a false negative.
type Filter struct {
	store   cache.Store
	bitSize int64
}

func New(store cache.Store, bitSize int64) *Filter {
	if bitSize <= 0 {
		bitSize = DefaultBitSize
	}
	return &Filter{store: store, bitSize: bitSize}
}

// Put sets the element's bit positions in the vector named setKey.
// Idempotent.
func (f *Filter) Put(ctx context.Context, setKey, element string) error {
	for _, seed := range seeds {
		if err := f.store.SetBit(ctx, setKey, f.offset(element, seed)); err != nil {
			return err
		}
	}
	return nil
}

// MightContain reports whether the element may have been put. A false
// return is definitive; a true return may be a false positive.
func (f *Filter) MightContain(ctx context.Context, setKey, element string) (bool, error) {
	for _, seed := range seeds {
		on, err := f.store.GetBit(ctx, setKey, f.offset(element, seed))
		if err != nil {
			return false, err
		}
		if !on {
			return false, nil
		}
	}
	return true, nil
}

// offset is a seeded polynomial rolling hash masked positive and reduced
// modulo the bit-vector size.
func (f *Filter) offset(element string, seed int64) int64 {
	var h int64
	for _, c := range element {
		h = h*seed + int64(c)
	}
	return (h & 0x7fffffff) % f.bitSize
}
