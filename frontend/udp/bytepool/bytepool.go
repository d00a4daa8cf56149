// Package bytepool provides a pool of reusable, fixed-size byte slices for
// reading UDP packets without allocating on every request.
package bytepool

import "sync"

// BytePool is a cached pool of reusable byte slices.
type BytePool struct {
	sync.Pool
}

// New allocates a new BytePool with slices of equal length and capacity.
func New(length int) *BytePool {
	var bp BytePool
	bp.Pool.New = func() interface{} {
		b := make([]byte, length)
		return &b
	}
	return &bp
}

// Get returns a byte slice from the pool.
func (bp *BytePool) Get() *[]byte {
	return bp.Pool.Get().(*[]byte)
}

// Put returns a byte slice to the pool.
func (bp *BytePool) Put(b *[]byte) {
	*b = (*b)[:cap(*b)]

	for i := range *b {
		(*b)[i] = 0
	}

	bp.Pool.Put(b)
}
