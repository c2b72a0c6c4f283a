package wire

import (
	"fmt"
	"unsafe"
)

// PageSize is the transfer granularity; every Buffer is a whole number of pages.
const PageSize = 4096

// Buffer is a fixed-size, page-aligned byte region plus the count of
// bytes currently considered valid.
type Buffer struct {
	data  []byte
	valid int
	gen   uint64
}

// NewBuffer allocates a zeroed, page-aligned buffer of size bytes.
func NewBuffer(size int) (*Buffer, error) {
	if size <= 0 || size%PageSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBufferSize, size)
	}
	raw := make([]byte, size+PageSize)
	pad := (PageSize - int(uintptr(unsafe.Pointer(&raw[0]))%PageSize)) % PageSize
	return &Buffer{data: raw[pad : pad+size : pad+size]}, nil
}

// NewPage allocates a single-page buffer.
func NewPage() *Buffer {
	buf, err := NewBuffer(PageSize)
	if err != nil {
		panic(err)
	}
	return buf
}

// Cap is the fixed capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len is the number of valid bytes.
func (b *Buffer) Len() int {
	return b.valid
}

// Bytes returns the valid prefix. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.valid]
}

// Raw returns the whole region for transports that fill it remotely.
func (b *Buffer) Raw() []byte {
	return b.data
}

// SetLen records how many bytes a remote filled in.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return fmt.Errorf("%w: valid=%d cap=%d", ErrInvalidLength, n, len(b.data))
	}
	b.valid = n
	return nil
}

// Generation changes each time the buffer is recycled.
func (b *Buffer) Generation() uint64 {
	return b.gen
}

// Recycle clears the buffer and invalidates every outstanding View.
func (b *Buffer) Recycle() {
	b.gen++
	b.valid = 0
	clear(b.data)
}
