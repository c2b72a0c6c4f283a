package wire

// View is a bounded window into a Buffer: start, length and the owning
// buffer. It is only meaningful while the buffer has not been recycled.
type View struct {
	buf *Buffer
	gen uint64
	off int
	n   int
}

func (v View) Len() int {
	return v.n
}

// Valid reports whether the owning buffer still holds the viewed bytes.
func (v View) Valid() bool {
	return v.buf != nil && v.buf.gen == v.gen
}

// Bytes aliases the buffer memory. It returns nil once the view is stale.
func (v View) Bytes() []byte {
	if !v.Valid() {
		return nil
	}
	return v.buf.data[v.off : v.off+v.n : v.off+v.n]
}

// String copies the viewed bytes into a Go string.
func (v View) String() string {
	return string(v.Bytes())
}

// SliceView is a borrowed sequence of fixed-width values. Elements are
// decoded on access.
type SliceView[T Fixed] struct {
	buf *Buffer
	gen uint64
	off int
	n   int
}

func (v SliceView[T]) Len() int {
	return v.n
}

func (v SliceView[T]) Valid() bool {
	return v.buf != nil && v.buf.gen == v.gen
}

// At decodes element i. It panics when i is out of range, like a slice index.
func (v SliceView[T]) At(i int) (T, error) {
	if i < 0 || i >= v.n {
		panic("wire: SliceView index out of range")
	}
	if !v.Valid() {
		var z T
		return z, ErrStaleView
	}
	size := sizeOf[T]()
	at := v.off + i*size
	return getFixed[T](v.buf.data[at : at+size]), nil
}

// Append decodes every element onto dst.
func (v SliceView[T]) Append(dst []T) ([]T, error) {
	if v.n == 0 {
		return dst, nil
	}
	if !v.Valid() {
		return dst, ErrStaleView
	}
	size := sizeOf[T]()
	for i := 0; i < v.n; i++ {
		at := v.off + i*size
		dst = append(dst, getFixed[T](v.buf.data[at:at+size]))
	}
	return dst, nil
}
