package wire

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Fixed is the set of fixed-width integer kinds the codec encodes directly.
type Fixed interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64
}

// Appender is implemented by composite values that encode themselves field by field.
type Appender interface {
	AppendTo(w *Writer) error
}

// Decoder is the inverse of Appender.
type Decoder interface {
	DecodeFrom(r *Reader) error
}

func sizeOf[T Fixed]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func putFixed[T Fixed](b []byte, v T) {
	switch len(b) {
	case 1:
		b[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

func getFixed[T Fixed](b []byte) T {
	switch len(b) {
	case 1:
		return T(b[0])
	case 2:
		return T(binary.LittleEndian.Uint16(b))
	case 4:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

// Put appends one fixed-width value.
func Put[T Fixed](w *Writer, v T) error {
	b, err := w.reserve(sizeOf[T]())
	if err != nil {
		return err
	}
	putFixed(b, v)
	return nil
}

// PutSlice appends a u32 element count followed by each element.
func PutSlice[T Fixed](w *Writer, vs []T) error {
	if uint64(len(vs)) > math.MaxUint32 {
		return w.fail(ErrInvalidLength)
	}
	size := sizeOf[T]()
	b, err := w.reserve(4 + len(vs)*size)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(vs)))
	at := 4
	for _, v := range vs {
		putFixed(b[at:at+size], v)
		at += size
	}
	return nil
}

// PutOption appends the presence byte and, for a non-nil v, the value via put.
func PutOption[T any](w *Writer, v *T, put func(*Writer, T) error) error {
	if v == nil {
		return w.PutU8(0)
	}
	if err := w.PutU8(1); err != nil {
		return err
	}
	return put(w, *v)
}

// Get decodes one fixed-width value.
func Get[T Fixed](r *Reader) (T, error) {
	start := r.off
	b, err := r.take(start, sizeOf[T]())
	if err != nil {
		var z T
		return z, err
	}
	return getFixed[T](b), nil
}

// GetSlice decodes a sequence of fixed-width values into a fresh slice.
func GetSlice[T Fixed](r *Reader) ([]T, error) {
	view, err := SliceRef[T](r)
	if err != nil {
		return nil, err
	}
	return view.Append(make([]T, 0, view.Len()))
}

// SliceRef decodes a sequence of fixed-width values as a view into the buffer.
func SliceRef[T Fixed](r *Reader) (SliceView[T], error) {
	start := r.off
	count, err := r.count(start)
	if err != nil {
		return SliceView[T]{}, err
	}
	size := sizeOf[T]()
	if uint64(count)*uint64(size) > uint64(r.end-r.off) {
		return SliceView[T]{}, r.fail(start, ErrInvalidLength)
	}
	view := SliceView[T]{buf: r.buf, gen: r.buf.gen, off: r.off, n: int(count)}
	r.off += int(count) * size
	return view, nil
}

// GetOption decodes a presence byte and, when present, the value via get.
// A failure inside get rewinds the cursor to the presence byte.
func GetOption[T any](r *Reader, get func(*Reader) (T, error)) (*T, error) {
	start := r.off
	present, err := r.presence(start)
	if err != nil || !present {
		return nil, err
	}
	v, err := get(r)
	if err != nil {
		r.off = start
		if r.err == nil {
			r.err = &FieldError{Offset: start, Err: err}
		}
		return nil, r.err
	}
	return &v, nil
}
