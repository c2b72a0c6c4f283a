package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer appends encoded values to a Buffer after its header.
//
// The first failed append is sticky: later appends return the same error
// and Finish refuses to hand out the buffer.
type Writer struct {
	buf  *Buffer
	off  int
	err  error
	done bool
}

// NewWriter recycles buf and writes the untagged header.
func NewWriter(buf *Buffer) *Writer {
	buf.Recycle()
	binary.LittleEndian.PutUint32(buf.data[0:markerLen], Marker)
	return &Writer{buf: buf, off: markerLen}
}

// NewTaggedWriter recycles buf and writes the header followed by tag.
func NewTaggedWriter(buf *Buffer, tag Tag) *Writer {
	w := NewWriter(buf)
	copy(buf.data[markerLen:markerLen+tagLen], tag[:])
	w.off += tagLen
	return w
}

// Offset is the cursor position; it equals the encoded length so far.
func (w *Writer) Offset() int {
	return w.off
}

// Remaining is the free capacity after the cursor.
func (w *Writer) Remaining() int {
	return len(w.buf.data) - w.off
}

func (w *Writer) Err() error {
	return w.err
}

// Finish seals the writer and returns the buffer with its valid length set
// to the encoded length.
func (w *Writer) Finish() (*Buffer, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.done {
		return nil, ErrWriterFinished
	}
	w.done = true
	w.buf.valid = w.off
	return w.buf, nil
}

// reserve claims n bytes for one whole value or fails without writing.
func (w *Writer) reserve(n int) ([]byte, error) {
	if w.done {
		return nil, ErrWriterFinished
	}
	if w.err != nil {
		return nil, w.err
	}
	if n < 0 || n > len(w.buf.data)-w.off {
		w.err = &FieldError{
			Offset: w.off,
			Err:    fmt.Errorf("%w: need=%d remaining=%d", ErrNoSpace, n, len(w.buf.data)-w.off),
		}
		return nil, w.err
	}
	b := w.buf.data[w.off : w.off+n]
	w.off += n
	return b, nil
}

func (w *Writer) PutU8(v uint8) error   { return Put(w, v) }
func (w *Writer) PutI8(v int8) error    { return Put(w, v) }
func (w *Writer) PutU16(v uint16) error { return Put(w, v) }
func (w *Writer) PutI16(v int16) error  { return Put(w, v) }
func (w *Writer) PutU32(v uint32) error { return Put(w, v) }
func (w *Writer) PutI32(v int32) error  { return Put(w, v) }
func (w *Writer) PutU64(v uint64) error { return Put(w, v) }
func (w *Writer) PutI64(v int64) error  { return Put(w, v) }

// PutBool encodes v as a u8 of 0 or 1.
func (w *Writer) PutBool(v bool) error {
	if v {
		return w.PutU8(1)
	}
	return w.PutU8(0)
}

// PutString writes a u32 byte count followed by the bytes of s.
func (w *Writer) PutString(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return w.fail(ErrInvalidLength)
	}
	b, err := w.reserve(4 + len(s))
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(s)))
	copy(b[4:], s)
	return nil
}

// PutBytes writes p as a sequence of u8.
func (w *Writer) PutBytes(p []byte) error {
	return PutSlice(w, p)
}

// PutStrings writes a sequence of strings; the whole sequence must fit.
func (w *Writer) PutStrings(ss []string) error {
	total := 4
	for _, s := range ss {
		if uint64(len(s)) > math.MaxUint32 {
			return w.fail(ErrInvalidLength)
		}
		total += 4 + len(s)
	}
	if uint64(len(ss)) > math.MaxUint32 {
		return w.fail(ErrInvalidLength)
	}
	b, err := w.reserve(total)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(ss)))
	at := 4
	for _, s := range ss {
		binary.LittleEndian.PutUint32(b[at:at+4], uint32(len(s)))
		at += 4
		at += copy(b[at:], s)
	}
	return nil
}

// PutOptionalString writes the presence byte and, when s is non-nil, the string.
func (w *Writer) PutOptionalString(s *string) error {
	if s == nil {
		return w.PutU8(0)
	}
	if _, err := w.reserve(0); err != nil {
		return err
	}
	if 1+4+len(*s) > w.Remaining() {
		_, err := w.reserve(1 + 4 + len(*s))
		return err
	}
	if err := w.PutU8(1); err != nil {
		return err
	}
	return w.PutString(*s)
}

// PutValue lets a composite type encode itself.
func (w *Writer) PutValue(v Appender) error {
	if _, err := w.reserve(0); err != nil {
		return err
	}
	return v.AppendTo(w)
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = &FieldError{Offset: w.off, Err: err}
	}
	return w.err
}
