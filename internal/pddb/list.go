package pddb

import (
	"fmt"
	"iter"

	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/wire"
)

// EntryKind classifies a path listing entry.
type EntryKind uint8

const (
	KindBasis      EntryKind = 1
	KindDictionary EntryKind = 2
	KindKey        EntryKind = 3
)

func (k EntryKind) String() string {
	switch k {
	case KindBasis:
		return "basis"
	case KindDictionary:
		return "dictionary"
	case KindKey:
		return "key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k EntryKind) Valid() bool {
	return k >= KindBasis && k <= KindKey
}

// Entry is one row of a path listing.
type Entry struct {
	Name string
	Kind EntryKind
}

func (e Entry) AppendTo(w *wire.Writer) error {
	if err := w.PutString(e.Name); err != nil {
		return err
	}
	return w.PutU8(uint8(e.Kind))
}

func (e *Entry) DecodeFrom(r *wire.Reader) error {
	name, err := r.GetString()
	if err != nil {
		return err
	}
	kind, err := r.GetU8()
	if err != nil {
		return err
	}
	if !EntryKind(kind).Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidEntryKind, kind)
	}
	e.Name, e.Kind = name, EntryKind(kind)
	return nil
}

// List is a count-prefixed response decoded one entry at a time. It owns
// the response buffer until Close.
type List[T any] struct {
	op      string
	r       *wire.Reader
	count   int
	minSize int
	decode  func(*wire.Reader) (T, error)
	started bool
	closed  bool
	err     error
}

func newList[T any](op string, r *wire.Reader, minSize int, decode func(*wire.Reader) (T, error)) (*List[T], error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: decode count: %w", op, err)
	}
	// every entry carries at least its own length prefix
	if uint64(n)*uint64(minSize) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("pddb: %s: %w: count=%d remaining=%d", op, wire.ErrInvalidLength, n, r.Remaining())
	}
	return &List[T]{op: op, r: r, count: int(n), minSize: minSize, decode: decode}, nil
}

// Len is the number of entries the service reported.
func (l *List[T]) Len() int {
	return l.count
}

// Err reports the first decode failure seen by any iteration.
func (l *List[T]) Err() error {
	return l.err
}

// Close releases the response buffer. Values already returned stay valid.
func (l *List[T]) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.r.Buffer().Recycle()
}

// Iter returns the forward-only iterator over the entries. A list can be
// walked once; later iterators report ErrListConsumed.
func (l *List[T]) Iter() *Iterator[T] {
	it := &Iterator[T]{l: l}
	if l.started {
		it.err = ErrListConsumed
	}
	l.started = true
	return it
}

// All adapts Iter to a range-over-func sequence. Decode failures end the
// sequence and are reported by Err.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		it := l.Iter()
		for it.Next() {
			if !yield(it.Value()) {
				return
			}
		}
	}
}

// Collect drains the list into a slice.
func (l *List[T]) Collect() ([]T, error) {
	out := make([]T, 0, l.count)
	it := l.Iter()
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, it.Err()
}

type Iterator[T any] struct {
	l   *List[T]
	i   int
	cur T
	err error
}

func (it *Iterator[T]) Next() bool {
	if it.err != nil || it.i >= it.l.count {
		return false
	}
	if it.l.closed {
		it.err = ErrListClosed
		return false
	}
	v, err := it.l.decode(it.l.r)
	if err != nil {
		it.err = fmt.Errorf("pddb: %s: entry %d: %w", it.l.op, it.i, err)
		it.l.err = it.err
		return false
	}
	it.cur = v
	it.i++
	return true
}

// Value is the entry decoded by the last successful Next.
func (it *Iterator[T]) Value() T {
	return it.cur
}

func (it *Iterator[T]) Err() error {
	return it.err
}

func decodeName(r *wire.Reader) (string, error) {
	return r.GetString()
}

func decodeEntry(r *wire.Reader) (Entry, error) {
	var e Entry
	err := r.GetValue(&e)
	return e, err
}

// ListBases enumerates the bases currently mounted.
func (c *Client) ListBases() (*List[string], error) {
	r, err := c.call(FamilyListBases, nil)
	if err != nil {
		return nil, err
	}
	return newList(FamilyListBases.Name, r, 4, decodeName)
}

// ListDicts enumerates dictionaries in basis, or across the union when basis is nil.
func (c *Client) ListDicts(basis *string) (*List[string], error) {
	r, err := c.call(FamilyListDicts, func(w *wire.Writer) {
		w.PutOptionalString(basis)
	})
	if err != nil {
		return nil, err
	}
	return newList(FamilyListDicts.Name, r, 4, decodeName)
}

// ListKeys enumerates the keys of dict in basis, or across the union when basis is nil.
func (c *Client) ListKeys(basis *string, dict string) (*List[string], error) {
	r, err := c.call(FamilyListKeys, func(w *wire.Writer) {
		w.PutOptionalString(basis)
		w.PutString(dict)
	})
	if err != nil {
		return nil, err
	}
	return newList(FamilyListKeys.Name, r, 4, decodeName)
}

// ListPath enumerates the children of a path string. ":" lists bases, a
// basis lists its top-level dictionaries and a dictionary lists nested
// dictionaries and its keys. The path is parsed before any request is built.
func (c *Client) ListPath(p string) (*List[Entry], error) {
	parsed, err := c.parser.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: %w", FamilyListPath.Name, err)
	}
	return c.listPath(parsed)
}

func (c *Client) listPath(p path.Path) (*List[Entry], error) {
	r, err := c.call(FamilyListPath, func(w *wire.Writer) {
		w.PutOptionalString(p.Basis)
		w.PutOptionalString(p.Dict)
	})
	if err != nil {
		return nil, err
	}
	return newList(FamilyListPath.Name, r, 5, decodeEntry)
}
