// Package pddbtest provides an in-memory database service for exercising
// the pddb client without a real server.
package pddbtest

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/pddb"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

type basis struct {
	name  string
	dicts map[string]map[string][]byte
}

type handle struct {
	basis *basis
	dict  string
	key   string
}

// Store is a transport.Handler holding bases in mount order, most recent last.
type Store struct {
	mu       sync.Mutex
	ops      pddb.Opcodes
	bases    []*basis
	handles  map[pddb.Token]*handle
	next     uint32
	opens    int
	releases int
	inject   map[string]pddb.Status
	ack      pddb.Status

	// callbacks holds every callback ID decoded from an open request.
	callbacks [][4]uint32
}

var _ transport.Handler = (*Store)(nil)

func New(ops pddb.Opcodes, bases ...string) *Store {
	s := &Store{
		ops:     ops,
		handles: make(map[pddb.Token]*handle),
		inject:  make(map[string]pddb.Status),
		ack:     pddb.StatusOK,
	}
	for _, b := range bases {
		s.Mount(b)
	}
	return s
}

// Mount adds a basis as the most recent one.
func (s *Store) Mount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(name) == nil {
		s.bases = append(s.bases, &basis{name: name, dicts: make(map[string]map[string][]byte)})
	}
}

// Unmount removes a basis. Open handles on it start reporting basis-lost.
func (s *Store) Unmount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bases = slices.DeleteFunc(s.bases, func(b *basis) bool { return b.name == name })
}

// Put stores a value, creating the dictionary if needed.
func (s *Store) Put(basisName, dict, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.find(basisName)
	if b == nil {
		panic(fmt.Sprintf("pddbtest: basis %q not mounted", basisName))
	}
	if b.dicts[dict] == nil {
		b.dicts[dict] = make(map[string][]byte)
	}
	b.dicts[dict][key] = append([]byte(nil), data...)
}

// Get returns a copy of a stored value.
func (s *Store) Get(basisName, dict, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.find(basisName)
	if b == nil {
		return nil, false
	}
	v, ok := b.dicts[dict][key]
	return append([]byte(nil), v...), ok
}

func (s *Store) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *Store) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Outstanding is the number of tokens issued and not yet released.
func (s *Store) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Callbacks lists the callback IDs sent with open requests, oldest first.
func (s *Store) Callbacks() [][4]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.callbacks)
}

// Inject makes every request of family f answer with st until cleared with StatusOK.
func (s *Store) Inject(f pddb.Family, st pddb.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == pddb.StatusOK {
		delete(s.inject, f.Name)
		return
	}
	s.inject[f.Name] = st
}

// SetReleaseAck sets the status returned by release after the token is freed.
func (s *Store) SetReleaseAck(st pddb.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ack = st
}

func (s *Store) find(name string) *basis {
	for _, b := range s.bases {
		if b.name == name {
			return b
		}
	}
	return nil
}

func (s *Store) alive(b *basis) bool {
	return slices.Contains(s.bases, b)
}

// scope is the basis list a request addresses: one named basis or the
// union, most recent first.
func (s *Store) scope(name *string) ([]*basis, pddb.Status) {
	if name != nil {
		b := s.find(*name)
		if b == nil {
			return nil, pddb.StatusBasisLost
		}
		return []*basis{b}, pddb.StatusOK
	}
	out := slices.Clone(s.bases)
	slices.Reverse(out)
	return out, pddb.StatusOK
}

// reply is the response body written after the status byte.
type reply func(w *wire.Writer)

func (s *Store) Serve(op transport.Opcode, mode transport.Mode, buf *wire.Buffer) (int, error) {
	fam, ok := s.ops.Family(op)
	if !ok {
		return 0, fmt.Errorf("%w: %d", pddb.ErrUnknownOpcode, op)
	}
	r, err := wire.NewTaggedReader(buf, fam.Request)
	if err != nil {
		return 0, err
	}

	var (
		st   pddb.Status
		body reply
	)
	s.mu.Lock()
	if injected, ok := s.inject[fam.Name]; ok {
		st = injected
	} else {
		st, body, err = s.handle(fam, r)
	}
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	w := wire.NewTaggedWriter(buf, fam.Response)
	w.PutU8(uint8(st))
	if st == pddb.StatusOK && body != nil {
		body(w)
	}
	if _, err := w.Finish(); err != nil {
		return 0, err
	}
	log.Trace().Msgf("pddbtest.Store op=%s status=%s valid=%d", fam.Name, st, w.Offset())
	return w.Offset(), nil
}

// handle decodes the whole request before any reply is built, since the
// reply overwrites the same buffer.
func (s *Store) handle(fam pddb.Family, r *wire.Reader) (pddb.Status, reply, error) {
	switch fam {
	case pddb.FamilyListBases:
		names := make([]string, 0, len(s.bases))
		for _, b := range s.bases {
			names = append(names, b.name)
		}
		return pddb.StatusOK, func(w *wire.Writer) { w.PutStrings(names) }, nil

	case pddb.FamilyListDicts:
		bn, err := r.GetOptionalString()
		if err != nil {
			return 0, nil, err
		}
		bases, st := s.scope(bn)
		if st != pddb.StatusOK {
			return st, nil, nil
		}
		var names []string
		for _, b := range bases {
			for d := range b.dicts {
				names = append(names, d)
			}
		}
		names = sortedUnique(names)
		return pddb.StatusOK, func(w *wire.Writer) { w.PutStrings(names) }, nil

	case pddb.FamilyListKeys:
		bn, err := r.GetOptionalString()
		if err != nil {
			return 0, nil, err
		}
		dict, err := r.GetString()
		if err != nil {
			return 0, nil, err
		}
		bases, st := s.scope(bn)
		if st != pddb.StatusOK {
			return st, nil, nil
		}
		var names []string
		found := false
		for _, b := range bases {
			keys, ok := b.dicts[dict]
			if !ok {
				continue
			}
			found = true
			for k := range keys {
				names = append(names, k)
			}
		}
		if !found {
			return pddb.StatusBasisLost, nil, nil
		}
		names = sortedUnique(names)
		return pddb.StatusOK, func(w *wire.Writer) { w.PutStrings(names) }, nil

	case pddb.FamilyListPath:
		return s.listPath(r)
	case pddb.FamilyOpen:
		return s.open(r)
	case pddb.FamilyRead:
		return s.read(r)
	case pddb.FamilyWrite:
		return s.write(r)

	case pddb.FamilyFlush:
		var t pddb.Token
		if err := r.GetValue(&t); err != nil {
			return 0, nil, err
		}
		_, st := s.lookup(t)
		return st, nil, nil

	case pddb.FamilyRelease:
		var t pddb.Token
		if err := r.GetValue(&t); err != nil {
			return 0, nil, err
		}
		if _, ok := s.handles[t]; !ok {
			return pddb.StatusInvalid, nil, nil
		}
		delete(s.handles, t)
		s.releases++
		return s.ack, nil, nil
	}
	return 0, nil, fmt.Errorf("%w: family %s", pddb.ErrUnknownOpcode, fam.Name)
}

func (s *Store) listPath(r *wire.Reader) (pddb.Status, reply, error) {
	bn, err := r.GetOptionalString()
	if err != nil {
		return 0, nil, err
	}
	dn, err := r.GetOptionalString()
	if err != nil {
		return 0, nil, err
	}

	var entries []pddb.Entry
	if bn == nil && dn == nil {
		for _, b := range s.bases {
			entries = append(entries, pddb.Entry{Name: b.name, Kind: pddb.KindBasis})
		}
		return pddb.StatusOK, entryReply(entries), nil
	}

	bases, st := s.scope(bn)
	if st != pddb.StatusOK {
		return st, nil, nil
	}
	prefix := ""
	if dn != nil {
		prefix = *dn
	}
	seen := make(map[string]bool)
	var dicts, keys []string
	for _, b := range bases {
		for d, ks := range b.dicts {
			if d == prefix && prefix != "" {
				for k := range ks {
					if !seen["k:"+k] {
						seen["k:"+k] = true
						keys = append(keys, k)
					}
				}
				continue
			}
			if seg, ok := segment(d, prefix); ok && !seen["d:"+seg] {
				seen["d:"+seg] = true
				dicts = append(dicts, seg)
			}
		}
	}
	slices.Sort(dicts)
	slices.Sort(keys)
	for _, d := range dicts {
		entries = append(entries, pddb.Entry{Name: d, Kind: pddb.KindDictionary})
	}
	for _, k := range keys {
		entries = append(entries, pddb.Entry{Name: k, Kind: pddb.KindKey})
	}
	return pddb.StatusOK, entryReply(entries), nil
}

// segment is the first path segment of name below prefix.
func segment(name, prefix string) (string, bool) {
	rest := name
	if prefix != "" {
		var ok bool
		if rest, ok = strings.CutPrefix(name, prefix+path.SeparatorStr); !ok {
			return "", false
		}
	}
	seg, _, _ := strings.Cut(rest, path.SeparatorStr)
	return seg, seg != ""
}

func entryReply(entries []pddb.Entry) reply {
	return func(w *wire.Writer) {
		w.PutU32(uint32(len(entries)))
		for _, e := range entries {
			w.PutValue(e)
		}
	}
}

func getCallback(r *wire.Reader) ([4]uint32, error) {
	var sid [4]uint32
	for i := range sid {
		v, err := r.GetU32()
		if err != nil {
			return sid, err
		}
		sid[i] = v
	}
	return sid, nil
}

func (s *Store) open(r *wire.Reader) (pddb.Status, reply, error) {
	bn, err := r.GetOptionalString()
	if err != nil {
		return 0, nil, err
	}
	dict, err := r.GetString()
	if err != nil {
		return 0, nil, err
	}
	key, err := r.GetString()
	if err != nil {
		return 0, nil, err
	}
	createDict, err := r.GetBool()
	if err != nil {
		return 0, nil, err
	}
	createKey, err := r.GetBool()
	if err != nil {
		return 0, nil, err
	}
	if _, err := r.GetU64(); err != nil {
		return 0, nil, err
	}
	cb, err := wire.GetOption(r, getCallback)
	if err != nil {
		return 0, nil, err
	}
	if cb != nil {
		s.callbacks = append(s.callbacks, *cb)
	}

	bases, st := s.scope(bn)
	if st != pddb.StatusOK {
		return st, nil, nil
	}
	if len(bases) == 0 {
		return pddb.StatusBasisLost, nil, nil
	}
	// most recent basis holding the key, else holding the dict, else the most recent
	var target *basis
	for _, b := range bases {
		if _, ok := b.dicts[dict][key]; ok {
			target = b
			break
		}
	}
	if target == nil {
		for _, b := range bases {
			if _, ok := b.dicts[dict]; ok {
				target = b
				break
			}
		}
	}
	if target == nil {
		if !createDict {
			return pddb.StatusBasisLost, nil, nil
		}
		target = bases[0]
		target.dicts[dict] = make(map[string][]byte)
	}
	value, ok := target.dicts[dict][key]
	if !ok {
		if !createKey {
			return pddb.StatusBasisLost, nil, nil
		}
		target.dicts[dict][key] = nil
	}

	s.next++
	t := pddb.Token{s.next, uint32(len(s.bases)), 0x70646462}
	s.handles[t] = &handle{basis: target, dict: dict, key: key}
	s.opens++
	length := uint64(len(value))
	return pddb.StatusOK, func(w *wire.Writer) {
		w.PutValue(t)
		w.PutU64(length)
	}, nil
}

func (s *Store) lookup(t pddb.Token) (*handle, pddb.Status) {
	h, ok := s.handles[t]
	if !ok {
		return nil, pddb.StatusAccessDenied
	}
	if !s.alive(h.basis) {
		return nil, pddb.StatusBasisLost
	}
	if _, ok := h.basis.dicts[h.dict][h.key]; !ok {
		return nil, pddb.StatusBasisLost
	}
	return h, pddb.StatusOK
}

func (s *Store) read(r *wire.Reader) (pddb.Status, reply, error) {
	var t pddb.Token
	if err := r.GetValue(&t); err != nil {
		return 0, nil, err
	}
	off, err := r.GetU64()
	if err != nil {
		return 0, nil, err
	}
	limit, err := r.GetU32()
	if err != nil {
		return 0, nil, err
	}
	h, st := s.lookup(t)
	if st != pddb.StatusOK {
		return st, nil, nil
	}
	value := h.basis.dicts[h.dict][h.key]
	var out []byte
	if off < uint64(len(value)) {
		out = value[off:]
		if uint64(len(out)) > uint64(limit) {
			out = out[:limit]
		}
		out = append([]byte(nil), out...)
	}
	return pddb.StatusOK, func(w *wire.Writer) { w.PutBytes(out) }, nil
}

func (s *Store) write(r *wire.Reader) (pddb.Status, reply, error) {
	var t pddb.Token
	if err := r.GetValue(&t); err != nil {
		return 0, nil, err
	}
	off, err := r.GetU64()
	if err != nil {
		return 0, nil, err
	}
	data, err := r.GetBytes()
	if err != nil {
		return 0, nil, err
	}
	h, st := s.lookup(t)
	if st != pddb.StatusOK {
		return st, nil, nil
	}
	value := h.basis.dicts[h.dict][h.key]
	if end := off + uint64(len(data)); end > uint64(len(value)) {
		value = append(value, make([]byte, end-uint64(len(value)))...)
	}
	copy(value[off:], data)
	h.basis.dicts[h.dict][h.key] = value
	n := uint32(len(data))
	return pddb.StatusOK, func(w *wire.Writer) { w.PutU32(n) }, nil
}

func sortedUnique(names []string) []string {
	slices.Sort(names)
	return slices.Compact(names)
}
