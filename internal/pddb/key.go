package pddb

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

// OpenOptions controls how Open treats missing entries.
type OpenOptions struct {
	CreateDict bool
	CreateKey  bool
	// AllocHint is the expected final size; the service may preallocate.
	AllocHint uint64
	// Callback names a server to notify when the key's basis is unmounted.
	Callback *[4]uint32
}

// Key is an open stream over one remote value. It is not safe for
// concurrent use.
type Key struct {
	c      *Client
	token  Token
	name   string
	offset uint64
	length uint64

	released bool
	poison   error
}

var (
	_ io.ReadWriteSeeker = (*Key)(nil)
	_ io.Closer          = (*Key)(nil)
)

// Open parses p as basis:dict:key and opens the named key.
func (c *Client) Open(p string, opts OpenOptions) (*Key, error) {
	parsed, err := c.parser.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: %w", FamilyOpen.Name, err)
	}
	dict, key, err := parsed.DictKey()
	if err != nil {
		return nil, fmt.Errorf("pddb: %s: %w", FamilyOpen.Name, err)
	}
	return c.OpenKey(parsed.Basis, dict, key, opts)
}

// OpenKey opens key in dict. A nil basis lets the service pick one.
func (c *Client) OpenKey(basis *string, dict, key string, opts OpenOptions) (*Key, error) {
	if dict == "" || key == "" {
		return nil, fmt.Errorf("%w: dictionary and key names are required", ErrInvalidInput)
	}
	r, err := c.call(FamilyOpen, func(w *wire.Writer) {
		w.PutOptionalString(basis)
		w.PutString(dict)
		w.PutString(key)
		w.PutBool(opts.CreateDict)
		w.PutBool(opts.CreateKey)
		w.PutU64(opts.AllocHint)
		wire.PutOption(w, opts.Callback, putCallback)
	})
	if err != nil {
		return nil, err
	}
	var token Token
	if err := r.GetValue(&token); err != nil {
		return nil, fmt.Errorf("pddb: %s: decode token: %w", FamilyOpen.Name, err)
	}
	length, err := r.GetU64()
	if err != nil {
		// the service already issued the token; hand it back
		err = fmt.Errorf("pddb: %s: decode length: %w", FamilyOpen.Name, err)
		if rerr := c.release(token); rerr != nil {
			err = errors.Join(err, fmt.Errorf("pddb: release %s: %w", token, rerr))
		}
		return nil, err
	}

	compound := dict + path.SeparatorStr + key
	name := path.Path{Basis: basis, Dict: &compound}.String()
	k := &Key{c: c, token: token, name: name, length: length}
	c.keys.add(OpenKey{Token: token, Path: name, OpenedAt: time.Now()})
	log.Debug().Msgf("pddb.Key open path=%q token=%s len=%d", name, token, length)
	return k, nil
}

func putCallback(w *wire.Writer, sid [4]uint32) error {
	for _, v := range sid {
		if err := w.PutU32(v); err != nil {
			return err
		}
	}
	return nil
}

func (k *Key) Token() Token {
	return k.token
}

// Len is the cached stream length.
func (k *Key) Len() uint64 {
	return k.length
}

func (k *Key) Offset() uint64 {
	return k.offset
}

func (k *Key) Name() string {
	return k.name
}

// Released reports whether Close has been called.
func (k *Key) Released() bool {
	return k.released
}

func (k *Key) usable() error {
	if k.released {
		return ErrReleased
	}
	return k.poison
}

func (k *Key) violate(op, format string, args ...any) error {
	k.poison = &ProtocolError{Op: op, Detail: fmt.Sprintf(format, args...)}
	log.Error().Msgf("pddb.Key path=%q token=%s %v", k.name, k.token, k.poison)
	return k.poison
}

// Read fills p from the current offset with at most one transfer. It
// returns io.EOF when the service has nothing left to return.
func (k *Key) Read(p []byte) (int, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := min(len(p), MaxPayload(k.c.bufferSize))
	r, err := k.c.call(FamilyRead, func(w *wire.Writer) {
		w.PutValue(k.token)
		w.PutU64(k.offset)
		w.PutU32(uint32(want))
	})
	if err != nil {
		return 0, err
	}
	data, err := r.GetBytesRef()
	if err != nil {
		return 0, fmt.Errorf("pddb: %s: decode data: %w", FamilyRead.Name, err)
	}
	if data.Len() > want {
		return 0, k.violate(FamilyRead.Name, "returned %d bytes for a %d byte request", data.Len(), want)
	}
	n := copy(p, data.Bytes())
	k.c.keys.markIO(k.token, false)
	if n == 0 {
		return 0, io.EOF
	}
	k.offset += uint64(n)
	return n, nil
}

// Write sends p in page-sized chunks until all of it is accepted.
func (k *Key) Write(p []byte) (int, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	chunk := MaxPayload(k.c.bufferSize)
	total := 0
	for len(p) > 0 {
		part := p[:min(len(p), chunk)]
		r, err := k.c.call(FamilyWrite, func(w *wire.Writer) {
			w.PutValue(k.token)
			w.PutU64(k.offset)
			w.PutBytes(part)
		})
		if err != nil {
			return total, err
		}
		written, err := r.GetU32()
		if err != nil {
			return total, fmt.Errorf("pddb: %s: decode count: %w", FamilyWrite.Name, err)
		}
		if int(written) > len(part) {
			return total, k.violate(FamilyWrite.Name, "acknowledged %d bytes of %d", written, len(part))
		}
		k.c.keys.markIO(k.token, true)
		if written == 0 {
			return total, io.ErrShortWrite
		}
		k.offset += uint64(written)
		if k.offset > k.length {
			k.length = k.offset
		}
		total += int(written)
		p = p[written:]
	}
	return total, nil
}

// Seek moves the local offset. The service is not contacted and seeking
// past the end does not change Len.
func (k *Key) Seek(offset int64, whence int) (int64, error) {
	if err := k.usable(); err != nil {
		return 0, err
	}
	var base uint64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = k.offset
	case io.SeekEnd:
		base = k.length
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidInput, whence)
	}
	next, err := seekTarget(base, offset)
	if err != nil {
		return 0, err
	}
	k.offset = next
	return int64(next), nil
}

func seekTarget(base uint64, delta int64) (uint64, error) {
	if base > math.MaxInt64 {
		return 0, ErrSeekOverflow
	}
	if delta >= 0 {
		if uint64(delta) > math.MaxInt64-base {
			return 0, ErrSeekOverflow
		}
		return base + uint64(delta), nil
	}
	back := uint64(-(delta + 1)) + 1
	if back > base {
		return 0, ErrSeekNegative
	}
	return base - back, nil
}

// Flush asks the service to persist buffered writes.
func (k *Key) Flush() error {
	if err := k.usable(); err != nil {
		return err
	}
	_, err := k.c.call(FamilyFlush, func(w *wire.Writer) {
		w.PutValue(k.token)
	})
	return err
}

// Close releases the token. It must be called exactly once; a second call
// returns ErrReleased. An acknowledgement other than OK is a protocol
// violation.
func (k *Key) Close() error {
	if k.released {
		return ErrReleased
	}
	k.released = true
	k.c.keys.remove(k.token)

	err := k.c.release(k.token)
	var se *StatusError
	if errors.As(err, &se) {
		return k.violate(FamilyRelease.Name, "acknowledged with %s", se.Status)
	}
	if err != nil {
		return err
	}
	log.Debug().Msgf("pddb.Key release path=%q token=%s", k.name, k.token)
	return nil
}

// release asks the service to free t.
func (c *Client) release(t Token) error {
	_, err := c.call(FamilyRelease, func(w *wire.Writer) {
		w.PutValue(t)
	})
	return err
}

// WithKey opens p, runs fn and releases the key on every exit path,
// including a panic in fn. A release failure is joined with fn's error.
func WithKey(c *Client, p string, opts OpenOptions, fn func(*Key) error) (err error) {
	k, err := c.Open(p, opts)
	if err != nil {
		return err
	}
	defer func() {
		if k.Released() {
			return
		}
		if cerr := k.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("pddb: release %s: %w", k.name, cerr))
		}
	}()
	return fn(k)
}
