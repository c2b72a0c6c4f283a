package pddb_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/danmuck/pddbwire/internal/path"
	"github.com/danmuck/pddbwire/internal/pddb"
	"github.com/danmuck/pddbwire/internal/pddbtest"
	"github.com/danmuck/pddbwire/internal/testutil/testlog"
	"github.com/danmuck/pddbwire/internal/transport"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/stretchr/testify/require"
)

const systemBasis = ".System"

func newClient(t *testing.T, bases ...string) (*pddb.Client, *pddbtest.Store) {
	t.Helper()
	store := pddbtest.New(pddb.DefaultOpcodes(), bases...)
	lb := transport.NewLoopback()
	conn := lb.Register("pddb", store)
	c, err := pddb.New(transport.Instrument(lb, "test"), conn,
		pddb.WithParser(path.Parser{DefaultBasis: func() (string, bool) { return systemBasis, true }}))
	require.NoError(t, err)
	return c, store
}

func some(s string) *string { return &s }

func TestNewValidatesOptions(t *testing.T) {
	testlog.Start(t)
	lb := transport.NewLoopback()
	_, err := pddb.New(lb, 1, pddb.WithBufferSize(1000))
	require.ErrorIs(t, err, pddb.ErrBufferSize)
	_, err = pddb.New(nil, 1)
	require.ErrorIs(t, err, pddb.ErrInvalidInput)
	c, err := pddb.New(lb, 1, pddb.WithBufferSize(2*wire.PageSize))
	require.NoError(t, err)
	require.Equal(t, 2*wire.PageSize, c.BufferSize())
}

func TestListBasesInMountOrder(t *testing.T) {
	testlog.Start(t)
	c, _ := newClient(t, systemBasis, "personal", "work")
	l, err := c.ListBases()
	require.NoError(t, err)
	defer l.Close()
	require.Equal(t, 3, l.Len())
	names, err := l.Collect()
	require.NoError(t, err)
	require.Equal(t, []string{systemBasis, "personal", "work"}, names)
}

func TestEmptyListIsExhaustedImmediately(t *testing.T) {
	testlog.Start(t)
	c, _ := newClient(t)
	l, err := c.ListBases()
	require.NoError(t, err)
	require.Zero(t, l.Len())
	it := l.Iter()
	require.False(t, it.Next())
	require.NoError(t, it.Err())
	l.Close()
}

func TestListDictsAndKeysUnionAndScoped(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis, "personal")
	store.Put(systemBasis, "wlan.networks", "home", []byte("pw1"))
	store.Put("personal", "wlan.networks", "cafe", []byte("pw2"))
	store.Put("personal", "contacts", "alice", []byte("a"))

	l, err := c.ListDicts(nil)
	require.NoError(t, err)
	var dicts []string
	for name := range l.All() {
		dicts = append(dicts, name)
	}
	require.NoError(t, l.Err())
	require.Equal(t, []string{"contacts", "wlan.networks"}, dicts)
	l.Close()

	l, err = c.ListDicts(some(systemBasis))
	require.NoError(t, err)
	dicts, err = l.Collect()
	require.NoError(t, err)
	require.Equal(t, []string{"wlan.networks"}, dicts)

	l, err = c.ListKeys(nil, "wlan.networks")
	require.NoError(t, err)
	keys, err := l.Collect()
	require.NoError(t, err)
	require.Equal(t, []string{"cafe", "home"}, keys)

	_, err = c.ListKeys(some("personal"), "missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = c.ListDicts(some("unmounted"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestListIsSingleUseAndClosable(t *testing.T) {
	testlog.Start(t)
	c, _ := newClient(t, "a", "b")
	l, err := c.ListBases()
	require.NoError(t, err)
	it := l.Iter()
	require.True(t, it.Next())
	require.Equal(t, "a", it.Value())

	again := l.Iter()
	require.False(t, again.Next())
	require.ErrorIs(t, again.Err(), pddb.ErrListConsumed)

	l.Close()
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), pddb.ErrListClosed)
	require.Equal(t, "a", it.Value())
}

func TestListPathKinds(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis, "personal")
	store.Put(systemBasis, "wlan", "home", nil)
	store.Put(systemBasis, "wlan:saved", "office", nil)
	store.Put("personal", "notes", "todo", nil)

	collect := func(p string) []pddb.Entry {
		l, err := c.ListPath(p)
		require.NoError(t, err, "path %q", p)
		defer l.Close()
		out, err := l.Collect()
		require.NoError(t, err)
		return out
	}

	require.Equal(t, []pddb.Entry{
		{Name: systemBasis, Kind: pddb.KindBasis},
		{Name: "personal", Kind: pddb.KindBasis},
	}, collect(":"))

	require.Equal(t, []pddb.Entry{
		{Name: "notes", Kind: pddb.KindDictionary},
		{Name: "wlan", Kind: pddb.KindDictionary},
	}, collect(""))

	require.Equal(t, []pddb.Entry{
		{Name: "saved", Kind: pddb.KindDictionary},
		{Name: "home", Kind: pddb.KindKey},
	}, collect("wlan"))

	require.Equal(t, []pddb.Entry{
		{Name: "notes", Kind: pddb.KindDictionary},
	}, collect(":personal"))

	require.Equal(t, []pddb.Entry{
		{Name: "wlan", Kind: pddb.KindDictionary},
	}, collect("::"))
}

// countingTransport records how many transfers reach the wire.
type countingTransport struct {
	next  transport.Transport
	calls int
}

func (c *countingTransport) Transfer(buf *wire.Buffer, conn transport.ConnectionID, op transport.Opcode, mode transport.Mode) (*wire.Buffer, int, error) {
	c.calls++
	return c.next.Transfer(buf, conn, op, mode)
}

func TestPathErrorsBeforeAnyTransfer(t *testing.T) {
	testlog.Start(t)
	store := pddbtest.New(pddb.DefaultOpcodes(), systemBasis)
	lb := transport.NewLoopback()
	conn := lb.Register("pddb", store)
	ct := &countingTransport{next: lb}
	c, err := pddb.New(ct, conn)
	require.NoError(t, err)

	_, err = c.ListPath("wlan:")
	require.ErrorIs(t, err, path.ErrTrailingSeparator)
	_, err = c.Open(":one:two:", pddb.OpenOptions{})
	require.ErrorIs(t, err, path.ErrTrailingSeparator)
	_, err = c.Open("nokey", pddb.OpenOptions{})
	require.ErrorIs(t, err, path.ErrNoKey)
	_, err = c.OpenKey(nil, "", "k", pddb.OpenOptions{})
	require.ErrorIs(t, err, pddb.ErrInvalidInput)
	require.Zero(t, ct.calls)
}

func TestRemoteStatusIsTyped(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)

	store.Inject(pddb.FamilyListBases, pddb.StatusAccessDenied)
	_, err := c.ListBases()
	require.ErrorIs(t, err, fs.ErrPermission)

	store.Inject(pddb.FamilyListBases, pddb.StatusDiskFull)
	_, err = c.ListBases()
	require.ErrorIs(t, err, pddb.ErrDiskFull)

	store.Inject(pddb.FamilyListBases, pddb.Status(77))
	_, err = c.ListBases()
	require.ErrorIs(t, err, pddb.ErrInvalidStatus)
	var se *pddb.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, pddb.StatusInvalid, se.Status)
	require.Equal(t, "list_bases", se.Op)

	store.Inject(pddb.FamilyListBases, pddb.StatusOK)
	_, err = c.ListBases()
	require.NoError(t, err)
}

func TestTransportFailureIsReported(t *testing.T) {
	testlog.Start(t)
	c, err := pddb.New(transport.TransferFunc(func(*wire.Buffer, transport.ConnectionID, transport.Opcode, transport.Mode) (*wire.Buffer, int, error) {
		return nil, 0, transport.ErrNotReturned
	}), 1)
	require.NoError(t, err)
	_, err = c.ListBases()
	require.ErrorIs(t, err, transport.ErrNotReturned)
}

func TestResponseWithWrongTagIsRejected(t *testing.T) {
	testlog.Start(t)
	c, err := pddb.New(transport.TransferFunc(func(buf *wire.Buffer, _ transport.ConnectionID, _ transport.Opcode, _ transport.Mode) (*wire.Buffer, int, error) {
		w := wire.NewTaggedWriter(buf, pddb.FamilyListDicts.Response)
		w.PutU8(uint8(pddb.StatusOK))
		w.PutU32(0)
		out, err := w.Finish()
		return out, w.Offset(), err
	}), 1)
	require.NoError(t, err)
	_, err = c.ListBases()
	require.ErrorIs(t, err, wire.ErrTagMismatch)
}

func TestListCountExceedingBufferIsFramingError(t *testing.T) {
	testlog.Start(t)
	c, err := pddb.New(transport.TransferFunc(func(buf *wire.Buffer, _ transport.ConnectionID, _ transport.Opcode, _ transport.Mode) (*wire.Buffer, int, error) {
		w := wire.NewTaggedWriter(buf, pddb.FamilyListBases.Response)
		w.PutU8(uint8(pddb.StatusOK))
		w.PutU32(1 << 20)
		out, err := w.Finish()
		return out, w.Offset(), err
	}), 1)
	require.NoError(t, err)
	_, err = c.ListBases()
	require.ErrorIs(t, err, wire.ErrInvalidLength)
}

func TestKeyWriteReadRoundTripAcrossChunks(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 700) // spans three transfers

	k, err := c.Open("::blobs:big", pddb.OpenOptions{CreateDict: true, CreateKey: true, AllocHint: uint64(len(payload))})
	require.NoError(t, err)
	n, err := k.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, uint64(len(payload)), k.Len())
	require.Equal(t, uint64(len(payload)), k.Offset())
	require.NoError(t, k.Flush())

	pos, err := k.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.Zero(t, pos)
	got, err := io.ReadAll(k)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, k.Close())

	stored, ok := store.Get(systemBasis, "blobs", "big")
	require.True(t, ok)
	require.Equal(t, payload, stored)
	require.Equal(t, 1, store.Opens())
	require.Equal(t, 1, store.Releases())
}

func TestKeyReadReturnsEOFAtEnd(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	store.Put(systemBasis, "d", "k", []byte("abc"))
	k, err := c.Open("d:k", pddb.OpenOptions{})
	require.NoError(t, err)
	defer k.Close()
	require.Equal(t, uint64(3), k.Len())

	buf := make([]byte, 8)
	n, err := k.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf[:n]))
	n, err = k.Read(buf)
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)

	n, err = k.Read(nil)
	require.Zero(t, n)
	require.NoError(t, err)
}

func TestSeekPastEndThenWriteGrowsLength(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	store.Put(systemBasis, "d", "k", []byte("0123456789"))
	k, err := c.Open(":"+systemBasis+":d:k", pddb.OpenOptions{})
	require.NoError(t, err)
	defer k.Close()
	require.Equal(t, uint64(10), k.Len())

	pos, err := k.Seek(5, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(15), pos)
	require.Equal(t, uint64(10), k.Len())

	n, err := k.Write([]byte("xyz"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, uint64(18), k.Len())

	stored, _ := store.Get(systemBasis, "d", "k")
	require.Equal(t, []byte("0123456789\x00\x00\x00\x00\x00xyz"), stored)
}

func TestSeekErrorsNeverContactRemote(t *testing.T) {
	testlog.Start(t)
	store := pddbtest.New(pddb.DefaultOpcodes(), systemBasis)
	store.Put(systemBasis, "d", "k", []byte("0123456789"))
	lb := transport.NewLoopback()
	conn := lb.Register("pddb", store)
	ct := &countingTransport{next: lb}
	c, err := pddb.New(ct, conn)
	require.NoError(t, err)

	k, err := c.Open("d:k", pddb.OpenOptions{})
	require.NoError(t, err)
	before := ct.calls

	_, err = k.Seek(-11, io.SeekEnd)
	require.ErrorIs(t, err, pddb.ErrSeekNegative)
	_, err = k.Seek(1<<62, io.SeekStart)
	require.NoError(t, err)
	_, err = k.Seek(1<<62, io.SeekCurrent)
	require.ErrorIs(t, err, pddb.ErrSeekOverflow)
	_, err = k.Seek(0, 7)
	require.ErrorIs(t, err, pddb.ErrInvalidInput)
	require.Equal(t, uint64(1<<62), k.Offset())
	require.Equal(t, before, ct.calls)
	require.NoError(t, k.Close())
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	_, err := c.Open("nodict:key", pddb.OpenOptions{})
	require.ErrorIs(t, err, fs.ErrNotExist)
	store.Put(systemBasis, "dict", "other", nil)
	_, err = c.Open("dict:key", pddb.OpenOptions{CreateDict: true})
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Zero(t, store.Opens())
}

func TestUnionOpenPrefersMostRecentBasis(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis, "personal")
	store.Put(systemBasis, "cfg", "theme", []byte("light"))
	store.Put("personal", "cfg", "theme", []byte("dark"))

	k, err := c.Open("cfg:theme", pddb.OpenOptions{})
	require.NoError(t, err)
	got, err := io.ReadAll(k)
	require.NoError(t, err)
	require.Equal(t, "dark", string(got))
	require.NoError(t, k.Close())

	k, err = c.Open("fresh:entry", pddb.OpenOptions{CreateDict: true, CreateKey: true})
	require.NoError(t, err)
	_, err = k.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, k.Close())
	_, ok := store.Get("personal", "fresh", "entry")
	require.True(t, ok)
}

func TestCloseExactlyOnce(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	k, err := c.Open("d:k", pddb.OpenOptions{CreateDict: true, CreateKey: true})
	require.NoError(t, err)
	require.Len(t, c.Outstanding(), 1)
	require.Equal(t, k.Token(), c.Outstanding()[0].Token)

	require.NoError(t, k.Close())
	require.ErrorIs(t, k.Close(), pddb.ErrReleased)
	require.Empty(t, c.Outstanding())
	require.Equal(t, 1, store.Releases())

	_, err = k.Read(make([]byte, 4))
	require.ErrorIs(t, err, pddb.ErrReleased)
	_, err = k.Write([]byte("x"))
	require.ErrorIs(t, err, pddb.ErrReleased)
	_, err = k.Seek(0, io.SeekStart)
	require.ErrorIs(t, err, pddb.ErrReleased)
	require.ErrorIs(t, k.Flush(), pddb.ErrReleased)
}

func TestBadReleaseAckIsProtocolViolation(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	store.SetReleaseAck(pddb.StatusInternalError)
	k, err := c.Open("d:k", pddb.OpenOptions{CreateDict: true, CreateKey: true})
	require.NoError(t, err)

	err = k.Close()
	require.ErrorIs(t, err, pddb.ErrProtocolViolation)
	var pe *pddb.ProtocolError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "release", pe.Op)
	require.Equal(t, 1, store.Releases())
	require.ErrorIs(t, k.Close(), pddb.ErrReleased)
}

func TestWithKeyReleasesOnEveryPath(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	opts := pddb.OpenOptions{CreateDict: true, CreateKey: true}

	require.NoError(t, pddb.WithKey(c, "d:ok", opts, func(k *pddb.Key) error {
		_, err := k.Write([]byte("v"))
		return err
	}))

	boom := errors.New("boom")
	err := pddb.WithKey(c, "d:fail", opts, func(k *pddb.Key) error { return boom })
	require.ErrorIs(t, err, boom)

	require.Panics(t, func() {
		_ = pddb.WithKey(c, "d:panic", opts, func(k *pddb.Key) error { panic("handler") })
	})

	require.NoError(t, pddb.WithKey(c, "d:early", opts, func(k *pddb.Key) error { return k.Close() }))

	// an operation failing mid-stream still releases
	store.Inject(pddb.FamilyRead, pddb.StatusUnexpectedEOF)
	err = pddb.WithKey(c, "d:ok", opts, func(k *pddb.Key) error {
		_, err := k.Read(make([]byte, 1))
		return err
	})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	store.SetReleaseAck(pddb.StatusDiskFull)
	err = pddb.WithKey(c, "d:ok", opts, func(k *pddb.Key) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, pddb.ErrProtocolViolation)

	require.Equal(t, store.Opens(), store.Releases())
	require.Zero(t, store.Outstanding())
	require.Empty(t, c.Outstanding())
}

func TestBasisLostWhileOpen(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis, "temp")
	store.Put("temp", "d", "k", []byte("gone soon"))
	k, err := c.Open(":temp:d:k", pddb.OpenOptions{})
	require.NoError(t, err)
	store.Unmount("temp")

	_, err = k.Read(make([]byte, 4))
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.NoError(t, k.Close())
}

func TestOversizedReadReplyPoisonsKey(t *testing.T) {
	testlog.Start(t)
	store := pddbtest.New(pddb.DefaultOpcodes(), systemBasis)
	store.Put(systemBasis, "d", "k", []byte("0123456789"))
	lb := transport.NewLoopback()
	conn := lb.Register("pddb", store)
	ops := pddb.DefaultOpcodes()

	// answer reads with more bytes than requested
	liar := transport.TransferFunc(func(buf *wire.Buffer, cid transport.ConnectionID, op transport.Opcode, mode transport.Mode) (*wire.Buffer, int, error) {
		if op != ops.Read {
			return lb.Transfer(buf, cid, op, mode)
		}
		w := wire.NewTaggedWriter(buf, pddb.FamilyRead.Response)
		w.PutU8(uint8(pddb.StatusOK))
		w.PutBytes([]byte("0123456789"))
		out, err := w.Finish()
		return out, w.Offset(), err
	})
	c, err := pddb.New(liar, conn)
	require.NoError(t, err)
	k, err := c.Open("d:k", pddb.OpenOptions{})
	require.NoError(t, err)

	_, err = k.Read(make([]byte, 2))
	require.ErrorIs(t, err, pddb.ErrProtocolViolation)
	_, err = k.Write([]byte("x"))
	require.ErrorIs(t, err, pddb.ErrProtocolViolation)
	require.NoError(t, k.Close())
	require.Equal(t, 1, store.Releases())
}

// malformedOpen answers open with an OK status and a token but no length,
// and answers release with releaseStatus.
func malformedOpen(t *testing.T, ops pddb.Opcodes, releaseStatus pddb.Status, released *[]pddb.Token) transport.Transport {
	return transport.TransferFunc(func(buf *wire.Buffer, _ transport.ConnectionID, op transport.Opcode, _ transport.Mode) (*wire.Buffer, int, error) {
		fam, ok := ops.Family(op)
		require.True(t, ok, "opcode %d", op)
		r, err := wire.NewTaggedReader(buf, fam.Request)
		require.NoError(t, err)
		st := pddb.StatusOK
		if fam == pddb.FamilyRelease {
			var tok pddb.Token
			require.NoError(t, r.GetValue(&tok))
			*released = append(*released, tok)
			st = releaseStatus
		}
		w := wire.NewTaggedWriter(buf, fam.Response)
		require.NoError(t, w.PutU8(uint8(st)))
		if fam == pddb.FamilyOpen {
			require.NoError(t, w.PutValue(pddb.Token{1, 2, 3}))
		}
		_, err = w.Finish()
		require.NoError(t, err)
		return buf, w.Offset(), nil
	})
}

func TestOpenReleasesTokenWhenReplyIsTruncated(t *testing.T) {
	testlog.Start(t)
	ops := pddb.DefaultOpcodes()
	var released []pddb.Token
	c, err := pddb.New(malformedOpen(t, ops, pddb.StatusOK, &released), 1)
	require.NoError(t, err)

	k, err := c.Open("d:k", pddb.OpenOptions{})
	require.Nil(t, k)
	require.ErrorIs(t, err, wire.ErrTruncated)
	require.Equal(t, []pddb.Token{{1, 2, 3}}, released)
	require.Empty(t, c.Outstanding())
}

func TestOpenJoinsReleaseFailureForTruncatedReply(t *testing.T) {
	testlog.Start(t)
	ops := pddb.DefaultOpcodes()
	var released []pddb.Token
	c, err := pddb.New(malformedOpen(t, ops, pddb.StatusInternalError, &released), 1)
	require.NoError(t, err)

	_, err = c.Open("d:k", pddb.OpenOptions{})
	require.ErrorIs(t, err, wire.ErrTruncated)
	require.ErrorIs(t, err, pddb.ErrInternal)
	require.Len(t, released, 1)
}

func TestFlushReportsRemoteStatus(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	k, err := c.Open("d:k", pddb.OpenOptions{CreateDict: true, CreateKey: true})
	require.NoError(t, err)
	defer k.Close()

	_, err = k.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, k.Flush())

	store.Inject(pddb.FamilyFlush, pddb.StatusDiskFull)
	err = k.Flush()
	require.ErrorIs(t, err, pddb.ErrDiskFull)
	var se *pddb.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "flush", se.Op)

	store.Inject(pddb.FamilyFlush, pddb.StatusOK)
	require.NoError(t, k.Flush())
}

func TestOpenSendsCallback(t *testing.T) {
	testlog.Start(t)
	c, store := newClient(t, systemBasis)
	sid := [4]uint32{0xdeadbeef, 1, 2, 0xffffffff}

	k, err := c.Open("d:k", pddb.OpenOptions{CreateDict: true, CreateKey: true, Callback: &sid})
	require.NoError(t, err)
	require.NoError(t, k.Close())

	k, err = c.Open("d:k", pddb.OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, k.Close())

	require.Equal(t, [][4]uint32{sid}, store.Callbacks())
}
