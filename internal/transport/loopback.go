package transport

import (
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

// Loopback dispatches transfers to in-process handlers. It stands in for
// the kernel message path in tests and backs the stream server.
type Loopback struct {
	mu       sync.RWMutex
	names    map[string]ConnectionID
	handlers map[ConnectionID]Handler
	next     ConnectionID
}

func NewLoopback() *Loopback {
	return &Loopback{
		names:    make(map[string]ConnectionID),
		handlers: make(map[ConnectionID]Handler),
	}
}

// Register binds a service name to h and returns its connection ID.
// Registering an existing name replaces its handler and keeps the ID.
func (l *Loopback) Register(name string, h Handler) ConnectionID {
	key := strings.TrimSpace(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.names[key]; ok {
		l.handlers[id] = h
		return id
	}
	l.next++
	id := l.next
	l.names[key] = id
	l.handlers[id] = h
	log.Debug().Msgf("transport.Loopback register name=%q conn=%d", key, id)
	return id
}

// Connect resolves a service name to its connection ID.
func (l *Loopback) Connect(name string) (ConnectionID, error) {
	key := strings.TrimSpace(name)
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.names[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownService, key)
	}
	return id, nil
}

func (l *Loopback) Transfer(buf *wire.Buffer, conn ConnectionID, op Opcode, mode Mode) (*wire.Buffer, int, error) {
	if !mode.Valid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	l.mu.RLock()
	h, ok := l.handlers[conn]
	l.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %d", ErrNoConnection, conn)
	}

	if mode == ModeLend {
		lent, err := wire.NewBuffer(buf.Cap())
		if err != nil {
			return nil, 0, err
		}
		copy(lent.Raw(), buf.Bytes())
		if err := lent.SetLen(buf.Len()); err != nil {
			return nil, 0, err
		}
		if _, err := h.Serve(op, mode, lent); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrNotReturned, err)
		}
		return buf, 0, nil
	}

	n, err := h.Serve(op, mode, buf)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrNotReturned, err)
	}
	if err := buf.SetLen(n); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrNotReturned, err)
	}
	return buf, n, nil
}
