package pddb

import (
	"sort"
	"sync"
	"time"
)

// OpenKey records one token the client has not released yet.
type OpenKey struct {
	Token    Token
	Path     string
	OpenedAt time.Time
	Reads    int
	Writes   int
}

// registry tracks outstanding tokens by value.
type registry struct {
	mu    sync.RWMutex
	items map[Token]OpenKey
}

func newRegistry() *registry {
	return &registry{items: make(map[Token]OpenKey)}
}

func (r *registry) add(item OpenKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.Token] = item
}

func (r *registry) markIO(t Token, write bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[t]
	if !ok {
		return
	}
	if write {
		item.Writes++
	} else {
		item.Reads++
	}
	r.items[t] = item
}

func (r *registry) remove(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, t)
}

func (r *registry) list() []OpenKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OpenKey, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Token.String() < out[j].Token.String()
	})
	return out
}
