package transport

import (
	"sync"
)

type subscription struct {
	id int
	fn Handler
}

// Emitter is a concurrency-safe event fan-out used by drivers to
// implement Transport.Subscribe. Handlers for a kind run in
// registration order.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscription
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[Kind][]subscription)}
}

// Subscribe registers fn for kind.
func (e *Emitter) Subscribe(kind Kind, fn Handler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[kind] = append(e.subs[kind], subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(kind, id) })
	}
}

func (e *Emitter) remove(kind Kind, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subs[kind]
	for i, s := range subs {
		if s.id == id {
			e.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subs[kind]) == 0 {
		delete(e.subs, kind)
	}
}

// Emit delivers ev to every current subscriber of ev.Kind. Handlers are
// called without the lock held so they may unsubscribe themselves.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := make([]subscription, len(e.subs[ev.Kind]))
	copy(subs, e.subs[ev.Kind])
	e.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Count returns the number of subscribers for kind.
func (e *Emitter) Count(kind Kind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[kind])
}

// Reset drops every subscription.
func (e *Emitter) Reset() {
	e.mu.Lock()
	e.subs = make(map[Kind][]subscription)
	e.mu.Unlock()
}
