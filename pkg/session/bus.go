package session

import "sync"

// EventKind 会话事件类型
type EventKind string

const (
	PointsChanged  EventKind = "points-changed"
	SessionChanged EventKind = "session-changed"
)

// Event is delivered to every subscriber after a session write.
type Event struct {
	Kind   EventKind
	Points int
	Delta  int
}

// Bus fans session events out to in-process subscribers. Handlers run
// synchronously on the publishing goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish 广播事件
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}
