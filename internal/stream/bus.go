package stream

import (
	"log/slog"
	"sync"
)

// Handler receives events. Handlers run one at a time on the dispatcher
// goroutine and must not block for long.
type Handler func(Event)

// Subscription identifies a registered handler for Off.
type Subscription struct {
	name string
	id   uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// barrier is queued by flush and released when the dispatcher reaches it.
type barrier struct {
	done chan struct{}
}

func (barrier) EventName() string { return "" }

// bus delivers events in publish order from a single goroutine. Publish
// never blocks the caller.
type bus struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[string][]subscriber
	nextID  uint64
	pending []Event
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newBus(logger *slog.Logger) *bus {
	b := &bus{
		logger: logger,
		subs:   make(map[string][]subscriber),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *bus) subscribe(name string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[name] = append(b.subs[name], subscriber{id: b.nextID, handler: h})
	return Subscription{name: name, id: b.nextID}
}

func (b *bus) unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.name]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (b *bus) publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, e)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// flush blocks until every event published before the call was delivered.
func (b *bus) flush() {
	done := make(chan struct{})
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.pending = append(b.pending, barrier{done: done})
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-done
}

// close stops accepting events, drains the queue and waits for the dispatcher.
func (b *bus) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
}

func (b *bus) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.pending) == 0 {
			if b.closed {
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
			<-b.wake
			b.mu.Lock()
		}
		e := b.pending[0]
		b.pending[0] = nil
		b.pending = b.pending[1:]

		if bar, ok := e.(barrier); ok {
			b.mu.Unlock()
			close(bar.done)
			continue
		}

		list := b.subs[e.EventName()]
		handlers := make([]Handler, len(list))
		for i, s := range list {
			handlers[i] = s.handler
		}
		b.mu.Unlock()

		for _, h := range handlers {
			b.deliver(h, e)
		}
	}
}

func (b *bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", e.EventName(), "panic", r)
		}
	}()
	h(e)
}
