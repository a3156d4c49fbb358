package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 16

// Dispatcher is the in-process change channel. Delivery is best effort: a subscriber
// whose buffer is full misses the event.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription
	bufferSize  int
}

type subscription struct {
	id     string
	types  map[EventType]struct{}
	stream chan Event
	once   sync.Once
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[string]*subscription),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers interest in the given event types on table; no types means all of them.
// The stream is closed once released or once ctx is done.
func (d *Dispatcher) Subscribe(ctx context.Context, table string, types ...EventType) (<-chan Event, func()) {
	if table == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	if len(types) == 0 {
		types = AllEventTypes
	}
	sub := &subscription{
		id:     uuid.NewString(),
		types:  make(map[EventType]struct{}, len(types)),
		stream: make(chan Event, d.bufferSize),
	}
	for _, eventType := range types {
		sub.types[eventType] = struct{}{}
	}
	d.register(table, sub)

	release := func() {
		sub.once.Do(func() {
			d.unregister(table, sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		release()
	}()
	return sub.stream, release
}

// Publish delivers event to every matching subscriber without blocking.
func (d *Dispatcher) Publish(_ context.Context, event Event) error {
	if err := event.validate(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers[event.Table] {
		if _, wanted := sub.types[event.Type]; !wanted {
			continue
		}
		select {
		case sub.stream <- event:
		default:
		}
	}
	return nil
}

// subscriberCount reports the number of live subscriptions on table.
func (d *Dispatcher) subscriberCount(table string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[table])
}

func (d *Dispatcher) register(table string, sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[table]; !ok {
		d.subscribers[table] = make(map[string]*subscription)
	}
	d.subscribers[table][sub.id] = sub
}

// unregister closes the stream under the write lock so Publish never sends on a closed channel.
func (d *Dispatcher) unregister(table, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[table]
	sub, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(d.subscribers, table)
	}
	close(sub.stream)
}
