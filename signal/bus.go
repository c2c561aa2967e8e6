package signal

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type KindID uint32

var nextKindID atomic.Uint32

// Kind identifies a signal and fixes its payload type. Producers and consumers
// only ever share the Kind value.
type Kind[T any] struct {
	id   KindID
	name string
}

func NewKind[T any](name string) Kind[T] {
	return Kind[T]{id: KindID(nextKindID.Add(1)), name: name}
}

func (k Kind[T]) ID() KindID {
	return k.id
}

func (k Kind[T]) Name() string {
	return k.name
}

func (k Kind[T]) Valid() bool {
	return k.id != 0
}

// Handle identifies one subscription. The zero Handle is inert.
type Handle struct {
	kind KindID
	id   uint64
}

func (h Handle) Valid() bool {
	return h.id != 0
}

type subscriber struct {
	id      uint64
	handler func(any)
}

// Bus is a synchronous typed publish/subscribe registry. It is created at
// session start and torn down with Close at session end.
//
// Dispatch runs on the caller's goroutine. Handlers for a kind run in the
// order they subscribed, against a snapshot taken when the dispatch began, so
// unsubscribing inside a handler only affects later dispatches. A handler may
// dispatch again; nested dispatches complete before the outer one continues.
type Bus struct {
	subs   map[KindID][]subscriber
	names  map[KindID]string
	nextID uint64
	closed bool
	depth  int
	log    logrus.FieldLogger
}

func NewBus(log logrus.FieldLogger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{
		subs:  make(map[KindID][]subscriber),
		names: make(map[KindID]string),
		log:   log.WithField("component", "signal"),
	}
}

// Subscribe registers handler for kind. Subscribing to a closed bus returns
// an inert handle.
func Subscribe[T any](b *Bus, kind Kind[T], handler func(T)) Handle {
	if b == nil || b.closed || handler == nil || !kind.Valid() {
		return Handle{}
	}
	b.nextID++
	sub := subscriber{
		id: b.nextID,
		handler: func(payload any) {
			handler(payload.(T))
		},
	}
	b.subs[kind.id] = append(b.subs[kind.id], sub)
	b.names[kind.id] = kind.name
	return Handle{kind: kind.id, id: sub.id}
}

// Unsubscribe removes a subscription. Unknown or already removed handles are
// ignored.
func (b *Bus) Unsubscribe(h Handle) {
	if b == nil || !h.Valid() {
		return
	}
	list := b.subs[h.kind]
	for i, sub := range list {
		if sub.id != h.id {
			continue
		}
		// Copy so that any in-progress snapshot of the old slice stays intact.
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, h.kind)
		} else {
			b.subs[h.kind] = next
		}
		return
	}
}

// Dispatch delivers payload to every subscriber of kind. No subscribers is
// not an error.
func Dispatch[T any](b *Bus, kind Kind[T], payload T) {
	if b == nil || b.closed {
		return
	}
	list := b.subs[kind.id]
	if len(list) == 0 {
		return
	}
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)

	b.depth++
	defer func() { b.depth-- }()
	if b.depth > 1 {
		b.log.WithFields(logrus.Fields{"signal": kind.name, "depth": b.depth}).Debug("nested dispatch")
	}
	for _, sub := range snapshot {
		sub.handler(payload)
	}
}

// Subscribers reports how many handlers are registered for kind.
func Subscribers[T any](b *Bus, kind Kind[T]) int {
	if b == nil {
		return 0
	}
	return len(b.subs[kind.id])
}

// Counts returns subscriber counts keyed by signal name.
func (b *Bus) Counts() map[string]int {
	out := make(map[string]int)
	if b == nil {
		return out
	}
	for id, list := range b.subs {
		out[b.names[id]] = len(list)
	}
	return out
}

// Close drops every subscription. Later dispatches are no-ops.
func (b *Bus) Close() {
	if b == nil || b.closed {
		return
	}
	b.closed = true
	b.subs = make(map[KindID][]subscriber)
}
