package inspect

import "sync"

// Broadcaster fans messages out to subscriber channels. Slow subscribers drop
// messages rather than block the session loop.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Message
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan Message),
	}
}

// Register creates the channel for id, closing any previous one.
func (b *Broadcaster) Register(id string) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[id]; ok {
		close(old)
	}
	ch := make(chan Message, 64)
	b.subscribers[id] = ch
	return ch
}

// Unregister closes and forgets the channel of id. It only closes ch if it is
// still the registered one.
func (b *Broadcaster) Unregister(id string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.subscribers[id]; ok && cur == ch {
		close(cur)
		delete(b.subscribers, id)
	}
}

func (b *Broadcaster) SendTo(id string, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[id]; ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broadcaster) Broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
