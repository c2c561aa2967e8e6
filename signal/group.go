package signal

// Group ties a set of subscriptions to the lifetime of their owner. Adapters
// subscribe through a Group and call Release when they are destroyed.
type Group struct {
	bus     *Bus
	handles []Handle
}

func NewGroup(b *Bus) *Group {
	return &Group{bus: b}
}

// On subscribes handler to kind and tracks the subscription in g.
func On[T any](g *Group, kind Kind[T], handler func(T)) Handle {
	if g == nil {
		return Handle{}
	}
	h := Subscribe(g.bus, kind, handler)
	if h.Valid() {
		g.handles = append(g.handles, h)
	}
	return h
}

func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	return len(g.handles)
}

// Release unsubscribes everything in the group. It is safe to call twice.
func (g *Group) Release() {
	if g == nil {
		return
	}
	for _, h := range g.handles {
		g.bus.Unsubscribe(h)
	}
	g.handles = nil
}
