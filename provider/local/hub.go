package local

import (
	"context"
	"fmt"
	"sync"

	auth "github.com/goliatone/go-dashboard-auth"
)

// hub fans session change events out to subscribers. Delivery is
// synchronous, subscriber order is not guaranteed.
type hub struct {
	mu     sync.Mutex
	subs   map[uint64]auth.SessionChangeFunc
	nextID uint64
	logger auth.Logger
}

func newHub(logger auth.Logger) *hub {
	return &hub{
		subs:   make(map[uint64]auth.SessionChangeFunc),
		logger: logger,
	}
}

func (h *hub) subscribe(fn auth.SessionChangeFunc) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

func (h *hub) emit(ctx context.Context, event auth.SessionEvent) {
	h.mu.Lock()
	fns := make([]auth.SessionChangeFunc, 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		h.deliver(ctx, fn, event)
	}
}

func (h *hub) deliver(ctx context.Context, fn auth.SessionChangeFunc, event auth.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("session change subscriber panicked", "kind", event.Kind, "error", fmt.Sprint(r))
		}
	}()
	fn(ctx, event)
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
