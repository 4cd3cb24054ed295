package broker

import (
	"context"
	"sync"
)

// Local, tek process içinde çalışan broker. Publish, handler'ları senkron çağırır.
// Varsayılan broker budur; çok node'lu kurulumda Redis veya NATS seçilir.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewLocal, boş bir yerel broker döner.
func NewLocal() *Local {
	return &Local{}
}

func (b *Local) Publish(ctx context.Context, room string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(room, payload)
	}
	return nil
}

func (b *Local) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.handlers = append(b.handlers, handler)
	return nil
}

func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
