package bus

import (
	"context"
	"sync"
	"time"

	"github.com/notesearch/note-search/internal/pkg/errors"
	"github.com/notesearch/note-search/internal/pkg/logger"
)

// MemoryBus delivers events to subscribers in-process. Each delivery
// runs on its own goroutine so a slow recorder never stalls a search.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	log      *logger.Logger
	inflight sync.WaitGroup
}

// NewMemoryBus builds an empty in-process bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler), log: log}
}

// Publish fans the event out to every subscriber of the topic. A topic
// with no subscribers swallows the event silently.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	for _, handler := range b.handlers[topic] {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			// Handlers outlive the publishing request, so the request's
			// cancellation must not abort them.
			if err := h(context.WithoutCancel(ctx), event); err != nil {
				b.log.WithError(err).Warn("event handler failed", "topic", topic, "event_id", event.ID)
			}
		}(handler)
	}
	return nil
}

// Subscribe adds a handler for the topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// DrainTimeout waits until all in-flight handlers finish or the
// timeout passes, reporting which happened.
func (b *MemoryBus) DrainTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops accepting events, then gives in-flight handlers up to
// ten seconds to finish.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if !b.DrainTimeout(10 * time.Second) {
		b.log.Warn("event drain timeout reached, some handlers may not have completed")
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
