package wsproto

import (
	"sync"

	"go.uber.org/zap"
)

// NotificationHandler receives each NOT_ frame delivered for its Type.
type NotificationHandler func(data []byte)

// Bus fans asynchronous NOT_ frames out to a type-keyed handler and to any
// one-shot awaiters registered for that type. The handler table is mutated
// only between acquisitions; one-shot awaiters are added and removed by the
// acquisition orchestrator during a single acquisition.
type Bus struct {
	logger *zap.Logger

	mu        sync.Mutex
	handlers  map[string]NotificationHandler
	awaiters  map[string][]chan []byte
}

// NewBus creates an empty notification bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string]NotificationHandler),
		awaiters: make(map[string][]chan []byte),
	}
}

// On registers the standing handler for a notification type, replacing any
// previous one.
func (b *Bus) On(notificationType string, handler NotificationHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[notificationType] = handler
}

// Off removes the standing handler for a notification type.
func (b *Bus) Off(notificationType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, notificationType)
}

// AwaitOnce registers a one-shot channel for the next frame of
// notificationType and returns it. Registration must happen before the
// triggering command is sent — the acquisition orchestrator relies on this
// ordering to avoid the notification overtaking the command response.
func (b *Bus) AwaitOnce(notificationType string) <-chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.awaiters[notificationType] = append(b.awaiters[notificationType], ch)
	b.mu.Unlock()
	return ch
}

// CancelAwait removes a one-shot awaiter that timed out or is no longer
// needed, so late deliveries don't leak into an abandoned channel read.
func (b *Bus) CancelAwait(notificationType string, ch <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.awaiters[notificationType]
	for i, c := range list {
		if c == ch {
			b.awaiters[notificationType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch delivers one inbound NOT_ frame to the standing handler (if any)
// and every currently-registered one-shot awaiter for its Type.
func (b *Bus) Dispatch(notificationType string, data []byte) {
	b.mu.Lock()
	handler := b.handlers[notificationType]
	awaiters := b.awaiters[notificationType]
	delete(b.awaiters, notificationType)
	b.mu.Unlock()

	if handler == nil && len(awaiters) == 0 {
		b.logger.Debug("wsproto: notification with no recipient", zap.String("type", notificationType))
		return
	}

	if handler != nil {
		handler(data)
	}
	for _, ch := range awaiters {
		ch <- data
	}
}
