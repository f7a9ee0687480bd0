package events

import (
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64

	// AllHandles subscribes to every handle.
	AllHandles = "*"
)

// Hub is an in-process pub/sub dispatcher for handle-scoped notifications.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Notification
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Notification{},
	}
}

// Publish delivers n to subscribers of its handle key and to wildcard subscribers.
// Slow subscribers are skipped rather than blocking the caller.
func (h *Hub) Publish(n Notification) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	deliver := func(ch chan Notification) {
		select {
		case ch <- n:
		default:
		}
	}
	if n.Handle.Platform != "" || n.Handle.Handle != "" {
		for _, ch := range h.streams[n.Handle.Key()] {
			deliver(ch)
		}
	}
	for _, ch := range h.streams[AllHandles] {
		deliver(ch)
	}
}

// Subscribe registers one subscriber under a handle key (or AllHandles).
// It returns a stream ID, read-only channel, and a cancel function.
func (h *Hub) Subscribe(key string, buffer int) (string, <-chan Notification, func()) {
	if h == nil || key == "" {
		ch := make(chan Notification)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	streams, ok := h.streams[key]
	if !ok {
		streams = map[string]chan Notification{}
		h.streams[key] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			streams := h.streams[key]
			if streams != nil {
				if current, ok := streams[streamID]; ok {
					delete(streams, streamID)
					close(current)
				}
				if len(streams) == 0 {
					delete(h.streams, key)
				}
			}
			h.mu.Unlock()
		})
	}

	return streamID, ch, cancel
}
