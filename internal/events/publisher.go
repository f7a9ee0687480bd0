package events

import (
	"log/slog"
	"sync"
)

// Publisher delivers notifications to observers.
type Publisher interface {
	Publish(n Notification)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(n Notification)

func (f PublisherFunc) Publish(n Notification) { f(n) }

// Multi fans out to every non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(n Notification) {
	for _, p := range m {
		if p != nil {
			p.Publish(n)
		}
	}
}

// LogPublisher writes each notification line to the logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{logger: log.With(slog.String("component", "events"))}
}

func (p *LogPublisher) Publish(n Notification) {
	line, err := n.Line()
	if err != nil {
		p.logger.Error("event dropped",
			slog.String("event", string(n.Event)),
			slog.String("handle", n.Handle.String()),
			slog.Any("error", err),
		)
		return
	}
	p.logger.Info(line,
		slog.String("event", string(n.Event)),
		slog.String("handle", n.Handle.String()),
	)
}

// Recorder keeps every published notification in memory. Tests use it to assert emissions.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Publish(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications named name were recorded.
func (r *Recorder) Count(name Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Event == name {
			n++
		}
	}
	return n
}
