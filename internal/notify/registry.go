// Package notify delivers dismissible notifications to connected clients.
package notify

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Subscription is live from Subscribe until Close.
type Subscription struct {
	C <-chan Notification

	id       string
	owner    string
	ch       chan Notification
	registry *Registry
	once     sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.registry.remove(s) })
}

// Registry fans notifications out to subscribers. An empty owner subscribes
// to broadcasts only.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	logger *slog.Logger
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{subs: make(map[string]*Subscription), buffer: buffer, logger: logger}
}

func (r *Registry) Subscribe(owner string) *Subscription {
	ch := make(chan Notification, r.buffer)
	sub := &Subscription{C: ch, id: uuid.NewString(), owner: owner, ch: ch, registry: r}
	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()
	r.logger.Debug("notification subscriber added", "owner", owner, "subscription", sub.id)
	return sub
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.id]; !ok {
		return
	}
	delete(r.subs, sub.id)
	close(sub.ch)
	r.logger.Debug("notification subscriber removed", "owner", sub.owner, "subscription", sub.id)
}

// Publish delivers n to every subscription of owner.
func (r *Registry) Publish(owner string, n Notification) {
	r.deliver(n, func(s *Subscription) bool { return s.owner == owner })
}

// Broadcast delivers n to every subscription.
func (r *Registry) Broadcast(n Notification) {
	r.deliver(n, func(*Subscription) bool { return true })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) deliver(n Notification, match func(*Subscription) bool) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			r.logger.Warn("notification dropped, subscriber buffer full", "owner", sub.owner, "title", n.Title)
		}
	}
}

func Error(title, message string) Notification {
	return Notification{Level: LevelError, Title: title, Message: message}
}

func Success(title, message string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Message: message}
}
