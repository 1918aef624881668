package app

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const notificationTTL = 8 * time.Second

// Notification is transient UI state, removed by the user or by the
// expiry timer.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"` // info, success, warning, error
	Timestamp time.Time `json:"timestamp"`
}

// NotificationCenter appends notifications and expires each one on its
// own timer after the display window. No dedup and no cap; the window
// bounds growth.
type NotificationCenter struct {
	mu    sync.Mutex
	items []Notification
	ttl   time.Duration
}

func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{ttl: notificationTTL}
}

// Push adds a notification and schedules its expiry.
func (n *NotificationCenter) Push(message, kind string) string {
	id := ulid.Make().String()
	n.mu.Lock()
	n.items = append(n.items, Notification{
		ID:        id,
		Message:   message,
		Type:      kind,
		Timestamp: time.Now(),
	})
	n.mu.Unlock()

	time.AfterFunc(n.ttl, func() { n.Dismiss(id) })
	return id
}

// Dismiss removes a notification by id; unknown ids are a no-op (the
// expiry timer and a user click can race).
func (n *NotificationCenter) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return
		}
	}
}

// List returns a snapshot of live notifications.
func (n *NotificationCenter) List() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.items))
	copy(out, n.items)
	return out
}
