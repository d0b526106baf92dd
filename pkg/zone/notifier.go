package zone

import (
	"log/slog"
	"sync"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
)

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(kind learning.NotificationKind, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("notification", "kind", kind, "message", message)
}

// Notification is one message captured by a RecordingNotifier.
type Notification struct {
	Kind    learning.NotificationKind `json:"kind"`
	Message string                    `json:"message"`
}

// RecordingNotifier keeps every notification in memory, for tools that
// report them after a run.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *RecordingNotifier) Notify(kind learning.NotificationKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: kind, Message: message})
}

// Sent returns a copy of the captured notifications.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
