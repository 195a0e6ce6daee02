package providers

import (
	"sync"
	"time"
)

type NotifyKind string

const (
	// NotifyError is a recoverable failure surfaced to the user
	NotifyError NotifyKind = "error"
	// NotifyStale means the client state is unrecoverably old and the
	// session must be restarted. Never treated as an ordinary error.
	NotifyStale NotifyKind = "stale"
)

type Notification struct {
	Kind    NotifyKind `json:"kind"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// NotifierInterface is the sink for user-visible error messages, the
// equivalent of a UI snackbar.
type NotifierInterface interface {
	Notify(kind NotifyKind, message string)
	Recent(limit int) []Notification
}

const notifierRingSize = 64

// Notifier logs notifications and keeps a bounded history for the
// status API.
type Notifier struct {
	mu      sync.Mutex
	logger  Logger
	history []Notification
}

func NewNotifierProvider(logger Logger) NotifierInterface {
	return &Notifier{logger: logger}
}

func (n *Notifier) Notify(kind NotifyKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if kind == NotifyStale {
		n.logger.Errorf(TypeApp, "Stale client state: %s", message)
	} else {
		n.logger.Warnf(TypeApp, "Notification: %s", message)
	}

	n.history = append(n.history, Notification{
		Kind:    kind,
		Message: message,
		Time:    time.Now(),
	})
	if len(n.history) > notifierRingSize {
		n.history = n.history[len(n.history)-notifierRingSize:]
	}
}

func (n *Notifier) Recent(limit int) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	if limit <= 0 || limit > len(n.history) {
		limit = len(n.history)
	}
	out := make([]Notification, limit)
	copy(out, n.history[len(n.history)-limit:])
	return out
}
