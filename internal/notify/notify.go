// Package notify provides the notification surface the retry controller
// reports to when synchronization attempts are exhausted.
//
// Notifications are fire-and-forget status messages with a short title and
// description; delivery failures are swallowed. Nothing else in the system
// depends on a notification being seen.
package notify

import (
	"log"
	"os"
)

// Notifier delivers a human-readable status message.
type Notifier interface {
	Notify(title, description string)
}

// LogNotifier writes notifications to a standard logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a Notifier backed by the given logger.
// If logger is nil, a default logger writing to stderr is used.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(title, description string) {
	n.logger.Printf("%s: %s", title, description)
}

// Multi fans one notification out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

type multi []Notifier

func (m multi) Notify(title, description string) {
	for _, n := range m {
		n.Notify(title, description)
	}
}

// Discard returns a Notifier that drops everything. Used in tests.
func Discard() Notifier {
	return discard{}
}

type discard struct{}

func (discard) Notify(string, string) {}
