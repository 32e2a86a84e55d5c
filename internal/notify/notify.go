// Package notify delivers alerts about closed positions to the user.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appTitle = "Stock Advisors"

// Notifier delivers a short alert to the user.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop sends native desktop notifications.
type Desktop struct{}

func (Desktop) Notify(title, message string) error {
	return beeep.Notify(appTitle+": "+title, message, "")
}

// Noop swallows notifications; used when they are disabled.
type Noop struct{}

func (Noop) Notify(string, string) error { return nil }

// LogOnly writes notifications to the structured log instead of the
// desktop, for headless environments.
type LogOnly struct {
	Log *slog.Logger
}

func (l LogOnly) Notify(title, message string) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "title", title, "message", message)
	return nil
}

// ForConfig picks the notifier at startup: disabled gets Noop, headless
// environments get the log sink, everything else the desktop.
func ForConfig(enabled, headless bool) Notifier {
	switch {
	case !enabled:
		return Noop{}
	case headless:
		return LogOnly{}
	default:
		return Desktop{}
	}
}
