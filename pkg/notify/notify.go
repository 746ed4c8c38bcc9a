// Package notify dispatches desktop notifications.
//
// Dispatch is fire-and-forget: the helper process is started and reaped
// in the background, and a missing helper is not an error worth stopping
// an alert for.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
)

// Notifier shows one notification.
type Notifier interface {
	Notify(ctx context.Context, title, subtitle, message string) error
}

// Desktop notifies through terminal-notifier on macOS and notify-send
// elsewhere.
type Desktop struct {
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// NewDesktop returns a Desktop notifier.
func NewDesktop(logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{logger: logger, lookPath: exec.LookPath}
}

// Notify starts the platform helper and returns without waiting for it.
// When no helper is installed the notification is dropped and logged at
// debug level.
func (d *Desktop) Notify(ctx context.Context, title, subtitle, message string) error {
	name, args := command(runtime.GOOS, title, subtitle, message)
	path, err := d.lookPath(name)
	if err != nil {
		d.logger.Debug("notification helper not found", "helper", name, "error", err)
		return nil
	}
	cmd := exec.CommandContext(ctx, path, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			d.logger.Debug("notification helper exited", "helper", name, "error", err)
		}
	}()
	return nil
}

func command(goos, title, subtitle, message string) (string, []string) {
	if goos == "darwin" {
		return "terminal-notifier", []string{
			"-message", message,
			"-title", title,
			"-subtitle", subtitle,
		}
	}
	body := message
	if subtitle != "" {
		body = subtitle + ": " + message
	}
	return "notify-send", []string{title, body}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, string, string, string) error { return nil }
