package bridge

import (
	"context"
	"time"

	"github.com/cesargomez89/stemforge/internal/logger"
	"github.com/cesargomez89/stemforge/internal/tools"
)

// Notifier delivers a terminal-state notification to the desktop.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// CommandNotifier shells out to a user-configured command, passing
// title and body as arguments. Works with notify-send, osascript
// wrappers and the like.
type CommandNotifier struct {
	Command string
	Runner  tools.Runner
	Log     *logger.Logger
}

func (n *CommandNotifier) Notify(ctx context.Context, title, body string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := n.Runner.Run(ctx, n.Command, title, body)
	if err != nil {
		n.Log.Warn("Notify command failed", "command", n.Command, "detail", res.Diagnostic())
		return err
	}
	return nil
}

// LogNotifier is the fallback when no notify command is configured.
type LogNotifier struct {
	Log *logger.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) error {
	n.Log.Info("Notification", "title", title, "body", body)
	return nil
}

// NewNotifier picks the notifier implementation for the configured
// command.
func NewNotifier(command string, runner tools.Runner, log *logger.Logger) Notifier {
	log = log.WithComponent("notifier")
	if command == "" {
		return &LogNotifier{Log: log}
	}
	return &CommandNotifier{Command: command, Runner: runner, Log: log}
}
