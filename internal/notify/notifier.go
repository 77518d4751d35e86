// Package notify fans insight alerts out to operator channels. Senders are
// best-effort: a failing channel never blocks the others, and delivery
// failures never reach the generation pipeline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one formatted alert over a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every configured sender, filtered by event
// type. With no configured event list every event passes, so a bare
// [notify] section with senders still alerts on everything.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	log     *slog.Logger
}

// NewNotifier builds a notifier over the given senders. events narrows which
// event types are forwarded; an empty list allows all.
func NewNotifier(senders []Sender, events []string, log *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		log:     log.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender unless the event type is
// filtered out. Per-sender failures are logged and folded into one error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.log.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()))
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.log.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", event))
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
