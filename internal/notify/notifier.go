// Package notify forwards run events to chat channels. Events are filtered
// by type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards allowed event types; NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. An
// empty events list allows every event type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders a run event and sends it through Notify.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.RunEvent) error {
	title, message := FormatEvent(ev)
	return n.Notify(ctx, ev.Type, title, message)
}

// FormatEvent renders the title and body of a run event.
func FormatEvent(ev domain.RunEvent) (title, message string) {
	switch ev.Type {
	case domain.ChannelAlertSeniorImpaired:
		title = "Senior tranche impaired"
	default:
		title = fmt.Sprintf("Run completed: %s", ev.Kind)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run %s", ev.RunID)
	if ev.PortfolioID != "" {
		fmt.Fprintf(&b, "\nportfolio %s", ev.PortfolioID)
	}
	if ev.StructureID != "" {
		fmt.Fprintf(&b, "\nstructure %s", ev.StructureID)
	}
	if ev.Summary != "" {
		fmt.Fprintf(&b, "\n%s", ev.Summary)
	}
	return title, b.String()
}

// dispatch sends to every sender. One sender failing does not stop the
// others; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
