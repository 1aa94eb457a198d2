// Package notify delivers user notifications to every registered sender
// (Telegram, Discord). Delivery is asynchronous and best effort; events can
// be filtered so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
)

// DefaultSendTimeout bounds one delivery to all senders.
const DefaultSendTimeout = 10 * time.Second

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events whose type is in the allowed set; an empty set allows all.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, timeout time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify formats the event and hands it to the senders in the background.
// It never blocks on delivery and never reports failures to the caller.
func (n *Notifier) Notify(ctx context.Context, eventType, userID string, payload map[string]any) {
	if len(n.events) > 0 && !n.events[eventType] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", eventType))
		return
	}
	if len(n.senders) == 0 {
		return
	}

	title, message := Format(eventType, userID, payload)

	// Delivery outlives the triggering request.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		n.dispatch(sendCtx, eventType, title, message)
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// dispatch sends to every sender; one failing sender does not prevent
// delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, eventType, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			metrics.NotificationsSent.WithLabelValues(s.Name(), "failed").Inc()
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", eventType),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(s.Name(), "sent").Inc()
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

// Format renders an event as a title and a plain-text body.
func Format(eventType, userID string, payload map[string]any) (string, string) {
	var title string
	switch eventType {
	case domain.EventGoalMatch:
		title = fmt.Sprintf("New match for %q", str(payload["goal_title"]))
	case domain.EventPriceDrop:
		title = fmt.Sprintf("Price drop: %s", str(payload["title"]))
	case domain.EventDealExpired:
		title = fmt.Sprintf("Deal expired: %s", str(payload["title"]))
	default:
		title = eventType
	}

	var b strings.Builder
	switch eventType {
	case domain.EventGoalMatch:
		fmt.Fprintf(&b, "%s\n%s at %s\n", str(payload["title"]), money(payload["price"]), str(payload["source"]))
	case domain.EventPriceDrop:
		fmt.Fprintf(&b, "%s -> %s\n", money(payload["old_price"]), money(payload["new_price"]))
	}
	if url := str(payload["url"]); url != "" {
		b.WriteString(url)
		b.WriteByte('\n')
	}
	if eventType != domain.EventGoalMatch && eventType != domain.EventPriceDrop && eventType != domain.EventDealExpired {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, payload[k])
		}
	}
	if userID != "" {
		fmt.Fprintf(&b, "user: %s", userID)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func money(v any) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("$%.2f", f)
	}
	return str(v)
}
