package stub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// SentMessage is one delivery recorded by the stub notification adapter.
type SentMessage struct {
	Template  string
	Recipient string
	Payload   map[string]string
}

// Notification implements domain.NotificationAdapter by logging deliveries
// and recording them for inspection.
type Notification struct {
	mu   sync.Mutex
	sent []SentMessage
}

var _ domain.NotificationAdapter = (*Notification)(nil)

func NewNotification() *Notification {
	return &Notification{}
}

func (a *Notification) Send(ctx context.Context, templateName, recipient string, payload map[string]string) (string, error) {
	a.mu.Lock()
	a.sent = append(a.sent, SentMessage{Template: templateName, Recipient: recipient, Payload: payload})
	a.mu.Unlock()

	slog.InfoContext(ctx, "notification sent",
		"template", templateName,
		"recipient", recipient,
	)
	return uuid.NewString(), nil
}

// Sent returns a copy of everything delivered so far.
func (a *Notification) Sent() []SentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SentMessage, len(a.sent))
	copy(out, a.sent)
	return out
}
