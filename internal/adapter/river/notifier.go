package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// Compile-time check: Notifier implements domain.Notifier.
var _ domain.Notifier = (*Notifier)(nil)

// NotificationJobArgs carries one notification delivery. River serializes
// this as JSON into its job queue table, so delivery survives a process
// restart and gets River's own retry schedule, all without ever putting
// notification failures on a workflow's critical path.
type NotificationJobArgs struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (NotificationJobArgs) Kind() string { return "notification.send" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Notifier implements domain.Notifier by enqueuing River jobs.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier backed by the given River client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify enqueues a notification delivery job.
func (n *Notifier) Notify(ctx context.Context, templateName, recipient string, payload map[string]string) error {
	_, err := n.client.Insert(ctx, NotificationJobArgs{
		Template:  templateName,
		Recipient: recipient,
		Payload:   payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}
