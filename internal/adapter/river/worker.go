package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/provisiq/internal/domain"
)

// NotificationWorker delivers queued notifications through the
// NotificationAdapter. Returning an error hands the job back to River for
// its own retry schedule; the originating workflow finished long ago and is
// never affected.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationJobArgs]

	adapter domain.NotificationAdapter
}

// Work delivers a single notification.
func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	txID, err := w.adapter.Send(ctx, job.Args.Template, job.Args.Recipient, job.Args.Payload)
	if err != nil {
		slog.WarnContext(ctx, "notification delivery failed",
			"template", job.Args.Template,
			"recipient", job.Args.Recipient,
			"job_id", job.ID,
			"attempt", job.Attempt,
			"error", err,
		)
		return err
	}

	slog.InfoContext(ctx, "notification delivered",
		"template", job.Args.Template,
		"recipient", job.Args.Recipient,
		"transaction_id", txID,
		"job_id", job.ID,
	)
	return nil
}
