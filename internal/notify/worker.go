package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/mirror/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Inbox persists delivered notifications.
type Inbox interface {
	SaveNotification(n storage.Notification) error
}

// Worker processes notify_deliver jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	inbox  Inbox
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, inbox Inbox, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		inbox:  inbox,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single notify_deliver job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(_ context.Context, job *storage.Job) error {
	var payload deliverPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	n := payload.Notification
	if payload.NotificationID == "" || n.RecipientID == "" {
		return fmt.Errorf("payload missing notification id or recipient")
	}

	extra := "{}"
	if len(n.Payload) > 0 {
		b, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("marshalling notification payload: %w", err)
		}
		extra = string(b)
	}

	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if err := w.inbox.SaveNotification(storage.Notification{
		ID:          payload.NotificationID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		PayloadJSON: extra,
		CreatedAt:   createdAt,
	}); err != nil {
		return fmt.Errorf("saving notification %s: %w", payload.NotificationID, err)
	}
	w.logger.Debug("notification delivered", "notification_id", payload.NotificationID, "type", n.Type, "recipient", n.RecipientID)
	return nil
}
