package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mirror/internal/requests"
	"github.com/kalambet/mirror/internal/storage"
)

// JobType is the queue job that delivers one notification into an inbox.
const JobType = "notify_deliver"

// JobQueue abstracts enqueueing onto the SQLite job queue.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
}

// QueueNotifier implements requests.Notifier by enqueueing a delivery job.
// The caller returns as soon as the job is stored; Worker does the rest.
type QueueNotifier struct {
	jobs        JobQueue
	maxAttempts int
}

func NewQueueNotifier(jobs JobQueue) *QueueNotifier {
	return &QueueNotifier{jobs: jobs, maxAttempts: 5}
}

// deliverPayload is the job payload. The notification ID is fixed at enqueue
// time so a retried delivery writes the same inbox row.
type deliverPayload struct {
	NotificationID string                `json:"notification_id"`
	CreatedAt      time.Time             `json:"created_at"`
	Notification   requests.Notification `json:"notification"`
}

func (q *QueueNotifier) Notify(_ context.Context, n requests.Notification) error {
	if n.RecipientID == "" {
		return fmt.Errorf("notification %q has no recipient", n.Type)
	}
	body, err := json.Marshal(deliverPayload{
		NotificationID: uuid.New().String(),
		CreatedAt:      time.Now().UTC(),
		Notification:   n,
	})
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(body),
		MaxAttempts: q.maxAttempts,
	}
	if err := q.jobs.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}
	return nil
}
