package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentIntegrity recomputes stored document totals and reports drift.
	TaskDocumentIntegrity = "documents:integrity"
)

// IntegrityPayload carries scheduling metadata.
type IntegrityPayload struct {
	RequestedBy  string    `json:"requested_by,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityTask constructs an Asynq task for the integrity scan.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
