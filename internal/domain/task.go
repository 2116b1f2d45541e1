package domain

import "time"

type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusRetrying   TaskStatus = "RETRYING"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// ErrorRecord is one failed attempt in a task's history.
type ErrorRecord struct {
	Err     string    `json:"error"`
	At      time.Time `json:"timestamp"`
	Attempt int       `json:"attempt"`
}

// Task wraps an InboundEvent with its processing metadata. A task is owned
// exclusively by the processor while in flight; no other goroutine reads it
// until it reaches a terminal state.
type Task struct {
	Event    *InboundEvent
	Priority Priority

	Status       TaskStatus
	Attempt      int
	QueuedAt     time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorHistory []ErrorRecord
}

func NewTask(ev *InboundEvent, priority Priority) *Task {
	return &Task{
		Event:    ev,
		Priority: priority,
		Status:   TaskStatusQueued,
	}
}

// RecordError appends a failed attempt to the task history.
func (t *Task) RecordError(err error, at time.Time) {
	t.ErrorHistory = append(t.ErrorHistory, ErrorRecord{
		Err:     err.Error(),
		At:      at,
		Attempt: t.Attempt,
	})
}

// DeadLetterRecord is the terminal snapshot of a task that exhausted its
// retry budget, retained for operator inspection.
type DeadLetterRecord struct {
	EventID      string        `json:"event_id"`
	Kind         EventKind     `json:"kind"`
	ActorID      string        `json:"actor_id"`
	ChannelID    string        `json:"channel_id"`
	Attempts     int           `json:"attempts"`
	QueuedAt     time.Time     `json:"queued_at"`
	FailedAt     time.Time     `json:"failed_at"`
	ErrorHistory []ErrorRecord `json:"error_history"`
}

func NewDeadLetterRecord(t *Task, failedAt time.Time) DeadLetterRecord {
	return DeadLetterRecord{
		EventID:      t.Event.ID,
		Kind:         t.Event.Kind,
		ActorID:      t.Event.ActorID,
		ChannelID:    t.Event.ChannelID,
		Attempts:     t.Attempt,
		QueuedAt:     t.QueuedAt,
		FailedAt:     failedAt,
		ErrorHistory: t.ErrorHistory,
	}
}
