package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueState is the lifecycle state of a single queue row.
// Transitions are monotone on one row: planned -> inprogress -> {sent, failed}.
// inprogress -> planned is allowed only during dispatcher startup recovery.
type QueueState string

const (
	QueuePlanned    QueueState = "planned"
	QueueInProgress QueueState = "inprogress"
	QueueSent       QueueState = "sent"
	QueueFailed     QueueState = "failed"
)

// Notification is immutable once created.
type Notification struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"-"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
}

// QueueRow is one planned send instant belonging to a notification's plan.
type QueueRow struct {
	PlannedAt time.Time  `json:"planned_at"`
	State     QueueState `json:"-"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// NotificationWithPlan is a notification joined with its sorted plan.
type NotificationWithPlan struct {
	Notification
	Plan []QueueRow `json:"plan"`
}

// QueueElement is what ReserveNotificationQueueBatch hands to a dispatcher
// worker: just enough to render and send the email, nothing more.
type QueueElement struct {
	NotificationID uuid.UUID
	Username       string
	Title          string
	Content        string
	PlannedAt      time.Time
}

// Repetitions describes a repeating notification's plan: count additional
// sends spaced interval apart after the first.
type Repetitions struct {
	Count    int
	Interval time.Duration
}

// CreateNotificationOpts is the input to Store.CreateNotification.
type CreateNotificationOpts struct {
	Title       string
	Content     string
	NotifyAt    time.Time
	Repetitions *Repetitions
}

// CreateNotificationRepetitions is the wire shape of Repetitions: interval is
// serialized as an integer number of seconds, per spec.
type CreateNotificationRepetitions struct {
	Count    int `json:"count"`
	Interval int `json:"interval"`
}

// CreateNotificationRequest is the inbound HTTP payload for POST /notifications.
type CreateNotificationRequest struct {
	Title       string                          `json:"title"`
	Content     string                          `json:"content"`
	NotifyAt    time.Time                       `json:"notify_at"`
	Repetitions *CreateNotificationRepetitions  `json:"repetitions,omitempty"`
}
