// Package store is the durable persistence layer (spec.md §4.1, component
// C1): accounts, notifications, and the scheduled send-attempt queue.
// Store is the interface every caller (HTTP handlers, the dispatcher, the
// cleaner) depends on; Postgres is the pgxpool-backed implementation and
// Memory is an in-process fake used by unit tests, mirroring the
// teacher's split between NotificationRepository and
// MockNotificationRepository.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/notify-svc/scheduler/internal/domain"
)

// Store is the full C1 contract from spec.md §4.1.
type Store interface {
	// CreateAccount inserts a new account. created is false (not an
	// error) when username already exists.
	CreateAccount(ctx context.Context, username, passwordHash string) (created bool, err error)

	// GetAccountPasswordHash returns (hash, true, nil) when found,
	// ("", false, nil) when not found — never an error for "not found".
	GetAccountPasswordHash(ctx context.Context, username string) (hash string, found bool, err error)

	// ListOldAccountUsernames returns usernames created before
	// now()-maxAge. May be batched; ordering is unspecified.
	ListOldAccountUsernames(ctx context.Context, maxAge time.Duration) ([]string, error)

	// DeleteAccountByUsername is an idempotent cascading delete.
	DeleteAccountByUsername(ctx context.Context, username string) error

	// CreateNotification atomically inserts the notification and its
	// expanded plan as planned queue rows, returning the generated UUID.
	CreateNotification(ctx context.Context, username string, opts domain.CreateNotificationOpts) (uuid.UUID, error)

	// GetNotification returns the notification with its plan sorted by
	// planned_at ascending, or (nil, false, nil) when missing.
	GetNotification(ctx context.Context, id uuid.UUID) (*domain.NotificationWithPlan, bool, error)

	// ListUserNotifications returns every notification owned by username,
	// each with its sorted plan. Ordering across notifications is
	// unspecified.
	ListUserNotifications(ctx context.Context, username string) ([]domain.NotificationWithPlan, error)

	// ReserveNotificationQueueBatch atomically claims up to B rows whose
	// state=planned and planned_at < now(), moving them to inprogress.
	// No row is ever returned to two concurrent callers.
	ReserveNotificationQueueBatch(ctx context.Context) ([]domain.QueueElement, error)

	// ResetNotificationQueue moves every inprogress row back to planned.
	// Called exactly once, at dispatcher startup.
	ResetNotificationQueue(ctx context.Context) error

	// SaveNotificationResult records the outcome of one send attempt.
	// result=nil means failed (state=failed, sent_at=NULL); a non-nil
	// timestamp means sent (state=sent, sent_at=*result). Failing to
	// find the row is an invariant breach and is reported as an error.
	SaveNotificationResult(ctx context.Context, id uuid.UUID, plannedAt time.Time, result *time.Time) error
}

// BatchSize is B from spec.md §4.1: the maximum number of rows reserved
// by a single ReserveNotificationQueueBatch call.
const BatchSize = 100
