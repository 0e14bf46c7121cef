package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notify-svc/scheduler/internal/domain"
)

// pgxIface is the subset of *pgxpool.Pool's API the Postgres store uses.
// Narrowing to an interface (rather than depending on *pgxpool.Pool
// directly) lets postgres_test.go substitute pgxmock's in-memory pool for
// a live database connection; *pgxpool.Pool satisfies this interface
// unchanged, so production wiring in cmd/server/main.go is unaffected.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres is the pgxpool-backed Store implementation, grounded on the
// teacher's pgNotificationRepository and on the original service's
// Repository (repository.rs): every statement shape below — the
// reservation CTE, the account unique-violation check, the transactional
// plan insert via UNNEST — mirrors that file's queries translated into
// pgx/v5 calls.
type Postgres struct {
	pool           pgxIface
	requestTimeout time.Duration
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an already-connected pool. Connection establishment
// itself lives in internal/db.Connect, which owns the bounded connect
// deadline.
func NewPostgres(pool *pgxpool.Pool, requestTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, requestTimeout: requestTimeout}
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.requestTimeout)
}

func (p *Postgres) CreateAccount(ctx context.Context, username, passwordHash string) (bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO account (username, password_hash)
		VALUES ($1, $2)`, username, passwordHash)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return false, nil
	}
	return false, fmt.Errorf("insert account: %w", err)
}

func (p *Postgres) GetAccountPasswordHash(ctx context.Context, username string) (string, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var hash string
	err := p.pool.QueryRow(ctx, `
		SELECT password_hash FROM account WHERE username = $1`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get account password hash: %w", err)
	}
	return hash, true, nil
}

func (p *Postgres) ListOldAccountUsernames(ctx context.Context, maxAge time.Duration) ([]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
		SELECT username FROM account
		WHERE created_at < NOW() - $1::interval
		LIMIT 500`, maxAge)
	if err != nil {
		return nil, fmt.Errorf("list old account usernames: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan old account username: %w", err)
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

func (p *Postgres) DeleteAccountByUsername(ctx context.Context, username string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `DELETE FROM account WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (p *Postgres) CreateNotification(ctx context.Context, username string, opts domain.CreateNotificationOpts) (uuid.UUID, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	notifyTimes := expandTimes(opts)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO notification (username, title, content)
		VALUES ($1, $2, $3)
		RETURNING id`, username, opts.Title, opts.Content).Scan(&id)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("insert notification: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_queue (notification_id, planned_at)
		SELECT $1, * FROM UNNEST($2::timestamptz[])`, id, notifyTimes)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("insert notification queue plan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.UUID{}, fmt.Errorf("commit notification creation: %w", err)
	}
	return id, nil
}

func expandTimes(opts domain.CreateNotificationOpts) []time.Time {
	times := []time.Time{opts.NotifyAt}
	if opts.Repetitions != nil {
		for i := 1; i <= opts.Repetitions.Count; i++ {
			times = append(times, opts.NotifyAt.Add(time.Duration(i)*opts.Repetitions.Interval))
		}
	}
	return times
}

func (p *Postgres) GetNotification(ctx context.Context, id uuid.UUID) (*domain.NotificationWithPlan, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	n, found, err := scanNotificationWithPlan(ctx, p.pool, `
		SELECT n.id, n.title, n.content, nq.planned_at, nq.sent_at
		FROM notification n
		JOIN notification_queue nq ON nq.notification_id = n.id
		WHERE n.id = $1
		ORDER BY nq.planned_at`, id)
	if err != nil {
		return nil, false, fmt.Errorf("get notification: %w", err)
	}
	return n, found, nil
}

func (p *Postgres) ListUserNotifications(ctx context.Context, username string) ([]domain.NotificationWithPlan, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
		SELECT n.id, n.title, n.content, nq.planned_at, nq.sent_at
		FROM notification n
		JOIN notification_queue nq ON nq.notification_id = n.id
		WHERE n.username = $1
		ORDER BY n.id, nq.planned_at`, username)
	if err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*domain.NotificationWithPlan)
	var order []uuid.UUID
	for rows.Next() {
		var (
			id        uuid.UUID
			title     string
			content   string
			plannedAt time.Time
			sentAt    *time.Time
		)
		if err := rows.Scan(&id, &title, &content, &plannedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scan user notification row: %w", err)
		}
		n, ok := byID[id]
		if !ok {
			n = &domain.NotificationWithPlan{
				Notification: domain.Notification{ID: id, Username: username, Title: title, Content: content},
			}
			byID[id] = n
			order = append(order, id)
		}
		n.Plan = append(n.Plan, domain.QueueRow{PlannedAt: plannedAt, SentAt: sentAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}

	out := make([]domain.NotificationWithPlan, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func scanNotificationWithPlan(ctx context.Context, pool pgxIface, query string, args ...any) (*domain.NotificationWithPlan, bool, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var n *domain.NotificationWithPlan
	for rows.Next() {
		var (
			id        uuid.UUID
			title     string
			content   string
			plannedAt time.Time
			sentAt    *time.Time
		)
		if err := rows.Scan(&id, &title, &content, &plannedAt, &sentAt); err != nil {
			return nil, false, err
		}
		if n == nil {
			n = &domain.NotificationWithPlan{Notification: domain.Notification{ID: id, Title: title, Content: content}}
		}
		n.Plan = append(n.Plan, domain.QueueRow{PlannedAt: plannedAt, SentAt: sentAt})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if n == nil {
		return nil, false, nil
	}
	return n, true, nil
}

// ReserveNotificationQueueBatch claims up to BatchSize due rows in one
// statement. The original service's equivalent query (repository.rs's
// reserve_notification_queue_batch) uses a plain CTE + UPDATE...FROM
// without row locking; FOR UPDATE SKIP LOCKED is added here so two
// dispatcher instances running against the same database never reserve
// the same row twice.
func (p *Postgres) ReserveNotificationQueueBatch(ctx context.Context) ([]domain.QueueElement, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `
		WITH batch_elements AS (
			SELECT notification_id, planned_at
			FROM notification_queue
			WHERE planned_at < NOW()
			  AND state = 'planned'
			ORDER BY planned_at
			LIMIT 100
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_queue nq
		SET state = 'inprogress'
		FROM notification n, batch_elements be
		WHERE nq.notification_id = be.notification_id
		  AND nq.planned_at = be.planned_at
		  AND nq.notification_id = n.id
		RETURNING n.id, n.username, n.title, n.content, nq.planned_at`)
	if err != nil {
		return nil, fmt.Errorf("reserve notification queue batch: %w", err)
	}
	defer rows.Close()

	var out []domain.QueueElement
	for rows.Next() {
		var e domain.QueueElement
		if err := rows.Scan(&e.NotificationID, &e.Username, &e.Title, &e.Content, &e.PlannedAt); err != nil {
			return nil, fmt.Errorf("scan reserved queue element: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ResetNotificationQueue(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		UPDATE notification_queue
		SET state = 'planned'
		WHERE state = 'inprogress'`)
	if err != nil {
		return fmt.Errorf("reset notification queue: %w", err)
	}
	return nil
}

func (p *Postgres) SaveNotificationResult(ctx context.Context, id uuid.UUID, plannedAt time.Time, result *time.Time) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	state := domain.QueueFailed
	if result != nil {
		state = domain.QueueSent
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE notification_queue
		SET state = $3, sent_at = $4
		WHERE notification_id = $1 AND planned_at = $2`, id, plannedAt, state, result)
	if err != nil {
		return fmt.Errorf("save notification result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save notification result: no queue row for notification %s at %s", id, plannedAt)
	}
	return nil
}
