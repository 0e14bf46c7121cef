package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notify-svc/scheduler/internal/domain"
)

// Memory is a hand-written, in-process implementation of Store used in
// unit tests for the dispatcher, cleaner, and HTTP handlers — no
// mock-generation library needed, mirroring the teacher's
// MockNotificationRepository.
type Memory struct {
	mu sync.Mutex

	accounts      map[string]memAccount
	notifications map[uuid.UUID]domain.Notification
	queue         map[uuid.UUID][]domain.QueueRow

	// NewID lets tests control generated UUIDs; defaults to uuid.New.
	NewID func() uuid.UUID
	// Now lets tests pin the instant ReserveNotificationQueueBatch treats
	// as "the present", for exercising the planned_at == now boundary
	// deterministically; defaults to time.Now.
	Now func() time.Time
}

type memAccount struct {
	passwordHash string
	createdAt    time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[string]memAccount),
		notifications: make(map[uuid.UUID]domain.Notification),
		queue:         make(map[uuid.UUID][]domain.QueueRow),
		NewID:         uuid.New,
		Now:           time.Now,
	}
}

func (m *Memory) CreateAccount(_ context.Context, username, passwordHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[username]; exists {
		return false, nil
	}
	m.accounts[username] = memAccount{passwordHash: passwordHash, createdAt: time.Now().UTC()}
	return true, nil
}

func (m *Memory) GetAccountPasswordHash(_ context.Context, username string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[username]
	if !ok {
		return "", false, nil
	}
	return acc.passwordHash, true, nil
}

func (m *Memory) ListOldAccountUsernames(_ context.Context, maxAge time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	var out []string
	for username, acc := range m.accounts {
		if acc.createdAt.Before(cutoff) {
			out = append(out, username)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) DeleteAccountByUsername(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, username)
	return nil
}

func (m *Memory) CreateNotification(_ context.Context, username string, opts domain.CreateNotificationOpts) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.NewID()
	m.notifications[id] = domain.Notification{ID: id, Username: username, Title: opts.Title, Content: opts.Content}

	times := []time.Time{opts.NotifyAt}
	if opts.Repetitions != nil {
		for i := 1; i <= opts.Repetitions.Count; i++ {
			times = append(times, opts.NotifyAt.Add(time.Duration(i)*opts.Repetitions.Interval))
		}
	}
	for _, t := range times {
		m.queue[id] = append(m.queue[id], domain.QueueRow{PlannedAt: t, State: domain.QueuePlanned})
	}
	return id, nil
}

func (m *Memory) GetNotification(_ context.Context, id uuid.UUID) (*domain.NotificationWithPlan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, false, nil
	}
	return &domain.NotificationWithPlan{Notification: n, Plan: sortedPlan(m.queue[id])}, true, nil
}

func (m *Memory) ListUserNotifications(_ context.Context, username string) ([]domain.NotificationWithPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NotificationWithPlan
	for id, n := range m.notifications {
		if n.Username != username {
			continue
		}
		out = append(out, domain.NotificationWithPlan{Notification: n, Plan: sortedPlan(m.queue[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func sortedPlan(rows []domain.QueueRow) []domain.QueueRow {
	out := make([]domain.QueueRow, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool { return out[i].PlannedAt.Before(out[j].PlannedAt) })
	return out
}

func (m *Memory) ReserveNotificationQueueBatch(_ context.Context) ([]domain.QueueElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	var elements []domain.QueueElement
	for id, rows := range m.queue {
		n := m.notifications[id]
		for i := range rows {
			if len(elements) >= BatchSize {
				break
			}
			// Ripe is strictly planned_at < now (spec.md), so a row whose
			// planned_at has not yet strictly passed is skipped: the
			// comparison must be !Before(now), not After(now), or a row
			// with planned_at == now would be reserved a tick early.
			if rows[i].State != domain.QueuePlanned || !rows[i].PlannedAt.Before(now) {
				continue
			}
			rows[i].State = domain.QueueInProgress
			elements = append(elements, domain.QueueElement{
				NotificationID: id,
				Username:       n.Username,
				Title:          n.Title,
				Content:        n.Content,
				PlannedAt:      rows[i].PlannedAt,
			})
		}
		m.queue[id] = rows
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].PlannedAt.Before(elements[j].PlannedAt) })
	return elements, nil
}

func (m *Memory) ResetNotificationQueue(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rows := range m.queue {
		for i := range rows {
			if rows[i].State == domain.QueueInProgress {
				rows[i].State = domain.QueuePlanned
			}
		}
		m.queue[id] = rows
	}
	return nil
}

func (m *Memory) SaveNotificationResult(_ context.Context, id uuid.UUID, plannedAt time.Time, result *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.queue[id]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range rows {
		if !rows[i].PlannedAt.Equal(plannedAt) {
			continue
		}
		if result != nil {
			rows[i].State = domain.QueueSent
			sentAt := *result
			rows[i].SentAt = &sentAt
		} else {
			rows[i].State = domain.QueueFailed
			rows[i].SentAt = nil
		}
		m.queue[id] = rows
		return nil
	}
	return domain.ErrNotFound
}
