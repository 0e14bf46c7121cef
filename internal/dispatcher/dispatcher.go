// Package dispatcher implements component C3: a periodic batch reservation
// loop that hands each reserved batch to a detached worker goroutine, which
// owns its own mail connection and persists each row's outcome. Shaped
// after the teacher's worker.Pool (tick loop + sync.WaitGroup-tracked
// goroutines + metric hooks), but reservation here comes from the
// database queue (store.ReserveNotificationQueueBatch) rather than an
// in-memory priority queue, since the durable queue IS the scheduling
// structure (spec.md §4.1/§4.3).
package dispatcher

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/domain"
	"github.com/notify-svc/scheduler/internal/mailclient"
	"github.com/notify-svc/scheduler/internal/store"
)

// MetricHooks carries metric callbacks injected by main, keeping the
// dispatcher itself metrics-agnostic (mirrors worker.MetricHooks).
type MetricHooks struct {
	OnSent        func(latency time.Duration)
	OnFailed      func()
	OnBatchSize   func(n int)
}

// MailSender abstracts mailclient.Client so batch-processing tests can
// substitute a fake relay without opening real sockets, mirroring the
// teacher's provider.Provider interface.
type MailSender interface {
	Connect(ctx context.Context) error
	SendMail(ctx context.Context, from, to, subject, body string, retries int) (*time.Time, error)
	Close()
}

// MailFactory constructs a fresh, unconnected mail sender. A new one is
// built per batch worker, since mail connections are never shared
// (spec.md §5, §9).
type MailFactory func(log *zap.Logger) MailSender

// NewMailFactory adapts mailclient.New into a MailFactory for production use.
func NewMailFactory(serverAddr, serverName, username, password string, opTimeout time.Duration) MailFactory {
	return func(log *zap.Logger) MailSender {
		return mailclient.New(serverAddr, serverName, username, password, opTimeout, log)
	}
}

const (
	fromAddress  = "notifier@notify-scheduler.local"
	sendRetries  = 5
)

// Dispatcher owns the reservation tick loop.
type Dispatcher struct {
	store        store.Store
	mailFactory  MailFactory
	tickInterval time.Duration
	log          *zap.Logger
	hooks        MetricHooks

	wg sync.WaitGroup
}

func New(s store.Store, mf MailFactory, tickInterval time.Duration, log *zap.Logger, hooks MetricHooks) *Dispatcher {
	if hooks.OnSent == nil {
		hooks.OnSent = func(time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func() {}
	}
	if hooks.OnBatchSize == nil {
		hooks.OnBatchSize = func(int) {}
	}
	return &Dispatcher{store: s, mailFactory: mf, tickInterval: tickInterval, log: log, hooks: hooks}
}

// Run resets any rows left inprogress by a previous crash, then ticks
// every tickInterval, reserving and dispatching due rows, until ctx is
// cancelled. It returns once the cancellation has been observed; in-flight
// batch workers are NOT awaited here — call Wait after Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.store.ResetNotificationQueue(ctx); err != nil {
		return err
	}
	d.log.Info("dispatcher startup recovery complete")

	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// Wait blocks until every in-flight batch worker goroutine has returned.
// Called after the cancellation token fires, per spec.md §5's "in-flight
// worker and HTTP-handler tasks are awaited, not aborted."
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) tick(ctx context.Context) {
	batch, err := d.store.ReserveNotificationQueueBatch(ctx)
	if err != nil {
		d.log.Error("failed to reserve notification queue batch", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}
	d.hooks.OnBatchSize(len(batch))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runBatch(context.Background(), batch)
	}()
}

// runBatch sorts the batch by (planned_at, notification_id) and shuffles
// within planned_at-equal blocks for fairness (spec.md §9 "Fair ordering
// within a tick"), then sends each row over one mail connection owned
// solely by this goroutine.
func (d *Dispatcher) runBatch(ctx context.Context, batch []domain.QueueElement) {
	ordered := fairOrder(batch, newWorkerRNG())

	client := d.mailFactory(d.log)
	if err := client.Connect(ctx); err != nil {
		d.log.Error("mail client connect failed at batch start", zap.Error(err))
		// Every row in this batch will still get a send attempt below;
		// SendMail reconnects internally on failure, so a bad initial
		// connect just means the first attempt fails and retries.
	}
	defer client.Close()

	for _, e := range ordered {
		start := time.Now()
		sentAt, err := client.SendMail(ctx, fromAddress, e.Username, e.Title, e.Content, sendRetries)
		if err != nil {
			d.log.Error("unexpected mail client error", zap.String("notification_id", e.NotificationID.String()), zap.Error(err))
		}

		if sentAt != nil {
			d.hooks.OnSent(time.Since(start))
		} else {
			d.hooks.OnFailed()
		}

		if saveErr := d.store.SaveNotificationResult(ctx, e.NotificationID, e.PlannedAt, sentAt); saveErr != nil {
			d.log.Error("failed to save notification result",
				zap.String("notification_id", e.NotificationID.String()),
				zap.Time("planned_at", e.PlannedAt),
				zap.Error(saveErr))
		}
	}
}

// fairOrder sorts by planned_at then notification ID, then shuffles each
// contiguous run of equal planned_at in place. Tracks block_start..i and
// shuffles [block_start, i) on every planned_at change, avoiding the
// source's documented block-boundary off-by-one (spec.md §9).
func fairOrder(batch []domain.QueueElement, rng *mrand.Rand) []domain.QueueElement {
	out := make([]domain.QueueElement, len(batch))
	copy(out, batch)

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlannedAt.Equal(out[j].PlannedAt) {
			return out[i].PlannedAt.Before(out[j].PlannedAt)
		}
		return out[i].NotificationID.String() < out[j].NotificationID.String()
	})

	blockStart := 0
	for i := 1; i <= len(out); i++ {
		if i == len(out) || !out[i].PlannedAt.Equal(out[blockStart].PlannedAt) {
			shuffleRange(out, blockStart, i, rng)
			blockStart = i
		}
	}
	return out
}

func shuffleRange(s []domain.QueueElement, lo, hi int, rng *mrand.Rand) {
	for i := hi - 1; i > lo; i-- {
		j := lo + rng.Intn(i-lo+1)
		s[i], s[j] = s[j], s[i]
	}
}

// newWorkerRNG returns a per-goroutine RNG seeded from OS entropy,
// grounded on the original service's rng.rs (a thread-local ChaCha12Rng
// seeded from OsRng). math/rand's top-level functions are process-global
// and would serialize unrelated batch workers against each other, so
// each batch worker gets its own *rand.Rand instance instead.
func newWorkerRNG() *mrand.Rand {
	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		// crypto/rand failure is effectively unrecoverable entropy
		// starvation; fall back to a big-int-derived seed rather than
		// a fixed constant so distinct goroutines still diverge.
		n, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
		if n != nil {
			return mrand.New(mrand.NewSource(n.Int64()))
		}
		return mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	seed := int64(binary.BigEndian.Uint64(seedBytes[:]))
	return mrand.New(mrand.NewSource(seed))
}
