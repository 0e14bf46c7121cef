// Package cleaner implements the age-based account cleaner: a ticker
// loop shaped after the teacher's worker.RetryWorker that polls the
// store for stale accounts and deletes them via an admin HTTP callback,
// grounded on the original service's cleaner.rs.
package cleaner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notify-svc/scheduler/internal/store"
)

// Cleaner periodically deletes accounts older than MaxAge, calling an
// admin endpoint before removing the row from the store so that any
// external per-account state (e.g. the relay's own mailbox) is torn down
// first. The original's delete_user does exactly this ordering:
// admin call, then repository delete.
type Cleaner struct {
	store   store.Store
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	deleteURL    string
	adminUser    string
	adminSecret  string
	interval     time.Duration
	maxAge       time.Duration
	adminTimeout time.Duration
	onDeleted    func()
}

// New constructs a Cleaner. adminAddr is the base URL of the admin API
// (e.g. "http://admin.internal:9000"); GET requests are issued against
// "<adminAddr>/admin/account/delete/<username>". onDeleted, if non-nil, is
// called once per account successfully removed (metrics.Metrics.CleanerHook
// wires this to a Prometheus counter); pass nil to disable.
//
// ratePerSecond reuses golang.org/x/time/rate — the same library the
// teacher uses for its per-channel send limiter (internal/ratelimiter),
// repurposed here to bound the cleaner's outbound admin-delete call rate
// instead of outbound mail/SMS/push traffic.
func New(s store.Store, adminAddr, adminUser, adminSecret string, ratePerSecond int, adminTimeout, interval, maxAge time.Duration, log *zap.Logger, onDeleted func()) *Cleaner {
	if onDeleted == nil {
		onDeleted = func() {}
	}
	return &Cleaner{
		store:        s,
		client:       &http.Client{Timeout: adminTimeout},
		limiter:      rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		log:          log,
		deleteURL:    adminAddr + "/admin/account/delete",
		adminUser:    adminUser,
		adminSecret:  adminSecret,
		interval:     interval,
		maxAge:       maxAge,
		adminTimeout: adminTimeout,
		onDeleted:    onDeleted,
	}
}

// Run ticks every interval, deleting every account older than maxAge.
// Stops cleanly when ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info("account cleaner started", zap.Duration("interval", c.interval), zap.Duration("max_age", c.maxAge))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("account cleaner stopping")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Cleaner) poll(ctx context.Context) {
	usernames, err := c.store.ListOldAccountUsernames(ctx, c.maxAge)
	if err != nil {
		c.log.Error("failed to list old accounts", zap.Error(err))
		return
	}
	if len(usernames) == 0 {
		return
	}
	c.log.Info("cleaner will delete old accounts", zap.Int("count", len(usernames)))

	for _, username := range usernames {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.deleteUser(ctx, username); err != nil {
			c.log.Error("failed to delete old account", zap.String("username", username), zap.Error(err))
		}
	}
}

func (c *Cleaner) deleteUser(ctx context.Context, username string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.adminTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("%s/%s", c.deleteURL, username), nil)
	if err != nil {
		return fmt.Errorf("building admin delete request: %w", err)
	}
	req.SetBasicAuth(c.adminUser, c.adminSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending delete request to admin API: %w", err)
	}
	defer resp.Body.Close()

	// 404 is treated as success: the account may already have been
	// deleted externally on a prior, partially-failed cleanup pass.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete request returned non-ok status code %d", resp.StatusCode)
	}

	if err := c.store.DeleteAccountByUsername(ctx, username); err != nil {
		return fmt.Errorf("deleting account in the store: %w", err)
	}
	c.onDeleted()
	return nil
}
