// Package planexpander is a pure derivation that turns a notify_at +
// optional repetitions into the ordered sequence of planned_at instants
// making up a notification's plan. It owns the request-level validation
// the spec requires before expansion: title/content bounds, notify_at in
// the future, and repetitions bounds. Validate is called by the HTTP
// handler before CreateNotification; the store implementations compute
// the same plan with their own inline loop and do not call Expand.
package planexpander

import (
	"time"

	"github.com/notify-svc/scheduler/internal/domain"
)

const (
	minTitleLen = 1
	maxTitleLen = 100
	minContentLen = 1
	maxContentLen = 1000

	minRepetCount = 1
	maxRepetCount = 10
	minRepetInterval = time.Second
	maxRepetInterval = time.Hour
)

// Validate checks the request-level invariants from spec.md §4.2, against
// the supplied "now" (passed in rather than read from time.Now so tests are
// deterministic). It returns the first violated invariant as a domain
// sentinel error, or nil if the request may proceed to expansion.
func Validate(title, content string, notifyAt time.Time, rep *domain.Repetitions, now time.Time) error {
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return domain.ErrInvalidTitle
	}
	if len(content) < minContentLen || len(content) > maxContentLen {
		return domain.ErrInvalidContent
	}
	if !notifyAt.After(now) {
		return domain.ErrInvalidNotifyAt
	}
	if rep != nil {
		if rep.Count < minRepetCount || rep.Count > maxRepetCount {
			return domain.ErrInvalidRepetCount
		}
		if rep.Interval < minRepetInterval || rep.Interval > maxRepetInterval {
			return domain.ErrInvalidRepetInterval
		}
	}
	return nil
}

// Expand computes the ordered sequence of planned_at instants:
//
//	planned_at_i = notifyAt + i*interval,  i = 0..count   (if rep != nil)
//	             = [notifyAt]                              (otherwise)
//
// The result always has len >= 1 and its first element equals notifyAt,
// satisfying invariant 1 of spec.md §3.
func Expand(notifyAt time.Time, rep *domain.Repetitions) []time.Time {
	if rep == nil {
		return []time.Time{notifyAt}
	}

	times := make([]time.Time, 0, rep.Count+1)
	for i := 0; i <= rep.Count; i++ {
		times = append(times, notifyAt.Add(time.Duration(i)*rep.Interval))
	}
	return times
}
