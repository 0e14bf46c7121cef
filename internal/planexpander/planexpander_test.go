package planexpander_test

import (
	"strings"
	"testing"
	"time"

	"github.com/notify-svc/scheduler/internal/domain"
	"github.com/notify-svc/scheduler/internal/planexpander"
)

var now = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

func TestValidate(t *testing.T) {
	validTitle := "Hi"
	validContent := "Body"
	future := now.Add(2 * time.Second)

	t.Run("valid request passes", func(t *testing.T) {
		if err := planexpander.Validate(validTitle, validContent, future, nil, now); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty title rejected", func(t *testing.T) {
		if err := planexpander.Validate("", validContent, future, nil, now); err != domain.ErrInvalidTitle {
			t.Fatalf("expected ErrInvalidTitle, got %v", err)
		}
	})

	t.Run("title at max length accepted", func(t *testing.T) {
		title := strings.Repeat("x", 100)
		if err := planexpander.Validate(title, validContent, future, nil, now); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("title over max length rejected", func(t *testing.T) {
		title := strings.Repeat("x", 101)
		if err := planexpander.Validate(title, validContent, future, nil, now); err != domain.ErrInvalidTitle {
			t.Fatalf("expected ErrInvalidTitle, got %v", err)
		}
	})

	t.Run("empty content rejected", func(t *testing.T) {
		if err := planexpander.Validate(validTitle, "", future, nil, now); err != domain.ErrInvalidContent {
			t.Fatalf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("content over max length rejected", func(t *testing.T) {
		content := strings.Repeat("x", 1001)
		if err := planexpander.Validate(validTitle, content, future, nil, now); err != domain.ErrInvalidContent {
			t.Fatalf("expected ErrInvalidContent, got %v", err)
		}
	})

	t.Run("notify_at equal to now rejected", func(t *testing.T) {
		if err := planexpander.Validate(validTitle, validContent, now, nil, now); err != domain.ErrInvalidNotifyAt {
			t.Fatalf("expected ErrInvalidNotifyAt, got %v", err)
		}
	})

	t.Run("notify_at one second after now accepted", func(t *testing.T) {
		if err := planexpander.Validate(validTitle, validContent, now.Add(time.Second), nil, now); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("repetitions count boundaries", func(t *testing.T) {
		cases := []struct {
			count   int
			wantErr error
		}{
			{0, domain.ErrInvalidRepetCount},
			{1, nil},
			{10, nil},
			{11, domain.ErrInvalidRepetCount},
		}
		for _, tc := range cases {
			rep := &domain.Repetitions{Count: tc.count, Interval: time.Second}
			err := planexpander.Validate(validTitle, validContent, future, rep, now)
			if err != tc.wantErr {
				t.Fatalf("count=%d: expected %v, got %v", tc.count, tc.wantErr, err)
			}
		}
	})

	t.Run("repetitions interval boundaries", func(t *testing.T) {
		cases := []struct {
			interval time.Duration
			wantErr  error
		}{
			{0, domain.ErrInvalidRepetInterval},
			{time.Second, nil},
			{time.Hour, nil},
			{time.Hour + time.Second, domain.ErrInvalidRepetInterval},
		}
		for _, tc := range cases {
			rep := &domain.Repetitions{Count: 1, Interval: tc.interval}
			err := planexpander.Validate(validTitle, validContent, future, rep, now)
			if err != tc.wantErr {
				t.Fatalf("interval=%v: expected %v, got %v", tc.interval, tc.wantErr, err)
			}
		}
	})
}

func TestExpand_NoRepetitions(t *testing.T) {
	notifyAt := now.Add(time.Second)
	got := planexpander.Expand(notifyAt, nil)
	if len(got) != 1 || !got[0].Equal(notifyAt) {
		t.Fatalf("expected single entry %v, got %v", notifyAt, got)
	}
}

func TestExpand_WithRepetitions(t *testing.T) {
	notifyAt := now.Add(time.Second)
	rep := &domain.Repetitions{Count: 3, Interval: time.Second}

	got := planexpander.Expand(notifyAt, rep)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries (k+1), got %d", len(got))
	}
	for i, ts := range got {
		want := notifyAt.Add(time.Duration(i) * time.Second)
		if !ts.Equal(want) {
			t.Fatalf("entry %d: expected %v, got %v", i, want, ts)
		}
	}
}

func TestExpand_AllDistinct(t *testing.T) {
	notifyAt := now.Add(time.Second)
	rep := &domain.Repetitions{Count: 10, Interval: time.Second}

	got := planexpander.Expand(notifyAt, rep)
	seen := make(map[time.Time]bool, len(got))
	for _, ts := range got {
		if seen[ts] {
			t.Fatalf("duplicate planned_at %v", ts)
		}
		seen[ts] = true
	}
}
