package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/NewsTopics/internal/logging"
)

func TestNewRejectsBadExpression(t *testing.T) {
	if _, err := New("not a cron", time.UTC, logging.Discard()); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestNextInLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	s, err := New("0 6 * * *", seoul, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 22:00 UTC on June 9 is 07:00 on June 10 in Seoul, past today's trigger.
	next := s.Next(time.Date(2024, 6, 9, 22, 0, 0, 0, time.UTC))
	want := time.Date(2024, 6, 11, 6, 0, 0, 0, seoul)
	if !next.Equal(want) {
		t.Errorf("expected %s, got %s", want, next)
	}
}

func TestRunInvokesJobUntilCancelled(t *testing.T) {
	s, err := New("@every 1s", time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	fired := make(chan time.Time, 1)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, trigger time.Time) {
			if calls.Add(1) == 1 {
				fired <- trigger
			}
		})
	}()

	select {
	case trigger := <-fired:
		if trigger.IsZero() {
			t.Error("expected a trigger time")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was not triggered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
