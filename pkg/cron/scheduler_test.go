package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(testLogger())
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid", Job{Name: "refresh", Schedule: "*/15 * * * *", Run: noop}, false},
		{"descriptor", Job{Name: "hourly", Schedule: "@hourly", Run: noop}, false},
		{"bad schedule", Job{Name: "bad", Schedule: "every minute", Run: noop}, true},
		{"missing name", Job{Schedule: "@hourly", Run: noop}, true},
		{"missing run", Job{Name: "nil", Schedule: "@hourly"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.job)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(testLogger())
	var runs atomic.Int32
	boom := errors.New("boom")

	require.NoError(t, s.Add(Job{
		Name:     "count",
		Schedule: "@daily",
		Run: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(Job{
		Name:     "fail",
		Schedule: "@daily",
		Run:      func(context.Context) error { return boom },
	}))

	require.NoError(t, s.RunNow(context.Background(), "count"))
	assert.Equal(t, int32(1), runs.Load())

	assert.ErrorIs(t, s.RunNow(context.Background(), "fail"), boom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)
}

func TestScheduler_Timeout(t *testing.T) {
	s := NewScheduler(testLogger())
	require.NoError(t, s.Add(Job{
		Name:     "slow",
		Schedule: "@daily",
		Timeout:  20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(testLogger())
	require.NoError(t, s.Add(Job{Name: "refresh", Schedule: "*/5 * * * *", Run: func(context.Context) error { return nil }}))

	next := s.Next("refresh")
	assert.True(t, next.After(time.Now()))
	assert.True(t, s.Next("missing").IsZero())

	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
