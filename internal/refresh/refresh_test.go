package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (c *countingReloader) Reload(ctx context.Context) error {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func TestNewValidates(t *testing.T) {
	_, err := New("*/15 * * * *", time.UTC, nil, 0)
	assert.Error(t, err)

	_, err = New("every now and then", time.UTC, &countingReloader{}, 0)
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = New("@hourly", time.UTC, &countingReloader{}, 0)
	assert.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	r := &countingReloader{}
	s, err := New("*/15 * * * *", time.UTC, r, 0)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), r.calls.Load())

	r.err = errors.New("feed down")
	assert.ErrorContains(t, s.RunOnce(context.Background()), "feed down")
}

func TestRunOnceTimesOut(t *testing.T) {
	r := &countingReloader{block: make(chan struct{})}
	s, err := New("*/15 * * * *", time.UTC, r, 20*time.Millisecond)
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartAndStop(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	s, err := New("0 6 * * *", loc, &countingReloader{}, 0)
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 6, next.In(loc).Hour())
	assert.Equal(t, 0, next.In(loc).Minute())

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	s.Stop()
}
