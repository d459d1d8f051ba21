package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []int64
	err     error
}

func (f *fakePurger) PurgeBefore(_ context.Context, cutoff int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePurger) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.cutoffs...)
}

func TestRunOnceUsesWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	task, err := New(Options{Purger: p, Days: 7, Now: func() time.Time { return now }})
	require.NoError(t, err)

	n, err := task.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, []int64{now.AddDate(0, 0, -7).UnixMilli()}, p.calls())
}

func TestRunOncePropagatesError(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	task, err := New(Options{Purger: p, Days: 1})
	require.NoError(t, err)

	_, err = task.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Days: 1})
	assert.Error(t, err)

	_, err = New(Options{Purger: &fakePurger{}, Days: 0})
	assert.Error(t, err)

	_, err = New(Options{Purger: &fakePurger{}, Days: 1, Schedule: "not a cron"})
	assert.Error(t, err)
}

func TestStartPurgesImmediately(t *testing.T) {
	p := &fakePurger{}
	task, err := New(Options{Purger: p, Days: 30, Schedule: "0 0 0 1 1 *"})
	require.NoError(t, err)

	task.Start()
	task.Stop()

	assert.Len(t, p.calls(), 1)
}
