package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns a fixed status sequence, repeating the last entry
// once the script runs out.
type scriptedFetcher struct {
	script []Snapshot
	calls  int
	err    error
}

func (f *scriptedFetcher) FetchJobStatus(_ context.Context, jobID string) (*Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	snap := f.script[idx]
	snap.JobID = jobID
	return &snap, nil
}

// newFakeTimePoller wires the poller's clock to its sleep so tests run
// instantly: every cooperative wait advances virtual time.
func newFakeTimePoller(fetcher StatusFetcher) *Poller {
	p := NewPoller(fetcher)
	current := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return current }
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = current.Add(d)
		return nil
	}
	return p
}

func statuses(ss ...Status) []Snapshot {
	script := make([]Snapshot, len(ss))
	for i, s := range ss {
		script[i] = Snapshot{Status: s}
	}
	return script
}

func TestPollUntilTerminalSucceeds(t *testing.T) {
	fetcher := &scriptedFetcher{script: statuses(StatusQueued, StatusRunning, StatusRunning, StatusSucceeded)}
	poller := newFakeTimePoller(fetcher)

	var updates []Status
	snap, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{
		Interval: 500 * time.Millisecond,
		Timeout:  2 * time.Second,
		OnUpdate: func(s Snapshot) { updates = append(updates, s.Status) },
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, "job-1", snap.JobID)
	assert.Equal(t, []Status{StatusQueued, StatusRunning, StatusRunning, StatusSucceeded}, updates,
		"OnUpdate fires on every poll including the terminal one, in order")
	assert.Equal(t, 4, fetcher.calls)
}

func TestPollUntilTerminalTimesOut(t *testing.T) {
	fetcher := &scriptedFetcher{script: statuses(StatusRunning)}
	poller := newFakeTimePoller(fetcher)

	_, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{
		Interval: 500 * time.Millisecond,
		Timeout:  time.Second,
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "job-1", timeoutErr.JobID)
	assert.Equal(t, 2, fetcher.calls, "a 1s budget at 500ms interval allows two polls")
}

func TestPollUntilTerminalJobFailure(t *testing.T) {
	fetcher := &scriptedFetcher{script: []Snapshot{
		{Status: StatusRunning},
		{Status: StatusFailed, Error: "decomposition rejected by planner"},
	}}
	poller := newFakeTimePoller(fetcher)

	_, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{
		Interval: 500 * time.Millisecond,
		Timeout:  5 * time.Second,
	})

	var failedErr *FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Contains(t, failedErr.Error(), "decomposition rejected by planner")

	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr), "job failure and timeout are distinct error kinds")
}

func TestPollFailureWithoutMessageGetsGenericOne(t *testing.T) {
	fetcher := &scriptedFetcher{script: statuses(StatusFailed)}
	poller := newFakeTimePoller(fetcher)

	_, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{Interval: time.Second, Timeout: time.Second})

	var failedErr *FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Contains(t, failedErr.Error(), "without a reported reason")
}

func TestPollEnforcesFloors(t *testing.T) {
	fetcher := &scriptedFetcher{script: statuses(StatusRunning)}
	poller := newFakeTimePoller(fetcher)

	start := poller.now()
	_, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{
		Interval: 10 * time.Millisecond, // below the floor
		Timeout:  0,                     // below the interval
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	// One floored interval elapsed: interval was raised to 500ms and the
	// timeout was raised to match it.
	assert.Equal(t, MinPollInterval, poller.now().Sub(start))
	assert.Equal(t, 1, fetcher.calls)
}

func TestPollPropagatesFetchErrors(t *testing.T) {
	fetcher := &scriptedFetcher{err: errors.New("backend unreachable")}
	poller := newFakeTimePoller(fetcher)

	_, err := poller.PollUntilTerminal(context.Background(), "job-1", Options{Interval: time.Second, Timeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unreachable")

	var failedErr *FailedError
	assert.False(t, errors.As(err, &failedErr))
}

func TestPollHonorsCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{script: statuses(StatusRunning)}
	poller := newFakeTimePoller(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	poller.sleep = func(ctx context.Context, d time.Duration) error {
		cancel() // caller abandons the poll mid-wait
		return ctx.Err()
	}

	_, err := poller.PollUntilTerminal(ctx, "job-1", Options{Interval: time.Second, Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
}
