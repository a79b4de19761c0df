package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/syncboard/syncboard/pkg/logger"
)

// StatusFetcher is the external status-fetch operation the poller rides on.
// Implemented by the backend HTTP client; tests inject scripted fakes.
type StatusFetcher interface {
	FetchJobStatus(ctx context.Context, jobID string) (*Snapshot, error)
}

// MinPollInterval is the floor applied to poll intervals.
const MinPollInterval = 500 * time.Millisecond

// FailedError reports a job that reached the failed state. Distinct from
// TimeoutError so callers can tell "the server said no" from "we stopped
// waiting".
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "job failed without a reported reason"
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, msg)
}

// TimeoutError reports that no terminal state was observed within the
// polling budget, whatever the job itself last reported.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for job %s after %s", e.JobID, e.Elapsed)
}

// Options configures one polling run.
type Options struct {
	// Interval between polls; floored at MinPollInterval.
	Interval time.Duration
	// Timeout is the total budget; floored at Interval.
	Timeout time.Duration
	// OnUpdate, when set, receives every fetched snapshot — terminal or
	// not — in fetch order.
	OnUpdate func(Snapshot)
}

// Poller drives a job to a terminal state by repeatedly fetching its
// status with cooperative waits in between.
type Poller struct {
	fetcher StatusFetcher

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller over the given status fetcher.
func NewPoller(fetcher StatusFetcher) *Poller {
	return &Poller{
		fetcher: fetcher,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// PollUntilTerminal polls jobID until it succeeds, fails, the budget runs
// out, or ctx is cancelled. On success it returns the final snapshot. A
// failed job returns *FailedError; an exhausted budget returns
// *TimeoutError; cancellation returns the context error.
func (p *Poller) PollUntilTerminal(ctx context.Context, jobID string, opts Options) (*Snapshot, error) {
	interval := opts.Interval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	timeout := opts.Timeout
	if timeout < interval {
		timeout = interval
	}

	start := p.now()
	polls := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := p.fetcher.FetchJobStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("fetch job status: %w", err)
		}
		polls++

		if opts.OnUpdate != nil {
			opts.OnUpdate(*snap)
		}

		switch snap.Status {
		case StatusSucceeded:
			logger.DebugCF("jobs", "Job reached succeeded", map[string]interface{}{
				"job_id": jobID,
				"polls":  polls,
			})
			return snap, nil
		case StatusFailed:
			return nil, &FailedError{JobID: jobID, Message: snap.Error}
		}

		if err := p.sleep(ctx, interval); err != nil {
			return nil, err
		}

		if elapsed := p.now().Sub(start); elapsed >= timeout {
			logger.WarnCF("jobs", "Job polling budget exhausted", map[string]interface{}{
				"job_id":  jobID,
				"elapsed": elapsed.String(),
				"polls":   polls,
			})
			return nil, &TimeoutError{JobID: jobID, Elapsed: elapsed}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
