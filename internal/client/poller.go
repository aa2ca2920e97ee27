package client

import (
	"context"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollJitter   = 30 * time.Millisecond
)

// TimeoutError is returned when a job did not finish within PollOptions.Timeout.
// The job itself keeps running.
type TimeoutError struct {
	JobID string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish after %s", e.JobID, e.After)
}

// PollEvent is the outcome of one poll. Exactly one of Status and Err is set.
type PollEvent struct {
	JobID   string
	Attempt int
	Status  *api.JobStatus
	Err     error
}

type PollOptions struct {
	Interval time.Duration
	// Jitter is the standard deviation of the normal jitter added to Interval.
	// Zero picks a small default, a negative value turns jitter off.
	Jitter time.Duration
	// Timeout bounds the whole polling, zero means no bound.
	Timeout  time.Duration
	Observer func(PollEvent)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = defaultPollInterval
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	} else if o.Jitter == 0 {
		o.Jitter = defaultPollJitter
	}
	if o.Observer == nil {
		o.Observer = func(PollEvent) {}
	}
	return o
}

type Poller struct {
	api JobAPI
}

func NewPoller(jobAPI JobAPI) *Poller {
	return &Poller{api: jobAPI}
}

// StartAndAwait starts a job and polls its status until it completed or
// failed. Poll errors are reported to the observer and polling goes on.
// Cancelling ctx stops the polling, never the job.
func (p *Poller) StartAndAwait(ctx context.Context, req api.PipelineStartRequest, opts PollOptions) (*api.JobStatus, error) {
	jobID, err := p.api.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx, jobID, opts)
}

// Await polls an already started job.
func (p *Poller) Await(ctx context.Context, jobID string, opts PollOptions) (*api.JobStatus, error) {
	opts = opts.withDefaults()
	logger := zap.S().Named("poller")

	ticker := jitterbug.New(opts.Interval, &jitterbug.Norm{Stdev: opts.Jitter, Mean: 0})
	defer ticker.Stop()

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			err := &TimeoutError{JobID: jobID, After: opts.Timeout}
			opts.Observer(PollEvent{JobID: jobID, Attempt: attempt, Err: err})
			return nil, err
		case <-ticker.C:
		}

		status, err := p.api.GetStatus(ctx, jobID)
		if err != nil {
			logger.Debugw("poll failed", "job_id", jobID, "attempt", attempt, "error", err)
			opts.Observer(PollEvent{JobID: jobID, Attempt: attempt, Err: err})
			continue
		}

		opts.Observer(PollEvent{JobID: jobID, Attempt: attempt, Status: status})
		if catalog.JobStatus(status.Status).Terminal() {
			return status, nil
		}
	}
}
