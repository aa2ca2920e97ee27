package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/events"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"github.com/ugclab/ugc-pipeline/internal/validator"
	"github.com/ugclab/ugc-pipeline/pkg/log"
	"github.com/ugclab/ugc-pipeline/pkg/metrics"
	"go.uber.org/zap"
)

const archiveTimeout = 30 * time.Second

// EventSink receives the lifecycle events of the jobs.
type EventSink interface {
	Publish(ctx context.Context, kind string, v any) error
}

// Archiver keeps a copy of the terminal job records.
type Archiver interface {
	Archive(ctx context.Context, job *model.Job) error
}

type noopSink struct{}

func (noopSink) Publish(context.Context, string, any) error { return nil }

// Orchestrator runs every accepted job in its own goroutine, stage after
// stage in catalog order. That goroutine is the only writer of the job record.
type Orchestrator struct {
	store        store.Job
	catalog      *catalog.Catalog
	runner       StageRunner
	validator    *validator.Validator
	policy       RetryPolicy
	stageTimeout time.Duration
	events       EventSink
	archiver     Archiver
	logger       *log.StructuredLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewOrchestrator(s store.Job, c *catalog.Catalog, runner StageRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        s,
		catalog:      c,
		runner:       runner,
		validator:    validator.NewPipelineValidator(),
		policy:       DefaultRetryPolicy(),
		stageTimeout: 10 * time.Minute,
		events:       noopSink{},
		logger:       log.NewDebugLogger("orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates the request, creates the job record and launches the job.
// It returns as soon as the record exists. The job keeps running when ctx
// is cancelled.
func (o *Orchestrator) Start(ctx context.Context, req api.PipelineStartRequest) (string, error) {
	if err := o.validator.Struct(req); err != nil {
		return "", err
	}

	if req.HasBlueprint() && req.Config.RenderVideo == nil {
		disabled := false
		req.Config.RenderVideo = &disabled
	}
	req.Config = req.Config.WithDefaults()
	if req.JobId == "" {
		req.JobId = uuid.NewString()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding job input: %w", err)
	}

	// Close takes the write lock, the read lock keeps wg.Add ahead of its Wait.
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return "", ErrClosed
	}

	job, err := o.store.Create(ctx, req.JobId, input)
	if err != nil {
		return "", err
	}

	metrics.IncreaseJobsStarted()
	o.publish(ctx, events.JobStartedKind, job, events.JobEvent{})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(context.WithoutCancel(ctx), req)
	}()

	return job.ID, nil
}

func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.Get(ctx, jobID)
}

// Wait blocks until every launched job reached a terminal status.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close refuses new jobs and waits for the running ones.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) execute(ctx context.Context, req api.PipelineStartRequest) {
	jobID := req.JobId
	tracer := o.logger.WithContext(ctx).Operation("execute_job").WithString("job_id", jobID).Build()
	state := newJobState(req)

	for _, step := range o.catalog.Steps() {
		if step.ID == catalog.StepRender && !req.Config.RenderEnabled() {
			tracer.Step("render_disabled").Log()
			break
		}

		if payload, ok := supplied(step.ID, req); ok {
			job, err := o.store.RecordStageResult(ctx, jobID, step.ID, payload)
			if err != nil {
				o.fail(ctx, tracer, jobID, fmt.Sprintf("stage %s: recording supplied result: %v", step.ID, err))
				return
			}
			state.record(step.ID, payload)
			o.publish(ctx, events.StageCompletedKind, job, events.JobEvent{Step: string(step.ID)})
			tracer.Step("stage_supplied").WithString("stage", string(step.ID)).Log()
			continue
		}

		if skipped(step, req.Config) {
			job, err := o.store.RecordStageSkipped(ctx, jobID, step.ID)
			if err != nil {
				o.fail(ctx, tracer, jobID, fmt.Sprintf("stage %s: recording skip: %v", step.ID, err))
				return
			}
			metrics.IncreaseStageAttempts(string(step.ID), metrics.OutcomeSkipped)
			o.publish(ctx, events.StageSkippedKind, job, events.JobEvent{Step: string(step.ID)})
			tracer.Step("stage_skipped").WithString("stage", string(step.ID)).Log()
			continue
		}

		payload, err := o.runStage(ctx, jobID, step.ID, state.input())
		if err != nil {
			o.fail(ctx, tracer, jobID, err.Error())
			return
		}

		job, err := o.store.RecordStageResult(ctx, jobID, step.ID, payload)
		if err != nil {
			o.fail(ctx, tracer, jobID, fmt.Sprintf("stage %s: recording result: %v", step.ID, err))
			return
		}
		state.record(step.ID, payload)
		tracer.Step("stage_completed").WithString("stage", string(step.ID)).Log()

		ev := events.JobEvent{Step: string(step.ID)}
		if step.ID == catalog.StepPrompt {
			p := state.resolvePrompt(payload)
			metrics.IncreasePromptSource(string(p.Source))
			ev.PromptSource = string(p.Source)
			tracer.Step("prompt_resolved").WithString("source", string(p.Source)).WithInt("final_length", p.FinalLength).Log()
		}
		o.publish(ctx, events.StageCompletedKind, job, ev)
	}

	if state.provenance != nil {
		if _, err := o.store.SetPromptProvenance(ctx, jobID, *state.provenance); err != nil {
			o.fail(ctx, tracer, jobID, fmt.Sprintf("stage %s: storing prompt provenance: %v", catalog.StepPrompt, err))
			return
		}
	}

	job, err := o.store.MarkCompleted(ctx, jobID)
	if err != nil {
		tracer.Error(err).WithString("step", "mark_completed").Log()
		if !errors.Is(err, store.ErrTerminalJob) {
			o.fail(ctx, tracer, jobID, fmt.Sprintf("completing job: %v", err))
		}
		return
	}

	metrics.IncreaseJobsFinished(string(catalog.JobCompleted))
	o.publish(ctx, events.JobCompletedKind, job, events.JobEvent{})
	o.archive(ctx, job)
	tracer.Success().Log()
}

// runStage calls the runner until it succeeds, returns a permanent error or
// runs out of attempts.
func (o *Orchestrator) runStage(ctx context.Context, jobID string, step catalog.StepID, input StageInput) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStageDuration(string(step), time.Since(start).Seconds())
	}()

	attempt := 0
	out, err := retry.DoValue(ctx, o.policy.backoff(), func(ctx context.Context) (json.RawMessage, error) {
		attempt++
		out, err := o.attempt(ctx, StageRequest{JobID: jobID, Step: step, Attempt: attempt, Input: input})
		switch {
		case err == nil:
			metrics.IncreaseStageAttempts(string(step), metrics.OutcomeSuccess)
			return out, nil
		case IsPermanent(err):
			metrics.IncreaseStageAttempts(string(step), metrics.OutcomePermanent)
			return nil, err
		case attempt >= o.policy.MaxAttempts:
			metrics.IncreaseStageAttempts(string(step), metrics.OutcomeFailed)
			return nil, err
		}

		metrics.IncreaseStageAttempts(string(step), metrics.OutcomeRetry)
		zap.S().Named("orchestrator").Warnw("stage attempt failed", "job_id", jobID, "stage", step, "attempt", attempt, "error", err)
		o.publishEvent(ctx, events.StageRetriedKind, events.JobEvent{
			JobID:      jobID,
			Status:     string(catalog.JobRunning),
			Step:       string(step),
			Attempt:    attempt,
			Error:      err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return nil, retry.RetryableError(err)
	})
	if err != nil {
		return nil, &StageError{Step: step, Attempts: attempt, Err: err}
	}
	return out, nil
}

func (o *Orchestrator) attempt(ctx context.Context, req StageRequest) (json.RawMessage, error) {
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	out, err := o.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(out) {
		return nil, Permanent(errors.New("stage returned invalid json"))
	}
	return out, nil
}

func (o *Orchestrator) fail(ctx context.Context, tracer *log.OperationTracer, jobID, msg string) {
	tracer.Error(errors.New(msg)).Log()

	job, err := o.store.MarkFailed(ctx, jobID, msg)
	if err != nil {
		tracer.Error(err).WithString("step", "mark_failed").Log()
		return
	}

	metrics.IncreaseJobsFinished(string(catalog.JobFailed))
	o.publish(ctx, events.JobFailedKind, job, events.JobEvent{Error: msg})
	o.archive(ctx, job)
}

func (o *Orchestrator) archive(ctx context.Context, job *model.Job) {
	if o.archiver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	if err := o.archiver.Archive(ctx, job); err != nil {
		metrics.IncreaseArchiveOperations(metrics.OutcomeFailed)
		zap.S().Named("orchestrator").Errorw("failed to archive job", "job_id", job.ID, "error", err)
		return
	}
	metrics.IncreaseArchiveOperations(metrics.OutcomeSuccess)
}

// publish fills the event from the record and hands it to the sink.
func (o *Orchestrator) publish(ctx context.Context, kind string, job *model.Job, ev events.JobEvent) {
	ev.JobID = job.ID
	ev.Status = string(job.Status)
	ev.CurrentStep = job.CurrentStep
	ev.OccurredAt = job.UpdatedAt

	o.publishEvent(ctx, kind, ev)
}

func (o *Orchestrator) publishEvent(ctx context.Context, kind string, ev events.JobEvent) {
	if err := o.events.Publish(ctx, kind, ev); err != nil {
		zap.S().Named("orchestrator").Warnw("failed to publish event", "job_id", ev.JobID, "kind", kind, "error", err)
	}
}
