package service

import (
	"context"
	"errors"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/store"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
	"github.com/ugclab/ugc-pipeline/internal/validator"
	"github.com/ugclab/ugc-pipeline/pkg/log"
)

// Starter launches pipeline jobs. It is implemented by the orchestrator.
type Starter interface {
	Start(ctx context.Context, req api.PipelineStartRequest) (string, error)
}

type PipelineService struct {
	starter Starter
	store   store.Store
	catalog *catalog.Catalog
	logger  *log.StructuredLogger
}

func NewPipelineService(starter Starter, s store.Store, c *catalog.Catalog) *PipelineService {
	return &PipelineService{
		starter: starter,
		store:   s,
		catalog: c,
		logger:  log.NewDebugLogger("pipeline_service"),
	}
}

// JobFilter narrows ListJobs. An empty status matches every job.
type JobFilter struct {
	Status string
	Limit  int
}

func (s *PipelineService) StartJob(ctx context.Context, req api.PipelineStartRequest) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("start_job").
		WithString("video_url", req.VideoUrl).
		WithString("job_id", req.JobId).
		Build()

	id, err := s.starter.Start(ctx, req)
	if err != nil {
		tracer.Error(err).Log()

		var fieldErr *validator.ErrInvalidField
		switch {
		case errors.As(err, &fieldErr):
			return nil, NewErrInvalidRequest(fieldErr.Error())
		case errors.Is(err, store.ErrDuplicateJob):
			return nil, NewErrJobAlreadyExists(req.JobId)
		case errors.Is(err, pipeline.ErrClosed):
			return nil, NewErrUnavailable(err)
		default:
			return nil, err
		}
	}
	tracer.Step("job_started").WithString("job_id", id).Log()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithString("job_id", id).Log()
	return job, nil
}

func (s *PipelineService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *PipelineService) ListJobs(ctx context.Context, filter JobFilter) (model.JobList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_jobs").
		WithString("status", filter.Status).
		WithInt("limit", filter.Limit).
		Build()

	storeFilter := store.NewJobQueryFilter()
	if filter.Status != "" {
		status := catalog.JobStatus(filter.Status)
		if !status.Valid() {
			err := NewErrInvalidRequest("unknown job status " + filter.Status)
			tracer.Error(err).Log()
			return nil, err
		}
		storeFilter = storeFilter.ByStatus(status)
	}
	if filter.Limit < 0 {
		err := NewErrInvalidRequest("limit must not be negative")
		tracer.Error(err).Log()
		return nil, err
	}
	storeFilter = storeFilter.WithLimit(filter.Limit)

	jobs, err := s.store.Job().List(ctx, storeFilter)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithInt("count", len(jobs)).Log()
	return jobs, nil
}

// DeleteJob removes a completed or failed job. Running jobs are kept.
func (s *PipelineService) DeleteJob(ctx context.Context, id string) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("delete_job").WithString("job_id", id).Build()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	if err := s.store.Job().Delete(ctx, id); err != nil {
		tracer.Error(err).Log()
		switch {
		case errors.Is(err, store.ErrJobNotFound):
			return nil, NewErrJobNotFound(id)
		case errors.Is(err, store.ErrJobNotTerminal):
			return nil, NewErrJobNotTerminal(id, string(job.Status))
		default:
			return nil, err
		}
	}

	tracer.Success().Log()
	return job, nil
}

func (s *PipelineService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Health reports whether the job store is reachable.
func (s *PipelineService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return NewErrUnavailable(err)
	}
	return nil
}
