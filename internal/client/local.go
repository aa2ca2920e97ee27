package client

import (
	"context"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/pipeline"
	"github.com/ugclab/ugc-pipeline/internal/service/mappers"
)

// LocalAPI exposes an in process orchestrator as a JobAPI.
type LocalAPI struct {
	orchestrator *pipeline.Orchestrator
	catalog      *catalog.Catalog
}

func NewLocalAPI(o *pipeline.Orchestrator, c *catalog.Catalog) *LocalAPI {
	return &LocalAPI{orchestrator: o, catalog: c}
}

func (l *LocalAPI) Start(ctx context.Context, req api.PipelineStartRequest) (string, error) {
	return l.orchestrator.Start(ctx, req)
}

func (l *LocalAPI) GetStatus(ctx context.Context, jobID string) (*api.JobStatus, error) {
	job, err := l.orchestrator.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	status := mappers.JobToApi(l.catalog, *job)
	return &status, nil
}
