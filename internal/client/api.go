package client

import (
	"context"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
)

// JobAPI is what the poller needs from the pipeline, remote or in process.
type JobAPI interface {
	Start(ctx context.Context, req api.PipelineStartRequest) (string, error)
	GetStatus(ctx context.Context, jobID string) (*api.JobStatus, error)
}

var (
	_ JobAPI = (*PipelineClient)(nil)
	_ JobAPI = (*LocalAPI)(nil)
)
