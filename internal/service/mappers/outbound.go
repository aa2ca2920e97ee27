package mappers

import (
	"encoding/json"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
)

// JobToApi builds the client view of a job. Node statuses and progress are
// derived from the marker, they are never stored.
func JobToApi(c *catalog.Catalog, j model.Job) api.JobStatus {
	status := api.JobStatus{
		JobId:            j.ID,
		Status:           string(j.Status),
		CurrentStep:      j.CurrentStep,
		Error:            j.ErrorMessage,
		StageResults:     make(map[string]json.RawMessage, len(j.StageResults)),
		PromptProvenance: ProvenanceToApi(j.PromptProvenance),
		Nodes:            make(map[string]string, c.Len()),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		CompletedAt:      j.CompletedAt,
	}

	for step, result := range j.StageResults {
		status.StageResults[string(step)] = result
	}
	for step, node := range c.DeriveStatuses(j.CurrentStep, j.Status) {
		status.Nodes[string(step)] = string(node)
	}

	p := c.Progress(j.CurrentStep, j.Status)
	status.Progress = api.Progress{
		StepNumber:  p.StepNumber,
		TotalSteps:  p.TotalSteps,
		CurrentStep: p.CurrentStep,
		Percentage:  p.Percentage,
	}

	return status
}

func JobListToApi(c *catalog.Catalog, jobs model.JobList) api.JobStatusList {
	list := api.JobStatusList{}
	for _, j := range jobs {
		list = append(list, JobToApi(c, j))
	}
	return list
}

func ProvenanceToApi(p *prompt.Provenance) *api.PromptProvenance {
	if p == nil {
		return nil
	}
	return &api.PromptProvenance{
		Text:           p.Text,
		Source:         string(p.Source),
		BaseLength:     p.BaseLength,
		EnhancedLength: p.EnhancedLength,
		FinalLength:    p.FinalLength,
	}
}

func CatalogToApi(c *catalog.Catalog) api.Catalog {
	steps := api.Catalog{}
	for _, s := range c.Steps() {
		step := api.CatalogStep{
			Id:               string(s.ID),
			CompletionMarker: s.CompletionMarker,
			Optional:         s.Optional(),
			Label:            s.Label,
		}
		if s.Optional() {
			marker := s.SkipMarker
			step.SkipMarker = &marker
		}
		steps = append(steps, step)
	}
	return steps
}

func StartResponseToApi(j model.Job) api.PipelineStartResponse {
	return api.PipelineStartResponse{
		JobId:   j.ID,
		Status:  string(j.Status),
		Message: "job accepted",
	}
}
