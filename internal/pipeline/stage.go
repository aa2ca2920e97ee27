package pipeline

import (
	"context"
	"encoding/json"

	api "github.com/ugclab/ugc-pipeline/api/v1alpha1"
	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
)

// StageRunner invokes the collaborator executing a stage. The returned
// payload is stored as the stage result.
type StageRunner interface {
	Run(ctx context.Context, req StageRequest) (json.RawMessage, error)
}

type StageRequest struct {
	JobID   string         `json:"jobId"`
	Step    catalog.StepID `json:"step"`
	Attempt int            `json:"attempt"`
	Input   StageInput     `json:"input"`
}

// StageInput is built from the job request and the results of the stages
// that already ran.
type StageInput struct {
	VideoURL           string                             `json:"videoUrl"`
	ProductImages      []string                           `json:"productImages,omitempty"`
	ProductDescription string                             `json:"productDescription,omitempty"`
	ProductContext     string                             `json:"productContext,omitempty"`
	Config             api.PipelineConfig                 `json:"config"`
	PreviousResults    map[catalog.StepID]json.RawMessage `json:"previousResults,omitempty"`
	Blueprint          *BlueprintSummary                  `json:"blueprint,omitempty"`
	Prompt             string                             `json:"prompt,omitempty"`
	PromptSource       prompt.Source                      `json:"promptSource,omitempty"`
	SceneImageURL      string                             `json:"sceneImageUrl,omitempty"`
}

// BlueprintSummary is the part of the analyze result the pipeline reads.
type BlueprintSummary struct {
	Setting  string `json:"setting,omitempty"`
	Lighting string `json:"lighting,omitempty"`
	Energy   string `json:"energy,omitempty"`
}

type AnalyzeStageResult struct {
	Blueprint BlueprintSummary `json:"blueprint"`
}

// SourceBlueprint marks the results recorded from a supplied blueprint.
const SourceBlueprint = "blueprint"

type suppliedResult struct {
	Source    string          `json:"source"`
	Blueprint json.RawMessage `json:"blueprint,omitempty"`
}

type PromptStageResult struct {
	BasePrompt     string  `json:"basePrompt"`
	EnhancedPrompt *string `json:"enhancedPrompt,omitempty"`
}

type SceneImageStageResult struct {
	ImageURL string `json:"imageUrl"`
}

// jobState carries what later stages need from earlier ones.
type jobState struct {
	request    api.PipelineStartRequest
	results    map[catalog.StepID]json.RawMessage
	blueprint  *BlueprintSummary
	provenance *prompt.Provenance
	sceneImage string
}

func newJobState(req api.PipelineStartRequest) *jobState {
	return &jobState{
		request: req,
		results: make(map[catalog.StepID]json.RawMessage),
	}
}

func (s *jobState) input() StageInput {
	in := StageInput{
		VideoURL:           s.request.VideoUrl,
		ProductImages:      s.request.ProductImages,
		ProductDescription: s.request.ProductDescription,
		ProductContext:     s.request.ProductContext,
		Config:             s.request.Config,
		Blueprint:          s.blueprint,
		SceneImageURL:      s.sceneImage,
	}
	if len(s.results) > 0 {
		in.PreviousResults = make(map[catalog.StepID]json.RawMessage, len(s.results))
		for k, v := range s.results {
			in.PreviousResults[k] = v
		}
	}
	if s.provenance != nil {
		in.Prompt = s.provenance.Text
		in.PromptSource = s.provenance.Source
	}
	return in
}

// record keeps the result of step and extracts the fields later stages use.
// Results that do not decode leave the extracted fields empty.
func (s *jobState) record(step catalog.StepID, payload json.RawMessage) {
	s.results[step] = payload

	switch step {
	case catalog.StepAnalyze:
		var r AnalyzeStageResult
		if err := json.Unmarshal(payload, &r); err == nil {
			s.blueprint = &r.Blueprint
		}
	case catalog.StepSceneImage:
		var r SceneImageStageResult
		if err := json.Unmarshal(payload, &r); err == nil {
			s.sceneImage = r.ImageURL
		}
	}
}

// resolvePrompt runs the fallback resolver on the prompt stage result.
func (s *jobState) resolvePrompt(payload json.RawMessage) prompt.Provenance {
	var r PromptStageResult
	_ = json.Unmarshal(payload, &r)

	enhanced := r.EnhancedPrompt
	if !s.request.Config.MechanicsEnabled() {
		enhanced = nil
	}

	tmpl := prompt.TemplateInput{
		ProductDescription: s.request.ProductDescription,
		Energy:             s.request.Config.EnergyLevel,
	}
	if s.blueprint != nil {
		tmpl.Setting = s.blueprint.Setting
		tmpl.Lighting = s.blueprint.Lighting
		if s.blueprint.Energy != "" {
			tmpl.Energy = s.blueprint.Energy
		}
	}

	p := prompt.Resolve(enhanced, r.BasePrompt, prompt.FallbackTemplate(tmpl))
	s.provenance = &p
	return p
}

// skipped reports whether an optional step is turned off by the job configuration.
func skipped(step catalog.Step, cfg api.PipelineConfig) bool {
	if !step.Optional() {
		return false
	}
	switch step.ID {
	case catalog.StepSceneImage:
		return cfg.SkipSceneImage || !cfg.ImageToVideoEnabled() || !cfg.RenderEnabled()
	default:
		return false
	}
}

// supplied returns the result of a step the request already carries. The
// video stages of a job started from a blueprint are never run.
func supplied(step catalog.StepID, req api.PipelineStartRequest) (json.RawMessage, bool) {
	if !req.HasBlueprint() {
		return nil, false
	}

	var r suppliedResult
	switch step {
	case catalog.StepDownload, catalog.StepExtract:
		r = suppliedResult{Source: SourceBlueprint}
	case catalog.StepAnalyze:
		r = suppliedResult{Source: SourceBlueprint, Blueprint: req.Blueprint}
	default:
		return nil, false
	}

	out, err := json.Marshal(r)
	if err != nil {
		return nil, false
	}
	return out, true
}
