package v1alpha1

import (
	"encoding/json"
	"time"
)

// Defaults applied to an incoming pipeline configuration.
const (
	DefaultTargetDuration = 8.0
	DefaultEnergyLevel    = "medium"
	DefaultVideoModel     = "sora2"
	DefaultVideoDuration  = 5
	DefaultAspectRatio    = "9:16"
)

// PipelineStartRequest defines the body of a job creation request.
type PipelineStartRequest struct {
	// JobId is optional, a uuid is generated when it is empty.
	JobId string `json:"jobId,omitempty" validate:"omitempty,job_id"`
	// VideoUrl may be left empty when Blueprint is set.
	VideoUrl           string   `json:"videoUrl" validate:"required_without=Blueprint,omitempty,media_url"`
	ProductImages      []string `json:"productImages,omitempty" validate:"omitempty,dive,media_url"`
	ProductDescription string   `json:"productDescription,omitempty" validate:"max=2000"`
	ProductContext     string   `json:"productContext,omitempty" validate:"max=4000"`
	// Blueprint is the result of an earlier analysis. A job started with a
	// blueprint does not download nor analyze a video, it only generates the
	// prompt and renders when Config.RenderVideo is set.
	Blueprint json.RawMessage `json:"blueprint,omitempty" validate:"omitempty,json_object"`
	Config    PipelineConfig  `json:"config"`
}

func (r PipelineStartRequest) HasBlueprint() bool {
	return len(r.Blueprint) > 0
}

// PipelineConfig holds the options recognized by the pipeline. Unknown
// options in the request body are ignored.
type PipelineConfig struct {
	SkipSceneImage  bool    `json:"skipSceneImage,omitempty"`
	UseImageToVideo *bool   `json:"useImageToVideo,omitempty"`
	EnableMechanics *bool   `json:"enableMechanics,omitempty"`
	RenderVideo     *bool   `json:"renderVideo,omitempty"`
	ProductCategory string  `json:"productCategory,omitempty" validate:"max=64"`
	EnergyLevel     string  `json:"energyLevel,omitempty" validate:"omitempty,energy_level"`
	TargetDuration  float64 `json:"targetDuration,omitempty" validate:"gte=0,lte=60"`
	VideoModel      string  `json:"videoModel,omitempty" validate:"max=64"`
	VideoDuration   int     `json:"videoDuration,omitempty" validate:"gte=0,lte=60"`
	AspectRatio     string  `json:"aspectRatio,omitempty" validate:"omitempty,aspect_ratio"`
}

func (c PipelineConfig) MechanicsEnabled() bool {
	return c.EnableMechanics == nil || *c.EnableMechanics
}

func (c PipelineConfig) ImageToVideoEnabled() bool {
	return c.UseImageToVideo == nil || *c.UseImageToVideo
}

func (c PipelineConfig) RenderEnabled() bool {
	return c.RenderVideo == nil || *c.RenderVideo
}

// WithDefaults returns a copy of the configuration with every unset option
// filled in.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	enabled := func(v bool) *bool { return &v }

	if c.UseImageToVideo == nil {
		c.UseImageToVideo = enabled(true)
	}
	if c.EnableMechanics == nil {
		c.EnableMechanics = enabled(true)
	}
	if c.RenderVideo == nil {
		c.RenderVideo = enabled(true)
	}
	if c.EnergyLevel == "" {
		c.EnergyLevel = DefaultEnergyLevel
	}
	if c.TargetDuration == 0 {
		c.TargetDuration = DefaultTargetDuration
	}
	if c.VideoModel == "" {
		c.VideoModel = DefaultVideoModel
	}
	if c.VideoDuration == 0 {
		c.VideoDuration = DefaultVideoDuration
	}
	if c.AspectRatio == "" {
		c.AspectRatio = DefaultAspectRatio
	}
	return c
}

// PipelineStartResponse is returned when a job has been accepted.
type PipelineStartResponse struct {
	JobId   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobStatus is the status of a pipeline job as seen by clients.
type JobStatus struct {
	JobId            string                     `json:"jobId"`
	Status           string                     `json:"status"`
	CurrentStep      string                     `json:"currentStep"`
	Error            *string                    `json:"error,omitempty"`
	StageResults     map[string]json.RawMessage `json:"stageResults"`
	PromptProvenance *PromptProvenance          `json:"promptProvenance,omitempty"`
	Nodes            map[string]string          `json:"nodes"`
	Progress         Progress                   `json:"progress"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
	CompletedAt      *time.Time                 `json:"completedAt,omitempty"`
}

type JobStatusList []JobStatus

type Progress struct {
	StepNumber  int     `json:"stepNumber"`
	TotalSteps  int     `json:"totalSteps"`
	CurrentStep string  `json:"currentStep"`
	Percentage  float64 `json:"percentage"`
}

type PromptProvenance struct {
	Text           string `json:"text"`
	Source         string `json:"source"`
	BaseLength     int    `json:"baseLength"`
	EnhancedLength int    `json:"enhancedLength"`
	FinalLength    int    `json:"finalLength"`
}

type CatalogStep struct {
	Id               string  `json:"id"`
	CompletionMarker string  `json:"completionMarker"`
	SkipMarker       *string `json:"skipMarker,omitempty"`
	Optional         bool    `json:"optional"`
	Label            string  `json:"label"`
}

type Catalog []CatalogStep

// Error is returned on every non 2xx answer.
type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}
