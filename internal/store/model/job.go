package model

import (
	"encoding/json"
	"time"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
)

// Job is the record of one pipeline run.
type Job struct {
	ID               string                             `gorm:"primaryKey;column:id;type:VARCHAR(64)" json:"id"`
	Status           catalog.JobStatus                  `gorm:"column:status;type:VARCHAR(16);not null;index" json:"status"`
	CurrentStep      string                             `gorm:"column:current_step;type:VARCHAR(64);not null;default:''" json:"currentStep"`
	StageResults     map[catalog.StepID]json.RawMessage `gorm:"column:stage_results;serializer:json" json:"stageResults"`
	PromptProvenance *prompt.Provenance                 `gorm:"column:prompt_provenance;serializer:json" json:"promptProvenance,omitempty"`
	Input            json.RawMessage                    `gorm:"column:input;serializer:json" json:"input,omitempty"`
	ErrorMessage     *string                            `gorm:"column:error_message" json:"errorMessage,omitempty"`
	CreatedAt        time.Time                          `gorm:"column:created_at;autoCreateTime:false;not null" json:"createdAt"`
	UpdatedAt        time.Time                          `gorm:"column:updated_at;autoUpdateTime:false;not null" json:"updatedAt"`
	CompletedAt      *time.Time                         `gorm:"column:completed_at" json:"completedAt,omitempty"`
}

func (Job) TableName() string {
	return "pipeline_jobs"
}

func (j Job) Terminal() bool {
	return j.Status.Terminal()
}

// Clone returns a deep copy of the record so callers can't mutate stored state.
func (j Job) Clone() Job {
	c := j
	if j.StageResults != nil {
		c.StageResults = make(map[catalog.StepID]json.RawMessage, len(j.StageResults))
		for k, v := range j.StageResults {
			c.StageResults[k] = append(json.RawMessage(nil), v...)
		}
	}
	if j.PromptProvenance != nil {
		p := *j.PromptProvenance
		c.PromptProvenance = &p
	}
	if j.Input != nil {
		c.Input = append(json.RawMessage(nil), j.Input...)
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

type JobList []Job
