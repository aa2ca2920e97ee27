package events

import "time"

const (
	JobStartedKind     string = "ugclab.pipeline.job.started"
	StageCompletedKind string = "ugclab.pipeline.job.stage_completed"
	StageSkippedKind   string = "ugclab.pipeline.job.stage_skipped"
	StageRetriedKind   string = "ugclab.pipeline.job.stage_retried"
	JobCompletedKind   string = "ugclab.pipeline.job.completed"
	JobFailedKind      string = "ugclab.pipeline.job.failed"
)

// JobEvent is the payload of every lifecycle event. Fields that do not apply
// to a kind are left empty.
type JobEvent struct {
	JobID        string    `json:"job_id"`
	Status       string    `json:"status"`
	CurrentStep  string    `json:"current_step"`
	Step         string    `json:"step,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
	Error        string    `json:"error,omitempty"`
	PromptSource string    `json:"prompt_source,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
