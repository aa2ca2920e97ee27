package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
)

// mutation changes a loaded record in place. It must leave the record
// untouched when it returns an error.
type mutation func(job *model.Job, now time.Time) error

func newJob(id string, input json.RawMessage, now time.Time) model.Job {
	ts := now.UTC().Truncate(time.Microsecond)
	return model.Job{
		ID:           id,
		Status:       catalog.JobRunning,
		CurrentStep:  catalog.MarkerNone,
		StageResults: map[catalog.StepID]json.RawMessage{},
		Input:        append(json.RawMessage(nil), input...),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

// touch moves updatedAt forward, even when the clock did not advance.
func touch(job *model.Job, now time.Time) {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(job.UpdatedAt) {
		next = job.UpdatedAt.Add(time.Microsecond)
	}
	job.UpdatedAt = next
}

func checkRunning(job *model.Job) error {
	if job.Terminal() {
		return fmt.Errorf("job %s is %s: %w", job.ID, job.Status, ErrTerminalJob)
	}
	return nil
}

// advanceTo checks that moving to marker does not regress the job.
func advanceTo(c *catalog.Catalog, job *model.Job, marker string) error {
	next, _ := c.IndexOf(marker)
	current, _ := c.IndexOf(job.CurrentStep)
	if next < current {
		return fmt.Errorf("job %s: cannot move from %q to %q: %w", job.ID, job.CurrentStep, marker, ErrOutOfOrder)
	}
	return nil
}

func recordResult(c *catalog.Catalog, stepID catalog.StepID, payload json.RawMessage) mutation {
	return func(job *model.Job, now time.Time) error {
		if err := checkRunning(job); err != nil {
			return err
		}
		step, found := c.Step(stepID)
		if !found {
			return fmt.Errorf("job %s: %q: %w", job.ID, stepID, ErrUnknownStep)
		}
		if err := advanceTo(c, job, step.CompletionMarker); err != nil {
			return err
		}

		if job.StageResults == nil {
			job.StageResults = map[catalog.StepID]json.RawMessage{}
		}
		job.StageResults[stepID] = append(json.RawMessage(nil), payload...)
		job.CurrentStep = step.CompletionMarker
		touch(job, now)
		return nil
	}
}

func recordSkipped(c *catalog.Catalog, stepID catalog.StepID) mutation {
	return func(job *model.Job, now time.Time) error {
		if err := checkRunning(job); err != nil {
			return err
		}
		step, found := c.Step(stepID)
		if !found {
			return fmt.Errorf("job %s: %q: %w", job.ID, stepID, ErrUnknownStep)
		}
		if !step.Optional() {
			return fmt.Errorf("job %s: %q: %w", job.ID, stepID, ErrStepNotOptional)
		}
		if err := advanceTo(c, job, step.SkipMarker); err != nil {
			return err
		}

		job.CurrentStep = step.SkipMarker
		touch(job, now)
		return nil
	}
}

func setProvenance(p prompt.Provenance) mutation {
	return func(job *model.Job, now time.Time) error {
		if err := checkRunning(job); err != nil {
			return err
		}
		job.PromptProvenance = &p
		touch(job, now)
		return nil
	}
}

func markCompleted() mutation {
	return func(job *model.Job, now time.Time) error {
		if err := checkRunning(job); err != nil {
			return err
		}
		job.Status = catalog.JobCompleted
		touch(job, now)
		completedAt := job.UpdatedAt
		job.CompletedAt = &completedAt
		return nil
	}
}

func markFailed(msg string) mutation {
	return func(job *model.Job, now time.Time) error {
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("job %s: %w", job.ID, ErrEmptyMessage)
		}
		if err := checkRunning(job); err != nil {
			return err
		}
		job.Status = catalog.JobFailed
		job.ErrorMessage = &msg
		touch(job, now)
		completedAt := job.UpdatedAt
		job.CompletedAt = &completedAt
		return nil
	}
}
