package catalog

import "math"

type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobStatuses lists every job status.
func JobStatuses() []JobStatus {
	return []JobStatus{JobIdle, JobRunning, JobCompleted, JobFailed}
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobIdle, JobRunning, JobCompleted, JobFailed:
		return true
	default:
		return false
	}
}

type NodeStatus string

const (
	NodeIdle      NodeStatus = "idle"
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
)

// Progress summarizes how far a job got.
type Progress struct {
	StepNumber  int
	TotalSteps  int
	CurrentStep string
	Percentage  float64
}

const (
	labelInitializing = "Initializing"
	labelCompleted    = "Completed"
)

// DeriveStatuses computes the status of every step from the job marker and
// the overall job status. Unknown markers are treated as "nothing completed"
// and unknown job statuses as idle.
func (c *Catalog) DeriveStatuses(marker string, status JobStatus) map[StepID]NodeStatus {
	statuses := make(map[StepID]NodeStatus, len(c.steps))

	if !status.Valid() || status == JobIdle {
		for _, s := range c.steps {
			statuses[s.ID] = NodeIdle
		}
		return statuses
	}

	completedIndex, _ := c.IndexOf(marker)

	for i, s := range c.steps {
		switch {
		case i <= completedIndex:
			statuses[s.ID] = NodeCompleted
		case status == JobCompleted:
			statuses[s.ID] = NodeCompleted
		case i == completedIndex+1 && status == JobFailed:
			statuses[s.ID] = NodeFailed
		case i == completedIndex+1:
			statuses[s.ID] = NodeRunning
		default:
			statuses[s.ID] = NodePending
		}
	}

	return statuses
}

func (c *Catalog) Progress(marker string, status JobStatus) Progress {
	total := len(c.steps)
	p := Progress{TotalSteps: total, CurrentStep: labelInitializing}

	switch {
	case !status.Valid() || status == JobIdle:
		return p
	case status == JobCompleted:
		p.StepNumber = total
		p.CurrentStep = labelCompleted
		p.Percentage = 100
		return p
	}

	completedIndex, _ := c.IndexOf(marker)
	p.StepNumber = completedIndex + 1
	p.Percentage = math.Round(float64(p.StepNumber)/float64(total)*1000) / 10
	if next := completedIndex + 1; next < total {
		p.CurrentStep = c.steps[next].Label
	} else {
		p.CurrentStep = c.steps[total-1].Label
	}

	return p
}
