package pipeline

import (
	"time"

	"github.com/ugclab/ugc-pipeline/internal/validator"
)

type Option func(o *Orchestrator)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p.normalize()
	}
}

// WithStageTimeout bounds every attempt of a stage. Zero means no bound.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stageTimeout = d
	}
}

func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.events = sink
		}
	}
}

func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) {
		o.archiver = a
	}
}

func WithValidator(v *validator.Validator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}
